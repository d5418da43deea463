package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the execution ledger schema.
// Timestamps are stored as UTC unix nanoseconds so ordering and range
// comparisons behave identically under both SQLite drivers.
const Schema = `
-- Execution ledger
CREATE TABLE IF NOT EXISTS executions (
    execution_id TEXT PRIMARY KEY,
    policy_id TEXT NOT NULL,
    event_id TEXT NOT NULL,
    target TEXT NOT NULL,
    mode TEXT NOT NULL,
    status TEXT NOT NULL,

    -- Frozen change description (JSON)
    diff TEXT,

    executed_by TEXT,
    error TEXT,
    rollback_failures INTEGER NOT NULL DEFAULT 0,

    -- Rollback delay frozen from the plan
    ttl_minutes INTEGER NOT NULL DEFAULT 0,

    -- Optimistic concurrency token
    version INTEGER NOT NULL,

    -- Timestamps (unix nanoseconds, UTC)
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    executed_at INTEGER,
    ttl_expires_at INTEGER,
    approval_expires_at INTEGER
);

-- One non-terminal execution per (policy_id, target)
CREATE UNIQUE INDEX IF NOT EXISTS idx_executions_active
    ON executions(policy_id, target)
    WHERE status IN ('planned', 'approved', 'executed');

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

-- Indexes for sweep and query paths
CREATE INDEX IF NOT EXISTS idx_executions_event ON executions(event_id);
CREATE INDEX IF NOT EXISTS idx_executions_policy ON executions(policy_id, created_at);
CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);
CREATE INDEX IF NOT EXISTS idx_executions_created ON executions(created_at);
CREATE INDEX IF NOT EXISTS idx_executions_ttl
    ON executions(ttl_expires_at) WHERE ttl_expires_at IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_executions_approval
    ON executions(approval_expires_at) WHERE approval_expires_at IS NOT NULL;
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

// executionColumns is the canonical column list; every SELECT uses it so
// scanExecution stays in one place.
const executionColumns = `execution_id, policy_id, event_id, target, mode, status,
	diff, executed_by, error, rollback_failures, ttl_minutes, version,
	created_at, updated_at, executed_at, ttl_expires_at, approval_expires_at`

const insertExecution = `
INSERT INTO executions (
    execution_id, policy_id, event_id, target, mode, status,
    diff, executed_by, error, rollback_failures, ttl_minutes, version,
    created_at, updated_at, executed_at, ttl_expires_at, approval_expires_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// updateExecution is the version-checked write. The WHERE clause makes the
// version check and the write one atomic statement.
const updateExecution = `
UPDATE executions SET
    status = ?,
    diff = ?,
    executed_by = ?,
    error = ?,
    rollback_failures = ?,
    ttl_minutes = ?,
    version = version + 1,
    updated_at = ?,
    executed_at = ?,
    ttl_expires_at = ?,
    approval_expires_at = ?
WHERE execution_id = ? AND version = ?
`
