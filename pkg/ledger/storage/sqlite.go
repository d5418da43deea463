package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/junki-kanda/AutGuardRails/pkg/ledger"
	"github.com/junki-kanda/AutGuardRails/pkg/policy"
)

// DriverCgo and DriverPure are the registered database/sql driver names the
// SQLite backend accepts.
const (
	DriverCgo  = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPure = "sqlite"  // modernc.org/sqlite
)

// SQLiteConfig contains configuration for the SQLite ledger backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver selects the SQL driver: "sqlite3" (cgo) or "sqlite"
	// (pure Go). Default: "sqlite3".
	Driver string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/guardrails.db",
		Driver:       DriverCgo,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore implements ledger.Store on a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStore opens the database, applies pragmas, and ensures the
// schema exists.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverCgo
	}
	if config.Driver != DriverCgo && config.Driver != DriverPure {
		return nil, ledger.NewStorageError(config.Driver, "open",
			fmt.Errorf("unknown sqlite driver %q (want %q or %q)", config.Driver, DriverCgo, DriverPure))
	}

	logger := slog.Default().With("component", "ledger.storage.sqlite")

	db, err := sql.Open(config.Driver, config.dsn())
	if err != nil {
		return nil, ledger.NewStorageError(config.Driver, "open", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStore{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite ledger initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
	)

	return s, nil
}

// dsn encodes the pragmas as DSN parameters in each driver's own syntax.
// busy_timeout is per-connection, so it has to ride on the DSN to reach
// every connection the pool opens; a plain Exec would only configure one.
func (c *SQLiteConfig) dsn() string {
	var params []string
	switch c.Driver {
	case DriverPure:
		params = append(params, fmt.Sprintf("_pragma=busy_timeout(%d)", c.BusyTimeout.Milliseconds()))
		if c.WALMode {
			params = append(params, "_pragma=journal_mode(WAL)")
		}
	default:
		params = append(params, fmt.Sprintf("_busy_timeout=%d", c.BusyTimeout.Milliseconds()))
		if c.WALMode {
			params = append(params, "_journal_mode=WAL")
		}
	}
	return c.Path + "?" + strings.Join(params, "&")
}

// initialize creates the schema and verifies its version.
func (s *SQLiteStore) initialize() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return ledger.NewStorageError(s.config.Driver, "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return ledger.NewStorageError(s.config.Driver, "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return ledger.NewStorageError(s.config.Driver, "get_schema_version", err)
	}
	if version != SchemaVersion {
		return ledger.NewStorageError(s.config.Driver, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// Create persists a new execution with version 1. The partial unique index
// on active (policy_id, target) is the authoritative guard; the pre-check
// only exists to produce a readable conflict reason.
func (s *SQLiteStore) Create(ctx context.Context, e *ledger.Execution) error {
	active, err := s.FindActive(ctx, e.PolicyID, e.Target)
	if err != nil {
		return err
	}
	if active != nil {
		return ledger.NewConflictError(e.ExecutionID,
			"active execution "+active.ExecutionID+" already holds this policy/target slot")
	}

	e.Version = 1
	_, err = s.db.ExecContext(ctx, insertExecution,
		e.ExecutionID, e.PolicyID, e.EventID, e.Target, string(e.Mode), string(e.Status),
		nullJSON(e.Diff), nullString(e.ExecutedBy), nullString(e.Error), e.RollbackFailures, e.TTLMinutes, e.Version,
		encTime(e.CreatedAt), encTime(e.UpdatedAt),
		encTimePtr(e.ExecutedAt), encTimePtr(e.TTLExpiresAt), encTimePtr(e.ApprovalExpiresAt),
	)
	if err != nil {
		if isConstraintErr(err) {
			return ledger.NewConflictError(e.ExecutionID, "slot or execution id already taken")
		}
		return ledger.NewStorageError(s.config.Driver, "create", err)
	}
	return nil
}

// Get returns the execution with the given id.
func (s *SQLiteStore) Get(ctx context.Context, executionID string) (*ledger.Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+executionColumns+" FROM executions WHERE execution_id = ?", executionID)
	if err != nil {
		return nil, ledger.NewStorageError(s.config.Driver, "get", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, ledger.NewStorageError(s.config.Driver, "get", err)
		}
		return nil, ledger.NewNotFoundError(executionID)
	}
	e, err := scanExecution(rows)
	if err != nil {
		return nil, ledger.NewStorageError(s.config.Driver, "scan", err)
	}
	return e, nil
}

// Update applies a version-checked write in a single UPDATE statement.
func (s *SQLiteStore) Update(ctx context.Context, e *ledger.Execution) error {
	res, err := s.db.ExecContext(ctx, updateExecution,
		string(e.Status), nullJSON(e.Diff), nullString(e.ExecutedBy), nullString(e.Error),
		e.RollbackFailures, e.TTLMinutes,
		encTime(e.UpdatedAt),
		encTimePtr(e.ExecutedAt), encTimePtr(e.TTLExpiresAt), encTimePtr(e.ApprovalExpiresAt),
		e.ExecutionID, e.Version,
	)
	if err != nil {
		return ledger.NewStorageError(s.config.Driver, "update", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return ledger.NewStorageError(s.config.Driver, "update", err)
	}
	if affected == 0 {
		// Either the row is gone or someone else updated it first.
		if _, err := s.Get(ctx, e.ExecutionID); err != nil {
			return err
		}
		return ledger.NewConflictError(e.ExecutionID, "stale version")
	}

	e.Version++
	return nil
}

// FindActive returns the non-terminal execution holding the slot, or nil.
func (s *SQLiteStore) FindActive(ctx context.Context, policyID, target string) (*ledger.Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+executionColumns+` FROM executions
		 WHERE policy_id = ? AND target = ? AND status IN ('planned', 'approved', 'executed')
		 LIMIT 1`, policyID, target)
	if err != nil {
		return nil, ledger.NewStorageError(s.config.Driver, "find_active", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, ledger.NewStorageError(s.config.Driver, "find_active", err)
		}
		return nil, nil
	}
	e, err := scanExecution(rows)
	if err != nil {
		return nil, ledger.NewStorageError(s.config.Driver, "scan", err)
	}
	return e, nil
}

// FindByEvent returns all executions for the event in creation order.
func (s *SQLiteStore) FindByEvent(ctx context.Context, eventID string) ([]*ledger.Execution, error) {
	return s.queryExecutions(ctx, "find_by_event",
		"SELECT "+executionColumns+` FROM executions
		 WHERE event_id = ?
		 ORDER BY created_at ASC, execution_id ASC`, eventID)
}

// FindExpired returns executed executions whose ttl has passed, oldest
// expiry first.
func (s *SQLiteStore) FindExpired(ctx context.Context, now time.Time, limit int) ([]*ledger.Execution, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryExecutions(ctx, "find_expired",
		"SELECT "+executionColumns+` FROM executions
		 WHERE status = 'executed' AND ttl_expires_at IS NOT NULL AND ttl_expires_at <= ?
		 ORDER BY ttl_expires_at ASC
		 LIMIT ?`, encTime(now), limit)
}

// FindStaleApprovals returns planned or approved executions whose approval
// window has lapsed.
func (s *SQLiteStore) FindStaleApprovals(ctx context.Context, now time.Time, limit int) ([]*ledger.Execution, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryExecutions(ctx, "find_stale_approvals",
		"SELECT "+executionColumns+` FROM executions
		 WHERE status IN ('planned', 'approved')
		   AND approval_expires_at IS NOT NULL AND approval_expires_at <= ?
		 ORDER BY approval_expires_at ASC
		 LIMIT ?`, encTime(now), limit)
}

// Recent returns executions newest first, optionally filtered to one
// status.
func (s *SQLiteStore) Recent(ctx context.Context, limit int, status ledger.Status) ([]*ledger.Execution, error) {
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT " + executionColumns + " FROM executions"
	var args []interface{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC, execution_id DESC LIMIT ?"
	args = append(args, limit)

	return s.queryExecutions(ctx, "recent", query, args...)
}

// ByPolicy returns executions for the policy, newest first.
func (s *SQLiteStore) ByPolicy(ctx context.Context, policyID string, limit int) ([]*ledger.Execution, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryExecutions(ctx, "by_policy",
		"SELECT "+executionColumns+` FROM executions
		 WHERE policy_id = ?
		 ORDER BY created_at DESC, execution_id DESC
		 LIMIT ?`, policyID, limit)
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return ledger.NewStorageError(s.config.Driver, "close", err)
	}
	s.logger.Info("SQLite ledger closed")
	return nil
}

// queryExecutions runs a multi-row query and scans all results.
func (s *SQLiteStore) queryExecutions(ctx context.Context, op, query string, args ...interface{}) ([]*ledger.Execution, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ledger.NewStorageError(s.config.Driver, op, err)
	}
	defer rows.Close()

	executions := []*ledger.Execution{}
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, ledger.NewStorageError(s.config.Driver, "scan", err)
		}
		executions = append(executions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.NewStorageError(s.config.Driver, op, err)
	}
	return executions, nil
}

// scanExecution scans a database row into an Execution.
func scanExecution(rows *sql.Rows) (*ledger.Execution, error) {
	var (
		e          ledger.Execution
		mode       string
		status     string
		diff       sql.NullString
		executedBy sql.NullString
		errMsg     sql.NullString
		createdAt  int64
		updatedAt  int64
		executedAt sql.NullInt64
		ttlAt      sql.NullInt64
		approvalAt sql.NullInt64
	)

	err := rows.Scan(
		&e.ExecutionID, &e.PolicyID, &e.EventID, &e.Target, &mode, &status,
		&diff, &executedBy, &errMsg, &e.RollbackFailures, &e.TTLMinutes, &e.Version,
		&createdAt, &updatedAt, &executedAt, &ttlAt, &approvalAt,
	)
	if err != nil {
		return nil, err
	}

	e.Mode = policy.Mode(mode)
	e.Status = ledger.Status(status)
	if diff.Valid && diff.String != "" {
		e.Diff = json.RawMessage(diff.String)
	}
	if executedBy.Valid {
		e.ExecutedBy = executedBy.String
	}
	if errMsg.Valid {
		e.Error = errMsg.String
	}
	e.CreatedAt = decTime(createdAt)
	e.UpdatedAt = decTime(updatedAt)
	e.ExecutedAt = decTimePtr(executedAt)
	e.TTLExpiresAt = decTimePtr(ttlAt)
	e.ApprovalExpiresAt = decTimePtr(approvalAt)

	return &e, nil
}

// isConstraintErr reports whether the driver error is a uniqueness
// violation. Both drivers mention "constraint" in the message; there is no
// shared typed error across them.
func isConstraintErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "constraint")
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func encTime(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func encTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().UnixNano()
}

func decTime(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func decTimePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := decTime(n.Int64)
	return &t
}
