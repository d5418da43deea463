package config

import "time"

// Config is the root configuration structure for the guardrails controller.
// It contains all configuration sections: the HTTP server, policy loading,
// the execution ledger, approval links, the IAM executor, rollback sweeping,
// notifications, and telemetry.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts, and the externally reachable base URL for decision links.
	Server ServerConfig `yaml:"server"`

	// Policies contains configuration for loading guardrail policies from
	// a directory or a Git repository, and for watching them for changes.
	Policies PoliciesConfig `yaml:"policies"`

	// Ledger contains configuration for the execution ledger backend.
	Ledger LedgerConfig `yaml:"ledger"`

	// Approval contains configuration for signed approval links.
	Approval ApprovalConfig `yaml:"approval"`

	// Executor contains configuration for the AWS IAM executor.
	Executor ExecutorConfig `yaml:"executor"`

	// Rollback contains configuration for the ttl rollback sweeper.
	Rollback RollbackConfig `yaml:"rollback"`

	// Notify contains configuration for Slack notifications.
	Notify NotifyConfig `yaml:"notify"`

	// Telemetry contains configuration for observability including logging
	// and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// BaseURL is the externally reachable address approval links point at.
	// Approvers click these links, so it must resolve from wherever
	// notifications are read.
	// Default: "http://" + ListenAddress
	BaseURL string `yaml:"base_url"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next
	// request when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown before in-flight requests are dropped.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// PoliciesConfig contains configuration for policy loading.
type PoliciesConfig struct {
	// Dir is the directory holding policy YAML files. Files load in
	// lexical order.
	// Default: "./policies"
	Dir string `yaml:"dir"`

	// Watch enables automatic reloading when policy files change.
	// Default: false
	Watch bool `yaml:"watch"`

	// Git configures pulling policies from a Git repository instead of a
	// plain directory.
	Git GitPoliciesConfig `yaml:"git"`
}

// GitPoliciesConfig configures Git-based policy loading.
type GitPoliciesConfig struct {
	// Enabled determines if Git mode is active. When enabled the
	// repository is cloned into CacheDir and Dir-relative paths resolve
	// inside it.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Repository URL (HTTPS or SSH).
	// Example: "https://github.com/company/guardrail-policies.git"
	Repository string `yaml:"repository"`

	// Branch to track.
	// Default: "main"
	Branch string `yaml:"branch"`

	// Path within the repository to the policy directory.
	// Default: "" (repository root)
	Path string `yaml:"path"`

	// CacheDir is where the repository is cloned.
	// Default: "data/policy-repo"
	CacheDir string `yaml:"cache_dir"`

	// PollInterval is how often the branch is checked for new commits.
	// Default: 60s
	PollInterval time.Duration `yaml:"poll_interval"`

	// Auth configures Git authentication.
	Auth GitAuthConfig `yaml:"auth"`
}

// GitAuthConfig configures Git authentication.
type GitAuthConfig struct {
	// Type: "token", "ssh", "none"
	//   - "token": HTTPS with a personal access token
	//   - "ssh": SSH with a private key
	//   - "none": public repositories
	// Default: "none"
	Type string `yaml:"type"`

	// Token for HTTPS authentication. Supports environment expansion,
	// e.g. "${GIT_TOKEN}".
	Token string `yaml:"token"`

	// SSHKeyPath for SSH authentication.
	// Example: "/home/guardrails/.ssh/id_ed25519"
	SSHKeyPath string `yaml:"ssh_key_path"`

	// SSHKeyPassphrase decrypts an encrypted private key. Supports
	// environment expansion, e.g. "${GIT_SSH_PASSPHRASE}".
	SSHKeyPassphrase string `yaml:"ssh_key_passphrase"`
}

// LedgerConfig contains configuration for the execution ledger.
type LedgerConfig struct {
	// Backend selects the ledger storage backend.
	// Options: "sqlite" (persistent), "memory" (ephemeral, dev only)
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite configures the SQLite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains configuration for SQLite ledger storage.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/guardrails.db"
	Path string `yaml:"path"`

	// Driver selects the SQL driver: "sqlite3" (cgo) or "sqlite"
	// (pure Go).
	// Default: "sqlite3"
	Driver string `yaml:"driver"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables Write-Ahead Logging for better concurrency.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// ApprovalConfig contains configuration for signed approval links.
type ApprovalConfig struct {
	// Secret signs approval links. Anyone holding it can mint valid
	// decisions, so load it from the environment: "${GUARDRAILS_APPROVAL_SECRET}".
	// Required when any policy runs in approve mode.
	Secret string `yaml:"secret"`

	// Window is how long an approval link stays valid after issuance.
	// Pending executions expire on the same clock.
	// Default: 1h
	Window time.Duration `yaml:"window"`
}

// ExecutorConfig contains configuration for the AWS IAM executor.
type ExecutorConfig struct {
	// Region overrides the AWS region from the environment.
	Region string `yaml:"region"`

	// Profile selects a shared-config profile for credentials.
	Profile string `yaml:"profile"`
}

// RollbackConfig contains configuration for the rollback sweeper.
type RollbackConfig struct {
	// Schedule is a cron expression for automatic sweeps. Empty disables
	// scheduled sweeping.
	// Default: "*/5 * * * *"
	Schedule string `yaml:"schedule"`

	// BatchSize caps how many rows one sweep processes per category.
	// Default: 100
	BatchSize int `yaml:"batch_size"`

	// EscalateAfter is the rollback failure count at which the sweeper
	// pages a human.
	// Default: 3
	EscalateAfter int `yaml:"escalate_after"`
}

// NotifyConfig contains configuration for Slack notifications.
type NotifyConfig struct {
	// SlackWebhookURL is the incoming webhook notifications post to.
	// Empty disables notifications. Supports environment expansion,
	// e.g. "${GUARDRAILS_SLACK_WEBHOOK}".
	SlackWebhookURL string `yaml:"slack_webhook_url"`

	// Timeout bounds one delivery attempt.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is how many times a failed delivery is retried.
	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the pause between delivery attempts.
	// Default: 2s
	RetryDelay time.Duration `yaml:"retry_delay"`

	// QueueSize is the delivery queue capacity. When the queue is full
	// new notifications are dropped rather than blocking evaluation.
	// Default: 100
	QueueSize int `yaml:"queue_size"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level sets the minimum log level.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format selects the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactSecrets scrubs credentials from log fields before they are
	// written. Covers approval signatures, git tokens, webhook URLs, and
	// AWS access key IDs.
	// Default: false
	RedactSecrets bool `yaml:"redact_secrets"`

	// RedactPatterns contains additional redaction patterns applied on
	// top of the built-in set.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom credential redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path the metrics are served on.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric name.
	// Default: "guardrails"
	Namespace string `yaml:"namespace"`

	// Subsystem is the optional second prefix component.
	// Default: "" (none)
	Subsystem string `yaml:"subsystem"`

	// AmountBuckets are the histogram buckets for event amounts in USD.
	// Default: 10, 50, 100, 500, 1000, 5000, 10000, 50000
	AmountBuckets []float64 `yaml:"amount_buckets"`

	// DurationBuckets are the histogram buckets for evaluation and
	// execution durations in seconds.
	// Default: 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30
	DurationBuckets []float64 `yaml:"duration_buckets"`
}
