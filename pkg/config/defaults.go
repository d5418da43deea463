package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// Policy defaults
	DefaultPoliciesDir     = "./policies"
	DefaultGitBranch       = "main"
	DefaultGitCacheDir     = "data/policy-repo"
	DefaultGitPollInterval = 60 * time.Second
	DefaultGitAuthType     = "none"

	// Ledger defaults
	DefaultLedgerBackend      = "sqlite"
	DefaultSQLitePath         = "data/guardrails.db"
	DefaultSQLiteDriver       = "sqlite3"
	DefaultSQLiteMaxOpenConns = 10
	DefaultSQLiteMaxIdleConns = 5
	DefaultSQLiteWALMode      = true
	DefaultSQLiteBusyTimeout  = 5 * time.Second

	// Approval defaults
	DefaultApprovalWindow = time.Hour

	// Rollback defaults
	DefaultRollbackSchedule      = "*/5 * * * *"
	DefaultRollbackBatchSize     = 100
	DefaultRollbackEscalateAfter = 3

	// Notify defaults
	DefaultNotifyTimeout    = 10 * time.Second
	DefaultNotifyMaxRetries = 3
	DefaultNotifyRetryDelay = 2 * time.Second
	DefaultNotifyQueueSize  = 100

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsEnabled   = true
	DefaultPrometheusPath   = "/metrics"
	DefaultMetricsNamespace = "guardrails"
)

// DefaultAmountBuckets are the histogram buckets for event amounts in USD.
var DefaultAmountBuckets = []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000}

// DefaultDurationBuckets are the histogram buckets for evaluation and
// execution durations in seconds.
var DefaultDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://" + cfg.Server.ListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	// Policy defaults
	if cfg.Policies.Dir == "" {
		cfg.Policies.Dir = DefaultPoliciesDir
	}
	if cfg.Policies.Git.Branch == "" {
		cfg.Policies.Git.Branch = DefaultGitBranch
	}
	if cfg.Policies.Git.CacheDir == "" {
		cfg.Policies.Git.CacheDir = DefaultGitCacheDir
	}
	if cfg.Policies.Git.PollInterval == 0 {
		cfg.Policies.Git.PollInterval = DefaultGitPollInterval
	}
	if cfg.Policies.Git.Auth.Type == "" {
		cfg.Policies.Git.Auth.Type = DefaultGitAuthType
	}

	// Ledger defaults
	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = DefaultLedgerBackend
	}
	if cfg.Ledger.SQLite.Path == "" {
		cfg.Ledger.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Ledger.SQLite.Driver == "" {
		cfg.Ledger.SQLite.Driver = DefaultSQLiteDriver
	}
	if cfg.Ledger.SQLite.MaxOpenConns == 0 {
		cfg.Ledger.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.Ledger.SQLite.MaxIdleConns == 0 {
		cfg.Ledger.SQLite.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if !cfg.Ledger.SQLite.WALMode {
		cfg.Ledger.SQLite.WALMode = DefaultSQLiteWALMode
	}
	if cfg.Ledger.SQLite.BusyTimeout == 0 {
		cfg.Ledger.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}

	// Approval defaults
	if cfg.Approval.Window == 0 {
		cfg.Approval.Window = DefaultApprovalWindow
	}

	// Rollback defaults
	if cfg.Rollback.Schedule == "" {
		cfg.Rollback.Schedule = DefaultRollbackSchedule
	}
	if cfg.Rollback.BatchSize == 0 {
		cfg.Rollback.BatchSize = DefaultRollbackBatchSize
	}
	if cfg.Rollback.EscalateAfter == 0 {
		cfg.Rollback.EscalateAfter = DefaultRollbackEscalateAfter
	}

	// Notify defaults
	if cfg.Notify.Timeout == 0 {
		cfg.Notify.Timeout = DefaultNotifyTimeout
	}
	if cfg.Notify.MaxRetries == 0 {
		cfg.Notify.MaxRetries = DefaultNotifyMaxRetries
	}
	if cfg.Notify.RetryDelay == 0 {
		cfg.Notify.RetryDelay = DefaultNotifyRetryDelay
	}
	if cfg.Notify.QueueSize == 0 {
		cfg.Notify.QueueSize = DefaultNotifyQueueSize
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	applyMetricsDefaults(&cfg.Telemetry.Metrics)
}

// applyMetricsDefaults applies defaults to metrics configuration.
// Enabled defaults to true unless the operator wrote a metrics section, in
// which case the explicit value stands.
func applyMetricsDefaults(metrics *MetricsConfig) {
	if !metrics.Enabled {
		hasAnyConfig := metrics.Path != "" ||
			metrics.Namespace != "" ||
			metrics.Subsystem != "" ||
			len(metrics.AmountBuckets) > 0 ||
			len(metrics.DurationBuckets) > 0

		if !hasAnyConfig {
			metrics.Enabled = DefaultMetricsEnabled
		}
	}

	if metrics.Path == "" {
		metrics.Path = DefaultPrometheusPath
	}
	if metrics.Namespace == "" {
		metrics.Namespace = DefaultMetricsNamespace
	}
	if len(metrics.AmountBuckets) == 0 {
		metrics.AmountBuckets = DefaultAmountBuckets
	}
	if len(metrics.DurationBuckets) == 0 {
		metrics.DurationBuckets = DefaultDurationBuckets
	}
}
