package config

import "time"

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts with default values and allows selective overrides.
type ConfigBuilder struct {
	cfg Config
}

// NewTestConfig creates a new ConfigBuilder with sensible defaults for testing.
// The resulting configuration is valid and can be used immediately.
func NewTestConfig() *ConfigBuilder {
	var cfg Config
	ApplyDefaults(&cfg)
	return &ConfigBuilder{cfg: cfg}
}

// Build returns the built Config instance.
func (b *ConfigBuilder) Build() *Config {
	return &b.cfg
}

// WithListenAddress sets the server listen address.
func (b *ConfigBuilder) WithListenAddress(addr string) *ConfigBuilder {
	b.cfg.Server.ListenAddress = addr
	return b
}

// WithBaseURL sets the externally reachable base URL for approval links.
func (b *ConfigBuilder) WithBaseURL(url string) *ConfigBuilder {
	b.cfg.Server.BaseURL = url
	return b
}

// WithPoliciesDir sets the policy directory.
func (b *ConfigBuilder) WithPoliciesDir(dir string) *ConfigBuilder {
	b.cfg.Policies.Dir = dir
	return b
}

// WithPolicyWatch sets whether the policy directory is watched for changes.
func (b *ConfigBuilder) WithPolicyWatch(watch bool) *ConfigBuilder {
	b.cfg.Policies.Watch = watch
	return b
}

// WithGitRepository enables git policy sync against the given repository.
func (b *ConfigBuilder) WithGitRepository(repo string) *ConfigBuilder {
	b.cfg.Policies.Git.Enabled = true
	b.cfg.Policies.Git.Repository = repo
	if b.cfg.Policies.Git.Branch == "" {
		b.cfg.Policies.Git.Branch = DefaultGitBranch
	}
	if b.cfg.Policies.Git.CacheDir == "" {
		b.cfg.Policies.Git.CacheDir = DefaultGitCacheDir
	}
	return b
}

// WithLedgerBackend sets the ledger backend.
func (b *ConfigBuilder) WithLedgerBackend(backend string) *ConfigBuilder {
	b.cfg.Ledger.Backend = backend
	return b
}

// WithSQLitePath sets the SQLite database path and selects the sqlite backend.
func (b *ConfigBuilder) WithSQLitePath(path string) *ConfigBuilder {
	b.cfg.Ledger.SQLite.Path = path
	b.cfg.Ledger.Backend = "sqlite"
	return b
}

// WithMemoryLedger selects the in-memory ledger backend.
func (b *ConfigBuilder) WithMemoryLedger() *ConfigBuilder {
	b.cfg.Ledger.Backend = "memory"
	return b
}

// WithApprovalSecret sets the approval link signing secret.
func (b *ConfigBuilder) WithApprovalSecret(secret string) *ConfigBuilder {
	b.cfg.Approval.Secret = secret
	return b
}

// WithApprovalWindow sets how long approval links stay valid.
func (b *ConfigBuilder) WithApprovalWindow(d time.Duration) *ConfigBuilder {
	b.cfg.Approval.Window = d
	return b
}

// WithRollbackSchedule sets the sweeper cron schedule.
func (b *ConfigBuilder) WithRollbackSchedule(expr string) *ConfigBuilder {
	b.cfg.Rollback.Schedule = expr
	return b
}

// WithSlackWebhook sets the Slack webhook URL for notifications.
func (b *ConfigBuilder) WithSlackWebhook(url string) *ConfigBuilder {
	b.cfg.Notify.SlackWebhookURL = url
	return b
}

// WithLoggingLevel sets the logging level.
func (b *ConfigBuilder) WithLoggingLevel(level string) *ConfigBuilder {
	b.cfg.Telemetry.Logging.Level = level
	return b
}

// WithLoggingFormat sets the logging format.
func (b *ConfigBuilder) WithLoggingFormat(format string) *ConfigBuilder {
	b.cfg.Telemetry.Logging.Format = format
	return b
}

// WithMetricsEnabled sets whether metrics are enabled.
func (b *ConfigBuilder) WithMetricsEnabled(enabled bool) *ConfigBuilder {
	b.cfg.Telemetry.Metrics.Enabled = enabled
	return b
}

// MinimalConfig returns a minimal valid configuration for testing.
// This is useful for tests that don't care about most configuration values.
func MinimalConfig() *Config {
	return NewTestConfig().Build()
}
