package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validatePolicies(&cfg.Policies)...)
	errs = append(errs, validateLedger(&cfg.Ledger)...)
	errs = append(errs, validateApproval(&cfg.Approval)...)
	errs = append(errs, validateRollback(&cfg.Rollback)...)
	errs = append(errs, validateNotify(&cfg.Notify)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}

	if cfg.BaseURL != "" && !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		errs = append(errs, FieldError{
			Field:   "server.base_url",
			Message: "base URL must start with http:// or https://",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.idle_timeout",
			Message: "idle timeout must be positive",
		})
	}

	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}
	if cfg.MaxHeaderBytes > 10*1024*1024 { // 10MB is excessive
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes exceeds reasonable limit (10MB)",
		})
	}

	return errs
}

// validatePolicies validates policy loading configuration.
func validatePolicies(cfg *PoliciesConfig) []FieldError {
	var errs []FieldError

	if cfg.Dir == "" {
		errs = append(errs, FieldError{
			Field:   "policies.dir",
			Message: "policy directory is required",
		})
	}

	if cfg.Git.Enabled {
		if cfg.Git.Repository == "" {
			errs = append(errs, FieldError{
				Field:   "policies.git.repository",
				Message: "repository is required when git mode is enabled",
			})
		}
		if cfg.Git.Branch == "" {
			errs = append(errs, FieldError{
				Field:   "policies.git.branch",
				Message: "branch is required when git mode is enabled",
			})
		}
		if cfg.Git.PollInterval < 0 {
			errs = append(errs, FieldError{
				Field:   "policies.git.poll_interval",
				Message: "poll interval must be positive",
			})
		}

		switch cfg.Git.Auth.Type {
		case "none":
		case "token":
			if cfg.Git.Auth.Token == "" {
				errs = append(errs, FieldError{
					Field:   "policies.git.auth.token",
					Message: "token is required for token authentication",
				})
			}
		case "ssh":
			if cfg.Git.Auth.SSHKeyPath == "" {
				errs = append(errs, FieldError{
					Field:   "policies.git.auth.ssh_key_path",
					Message: "ssh key path is required for ssh authentication",
				})
			}
		default:
			errs = append(errs, FieldError{
				Field:   "policies.git.auth.type",
				Message: fmt.Sprintf("invalid auth type %q: must be 'none', 'token', or 'ssh'", cfg.Git.Auth.Type),
			})
		}
	}

	return errs
}

// validateLedger validates ledger configuration.
func validateLedger(cfg *LedgerConfig) []FieldError {
	var errs []FieldError

	validBackends := map[string]bool{"sqlite": true, "memory": true}
	if cfg.Backend == "" {
		errs = append(errs, FieldError{
			Field:   "ledger.backend",
			Message: "backend is required",
		})
	} else if !validBackends[cfg.Backend] {
		errs = append(errs, FieldError{
			Field:   "ledger.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'sqlite' or 'memory'", cfg.Backend),
		})
	}

	if cfg.Backend == "sqlite" {
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "ledger.sqlite.path",
				Message: "SQLite path is required when backend is 'sqlite'",
			})
		}
		validDrivers := map[string]bool{"sqlite3": true, "sqlite": true}
		if cfg.SQLite.Driver != "" && !validDrivers[cfg.SQLite.Driver] {
			errs = append(errs, FieldError{
				Field:   "ledger.sqlite.driver",
				Message: fmt.Sprintf("invalid driver %q: must be 'sqlite3' or 'sqlite'", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.MaxOpenConns < 0 {
			errs = append(errs, FieldError{
				Field:   "ledger.sqlite.max_open_conns",
				Message: "max open connections must be non-negative",
			})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{
				Field:   "ledger.sqlite.busy_timeout",
				Message: "busy timeout must be positive",
			})
		}
	}

	return errs
}

// validateApproval validates approval link configuration. An empty secret is
// allowed here; evaluation fails later only if an approve-mode policy needs
// one.
func validateApproval(cfg *ApprovalConfig) []FieldError {
	var errs []FieldError

	if cfg.Window < 0 {
		errs = append(errs, FieldError{
			Field:   "approval.window",
			Message: "window must be positive",
		})
	}
	if cfg.Secret != "" && len(cfg.Secret) < 16 {
		errs = append(errs, FieldError{
			Field:   "approval.secret",
			Message: "secret must be at least 16 characters",
		})
	}

	return errs
}

// validateRollback validates sweeper configuration.
func validateRollback(cfg *RollbackConfig) []FieldError {
	var errs []FieldError

	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "rollback.schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}
	if cfg.BatchSize < 0 {
		errs = append(errs, FieldError{
			Field:   "rollback.batch_size",
			Message: "batch size must be non-negative",
		})
	}
	if cfg.EscalateAfter < 0 {
		errs = append(errs, FieldError{
			Field:   "rollback.escalate_after",
			Message: "escalate after must be non-negative",
		})
	}

	return errs
}

// validateNotify validates notification configuration.
func validateNotify(cfg *NotifyConfig) []FieldError {
	var errs []FieldError

	if cfg.SlackWebhookURL != "" && !strings.HasPrefix(cfg.SlackWebhookURL, "https://") {
		errs = append(errs, FieldError{
			Field:   "notify.slack_webhook_url",
			Message: "webhook URL must start with https://",
		})
	}
	if cfg.MaxRetries < 0 {
		errs = append(errs, FieldError{
			Field:   "notify.max_retries",
			Message: "max retries must be non-negative",
		})
	}
	if cfg.MaxRetries > 10 {
		errs = append(errs, FieldError{
			Field:   "notify.max_retries",
			Message: "max retries exceeds reasonable limit (10)",
		})
	}
	if cfg.QueueSize < 0 {
		errs = append(errs, FieldError{
			Field:   "notify.queue_size",
			Message: "queue size must be non-negative",
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.Logging.Level != "" && !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if cfg.Logging.Format != "" && !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with '/'",
		})
	}

	return errs
}
