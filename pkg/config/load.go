package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, expands ${VAR} references in secret-bearing
// fields, validates the configuration, and returns any errors. The
// configuration is not modified by GUARDRAILS_* environment variables; use
// LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)
	expandSecrets(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention GUARDRAILS_SECTION_FIELD (e.g., GUARDRAILS_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// expandSecrets expands ${VAR} references in fields that are documented to
// support it, so secrets can live in the environment instead of the file.
func expandSecrets(cfg *Config) {
	cfg.Approval.Secret = os.ExpandEnv(cfg.Approval.Secret)
	cfg.Policies.Git.Auth.Token = os.ExpandEnv(cfg.Policies.Git.Auth.Token)
	cfg.Policies.Git.Auth.SSHKeyPassphrase = os.ExpandEnv(cfg.Policies.Git.Auth.SSHKeyPassphrase)
	cfg.Notify.SlackWebhookURL = os.ExpandEnv(cfg.Notify.SlackWebhookURL)
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables use the format GUARDRAILS_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("GUARDRAILS_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("GUARDRAILS_SERVER_BASE_URL"); val != "" {
		cfg.Server.BaseURL = val
	}
	if val := os.Getenv("GUARDRAILS_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("GUARDRAILS_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("GUARDRAILS_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}

	// Policy overrides
	if val := os.Getenv("GUARDRAILS_POLICIES_DIR"); val != "" {
		cfg.Policies.Dir = val
	}
	if val := os.Getenv("GUARDRAILS_POLICIES_WATCH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Policies.Watch = b
		}
	}
	if val := os.Getenv("GUARDRAILS_POLICIES_GIT_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Policies.Git.Enabled = b
		}
	}
	if val := os.Getenv("GUARDRAILS_POLICIES_GIT_REPOSITORY"); val != "" {
		cfg.Policies.Git.Repository = val
	}
	if val := os.Getenv("GUARDRAILS_POLICIES_GIT_BRANCH"); val != "" {
		cfg.Policies.Git.Branch = val
	}
	if val := os.Getenv("GUARDRAILS_POLICIES_GIT_TOKEN"); val != "" {
		cfg.Policies.Git.Auth.Token = val
	}

	// Ledger overrides
	if val := os.Getenv("GUARDRAILS_LEDGER_BACKEND"); val != "" {
		cfg.Ledger.Backend = val
	}
	if val := os.Getenv("GUARDRAILS_LEDGER_SQLITE_PATH"); val != "" {
		cfg.Ledger.SQLite.Path = val
	}
	if val := os.Getenv("GUARDRAILS_LEDGER_SQLITE_DRIVER"); val != "" {
		cfg.Ledger.SQLite.Driver = val
	}

	// Approval overrides
	if val := os.Getenv("GUARDRAILS_APPROVAL_SECRET"); val != "" {
		cfg.Approval.Secret = val
	}
	if val := os.Getenv("GUARDRAILS_APPROVAL_WINDOW"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Approval.Window = d
		}
	}

	// Executor overrides
	if val := os.Getenv("GUARDRAILS_EXECUTOR_REGION"); val != "" {
		cfg.Executor.Region = val
	}
	if val := os.Getenv("GUARDRAILS_EXECUTOR_PROFILE"); val != "" {
		cfg.Executor.Profile = val
	}

	// Rollback overrides
	if val := os.Getenv("GUARDRAILS_ROLLBACK_SCHEDULE"); val != "" {
		cfg.Rollback.Schedule = val
	}
	if val := os.Getenv("GUARDRAILS_ROLLBACK_BATCH_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Rollback.BatchSize = i
		}
	}
	if val := os.Getenv("GUARDRAILS_ROLLBACK_ESCALATE_AFTER"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Rollback.EscalateAfter = i
		}
	}

	// Notify overrides
	if val := os.Getenv("GUARDRAILS_NOTIFY_SLACK_WEBHOOK_URL"); val != "" {
		cfg.Notify.SlackWebhookURL = val
	}
	if val := os.Getenv("GUARDRAILS_NOTIFY_QUEUE_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Notify.QueueSize = i
		}
	}

	// Telemetry overrides
	if val := os.Getenv("GUARDRAILS_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("GUARDRAILS_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("GUARDRAILS_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("GUARDRAILS_TELEMETRY_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}
}
