// Package config provides configuration management for the guardrails
// controller.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides. It provides a type-safe
// configuration system with comprehensive validation and sensible defaults.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention GUARDRAILS_SECTION_FIELD.
// For example:
//
//   - GUARDRAILS_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - GUARDRAILS_APPROVAL_SECRET overrides approval.secret
//   - GUARDRAILS_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Environment variables always take precedence over file-based configuration.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// Fields that carry secrets (approval.secret, notify.slack_webhook_url,
// policies.git.auth.token) additionally expand ${VAR} references against the
// environment, so the file never needs to hold the secret itself.
//
// # Singleton Pattern
//
// For application-wide configuration access, use the singleton pattern:
//
//	// At application startup
//	if err := config.Initialize("config.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Anywhere in the application
//	cfg := config.GetConfig()
//	fmt.Println(cfg.Server.ListenAddress)
//
// For testing, prefer dependency injection with explicit Config instances
// rather than the global singleton.
//
// # Validation
//
// All configuration is validated automatically during loading. Validation includes:
//
//   - Required field checks (e.g., policy directory, SQLite path)
//   - Range validation (e.g., notify retries must be 0-10)
//   - Format validation (e.g., base URL scheme, cron schedule syntax)
//   - Logical validation (e.g., git sync requires a repository URL)
//
// Validation errors include field paths and helpful messages:
//
//	configuration validation failed with 2 errors:
//	  - policies.dir: field is required
//	  - rollback.schedule: invalid cron expression
//
// # Example Configuration
//
// Here is a minimal configuration file:
//
//	server:
//	  listen_address: "127.0.0.1:8080"
//	  base_url: "https://guardrails.internal.example.com"
//
//	policies:
//	  dir: "./policies"
//	  watch: true
//
//	ledger:
//	  backend: "sqlite"
//	  sqlite:
//	    path: "data/guardrails.db"
//
//	approval:
//	  secret: "${GUARDRAILS_APPROVAL_SECRET}"
//
//	notify:
//	  slack_webhook_url: "${GUARDRAILS_SLACK_WEBHOOK}"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
//
// # Thread Safety
//
// All configuration access is thread-safe. The singleton pattern uses read-write
// locks to allow concurrent reads while protecting against concurrent writes during
// reload operations.
package config
