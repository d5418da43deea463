package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/junki-kanda/AutGuardRails/pkg/approval"
	"github.com/junki-kanda/AutGuardRails/pkg/cli"
	"github.com/junki-kanda/AutGuardRails/pkg/config"
	"github.com/junki-kanda/AutGuardRails/pkg/executor/awsiam"
	"github.com/junki-kanda/AutGuardRails/pkg/guardrail"
	"github.com/junki-kanda/AutGuardRails/pkg/ledger"
	"github.com/junki-kanda/AutGuardRails/pkg/ledger/storage"
	"github.com/junki-kanda/AutGuardRails/pkg/notify"
	"github.com/junki-kanda/AutGuardRails/pkg/policy"
	"github.com/junki-kanda/AutGuardRails/pkg/policy/gitsync"
	"github.com/junki-kanda/AutGuardRails/pkg/rollback"
	"github.com/junki-kanda/AutGuardRails/pkg/server"
	"github.com/junki-kanda/AutGuardRails/pkg/telemetry/health"
	"github.com/junki-kanda/AutGuardRails/pkg/telemetry/logging"
	"github.com/junki-kanda/AutGuardRails/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the guardrails controller",
	Long: `Start the guardrails controller with the specified configuration.

The controller serves the event ingest and approval endpoints, keeps the
policy set current (directory watch or Git polling), and runs the rollback
sweeper on its schedule.

Examples:
  # Start with default config
  guardrails run

  # Start with custom config
  guardrails run --config /etc/guardrails/config.yaml

  # Override listen address
  guardrails run --listen 0.0.0.0:8080

  # Validate config without starting the controller
  guardrails run --dry-run`,
	RunE: runController,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the controller")
}

func runController(cmd *cobra.Command, args []string) error {
	// Load configuration
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	logger, err := logging.New(logging.Config{
		Level:          cfg.Telemetry.Logging.Level,
		Format:         cfg.Telemetry.Logging.Format,
		AddSource:      cfg.Telemetry.Logging.AddSource,
		RedactSecrets:  cfg.Telemetry.Logging.RedactSecrets,
		RedactPatterns: cfg.Telemetry.Logging.RedactPatterns,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger.Slog())

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	printBanner(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Execution ledger
	store, err := openLedger(&cfg.Ledger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer store.Close()
	fmt.Printf("✓ Ledger ready (%s)\n", cfg.Ledger.Backend)

	// Policy set: Git polling or plain directory, optionally fsnotify-watched
	policies := policy.NewStore()
	var syncer *gitsync.Syncer
	if cfg.Policies.Git.Enabled {
		syncer, err = gitsync.NewSyncer(&cfg.Policies.Git)
		if err != nil {
			return cli.NewConfigError("policies.git", err.Error())
		}
		if err := syncer.Init(ctx); err != nil {
			return cli.NewCommandError("run", fmt.Errorf("preparing policy repository: %w", err))
		}
		if err := policies.Reload(syncer.PolicyDir()); err != nil {
			return cli.NewCommandError("run", fmt.Errorf("loading policies: %w", err))
		}
		go func() {
			if err := syncer.Run(ctx, func() error {
				return policies.Reload(syncer.PolicyDir())
			}); err != nil {
				slog.Error("policy repo sync stopped", "error", err)
			}
		}()
		defer syncer.Stop()
	} else {
		if err := policies.Reload(cfg.Policies.Dir); err != nil {
			return cli.NewCommandError("run", fmt.Errorf("loading policies: %w", err))
		}
		if cfg.Policies.Watch {
			watcher, err := policy.NewWatcher(cfg.Policies.Dir)
			if err != nil {
				return cli.NewCommandError("run", fmt.Errorf("watching policy directory: %w", err))
			}
			go func() {
				if err := watcher.Watch(ctx, func() error {
					return policies.Reload(cfg.Policies.Dir)
				}); err != nil {
					slog.Error("policy watcher stopped", "error", err)
				}
			}()
			defer watcher.Stop()
		}
	}
	fmt.Printf("✓ Policies loaded (%d policies)\n", policies.Len())

	// Approval signer
	var signer *approval.Signer
	if cfg.Approval.Secret != "" {
		signer, err = approval.NewSignerWithWindow(cfg.Approval.Secret, cfg.Approval.Window)
		if err != nil {
			return cli.NewConfigError("approval.secret", err.Error())
		}
	} else if approvePolicyLoaded(policies) {
		slog.Warn("approve-mode policies are loaded but approval.secret is not set; their events will fail")
	}

	// Slack notifier
	var notifier notify.Notifier
	if cfg.Notify.SlackWebhookURL != "" {
		slackNotifier, err := notify.NewSlackNotifier(notify.SlackConfig{
			WebhookURL: cfg.Notify.SlackWebhookURL,
			Timeout:    cfg.Notify.Timeout,
			MaxRetries: cfg.Notify.MaxRetries,
			RetryDelay: cfg.Notify.RetryDelay,
			QueueSize:  cfg.Notify.QueueSize,
		})
		if err != nil {
			return cli.NewConfigError("notify.slack_webhook_url", err.Error())
		}
		defer slackNotifier.Close()
		notifier = slackNotifier
		fmt.Println("✓ Slack notifier started")
	}

	// IAM executor. Credential problems surface on first use, not here.
	awsCfg, err := awsiam.LoadConfig(ctx, cfg.Executor.Region, cfg.Executor.Profile)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("loading AWS configuration: %w", err))
	}
	exec := awsiam.New(awsCfg)

	// Metrics
	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	controller := guardrail.NewController(policies, store, exec, signer, notifier, guardrail.Options{
		BaseURL: cfg.Server.BaseURL,
	})

	// Rollback sweeper
	sweeper := rollback.NewSweeper(store, exec, policies, notifier, &rollback.Config{
		Schedule:      cfg.Rollback.Schedule,
		BatchSize:     cfg.Rollback.BatchSize,
		EscalateAfter: cfg.Rollback.EscalateAfter,
	})
	if collector != nil {
		sweeper.SetMetrics(collector)
	}
	if err := sweeper.Start(ctx); err != nil {
		return cli.NewConfigError("rollback.schedule", err.Error())
	}
	defer sweeper.Stop()
	if next := sweeper.NextSweep(); next != nil {
		fmt.Printf("✓ Rollback sweeper scheduled (next sweep %s)\n", next.Format(time.RFC3339))
	}

	checker := newHealthChecker(store, policies, syncer, &cfg.Policies.Git)

	srv := server.NewServer(&cfg.Server, controller, server.Options{
		Checker:     checker,
		Collector:   collector,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Version:     Version,
		Commit:      GitCommit,
		BuildTime:   BuildDate,
	})

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting HTTP server", "address", cfg.Server.ListenAddress)
		if err := srv.Start(ctx); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	fmt.Println()
	fmt.Printf("✓ Listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Event ingest:  http://%s/events\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health:        http://%s/health\n", cfg.Server.ListenAddress)
	if collector != nil {
		fmt.Printf("✓ Metrics:       http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for shutdown signal or server error
	sigChan := cli.WaitForShutdown()

	select {
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
			return cli.NewCommandError("run", err)
		}

		fmt.Println("✓ Controller stopped")
		return nil
	}
}

// openLedger constructs the configured ledger backend.
func openLedger(cfg *config.LedgerConfig) (ledger.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return storage.NewSQLiteStore(&storage.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			Driver:       cfg.SQLite.Driver,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported ledger backend: %s", cfg.Backend)
	}
}

func approvePolicyLoaded(policies *policy.Store) bool {
	for _, p := range policies.Policies() {
		if p.Mode == policy.ModeApprove {
			return true
		}
	}
	return false
}

// newHealthChecker wires the readiness checks: the ledger must answer a
// query, at least one policy must be loaded, and in git mode the clone must
// not be both failing and stale.
func newHealthChecker(store ledger.Store, policies *policy.Store, syncer *gitsync.Syncer, gitCfg *config.GitPoliciesConfig) *health.Checker {
	checker := health.New(0)

	checker.RegisterCheck("ledger", func(ctx context.Context) error {
		_, err := store.Recent(ctx, 1, "")
		return err
	})

	checker.RegisterCheck("policies", func(ctx context.Context) error {
		if policies.Len() == 0 {
			return errors.New("no policies loaded")
		}
		return nil
	})

	if syncer != nil {
		interval := gitCfg.PollInterval
		if interval <= 0 {
			interval = config.DefaultGitPollInterval
		}
		started := time.Now()
		// A failed pull keeps serving the last good policy set, so a
		// blip must not flip readiness. Only a repo that has been
		// unreachable for many intervals is worth reporting.
		checker.RegisterCheck("policy-git", func(ctx context.Context) error {
			status := syncer.Status()
			if status.LastError == "" {
				return nil
			}
			lastGood := status.LastSync
			if lastGood.IsZero() {
				lastGood = started
			}
			if stale := time.Since(lastGood); stale > 10*interval {
				return fmt.Errorf("policy repo unreachable for %s: %s", stale.Round(time.Second), status.LastError)
			}
			return nil
		})
	}

	return checker
}

func printBanner(cfg *config.Config) {
	fmt.Printf("Guardrails v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	if cfg.Policies.Git.Enabled {
		slog.Debug("policy source", "mode", "git", "repository", cfg.Policies.Git.Repository, "branch", cfg.Policies.Git.Branch)
	} else {
		slog.Debug("policy source", "mode", "dir", "dir", cfg.Policies.Dir, "watch", cfg.Policies.Watch)
	}
	slog.Debug("ledger backend", "backend", cfg.Ledger.Backend)
}
