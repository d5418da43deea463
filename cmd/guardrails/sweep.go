package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/junki-kanda/AutGuardRails/pkg/cli"
	"github.com/junki-kanda/AutGuardRails/pkg/config"
	"github.com/junki-kanda/AutGuardRails/pkg/executor/awsiam"
	"github.com/junki-kanda/AutGuardRails/pkg/notify"
	"github.com/junki-kanda/AutGuardRails/pkg/policy"
	"github.com/junki-kanda/AutGuardRails/pkg/rollback"
)

var sweepFlags struct {
	format string
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one rollback sweep",
	Long: `Run a single rollback sweep against the configured ledger.

The sweep detaches deny policies whose ttl has lapsed and expires approval
requests nobody decided in time, exactly like one scheduled pass of the
running controller. Useful when the controller is down and a deny policy
must come off now.

This talks to AWS IAM with the ambient credentials.

Examples:
  # Sweep now
  guardrails sweep

  # Machine-readable summary
  guardrails sweep --format json`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().StringVar(&sweepFlags.format, "format", "text", "output format: text, json")
}

func runSweep(cmd *cobra.Command, args []string) error {
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	// Ctrl+C stops between rows, not mid-write.
	ctx := cli.SetupSignalHandler()

	store, err := openLedger(&cfg.Ledger)
	if err != nil {
		return cli.NewCommandError("sweep", err)
	}
	defer store.Close()

	// Policies only route escalation notifications. A sweep must run even
	// when the policy files are gone; rollback works from frozen diffs.
	policies := policy.NewStore()
	dir := cfg.Policies.Dir
	if cfg.Policies.Git.Enabled {
		dir = filepath.Join(cfg.Policies.Git.CacheDir, filepath.FromSlash(cfg.Policies.Git.Path))
	}
	if err := policies.Reload(dir); err != nil {
		slog.Warn("policies unavailable, notifications use the default channel", "dir", dir, "error", err)
	}

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
	}

	awsCfg, err := awsiam.LoadConfig(ctx, cfg.Executor.Region, cfg.Executor.Profile)
	if err != nil {
		return cli.NewCommandError("sweep", fmt.Errorf("loading AWS configuration: %w", err))
	}

	sweeper := rollback.NewSweeper(store, awsiam.New(awsCfg), policies, notifier, &rollback.Config{
		BatchSize:     cfg.Rollback.BatchSize,
		EscalateAfter: cfg.Rollback.EscalateAfter,
	})

	summary, err := sweeper.Sweep(ctx)
	if err != nil {
		return cli.NewCommandError("sweep", err)
	}

	if sweepFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, summary)
	}

	if summary.Empty() {
		fmt.Println("Nothing to sweep.")
		return nil
	}

	fmt.Println("Sweep complete:")
	fmt.Printf("  rolled back:     %d\n", summary.RolledBack)
	fmt.Printf("  rollback failed: %d\n", summary.RollbackFailed)
	fmt.Printf("  expired:         %d\n", summary.Expired)
	fmt.Printf("  skipped:         %d\n", summary.Skipped)
	if summary.Escalated > 0 {
		fmt.Printf("  escalated:       %d\n", summary.Escalated)
	}

	if summary.RollbackFailed > 0 {
		return cli.NewCommandError("sweep", fmt.Errorf("%d rollback(s) failed", summary.RollbackFailed))
	}
	return nil
}
