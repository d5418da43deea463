package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/junki-kanda/AutGuardRails/pkg/cli"
	"github.com/junki-kanda/AutGuardRails/pkg/config"
	"github.com/junki-kanda/AutGuardRails/pkg/policy/gitsync"
)

var policyFlags struct {
	limit  int
	format string
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect the Git policy source",
	Long: `Inspect and sync the Git-backed policy source.

These commands work on the local policy clone and require policies.git
to be enabled in the config.

Subcommands:
  version  - Show the checked-out policy commit
  sync     - Pull the latest policies now
  history  - Show recent policy commits

Examples:
  # What policy version is this host on?
  guardrails policy version

  # Pull without waiting for the next poll
  guardrails policy sync

  # Recent policy changes
  guardrails policy history --limit 10`,
}

var policyVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the checked-out policy commit",
	Long: `Show the commit the local policy clone is checked out at.

Examples:
  guardrails policy version
  guardrails policy version --format json`,
	RunE: showPolicyVersion,
}

var policySyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull the latest policies now",
	Long: `Pull the policy repository without waiting for the next poll.

A running controller reloads from the shared clone on its own poll; this
command is for checking the pull path and for warming the cache before
first start.

Examples:
  guardrails policy sync`,
	RunE: syncPolicies,
}

var policyHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent policy commits",
	Long: `Show recent commits of the policy repository, newest first.

Examples:
  guardrails policy history --limit 10
  guardrails policy history --format json`,
	RunE: showPolicyHistory,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyVersionCmd, policySyncCmd, policyHistoryCmd)

	policyCmd.PersistentFlags().StringVar(&policyFlags.format, "format", "text", "output format: text, json")
	policyHistoryCmd.Flags().IntVar(&policyFlags.limit, "limit", 10, "number of commits to show")
}

// newPolicySyncer loads the config and opens the local policy clone, cloning
// it first if the cache directory is empty.
func newPolicySyncer(ctx context.Context) (*gitsync.Syncer, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	if !cfg.Policies.Git.Enabled {
		return nil, cli.NewConfigError("policies.git.enabled",
			"policy commands need a Git policy source")
	}

	syncer, err := gitsync.NewSyncer(&cfg.Policies.Git)
	if err != nil {
		return nil, cli.NewConfigError("policies.git", err.Error())
	}
	if err := syncer.Init(ctx); err != nil {
		return nil, fmt.Errorf("opening policy repository: %w", err)
	}
	return syncer, nil
}

func showPolicyVersion(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	syncer, err := newPolicySyncer(ctx)
	if err != nil {
		return err
	}

	head, err := syncer.Head()
	if err != nil {
		return cli.NewCommandError("policy version", err)
	}

	if policyFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, head)
	}

	fmt.Println("Current policy version:")
	fmt.Printf("  Commit:  %s\n", head.SHA)
	fmt.Printf("  Author:  %s <%s>\n", head.Author, head.Email)
	fmt.Printf("  Date:    %s\n", head.When.Format(time.RFC3339))
	if head.Message != "" {
		fmt.Printf("  Message: %s\n", firstLine(head.Message))
	}
	return nil
}

func syncPolicies(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	syncer, err := newPolicySyncer(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Pulling policy repository...")
	result, err := syncer.Sync(ctx)
	if err != nil {
		return cli.NewCommandError("policy sync", err)
	}

	if result.From == result.To {
		fmt.Printf("✓ Already up to date at %s\n", shortSHA(result.To))
		return nil
	}

	fmt.Printf("✓ Synced %s to %s (%d file(s) changed)\n",
		shortSHA(result.From), shortSHA(result.To), len(result.ChangedFiles))
	if result.PolicyChanged {
		fmt.Println("  Policy files changed; a running controller reloads on its next poll.")
	}
	return nil
}

func showPolicyHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	syncer, err := newPolicySyncer(ctx)
	if err != nil {
		return err
	}

	commits, err := syncer.History(policyFlags.limit)
	if err != nil {
		return cli.NewCommandError("policy history", err)
	}
	if len(commits) == 0 {
		fmt.Println("No commits found")
		return nil
	}

	if policyFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, commits)
	}

	fmt.Printf("Policy history (last %d commits):\n\n", len(commits))
	for _, commit := range commits {
		fmt.Printf("%s  %s  %s\n",
			shortSHA(commit.SHA), commit.When.Format("2006-01-02 15:04"), firstLine(commit.Message))
		fmt.Printf("%10s%s <%s>\n", "", commit.Author, commit.Email)
	}
	return nil
}

func firstLine(msg string) string {
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		return msg[:idx]
	}
	return msg
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
