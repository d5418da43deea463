package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/junki-kanda/AutGuardRails/pkg/approval"
	"github.com/junki-kanda/AutGuardRails/pkg/cli"
	"github.com/junki-kanda/AutGuardRails/pkg/config"
	"github.com/junki-kanda/AutGuardRails/pkg/event"
	"github.com/junki-kanda/AutGuardRails/pkg/executor"
	"github.com/junki-kanda/AutGuardRails/pkg/guardrail"
	"github.com/junki-kanda/AutGuardRails/pkg/ledger/storage"
	"github.com/junki-kanda/AutGuardRails/pkg/policy"
)

var simulateFlags struct {
	eventFile string
	policies  string
	source    string
	account   string
	amount    float64
	service   string
	principal string
	format    string
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Evaluate an event without touching IAM",
	Long: `Feed a cost event through policy evaluation with a dry-run executor.

The event runs through the same matching, planning, and ledger flow as a
real delivery, but against an in-memory ledger and an executor that only
previews changes. Nothing reaches AWS and nothing persists.

The event comes from --event (a JSON file in any accepted ingest format)
or is synthesized from --account and --amount. Policies load from the
--policies directory, or from the configured policy source when the flag
is omitted.

Examples:
  # Synthetic budget alert
  guardrails simulate --account 123456789012 --amount 1500

  # Synthetic anomaly pinned to a service and principal
  guardrails simulate --account 123456789012 --amount 900 \
    --source anomaly_detection --service AmazonEC2 \
    --principal arn:aws:iam::123456789012:role/ci-deployer

  # Replay a captured webhook body
  guardrails simulate --event event.json

  # Try a policy set before pushing it
  guardrails simulate --policies ./policies --account 123456789012 --amount 50000`,
	RunE: simulateEvent,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVarP(&simulateFlags.eventFile, "event", "e", "", "event JSON file (any accepted ingest format)")
	simulateCmd.Flags().StringVarP(&simulateFlags.policies, "policies", "p", "", "policy directory (default: configured policy source)")
	simulateCmd.Flags().StringVar(&simulateFlags.source, "source", "budget_threshold", "synthetic event source: budget_threshold, anomaly_detection")
	simulateCmd.Flags().StringVar(&simulateFlags.account, "account", "", "synthetic event account id (12 digits)")
	simulateCmd.Flags().Float64Var(&simulateFlags.amount, "amount", 0, "synthetic event amount in USD")
	simulateCmd.Flags().StringVar(&simulateFlags.service, "service", "", "synthetic event service detail")
	simulateCmd.Flags().StringVar(&simulateFlags.principal, "principal", "", "synthetic event principal_arn detail")
	simulateCmd.Flags().StringVar(&simulateFlags.format, "format", "text", "output format: text, json")
}

func simulateEvent(cmd *cobra.Command, args []string) error {
	cfg, dir, err := simulateConfig()
	if err != nil {
		return err
	}

	ev, err := simulateInput()
	if err != nil {
		return err
	}

	policies := policy.NewStore()
	if err := policies.Reload(dir); err != nil {
		return cli.NewCommandError("simulate", fmt.Errorf("loading policies: %w", err))
	}
	if policies.Len() == 0 {
		return fmt.Errorf("no policies found in %s", dir)
	}

	// Approve-mode plans need a signer. A one-off secret is fine when none
	// is configured: the links land nowhere because nothing persists.
	secret := cfg.Approval.Secret
	if secret == "" {
		secret = uuid.New().String()
	}
	signer, err := approval.NewSignerWithWindow(secret, cfg.Approval.Window)
	if err != nil {
		return cli.NewConfigError("approval", err.Error())
	}

	store := storage.NewMemoryStore()
	defer store.Close()

	controller := guardrail.NewController(policies, store, executor.DryRun{}, signer, nil, guardrail.Options{
		BaseURL: cfg.Server.BaseURL,
	})

	decision, err := controller.Evaluate(context.Background(), ev)
	if err != nil {
		return cli.NewCommandError("simulate", err)
	}

	if simulateFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, decision)
	}

	printDecision(ev, decision)
	return nil
}

// simulateConfig resolves the policy directory and the config sections
// simulate needs. With --policies set no config file is required.
func simulateConfig() (*config.Config, string, error) {
	if simulateFlags.policies != "" {
		cfg := &config.Config{}
		config.ApplyDefaults(cfg)
		return cfg, simulateFlags.policies, nil
	}

	if err := config.Initialize(cfgFile); err != nil {
		return nil, "", cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	dir := cfg.Policies.Dir
	if cfg.Policies.Git.Enabled {
		// Read the local clone directly; simulate never pulls.
		dir = filepath.Join(cfg.Policies.Git.CacheDir, filepath.FromSlash(cfg.Policies.Git.Path))
	}
	return cfg, dir, nil
}

// simulateInput builds the event to evaluate, from file or flags.
func simulateInput() (*event.CostEvent, error) {
	if simulateFlags.eventFile != "" {
		data, err := os.ReadFile(simulateFlags.eventFile)
		if err != nil {
			return nil, fmt.Errorf("reading event file: %w", err)
		}
		ev, err := event.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parsing event file: %w", err)
		}
		return ev, nil
	}

	if simulateFlags.account == "" || simulateFlags.amount <= 0 {
		return nil, fmt.Errorf("either --event or both --account and --amount must be specified")
	}

	now := time.Now().UTC()
	ev := &event.CostEvent{
		EventID:     event.NewEventID(),
		Source:      event.Source(simulateFlags.source),
		AccountID:   simulateFlags.account,
		AmountUSD:   simulateFlags.amount,
		WindowStart: now,
		WindowEnd:   now,
	}
	if simulateFlags.service != "" || simulateFlags.principal != "" {
		ev.Details = map[string]string{}
		if simulateFlags.service != "" {
			ev.Details[event.DetailService] = simulateFlags.service
		}
		if simulateFlags.principal != "" {
			ev.Details[event.DetailPrincipalARN] = simulateFlags.principal
		}
	}

	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("synthetic event invalid: %w", err)
	}
	return ev, nil
}

func printDecision(ev *event.CostEvent, decision *guardrail.Decision) {
	fmt.Printf("Simulating event %s\n", ev.EventID)
	fmt.Printf("  Source:  %s\n", ev.Source)
	fmt.Printf("  Account: %s\n", ev.AccountID)
	fmt.Printf("  Amount:  $%.2f\n", ev.AmountUSD)
	for _, key := range []string{event.DetailService, event.DetailRegion, event.DetailPrincipalARN} {
		if v := ev.Detail(key); v != "" {
			fmt.Printf("  %s: %s\n", key, v)
		}
	}
	fmt.Println()

	if decision.PolicyID == "" {
		fmt.Printf("Outcome: %s\n", decision.Outcome)
		return
	}
	fmt.Printf("Outcome: %s (policy %s)\n", decision.Outcome, decision.PolicyID)

	if decision.Plan != nil {
		fmt.Println()
		fmt.Printf("Plan: mode=%s", decision.Plan.Mode)
		if decision.Plan.TTLMinutes > 0 {
			fmt.Printf(", ttl=%dm", decision.Plan.TTLMinutes)
		}
		fmt.Println()
		for _, target := range decision.Plan.Targets {
			fmt.Printf("  %s\n", target.Principal.ARN)
			if deny := target.DenyActions(); len(deny) > 0 {
				fmt.Printf("    would deny: %s\n", strings.Join(deny, ", "))
			} else {
				fmt.Println("    notify only, no IAM change")
			}
		}
	}

	if len(decision.Executions) > 0 {
		fmt.Println()
		fmt.Println("Executions:")
		for _, exec := range decision.Executions {
			fmt.Printf("  %s  %s  %s\n", exec.ExecutionID, exec.Status, exec.Target)
		}
	}
}
