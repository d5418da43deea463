package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/junki-kanda/AutGuardRails/pkg/cli"
	"github.com/junki-kanda/AutGuardRails/pkg/config"
	"github.com/junki-kanda/AutGuardRails/pkg/ledger"
)

var executionsFlags struct {
	limit  int
	status string
	policy string
	format string
}

var executionsCmd = &cobra.Command{
	Use:   "executions",
	Short: "Query the execution ledger",
	Long: `List executions from the ledger, newest first.

Examples:
  # Last 20 executions
  guardrails executions

  # Currently applied deny policies
  guardrails executions --status executed

  # Everything one policy did
  guardrails executions --policy ec2-spike --limit 50

  # JSON for scripting
  guardrails executions --status failed --format json`,
	RunE: listExecutions,
}

func init() {
	rootCmd.AddCommand(executionsCmd)

	executionsCmd.Flags().IntVarP(&executionsFlags.limit, "limit", "n", 20, "maximum rows to return")
	executionsCmd.Flags().StringVar(&executionsFlags.status, "status", "", "filter by status (planned, approved, executed, rolled_back, rejected, expired, failed)")
	executionsCmd.Flags().StringVar(&executionsFlags.policy, "policy", "", "filter by policy id")
	executionsCmd.Flags().StringVar(&executionsFlags.format, "format", "text", "output format: text, json")
}

func listExecutions(cmd *cobra.Command, args []string) error {
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	status := ledger.Status(executionsFlags.status)
	if executionsFlags.status != "" && !status.Valid() {
		return fmt.Errorf("unknown status %q", executionsFlags.status)
	}

	store, err := openLedger(&cfg.Ledger)
	if err != nil {
		return cli.NewCommandError("executions", err)
	}
	defer store.Close()

	ctx := context.Background()

	var executions []*ledger.Execution
	if executionsFlags.policy != "" {
		executions, err = store.ByPolicy(ctx, executionsFlags.policy, executionsFlags.limit)
		if err == nil && status != "" {
			executions = filterByStatus(executions, status)
		}
	} else {
		executions, err = store.Recent(ctx, executionsFlags.limit, status)
	}
	if err != nil {
		return cli.NewCommandError("executions", err)
	}

	if executionsFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, executions)
	}

	if len(executions) == 0 {
		fmt.Println("No executions found.")
		return nil
	}

	printExecutionsTable(os.Stdout, executions)
	return nil
}

func filterByStatus(executions []*ledger.Execution, status ledger.Status) []*ledger.Execution {
	out := executions[:0]
	for _, e := range executions {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

func printExecutionsTable(out *os.File, executions []*ledger.Execution) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EXECUTION\tPOLICY\tSTATUS\tMODE\tTARGET\tCREATED\tEXPIRES")

	for _, e := range executions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ExecutionID,
			e.PolicyID,
			e.Status,
			e.Mode,
			e.Target,
			e.CreatedAt.Local().Format("2006-01-02 15:04"),
			expiryColumn(e),
		)
	}

	w.Flush()
	fmt.Fprintf(out, "\n%d execution(s)\n", len(executions))
}

// expiryColumn picks the deadline that matters for the row's state: the
// approval window while a decision is pending, the ttl while applied.
func expiryColumn(e *ledger.Execution) string {
	switch e.Status {
	case ledger.StatusPlanned, ledger.StatusApproved:
		if e.ApprovalExpiresAt != nil {
			return e.ApprovalExpiresAt.Local().Format("2006-01-02 15:04")
		}
	case ledger.StatusExecuted:
		if e.TTLExpiresAt != nil {
			return e.TTLExpiresAt.Local().Format("2006-01-02 15:04")
		}
	}
	return "-"
}
