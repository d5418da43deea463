package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "guardrails",
	Short: "Guardrails - graduated cost-anomaly response controller for AWS",
	Long: `Guardrails turns cost alerts into governed, reversible actions.

It ingests AWS Budgets and Cost Anomaly Detection notifications, evaluates
them against declarative guardrail policies, and responds per policy mode:
  - simulate:  report what would happen, change nothing
  - approve:   plan the action and wait for a signed human decision link
  - automatic: attach an IAM deny policy immediately

Every applied action is recorded in an execution ledger and rolled back
automatically when its ttl lapses.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
