package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/junki-kanda/AutGuardRails/pkg/cli"
	"github.com/junki-kanda/AutGuardRails/pkg/policy"
)

var validateFlags struct {
	file   string
	dir    string
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate policy files",
	Long: `Validate guardrail policy files for syntax and semantic errors.

The validate command parses policy files and checks:
  - YAML syntax
  - Required fields (policy_id, mode, scope principals, actions)
  - Mode, source, and action type values
  - Principal ARN shape and account id format
  - attach_deny_policy deny lists and exemption expiry timestamps

Exit status is non-zero when any file fails, so the command can gate
policy changes in CI.

Examples:
  # Validate a single file
  guardrails validate --file policies/ec2-spike.yaml

  # Validate a directory
  guardrails validate --dir policies/

  # JSON output for CI
  guardrails validate --dir policies/ --format json`,
	RunE: validatePolicies,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.file, "file", "f", "", "policy file to validate")
	validateCmd.Flags().StringVarP(&validateFlags.dir, "dir", "d", "", "directory of policy files")
	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

// ValidationResult is the validation outcome for a single policy file.
type ValidationResult struct {
	File     string   `json:"file"`
	Valid    bool     `json:"valid"`
	PolicyID string   `json:"policy_id,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

func validatePolicies(cmd *cobra.Command, args []string) error {
	if validateFlags.file == "" && validateFlags.dir == "" {
		return fmt.Errorf("either --file or --dir must be specified")
	}

	var files []string

	if validateFlags.file != "" {
		files = append(files, validateFlags.file)
	}

	if validateFlags.dir != "" {
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(validateFlags.dir, pattern))
			if err != nil {
				return fmt.Errorf("failed to list policy files: %w", err)
			}
			files = append(files, matches...)
		}
		sort.Strings(files)
	}

	if len(files) == 0 {
		return fmt.Errorf("no policy files found")
	}

	results := make([]ValidationResult, 0, len(files))
	for _, file := range files {
		results = append(results, validatePolicyFile(file))
	}

	if validateFlags.format == "json" {
		return outputJSON(results)
	}
	return outputText(results)
}

func validatePolicyFile(path string) ValidationResult {
	result := ValidationResult{File: path, Valid: true}

	p, err := policy.LoadFile(path)
	if err == nil {
		result.PolicyID = p.PolicyID
		return result
	}

	result.Valid = false

	var validationErr *policy.ValidationError
	if errors.As(err, &validationErr) {
		result.PolicyID = validationErr.PolicyID
		result.Errors = validationErr.Errors
		return result
	}
	result.Errors = []string{err.Error()}
	return result
}

func outputText(results []ValidationResult) error {
	totalErrors := 0

	for _, result := range results {
		fmt.Printf("Validating %s...\n", result.File)

		if result.Valid {
			fmt.Println("✓ Policy valid")
		}

		for _, msg := range result.Errors {
			fmt.Printf("✗ Error: %s\n", msg)
			totalErrors++
		}

		fmt.Println()
	}

	fmt.Println("Summary:")
	fmt.Printf("  %d file(s), %d error(s)\n", len(results), totalErrors)

	if totalErrors > 0 {
		return cli.NewCommandError("validate", fmt.Errorf("validation failed"))
	}
	return nil
}

func outputJSON(results []ValidationResult) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(results); err != nil {
		return err
	}
	for _, result := range results {
		if !result.Valid {
			return cli.NewCommandError("validate", fmt.Errorf("validation failed"))
		}
	}
	return nil
}
