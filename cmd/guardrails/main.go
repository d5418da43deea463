// Guardrails is a graduated cost-anomaly response controller for AWS.
//
// It ingests cost alerts (AWS Budgets, Cost Anomaly Detection), evaluates
// them against declarative guardrail policies, and responds in one of three
// modes: simulate (report only), approve (signed human decision links), or
// automatic (attach an IAM deny policy immediately). Every action lands in
// an execution ledger and is rolled back automatically when its ttl lapses.
//
// Usage:
//
//	# Start the controller with default configuration
//	guardrails run
//
//	# Start with a custom configuration file
//	guardrails run --config /etc/guardrails/config.yaml
//
//	# Validate policy files before pushing them
//	guardrails validate --dir policies/
//
//	# Feed a synthetic event through evaluation without touching IAM
//	guardrails simulate --account 123456789012 --amount 1500
//
//	# Inspect the execution ledger
//	guardrails executions --status executed --limit 20
//
//	# Run one rollback sweep by hand
//	guardrails sweep
package main

func main() {
	Execute()
}
