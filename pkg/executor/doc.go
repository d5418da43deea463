// Package executor turns plan targets into cloud-side changes and back.
//
// The write path is Apply, which attaches a generated deny-only IAM policy
// to the target principal and reports the change as a Diff. The Diff is
// stored verbatim in the execution ledger; Revert consumes a stored Diff and
// undoes exactly what it records, never recomputing from the current policy
// configuration.
//
// Preview produces the same Diff shape without side effects and without
// credentials. Simulation results and approval requests embed it.
package executor
