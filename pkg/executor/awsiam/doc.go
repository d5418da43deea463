// Package awsiam is the AWS implementation of the action executor.
//
// Each (guardrail policy, deny set) pair maps to one customer managed
// policy, named after a digest of the deny set. Apply creates the managed
// policy if needed and attaches it to the plan target; Revert detaches it
// and deletes it once no principal is attached anymore. Both directions
// treat "already done" as success, so retries converge instead of failing.
package awsiam
