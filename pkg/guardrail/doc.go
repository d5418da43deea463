// Package guardrail is the controller tying evaluation, execution, and
// approval together.
//
// Evaluate takes one normalized cost event through the pipeline:
//
//	event -> duplicate check -> first matching policy -> action plan
//	      -> mode dispatch (simulate / approve / automatic)
//
// Simulate mode notifies and writes nothing. Approve mode freezes the plan
// into planned ledger rows and mails out signed decision links. Automatic
// mode executes synchronously: each target gets a planned row, the deny
// policy is applied, and the row moves to executed with the applied diff
// frozen in.
//
// ResolveApproval consumes a clicked decision link: it verifies the
// signature, claims the planned row through a version-checked update, and
// executes or rejects. Concurrent clicks race on the row version; the loser
// sees already_resolved.
package guardrail
