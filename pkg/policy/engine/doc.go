// Package engine implements policy matching and action planning.
//
// Matching is deterministic first-match-wins: policies are scanned in the
// order the store holds them (lexical file order) and the first enabled
// policy whose predicate holds and whose exemptions stay silent wins. The
// match predicate checks, in order: source, account, amount bounds, service,
// and region. Exemptions are applied after the predicate; an exempt policy
// is skipped and the scan continues, so a later, broader policy can still
// catch the event.
//
//	event ──▶ [policy 1] predicate? exempt? ──▶ no
//	          [policy 2] predicate? exempt? ──▶ MATCH
//	          [policy 3]                        (not evaluated)
//
// A match is turned into an ActionPlan by BuildPlan. The plan fixes the
// blast radius at evaluation time: one plan target per principal in the
// policy's scope, carrying the policy's ordered action list. Nothing about
// the event ever widens the scope.
//
// The matcher is pure apart from logging. The evaluation instant is passed
// in by the caller so exemption time windows are decided by one clock.
package engine
