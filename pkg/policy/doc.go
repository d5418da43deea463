// Package policy defines guardrail policy documents, their validation rules,
// and the loading machinery that turns YAML files into an evaluation-ready,
// ordered policy set.
//
// A GuardrailPolicy describes when the controller should react to a cost
// event (match predicate plus exemptions), what it should do (ordered action
// list against a fixed principal scope), how aggressively (simulate, approve,
// automatic), and for how long (ttl before automatic rollback).
//
// # Loading
//
// Policies live in YAML files, one policy per file. LoadDir reads every
// .yaml/.yml file in sorted path order; a file that fails to parse or
// validate is logged and skipped so one bad file never takes down the rest.
// Disabled policies are skipped at load time.
//
// The Store holds the currently loaded set behind a read-write mutex and
// supports atomic replacement, which the fsnotify Watcher drives on file
// changes.
//
// # Validation
//
// Validation is strict and rejects, among other things, wildcard principal
// ARNs, deny lists naming deletion-class operations, inverted amount bounds,
// negative ttls, and exemption time windows with unknown timezones. Invalid
// policies never reach the matcher.
package policy
