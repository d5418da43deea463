// Package event defines the normalized cost signal consumed by the guardrail
// engine and the parsers that produce it from raw upstream payloads.
//
// A CostEvent is immutable once created. It is produced either directly (a
// caller already holds normalized data) or by Parse, which recognizes the
// upstream formats the controller ingests:
//
//   - AWS Budgets notifications wrapped in an SNS envelope
//   - AWS Budgets notifications delivered via EventBridge
//   - AWS Cost Anomaly Detection alerts
//   - an already-normalized CostEvent JSON document
//
// Duplicate delivery is expected from every upstream source; the engine, not
// this package, is responsible for folding duplicates.
package event
