// Package notify delivers guardrail notifications to Slack.
//
// Delivery is asynchronous: Send queues the message and a background worker
// posts it to the configured webhook with retries. A full queue drops the
// message with a warning instead of blocking, so a slow or down Slack never
// stalls evaluation, execution, or rollback. Close drains the queue before
// returning.
package notify
