package logging

import (
	"context"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for HTTP request IDs.
	RequestIDKey contextKey = "request_id"

	// EventIDKey is the context key for cost event IDs.
	EventIDKey contextKey = "event_id"

	// ExecutionIDKey is the context key for execution record IDs.
	ExecutionIDKey contextKey = "execution_id"

	// PolicyIDKey is the context key for guardrail policy IDs.
	PolicyIDKey contextKey = "policy_id"

	// AccountIDKey is the context key for AWS account IDs.
	AccountIDKey contextKey = "account_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithEventID adds a cost event ID to the context.
func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, EventIDKey, eventID)
}

// GetEventID retrieves the cost event ID from the context.
func GetEventID(ctx context.Context) string {
	if eventID, ok := ctx.Value(EventIDKey).(string); ok {
		return eventID
	}
	return ""
}

// WithExecutionID adds an execution record ID to the context.
func WithExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, ExecutionIDKey, executionID)
}

// GetExecutionID retrieves the execution record ID from the context.
func GetExecutionID(ctx context.Context) string {
	if executionID, ok := ctx.Value(ExecutionIDKey).(string); ok {
		return executionID
	}
	return ""
}

// WithPolicyID adds a policy ID to the context.
func WithPolicyID(ctx context.Context, policyID string) context.Context {
	return context.WithValue(ctx, PolicyIDKey, policyID)
}

// GetPolicyID retrieves the policy ID from the context.
func GetPolicyID(ctx context.Context) string {
	if policyID, ok := ctx.Value(PolicyIDKey).(string); ok {
		return policyID
	}
	return ""
}

// WithAccountID adds an AWS account ID to the context.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, AccountIDKey, accountID)
}

// GetAccountID retrieves the AWS account ID from the context.
func GetAccountID(ctx context.Context) string {
	if accountID, ok := ctx.Value(AccountIDKey).(string); ok {
		return accountID
	}
	return ""
}

// extractContextFields extracts common fields from context for logging.
// Returns a slice of key-value pairs suitable for logger.With().
func extractContextFields(ctx context.Context) []any {
	var fields []any

	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}

	if eventID := GetEventID(ctx); eventID != "" {
		fields = append(fields, "event_id", eventID)
	}

	if executionID := GetExecutionID(ctx); executionID != "" {
		fields = append(fields, "execution_id", executionID)
	}

	if policyID := GetPolicyID(ctx); policyID != "" {
		fields = append(fields, "policy_id", policyID)
	}

	if accountID := GetAccountID(ctx); accountID != "" {
		fields = append(fields, "account_id", accountID)
	}

	return fields
}

// ContextLogger is a logger that automatically includes context fields.
type ContextLogger struct {
	logger *Logger
	ctx    context.Context
}

// NewContextLogger creates a logger that automatically includes context fields.
func NewContextLogger(logger *Logger, ctx context.Context) *ContextLogger {
	return &ContextLogger{
		logger: logger.WithContext(ctx),
		ctx:    ctx,
	}
}

// Debug logs a debug message with context fields.
func (cl *ContextLogger) Debug(msg string, args ...any) {
	cl.logger.DebugContext(cl.ctx, msg, args...)
}

// Info logs an info message with context fields.
func (cl *ContextLogger) Info(msg string, args ...any) {
	cl.logger.InfoContext(cl.ctx, msg, args...)
}

// Warn logs a warning message with context fields.
func (cl *ContextLogger) Warn(msg string, args ...any) {
	cl.logger.WarnContext(cl.ctx, msg, args...)
}

// Error logs an error message with context fields.
func (cl *ContextLogger) Error(msg string, args ...any) {
	cl.logger.ErrorContext(cl.ctx, msg, args...)
}

// With creates a new context logger with additional fields.
func (cl *ContextLogger) With(args ...any) *ContextLogger {
	return &ContextLogger{
		logger: cl.logger.With(args...),
		ctx:    cl.ctx,
	}
}
