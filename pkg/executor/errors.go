package executor

import "fmt"

// ExecutionError reports a failed cloud operation against a plan target.
type ExecutionError struct {
	Target    string // principal ARN
	Operation string // "create_policy", "attach", "detach", "delete_policy"
	Cause     error
}

// Error returns the error message.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed [target=%s, operation=%s]: %v", e.Target, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// NewExecutionError creates a new ExecutionError.
func NewExecutionError(target, operation string, cause error) *ExecutionError {
	return &ExecutionError{
		Target:    target,
		Operation: operation,
		Cause:     cause,
	}
}
