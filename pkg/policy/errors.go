package policy

import (
	"fmt"
)

// ValidationError indicates a policy failed validation. It collects every
// problem found so operators can fix a file in one pass.
type ValidationError struct {
	PolicyID string
	Errors   []string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("policy %s: validation error: %s", e.PolicyID, e.Errors[0])
	}
	return fmt.Sprintf("policy %s: %d validation errors: %v", e.PolicyID, len(e.Errors), e.Errors)
}

// LoadError indicates a policy file could not be read or parsed.
type LoadError struct {
	Path  string
	Cause error
}

// Error returns the error message.
func (e *LoadError) Error() string {
	return fmt.Sprintf("policy load failed for %q: %v", e.Path, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error {
	return e.Cause
}
