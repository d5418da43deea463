package ledger

import "fmt"

// NotFoundError indicates no execution exists with the given id.
type NotFoundError struct {
	ExecutionID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("execution not found: %s", e.ExecutionID)
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(executionID string) *NotFoundError {
	return &NotFoundError{ExecutionID: executionID}
}

// ConflictError indicates a write lost a race: either an active execution
// already occupies the (policy_id, target) slot, or an update carried a
// stale version. Callers treat it as "someone else already did this".
type ConflictError struct {
	ExecutionID string
	Reason      string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("execution conflict [execution_id=%s]: %s", e.ExecutionID, e.Reason)
}

// NewConflictError creates a new ConflictError.
func NewConflictError(executionID, reason string) *ConflictError {
	return &ConflictError{ExecutionID: executionID, Reason: reason}
}

// StateError indicates an illegal state machine transition was attempted.
type StateError struct {
	ExecutionID string
	From        Status
	To          Status
}

// Error implements the error interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("illegal transition [execution_id=%s]: %s -> %s", e.ExecutionID, e.From, e.To)
}

// StorageError represents an error from the storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("sqlite", "memory")
	Operation string // Operation that failed ("create", "update", "get", ...)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}
