// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrScheduleNotFound indicates a schedule was not found by the given identifier.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrTriggerNotFound indicates a trigger was not found by the given identifier.
	ErrTriggerNotFound = errors.New("trigger not found")

	// ErrUnsupportedSchemaVersion indicates a stored blob carries a schema
	// version newer than this build understands.
	ErrUnsupportedSchemaVersion = errors.New("unsupported schema version")
)

// StoreError wraps storage errors with operation context.
type StoreError struct {
	Op       string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	Kind     string // Record kind ("workflow", "execution", "schedule", "trigger")
	RecordID string // Record ID if applicable
	Err      error  // Underlying error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Kind, e.RecordID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a new storage error with context.
func NewStoreError(op, kind, recordID string, err error) *StoreError {
	return &StoreError{
		Op:       op,
		Kind:     kind,
		RecordID: recordID,
		Err:      err,
	}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsScheduleNotFound checks if an error indicates a schedule was not found.
func IsScheduleNotFound(err error) bool {
	return errors.Is(err, ErrScheduleNotFound)
}

// IsTriggerNotFound checks if an error indicates a trigger was not found.
func IsTriggerNotFound(err error) bool {
	return errors.Is(err, ErrTriggerNotFound)
}
