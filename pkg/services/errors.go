// Package services holds the application services exposed to transport
// layers.
package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/barela/flowdeck/pkg/persistence"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

	// ErrWorkflowNil is returned when a nil workflow is passed in.
	ErrWorkflowNil = errors.New("workflow cannot be nil")

	// ErrValidation marks errors caused by invalid client input.
	ErrValidation = errors.New("validation failed")
)

// ValidationError describes one problem with a submitted workflow.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every problem found in one validation pass, so
// callers can present all of them at once.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	messages := make([]string, 0, len(v))
	for _, e := range v {
		messages = append(messages, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}

	return "validation failed: " + strings.Join(messages, "; ")
}

func (v ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}

// IsValidationError checks if an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrWorkflowNil)
}

// IsNotFoundError checks if an error should map to HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, persistence.ErrWorkflowNotFound) ||
		errors.Is(err, persistence.ErrExecutionNotFound) ||
		errors.Is(err, persistence.ErrScheduleNotFound) ||
		errors.Is(err, persistence.ErrTriggerNotFound)
}
