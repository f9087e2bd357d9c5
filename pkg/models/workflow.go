// Package models defines the core domain models for multi-step workflow automation.
package models

import "time"

// Workflow represents a user-defined sequence of tool invocations.
type Workflow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"        validate:"required,min=3"`
	Description string    `json:"description"`
	Steps       []*Step   `json:"steps"       validate:"required,min=1,dive"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Step is one entry in a workflow, referencing a tool and its advance policy.
type Step struct {
	// ToolID references an external tool capability by its opaque identifier.
	ToolID string `json:"tool_id" validate:"required"`

	// Order is the zero-based position of this step. Orders must be unique
	// and form a dense sequence starting at 0.
	Order int `json:"order" validate:"min=0"`

	// AutoAdvance controls whether the engine proceeds to the next step
	// automatically after success. When false the execution pauses and
	// requires an explicit resume.
	AutoAdvance bool `json:"auto_advance"`

	// WaitTime is an optional delay in seconds inserted before auto-advancing.
	WaitTime int `json:"wait_time" validate:"min=0"`

	// Description is a free-form annotation with no semantic effect.
	Description string `json:"description,omitempty"`
}

// SnapshotSteps returns a deep copy of the workflow's steps. Executions
// operate on a snapshot so that definition edits never affect a run in flight.
func (w *Workflow) SnapshotSteps() []*Step {
	steps := make([]*Step, len(w.Steps))
	for i, step := range w.Steps {
		copied := *step
		steps[i] = &copied
	}

	return steps
}
