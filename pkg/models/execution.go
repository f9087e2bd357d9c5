package models

import "time"

// ExecutionStatus represents the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// executionTransitions is the allowed state graph. Terminal states have no
// outgoing transitions.
var executionTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionStatusPending: {ExecutionStatusRunning},
	ExecutionStatusRunning: {
		ExecutionStatusPaused,
		ExecutionStatusCompleted,
		ExecutionStatusFailed,
		ExecutionStatusCancelled,
	},
	ExecutionStatusPaused: {ExecutionStatusRunning, ExecutionStatusCancelled},
}

// IsTerminal reports whether the status admits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the state graph allows moving to next.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	for _, allowed := range executionTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// ExecutionSource identifies what spawned an execution.
type ExecutionSource string

const (
	ExecutionSourceManual   ExecutionSource = "manual"
	ExecutionSourceSchedule ExecutionSource = "schedule"
	ExecutionSourceTrigger  ExecutionSource = "trigger"
)

// Execution is one concrete run of a workflow. It carries its own snapshot of
// the workflow's steps and becomes an immutable historical record once it
// reaches a terminal status.
type Execution struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	Status     ExecutionStatus `json:"status"`

	// Steps is the snapshot taken at execution start. Definition edits after
	// this point do not affect the run.
	Steps []*Step `json:"steps"`

	// CurrentStepIndex indexes into Steps. Invariant: 0 <= index <= len(Steps).
	CurrentStepIndex int `json:"current_step_index"`

	// StepResults holds exactly one result per step, in step order. The slice
	// is created at execution start and never resized.
	StepResults []*StepResult `json:"step_results"`

	Variables map[string]any `json:"variables,omitempty"`

	// AutoAdvance is the execution-level override. When false the engine
	// pauses after every step, regardless of the step's own flag.
	AutoAdvance bool `json:"auto_advance"`

	TriggeredBy ExecutionSource `json:"triggered_by"`

	StartedAt   time.Time  `json:"started_at"`
	PausedAt    *time.Time `json:"paused_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// TotalDuration is recorded when the execution completes successfully.
	TotalDuration *time.Duration `json:"total_duration,omitempty"`

	// Error holds a human-readable failure description, present iff the
	// status is failed.
	Error string `json:"error,omitempty"`
}

// NewExecution creates a pending execution for the given workflow, snapshotting
// its steps and allocating one pending StepResult per step.
func NewExecution(id string, workflow *Workflow, autoAdvance bool, variables map[string]any, source ExecutionSource) *Execution {
	steps := workflow.SnapshotSteps()

	results := make([]*StepResult, len(steps))
	for i := range results {
		results[i] = &StepResult{Status: StepStatusPending}
	}

	return &Execution{
		ID:          id,
		WorkflowID:  workflow.ID,
		Status:      ExecutionStatusPending,
		Steps:       steps,
		StepResults: results,
		Variables:   variables,
		AutoAdvance: autoAdvance,
		TriggeredBy: source,
	}
}

// IsTerminal reports whether the execution reached a terminal status.
func (e *Execution) IsTerminal() bool {
	return e.Status.IsTerminal()
}

// StepStatus represents the state of a single step within an execution.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepResult records the outcome of one step of an execution.
type StepResult struct {
	Status      StepStatus     `json:"status"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Duration    *time.Duration `json:"duration,omitempty"`
	Output      any            `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
}
