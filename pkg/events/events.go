// Package events defines event types for workflow lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries all flowdeck lifecycle events.
const Topic = "flowdeck.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionPausedEvent    EventType = "execution.paused"
	ExecutionResumedEvent   EventType = "execution.resumed"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"

	// Tool usage, consumed by tool_usage triggers.
	ToolUsedEvent EventType = "tool.used"

	// Producer-side firings.
	ScheduleFiredEvent EventType = "schedule.fired"
	TriggerFiredEvent  EventType = "trigger.fired"
)

type Event interface {
	GetType() EventType
}

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent populates the fields shared by every event.
func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	TriggeredBy string `json:"triggered_by"`
}

func (e ExecutionStarted) GetType() EventType { return ExecutionStartedEvent }

type ExecutionPaused struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	StepIndex   int    `json:"step_index"`
}

func (e ExecutionPaused) GetType() EventType { return ExecutionPausedEvent }

type ExecutionResumed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	StepIndex   int    `json:"step_index"`
}

func (e ExecutionResumed) GetType() EventType { return ExecutionResumedEvent }

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType { return ExecutionCompletedEvent }

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Error       string `json:"error"`
	StepIndex   int    `json:"step_index"`
}

func (e ExecutionFailed) GetType() EventType { return ExecutionFailedEvent }

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionCancelled) GetType() EventType { return ExecutionCancelledEvent }

type ToolUsed struct {
	BaseEvent

	ToolID string `json:"tool_id"`
}

func (e ToolUsed) GetType() EventType { return ToolUsedEvent }

type ScheduleFired struct {
	BaseEvent

	ScheduleID  string `json:"schedule_id"`
	ExecutionID string `json:"execution_id"`
	RunCount    int64  `json:"run_count"`
}

func (e ScheduleFired) GetType() EventType { return ScheduleFiredEvent }

type TriggerFired struct {
	BaseEvent

	TriggerID   string `json:"trigger_id"`
	ExecutionID string `json:"execution_id"`
}

func (e TriggerFired) GetType() EventType { return TriggerFiredEvent }
