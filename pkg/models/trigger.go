package models

import (
	"reflect"
	"time"
)

// TriggerType classifies the external event source a trigger listens to.
type TriggerType string

const (
	TriggerTypeToolUsage     TriggerType = "tool_usage"
	TriggerTypeTimeBased     TriggerType = "time_based"
	TriggerTypeDataChange    TriggerType = "data_change"
	TriggerTypeExternalEvent TriggerType = "external_event"
)

// Trigger binds an external event condition to a workflow invocation.
type Trigger struct {
	ID         string      `json:"id"          validate:"required"`
	WorkflowID string      `json:"workflow_id" validate:"required"`
	Type       TriggerType `json:"type"        validate:"required,oneof=tool_usage time_based data_change external_event"`

	// Conditions is an opaque predicate payload. Each key must be present in
	// the event payload with an equal value for the trigger to match. An
	// empty condition set matches every event of the trigger's type.
	Conditions map[string]any `json:"conditions,omitempty"`

	Enabled bool `json:"enabled"`

	// TriggerCount increases monotonically, once per firing.
	TriggerCount  int64      `json:"trigger_count"`
	LastTriggered *time.Time `json:"last_triggered,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Matches evaluates the trigger's conditions against an event payload. Pure
// predicate evaluation, no side effects.
func (t *Trigger) Matches(payload map[string]any) bool {
	for key, want := range t.Conditions {
		got, ok := payload[key]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}

	return true
}
