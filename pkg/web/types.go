// Package web provides the REST API over the workflow core.
package web

import (
	"time"

	"github.com/barela/flowdeck/pkg/models"
)

// CreateWorkflowRequest is the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	Steps       []StepRequest  `json:"steps"       validate:"required,min=1,dive"`
	Enabled     bool           `json:"enabled"`
}

// StepRequest is one step in a workflow create or update request.
type StepRequest struct {
	ToolID      string `json:"tool_id"      validate:"required"`
	Order       int    `json:"order"        validate:"min=0"`
	AutoAdvance bool   `json:"auto_advance"`
	WaitTime    int    `json:"wait_time"    validate:"min=0"`
	Description string `json:"description"`
}

// ExecuteWorkflowRequest is the request body for starting an execution.
type ExecuteWorkflowRequest struct {
	AutoAdvance *bool          `json:"auto_advance,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
}

// CreateScheduleRequest is the request body for scheduling a workflow.
type CreateScheduleRequest struct {
	WorkflowID      string              `json:"workflow_id"       validate:"required"`
	Type            models.ScheduleType `json:"type"              validate:"required"`
	ScheduledAt     *time.Time          `json:"scheduled_at,omitempty"`
	TimeOfDay       string              `json:"time_of_day,omitempty"`
	Weekday         *time.Weekday       `json:"weekday,omitempty"`
	DayOfMonth      int                 `json:"day_of_month,omitempty"`
	IntervalMinutes int                 `json:"interval_minutes,omitempty"`
	CronExpression  string              `json:"cron_expression,omitempty"`
	Enabled         bool                `json:"enabled"`
}

// CreateTriggerRequest is the request body for registering a trigger.
type CreateTriggerRequest struct {
	WorkflowID string             `json:"workflow_id" validate:"required"`
	Type       models.TriggerType `json:"type"        validate:"required"`
	Conditions map[string]any     `json:"conditions,omitempty"`
	Enabled    bool               `json:"enabled"`
}

// ToolResponse describes one available tool.
type ToolResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema,omitempty"`
}

func (r *CreateWorkflowRequest) toModel() *models.Workflow {
	steps := make([]*models.Step, 0, len(r.Steps))
	for _, step := range r.Steps {
		steps = append(steps, &models.Step{
			ToolID:      step.ToolID,
			Order:       step.Order,
			AutoAdvance: step.AutoAdvance,
			WaitTime:    step.WaitTime,
			Description: step.Description,
		})
	}

	return &models.Workflow{
		Name:        r.Name,
		Description: r.Description,
		Steps:       steps,
		Enabled:     r.Enabled,
	}
}

func (r *CreateScheduleRequest) toModel() *models.Schedule {
	return &models.Schedule{
		WorkflowID:      r.WorkflowID,
		Type:            r.Type,
		ScheduledAt:     r.ScheduledAt,
		TimeOfDay:       r.TimeOfDay,
		Weekday:         r.Weekday,
		DayOfMonth:      r.DayOfMonth,
		IntervalMinutes: r.IntervalMinutes,
		CronExpression:  r.CronExpression,
		Enabled:         r.Enabled,
	}
}

func (r *CreateTriggerRequest) toModel() *models.Trigger {
	return &models.Trigger{
		WorkflowID: r.WorkflowID,
		Type:       r.Type,
		Conditions: r.Conditions,
		Enabled:    r.Enabled,
	}
}
