package models

import "time"

// WorkflowMetrics summarizes the outcome history of one workflow. It is a
// pure read-side aggregate, recomputable at any time from the execution
// history.
type WorkflowMetrics struct {
	WorkflowID           string `json:"workflow_id"`
	TotalExecutions      int    `json:"total_executions"`
	SuccessfulExecutions int    `json:"successful_executions"`
	FailedExecutions     int    `json:"failed_executions"`

	// AverageDuration is the mean total duration over executions that
	// recorded one; zero when none did.
	AverageDuration time.Duration `json:"average_duration"`

	// ErrorRate is FailedExecutions / TotalExecutions, always in [0, 1].
	ErrorRate float64 `json:"error_rate"`

	LastExecuted *time.Time `json:"last_executed,omitempty"`
}
