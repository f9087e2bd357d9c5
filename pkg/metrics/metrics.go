// Package metrics computes summary statistics over execution history.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/barela/flowdeck/pkg/models"
	"github.com/barela/flowdeck/pkg/persistence"
)

// Aggregator is a pure read-side computation over the execution history. It
// keeps no cache; every call recomputes from the store.
type Aggregator struct {
	logger      *slog.Logger
	persistence persistence.Persistence
}

func NewAggregator(logger *slog.Logger, store persistence.Persistence) *Aggregator {
	return &Aggregator{
		logger:      logger.With("module", "metrics"),
		persistence: store,
	}
}

// GetWorkflowMetrics scans all executions of one workflow and summarizes
// their outcomes.
func (a *Aggregator) GetWorkflowMetrics(ctx context.Context, workflowID string) (*models.WorkflowMetrics, error) {
	executions, err := a.persistence.ExecutionRepository().GetByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load executions for workflow %s: %w", workflowID, err)
	}

	metrics := &models.WorkflowMetrics{WorkflowID: workflowID}

	var (
		totalDuration time.Duration
		durationCount int64
		lastExecuted  time.Time
	)

	for _, execution := range executions {
		metrics.TotalExecutions++

		switch execution.Status {
		case models.ExecutionStatusCompleted:
			metrics.SuccessfulExecutions++
		case models.ExecutionStatusFailed:
			metrics.FailedExecutions++
		}

		if execution.TotalDuration != nil {
			totalDuration += *execution.TotalDuration
			durationCount++
		}

		if execution.StartedAt.After(lastExecuted) {
			lastExecuted = execution.StartedAt
		}
	}

	if durationCount > 0 {
		metrics.AverageDuration = totalDuration / time.Duration(durationCount)
	}

	if metrics.TotalExecutions > 0 {
		metrics.ErrorRate = float64(metrics.FailedExecutions) / float64(metrics.TotalExecutions)
	}

	if !lastExecuted.IsZero() {
		metrics.LastExecuted = &lastExecuted
	}

	return metrics, nil
}
