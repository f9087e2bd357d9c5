package metrics

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barela/flowdeck/pkg/models"
	"github.com/barela/flowdeck/pkg/persistence"
	"github.com/barela/flowdeck/pkg/persistence/memory"
)

func newTestAggregator(t *testing.T) (*Aggregator, persistence.Persistence) {
	t.Helper()

	store := memory.NewPersistence()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	return NewAggregator(logger, store), store
}

func saveExecution(t *testing.T, store persistence.Persistence, id, workflowID string, status models.ExecutionStatus, startedAt time.Time, duration *time.Duration) {
	t.Helper()

	require.NoError(t, store.ExecutionRepository().Save(context.Background(), &models.Execution{
		ID:            id,
		WorkflowID:    workflowID,
		Status:        status,
		StartedAt:     startedAt,
		TotalDuration: duration,
	}))
}

func TestGetWorkflowMetrics_EmptyHistory(t *testing.T) {
	aggregator, _ := newTestAggregator(t)

	metrics, err := aggregator.GetWorkflowMetrics(context.Background(), "wf-empty")
	require.NoError(t, err)

	assert.Equal(t, 0, metrics.TotalExecutions)
	assert.Zero(t, metrics.ErrorRate)
	assert.Zero(t, metrics.AverageDuration)
	assert.Nil(t, metrics.LastExecuted)
}

func TestGetWorkflowMetrics_MixedOutcomes(t *testing.T) {
	aggregator, store := newTestAggregator(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d1 := 2 * time.Second
	d2 := 4 * time.Second
	d3 := 6 * time.Second

	saveExecution(t, store, "e1", "wf-1", models.ExecutionStatusCompleted, base, &d1)
	saveExecution(t, store, "e2", "wf-1", models.ExecutionStatusCompleted, base.Add(time.Hour), &d2)
	saveExecution(t, store, "e3", "wf-1", models.ExecutionStatusCompleted, base.Add(2*time.Hour), &d3)
	saveExecution(t, store, "e4", "wf-1", models.ExecutionStatusFailed, base.Add(3*time.Hour), nil)
	saveExecution(t, store, "other", "wf-2", models.ExecutionStatusFailed, base, nil)

	metrics, err := aggregator.GetWorkflowMetrics(context.Background(), "wf-1")
	require.NoError(t, err)

	assert.Equal(t, 4, metrics.TotalExecutions)
	assert.Equal(t, 3, metrics.SuccessfulExecutions)
	assert.Equal(t, 1, metrics.FailedExecutions)
	assert.InEpsilon(t, 0.25, metrics.ErrorRate, 0.0001)
	assert.Equal(t, 4*time.Second, metrics.AverageDuration)
	require.NotNil(t, metrics.LastExecuted)
	assert.Equal(t, base.Add(3*time.Hour), *metrics.LastExecuted)
}

func TestGetWorkflowMetrics_NonTerminalExecutionsCount(t *testing.T) {
	aggregator, store := newTestAggregator(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	saveExecution(t, store, "e1", "wf-1", models.ExecutionStatusRunning, base, nil)
	saveExecution(t, store, "e2", "wf-1", models.ExecutionStatusPaused, base.Add(time.Minute), nil)
	saveExecution(t, store, "e3", "wf-1", models.ExecutionStatusCancelled, base.Add(2*time.Minute), nil)

	metrics, err := aggregator.GetWorkflowMetrics(context.Background(), "wf-1")
	require.NoError(t, err)

	assert.Equal(t, 3, metrics.TotalExecutions)
	assert.Equal(t, 0, metrics.SuccessfulExecutions)
	assert.Equal(t, 0, metrics.FailedExecutions)
	assert.Zero(t, metrics.ErrorRate)
}
