package triggers

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barela/flowdeck/pkg/clock"
	"github.com/barela/flowdeck/pkg/engine"
	"github.com/barela/flowdeck/pkg/models"
	"github.com/barela/flowdeck/pkg/persistence"
	"github.com/barela/flowdeck/pkg/persistence/memory"
)

type countingExecutor struct {
	calls []string
}

func (e *countingExecutor) Execute(_ context.Context, workflowID string, opts engine.ExecuteOptions) (*models.Execution, error) {
	e.calls = append(e.calls, workflowID)

	return &models.Execution{
		ID:          "exec-" + workflowID,
		WorkflowID:  workflowID,
		Status:      models.ExecutionStatusCompleted,
		Variables:   opts.Variables,
		TriggeredBy: opts.Source,
	}, nil
}

func newTestRegistry(t *testing.T) (*Registry, *countingExecutor, persistence.Persistence) {
	t.Helper()

	store := memory.NewPersistence()
	executor := &countingExecutor{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	fakeClock := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	return NewRegistry(logger, store, executor, nil, fakeClock), executor, store
}

func TestCreate_Validation(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	err := registry.Create(context.Background(), &models.Trigger{Type: "bogus"})
	require.Error(t, err)

	err = registry.Create(context.Background(), &models.Trigger{
		WorkflowID: "wf-1",
		Type:       models.TriggerTypeToolUsage,
		Enabled:    true,
	})
	require.NoError(t, err)
}

func TestEvaluate_FiresMatchingTriggers(t *testing.T) {
	registry, executor, store := newTestRegistry(t)

	require.NoError(t, registry.Create(context.Background(), &models.Trigger{
		ID:         "t-match",
		WorkflowID: "wf-match",
		Type:       models.TriggerTypeToolUsage,
		Conditions: map[string]any{"tool_id": "formatter"},
		Enabled:    true,
	}))
	require.NoError(t, registry.Create(context.Background(), &models.Trigger{
		ID:         "t-other",
		WorkflowID: "wf-other",
		Type:       models.TriggerTypeToolUsage,
		Conditions: map[string]any{"tool_id": "cleaner"},
		Enabled:    true,
	}))
	require.NoError(t, registry.Create(context.Background(), &models.Trigger{
		ID:         "t-disabled",
		WorkflowID: "wf-disabled",
		Type:       models.TriggerTypeToolUsage,
		Enabled:    false,
	}))

	fired, err := registry.Evaluate(context.Background(), models.TriggerTypeToolUsage, map[string]any{
		"tool_id": "formatter",
	})
	require.NoError(t, err)

	require.Len(t, fired, 1)
	assert.Equal(t, "wf-match", fired[0].WorkflowID)
	assert.Equal(t, models.ExecutionSourceTrigger, fired[0].TriggeredBy)
	assert.Equal(t, []string{"wf-match"}, executor.calls)

	updated, err := store.TriggerRepository().GetByID(context.Background(), "t-match")
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, int64(1), updated.TriggerCount)
	assert.NotNil(t, updated.LastTriggered)

	untouched, err := store.TriggerRepository().GetByID(context.Background(), "t-other")
	require.NoError(t, err)
	require.NotNil(t, untouched)
	assert.Equal(t, int64(0), untouched.TriggerCount)
}

func TestEvaluate_EmptyConditionsMatchAll(t *testing.T) {
	registry, executor, _ := newTestRegistry(t)

	require.NoError(t, registry.Create(context.Background(), &models.Trigger{
		WorkflowID: "wf-any",
		Type:       models.TriggerTypeExternalEvent,
		Enabled:    true,
	}))

	fired, err := registry.Evaluate(context.Background(), models.TriggerTypeExternalEvent, map[string]any{
		"anything": true,
	})
	require.NoError(t, err)
	assert.Len(t, fired, 1)
	assert.Equal(t, []string{"wf-any"}, executor.calls)
}

func TestEvaluate_IgnoresOtherTypes(t *testing.T) {
	registry, executor, _ := newTestRegistry(t)

	require.NoError(t, registry.Create(context.Background(), &models.Trigger{
		WorkflowID: "wf-data",
		Type:       models.TriggerTypeDataChange,
		Enabled:    true,
	}))

	fired, err := registry.Evaluate(context.Background(), models.TriggerTypeToolUsage, map[string]any{})
	require.NoError(t, err)
	assert.Empty(t, fired)
	assert.Empty(t, executor.calls)
}

func TestSetEnabled(t *testing.T) {
	registry, _, store := newTestRegistry(t)

	require.NoError(t, registry.Create(context.Background(), &models.Trigger{
		ID:         "t-toggle",
		WorkflowID: "wf-toggle",
		Type:       models.TriggerTypeToolUsage,
		Enabled:    true,
	}))

	require.NoError(t, registry.SetEnabled(context.Background(), "t-toggle", false))

	updated, err := store.TriggerRepository().GetByID(context.Background(), "t-toggle")
	require.NoError(t, err)
	assert.False(t, updated.Enabled)

	require.ErrorIs(t,
		registry.SetEnabled(context.Background(), "missing", true),
		persistence.ErrTriggerNotFound,
	)
}
