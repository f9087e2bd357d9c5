package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/barela/flowdeck/pkg/clock"
	"github.com/barela/flowdeck/pkg/models"
	"github.com/barela/flowdeck/pkg/otelhelper"
	"github.com/barela/flowdeck/pkg/persistence"
	"github.com/barela/flowdeck/pkg/persistence/memory"
	"github.com/barela/flowdeck/pkg/protocol"
)

// scriptedRunner returns canned outcomes per tool ID and records the order of
// invocations.
type scriptedRunner struct {
	failures map[string]string
	invoked  []string
}

func (r *scriptedRunner) Invoke(_ context.Context, toolID string, _ map[string]any) (*protocol.ToolResult, error) {
	r.invoked = append(r.invoked, toolID)

	if message, ok := r.failures[toolID]; ok {
		return &protocol.ToolResult{Success: false, Error: message}, nil
	}

	return &protocol.ToolResult{Success: true, Data: map[string]any{"tool": toolID}}, nil
}

type recordingTracker struct {
	recorded []string
}

func (t *recordingTracker) RecordUsage(_ context.Context, toolID string) {
	t.recorded = append(t.recorded, toolID)
}

func testWorkflow(id string, steps ...*models.Step) *models.Workflow {
	return &models.Workflow{
		ID:      id,
		Name:    "test workflow",
		Steps:   steps,
		Enabled: true,
	}
}

func step(toolID string, order int, autoAdvance bool) *models.Step {
	return &models.Step{ToolID: toolID, Order: order, AutoAdvance: autoAdvance}
}

func newTestEngine(t *testing.T, runner protocol.ToolRunner, tracker protocol.UsageTracker, workflows ...*models.Workflow) (*Engine, persistence.Persistence) {
	t.Helper()

	store := memory.NewPersistence()
	for _, workflow := range workflows {
		require.NoError(t, store.WorkflowRepository().Save(context.Background(), workflow))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	fakeClock := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	return NewEngine(logger, store, runner, tracker, nil, fakeClock), store
}

func TestExecute_UnknownWorkflow(t *testing.T) {
	engine, _ := newTestEngine(t, &scriptedRunner{}, &recordingTracker{})

	_, err := engine.Execute(context.Background(), "missing", ExecuteOptions{AutoAdvance: true})
	require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestExecute_DisabledWorkflow(t *testing.T) {
	workflow := testWorkflow("wf-disabled", step("log", 0, true))
	workflow.Enabled = false

	engine, _ := newTestEngine(t, &scriptedRunner{}, &recordingTracker{}, workflow)

	_, err := engine.Execute(context.Background(), "wf-disabled", ExecuteOptions{AutoAdvance: true})
	require.ErrorIs(t, err, ErrWorkflowDisabled)
}

func TestExecute_AllStepsAutoAdvance(t *testing.T) {
	runner := &scriptedRunner{}
	tracker := &recordingTracker{}
	workflow := testWorkflow("wf-1",
		step("a", 0, true),
		step("b", 1, true),
		step("c", 2, true),
	)

	engine, store := newTestEngine(t, runner, tracker, workflow)

	execution, err := engine.Execute(context.Background(), "wf-1", ExecuteOptions{AutoAdvance: true})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, []string{"a", "b", "c"}, runner.invoked)
	assert.Equal(t, []string{"a", "b", "c"}, tracker.recorded)
	assert.Equal(t, 3, execution.CurrentStepIndex)
	assert.NotNil(t, execution.CompletedAt)
	assert.NotNil(t, execution.TotalDuration)

	for _, result := range execution.StepResults {
		assert.Equal(t, models.StepStatusCompleted, result.Status)
	}

	stored, err := store.ExecutionRepository().GetByID(context.Background(), execution.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
}

func TestExecute_PausesWhenStepDoesNotAutoAdvance(t *testing.T) {
	runner := &scriptedRunner{}
	workflow := testWorkflow("wf-2",
		step("a", 0, false),
		step("b", 1, true),
	)

	engine, _ := newTestEngine(t, runner, &recordingTracker{}, workflow)

	execution, err := engine.Execute(context.Background(), "wf-2", ExecuteOptions{AutoAdvance: true})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusPaused, execution.Status)
	assert.Equal(t, 1, execution.CurrentStepIndex)
	assert.NotNil(t, execution.PausedAt)
	assert.Equal(t, models.StepStatusCompleted, execution.StepResults[0].Status)
	assert.Equal(t, models.StepStatusPending, execution.StepResults[1].Status)
	assert.Equal(t, []string{"a"}, runner.invoked)

	resumed := engine.Resume(context.Background(), execution.ID)
	assert.True(t, resumed)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Nil(t, execution.PausedAt)
	assert.Equal(t, models.StepStatusCompleted, execution.StepResults[1].Status)
	assert.Equal(t, []string{"a", "b"}, runner.invoked)
}

func TestExecute_ExecutionLevelAutoAdvanceDominates(t *testing.T) {
	runner := &scriptedRunner{}
	workflow := testWorkflow("wf-3",
		step("a", 0, true),
		step("b", 1, true),
	)

	engine, _ := newTestEngine(t, runner, &recordingTracker{}, workflow)

	execution, err := engine.Execute(context.Background(), "wf-3", ExecuteOptions{AutoAdvance: false})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusPaused, execution.Status)
	assert.Equal(t, 1, execution.CurrentStepIndex)
	assert.Equal(t, []string{"a"}, runner.invoked)
}

func TestExecute_StepFailureStopsExecution(t *testing.T) {
	runner := &scriptedRunner{failures: map[string]string{"b": "connection refused"}}
	tracker := &recordingTracker{}
	workflow := testWorkflow("wf-4",
		step("a", 0, true),
		step("b", 1, true),
		step("c", 2, true),
	)

	engine, _ := newTestEngine(t, runner, tracker, workflow)

	execution, err := engine.Execute(context.Background(), "wf-4", ExecuteOptions{AutoAdvance: true})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, "Step 2 failed: connection refused", execution.Error)
	assert.NotNil(t, execution.CompletedAt)
	assert.Nil(t, execution.TotalDuration)

	assert.Equal(t, models.StepStatusCompleted, execution.StepResults[0].Status)
	assert.Equal(t, models.StepStatusFailed, execution.StepResults[1].Status)
	assert.Equal(t, "connection refused", execution.StepResults[1].Error)
	assert.Equal(t, models.StepStatusPending, execution.StepResults[2].Status)

	assert.Equal(t, []string{"a", "b"}, runner.invoked)
	assert.Equal(t, []string{"a"}, tracker.recorded)
}

func TestPause_OnlyFromRunning(t *testing.T) {
	runner := &scriptedRunner{}
	workflow := testWorkflow("wf-5", step("a", 0, true))

	engine, _ := newTestEngine(t, runner, &recordingTracker{}, workflow)

	execution, err := engine.Execute(context.Background(), "wf-5", ExecuteOptions{AutoAdvance: true})
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	assert.False(t, engine.Pause(context.Background(), execution.ID))
	assert.False(t, engine.Pause(context.Background(), "missing"))
}

func TestResume_OnlyFromPaused(t *testing.T) {
	runner := &scriptedRunner{}
	workflow := testWorkflow("wf-6", step("a", 0, true))

	engine, _ := newTestEngine(t, runner, &recordingTracker{}, workflow)

	execution, err := engine.Execute(context.Background(), "wf-6", ExecuteOptions{AutoAdvance: true})
	require.NoError(t, err)

	assert.False(t, engine.Resume(context.Background(), execution.ID))
	assert.False(t, engine.Resume(context.Background(), "missing"))
}

func TestCancel(t *testing.T) {
	runner := &scriptedRunner{}
	workflow := testWorkflow("wf-7",
		step("a", 0, false),
		step("b", 1, true),
	)

	engine, _ := newTestEngine(t, runner, &recordingTracker{}, workflow)

	execution, err := engine.Execute(context.Background(), "wf-7", ExecuteOptions{AutoAdvance: true})
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusPaused, execution.Status)

	assert.True(t, engine.Cancel(context.Background(), execution.ID))
	assert.Equal(t, models.ExecutionStatusCancelled, execution.Status)
	assert.NotNil(t, execution.CompletedAt)

	// Terminal executions cannot be cancelled again or resumed.
	assert.False(t, engine.Cancel(context.Background(), execution.ID))
	assert.False(t, engine.Resume(context.Background(), execution.ID))
	assert.Equal(t, []string{"a"}, runner.invoked)
}

func TestCancel_UnknownExecution(t *testing.T) {
	engine, _ := newTestEngine(t, &scriptedRunner{}, &recordingTracker{})

	assert.False(t, engine.Cancel(context.Background(), "missing"))
}

func TestExecute_SnapshotIgnoresLaterDefinitionEdits(t *testing.T) {
	runner := &scriptedRunner{}
	workflow := testWorkflow("wf-8",
		step("a", 0, false),
		step("b", 1, true),
	)

	engine, store := newTestEngine(t, runner, &recordingTracker{}, workflow)

	execution, err := engine.Execute(context.Background(), "wf-8", ExecuteOptions{AutoAdvance: true})
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusPaused, execution.Status)

	// Replace the definition's second step while the execution is paused.
	workflow.Steps[1] = step("z", 1, true)
	require.NoError(t, store.WorkflowRepository().Save(context.Background(), workflow))

	require.True(t, engine.Resume(context.Background(), execution.ID))
	assert.Equal(t, []string{"a", "b"}, runner.invoked)
}

func TestGetWorkflowExecutions(t *testing.T) {
	runner := &scriptedRunner{failures: map[string]string{"bad": "boom"}}
	ok := testWorkflow("wf-ok", step("a", 0, true))
	bad := testWorkflow("wf-bad", step("bad", 0, true))

	engine, _ := newTestEngine(t, runner, &recordingTracker{}, ok, bad)

	for range 2 {
		_, err := engine.Execute(context.Background(), "wf-ok", ExecuteOptions{AutoAdvance: true})
		require.NoError(t, err)
	}

	_, err := engine.Execute(context.Background(), "wf-bad", ExecuteOptions{AutoAdvance: true})
	require.NoError(t, err)

	executions, err := engine.GetWorkflowExecutions(context.Background(), "wf-ok")
	require.NoError(t, err)
	assert.Len(t, executions, 2)

	all, err := engine.GetExecutions(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

type failingRunner struct{}

func (failingRunner) Invoke(_ context.Context, _ string, _ map[string]any) (*protocol.ToolResult, error) {
	return nil, errors.New("runner unavailable")
}

func TestExecute_RunnerErrorBecomesStepFailure(t *testing.T) {
	workflow := testWorkflow("wf-9", step("a", 0, true))

	engine, _ := newTestEngine(t, failingRunner{}, &recordingTracker{}, workflow)

	execution, err := engine.Execute(context.Background(), "wf-9", ExecuteOptions{AutoAdvance: true})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, "Step 1 failed: runner unavailable", execution.Error)
	assert.Equal(t, models.StepStatusFailed, execution.StepResults[0].Status)
}

// pauseMidStepRunner pauses the execution from inside the step and then
// reports the step as failed, simulating a pause that lands while a tool is
// in flight.
type pauseMidStepRunner struct {
	engine *Engine
	store  persistence.Persistence
	count  int
}

func (r *pauseMidStepRunner) Invoke(ctx context.Context, _ string, _ map[string]any) (*protocol.ToolResult, error) {
	r.count++

	executions, err := r.store.ExecutionRepository().GetAll(ctx)
	if err != nil {
		return nil, err
	}

	for _, execution := range executions {
		r.engine.Pause(ctx, execution.ID)
	}

	return &protocol.ToolResult{Success: false, Error: "disk full"}, nil
}

func TestResume_DoesNotRerunStepFailedWhilePaused(t *testing.T) {
	store := memory.NewPersistence()
	workflow := testWorkflow("wf-mid", step("a", 0, true))
	require.NoError(t, store.WorkflowRepository().Save(context.Background(), workflow))

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	fakeClock := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	runner := &pauseMidStepRunner{store: store}
	engine := NewEngine(logger, store, runner, &recordingTracker{}, nil, fakeClock)
	runner.engine = engine

	execution, err := engine.Execute(context.Background(), "wf-mid", ExecuteOptions{AutoAdvance: true})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusPaused, execution.Status)
	assert.Equal(t, models.StepStatusFailed, execution.StepResults[0].Status)
	assert.Equal(t, 1, runner.count)

	require.True(t, engine.Resume(context.Background(), execution.ID))

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, "Step 1 failed: disk full", execution.Error)
	assert.Equal(t, 1, runner.count)
}

func TestExecute_EmitsStepSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	workflow := testWorkflow("wf-traced", step("a", 0, true), step("bad", 1, true))
	runner := &scriptedRunner{failures: map[string]string{"bad": "boom"}}

	engine, _ := newTestEngine(t, runner, &recordingTracker{}, workflow)

	_, err := engine.Execute(context.Background(), "wf-traced", ExecuteOptions{AutoAdvance: true})
	require.NoError(t, err)

	var stepSpans []sdktrace.ReadOnlySpan

	executeSeen := false

	for _, span := range recorder.Ended() {
		switch span.Name() {
		case "engine.step":
			stepSpans = append(stepSpans, span)
		case "engine.execute":
			executeSeen = true
		}
	}

	assert.True(t, executeSeen)
	require.Len(t, stepSpans, 2)

	var toolIDs []string

	for _, span := range stepSpans {
		for _, attr := range span.Attributes() {
			if string(attr.Key) == otelhelper.ToolIDKey {
				toolIDs = append(toolIDs, attr.Value.AsString())
			}
		}
	}

	assert.Equal(t, []string{"a", "bad"}, toolIDs)

	failed := stepSpans[1]
	assert.Equal(t, codes.Error, failed.Status().Code)
	assert.Equal(t, "boom", failed.Status().Description)
}
