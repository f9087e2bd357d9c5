// Package engine drives workflow executions through their state machine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/barela/flowdeck/pkg/eventbus"
	"github.com/barela/flowdeck/pkg/events"
	"github.com/barela/flowdeck/pkg/models"
	"github.com/barela/flowdeck/pkg/otelhelper"
	"github.com/barela/flowdeck/pkg/persistence"
	"github.com/barela/flowdeck/pkg/protocol"
)

// ErrWorkflowDisabled is returned by Execute when the workflow exists but is
// not enabled.
var ErrWorkflowDisabled = errors.New("workflow is disabled")

// ExecuteOptions controls how a new execution is created.
type ExecuteOptions struct {
	// AutoAdvance is the execution-level flag. When false the engine pauses
	// after every step, regardless of the step's own flag.
	AutoAdvance bool
	Variables   map[string]any
	Source      models.ExecutionSource
}

// Engine runs workflow executions. All mutations to a given execution are
// serialized through a per-execution lock, so schedule firings, trigger
// firings, and manual calls can interleave safely.
type Engine struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	runner      protocol.ToolRunner
	tracker     protocol.UsageTracker
	eventBus    eventbus.EventPublisher
	clock       protocol.Clock
	tracer      trace.Tracer

	mu         sync.Mutex
	executions map[string]*models.Execution
	locks      map[string]*sync.Mutex
}

func NewEngine(
	logger *slog.Logger,
	store persistence.Persistence,
	runner protocol.ToolRunner,
	tracker protocol.UsageTracker,
	eventBus eventbus.EventPublisher,
	clk protocol.Clock,
) *Engine {
	return &Engine{
		logger:      logger.With("module", "engine"),
		persistence: store,
		runner:      runner,
		tracker:     tracker,
		eventBus:    eventBus,
		clock:       clk,
		tracer:      otel.Tracer("flowdeck/engine"),
		executions:  make(map[string]*models.Execution),
		locks:       make(map[string]*sync.Mutex),
	}
}

// Execute snapshots the workflow's steps, creates a new execution, and drives
// it synchronously until it completes, fails, or pauses. Step failures are
// recorded on the returned execution rather than returned as an error; the
// error return covers only an unresolvable workflow.
func (e *Engine) Execute(ctx context.Context, workflowID string, opts ExecuteOptions) (*models.Execution, error) {
	workflow, err := e.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	if workflow == nil {
		return nil, persistence.ErrWorkflowNotFound
	}

	if !workflow.Enabled {
		return nil, ErrWorkflowDisabled
	}

	source := opts.Source
	if source == "" {
		source = models.ExecutionSourceManual
	}

	execution := models.NewExecution(uuid.New().String(), workflow, opts.AutoAdvance, opts.Variables, source)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.execute",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
	)
	defer span.End()

	lock := e.lockFor(execution.ID)
	lock.Lock()

	e.mu.Lock()
	e.executions[execution.ID] = execution
	e.mu.Unlock()

	execution.Status = models.ExecutionStatusRunning
	execution.StartedAt = e.clock.Now()
	e.persist(ctx, execution)
	lock.Unlock()

	e.publish(ctx, execution.WorkflowID, events.ExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		TriggeredBy: string(source),
	})

	e.logger.InfoContext(ctx, "Execution started",
		"execution_id", execution.ID,
		"workflow_id", workflowID,
		"triggered_by", source,
	)

	e.drive(ctx, execution)

	return execution, nil
}

// Pause moves a running execution to paused. Returns false when the execution
// does not exist or is not currently running. A paused execution stops driving
// at the next step boundary.
func (e *Engine) Pause(ctx context.Context, executionID string) bool {
	execution := e.lookup(ctx, executionID)
	if execution == nil {
		return false
	}

	lock := e.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	if execution.Status != models.ExecutionStatusRunning {
		return false
	}

	now := e.clock.Now()
	execution.Status = models.ExecutionStatusPaused
	execution.PausedAt = &now
	e.persist(ctx, execution)

	e.publish(ctx, execution.WorkflowID, events.ExecutionPaused{
		BaseEvent:   events.NewBaseEvent(events.ExecutionPausedEvent, execution.WorkflowID),
		ExecutionID: executionID,
		StepIndex:   execution.CurrentStepIndex,
	})

	return true
}

// Resume re-enters the step loop of a paused execution at its current step
// index. Returns false when the execution does not exist or is not paused.
func (e *Engine) Resume(ctx context.Context, executionID string) bool {
	execution := e.lookup(ctx, executionID)
	if execution == nil {
		return false
	}

	lock := e.lockFor(executionID)
	lock.Lock()

	if execution.Status != models.ExecutionStatusPaused {
		lock.Unlock()

		return false
	}

	execution.Status = models.ExecutionStatusRunning
	execution.PausedAt = nil
	e.persist(ctx, execution)
	lock.Unlock()

	e.publish(ctx, execution.WorkflowID, events.ExecutionResumed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionResumedEvent, execution.WorkflowID),
		ExecutionID: executionID,
		StepIndex:   execution.CurrentStepIndex,
	})

	e.drive(ctx, execution)

	return true
}

// Cancel moves a running or paused execution to cancelled. Returns false when
// the execution does not exist or is already terminal. An in-flight tool
// invocation is not interrupted; no new step starts after cancellation.
func (e *Engine) Cancel(ctx context.Context, executionID string) bool {
	execution := e.lookup(ctx, executionID)
	if execution == nil {
		return false
	}

	lock := e.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	if !execution.Status.CanTransitionTo(models.ExecutionStatusCancelled) {
		return false
	}

	now := e.clock.Now()
	execution.Status = models.ExecutionStatusCancelled
	execution.CompletedAt = &now
	execution.PausedAt = nil
	e.persist(ctx, execution)

	e.publish(ctx, execution.WorkflowID, events.ExecutionCancelled{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCancelledEvent, execution.WorkflowID),
		ExecutionID: executionID,
	})

	return true
}

// GetExecution returns a single execution, or nil when unknown.
func (e *Engine) GetExecution(ctx context.Context, executionID string) *models.Execution {
	return e.lookup(ctx, executionID)
}

// GetExecutions returns all executions.
func (e *Engine) GetExecutions(ctx context.Context) ([]*models.Execution, error) {
	return e.persistence.ExecutionRepository().GetAll(ctx)
}

// GetWorkflowExecutions returns the execution history for one workflow.
func (e *Engine) GetWorkflowExecutions(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	return e.persistence.ExecutionRepository().GetByWorkflow(ctx, workflowID)
}

// drive runs the step loop from the execution's current index until the
// execution completes, fails, or stops being running. Each step executes
// outside the per-execution lock so Pause and Cancel stay responsive; their
// effect is observed at the next step boundary.
func (e *Engine) drive(ctx context.Context, execution *models.Execution) {
	lock := e.lockFor(execution.ID)

	for {
		lock.Lock()

		if execution.Status != models.ExecutionStatusRunning {
			lock.Unlock()

			return
		}

		if execution.CurrentStepIndex >= len(execution.Steps) {
			e.complete(ctx, execution)
			lock.Unlock()

			return
		}

		index := execution.CurrentStepIndex
		step := execution.Steps[index]
		result := execution.StepResults[index]

		// A failure recorded while the execution sat paused must not be
		// re-run; resuming surfaces it as the execution's failure instead.
		if result.Status == models.StepStatusFailed {
			e.fail(ctx, execution, index, result.Error)
			lock.Unlock()

			return
		}

		started := e.clock.Now()
		result.Status = models.StepStatusRunning
		result.StartedAt = &started
		lock.Unlock()

		stepCtx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.step",
			attribute.String(otelhelper.WorkflowIDKey, execution.WorkflowID),
			attribute.String(otelhelper.ExecutionIDKey, execution.ID),
			attribute.Int(otelhelper.StepIndexKey, index),
			attribute.String(otelhelper.ToolIDKey, step.ToolID),
		)

		toolResult, invokeErr := e.runner.Invoke(stepCtx, step.ToolID, execution.Variables)

		switch {
		case invokeErr != nil:
			otelhelper.SetError(span, invokeErr)
		case !toolResult.Success:
			otelhelper.SetError(span, errors.New(toolResult.Error))
		}

		span.End()

		lock.Lock()

		finished := e.clock.Now()
		duration := finished.Sub(*result.StartedAt)
		result.CompletedAt = &finished
		result.Duration = &duration

		if invokeErr != nil || !toolResult.Success {
			message := ""
			if invokeErr != nil {
				message = invokeErr.Error()
			} else {
				message = toolResult.Error
			}

			result.Status = models.StepStatusFailed
			result.Error = message

			// Pause or cancel may have landed while the tool ran; the step
			// outcome is still recorded, but the status they set stands.
			if execution.Status == models.ExecutionStatusRunning {
				e.fail(ctx, execution, index, message)
			} else {
				e.persist(ctx, execution)
			}

			lock.Unlock()

			return
		}

		result.Status = models.StepStatusCompleted
		result.Output = toolResult.Data
		execution.CurrentStepIndex = index + 1

		e.tracker.RecordUsage(ctx, step.ToolID)

		if execution.Status != models.ExecutionStatusRunning {
			e.persist(ctx, execution)
			lock.Unlock()

			return
		}

		if execution.CurrentStepIndex >= len(execution.Steps) {
			e.complete(ctx, execution)
			lock.Unlock()

			return
		}

		if !step.AutoAdvance || !execution.AutoAdvance {
			e.pauseAfterStep(ctx, execution, index)
			lock.Unlock()

			return
		}

		e.persist(ctx, execution)
		waitTime := step.WaitTime
		lock.Unlock()

		if waitTime > 0 {
			e.clock.Sleep(ctx, time.Duration(waitTime)*time.Second)
		}
	}
}

// complete marks a running execution completed and records its total duration.
// Caller holds the execution lock.
func (e *Engine) complete(ctx context.Context, execution *models.Execution) {
	now := e.clock.Now()
	total := now.Sub(execution.StartedAt)
	execution.Status = models.ExecutionStatusCompleted
	execution.CompletedAt = &now
	execution.TotalDuration = &total
	e.persist(ctx, execution)

	e.publish(ctx, execution.WorkflowID, events.ExecutionCompleted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		Duration:    total,
	})

	e.logger.InfoContext(ctx, "Execution completed",
		"execution_id", execution.ID,
		"workflow_id", execution.WorkflowID,
		"duration", total,
	)
}

// fail moves the execution to failed after a step failure. Remaining steps
// stay pending. Caller holds the execution lock and has already marked the
// step result.
func (e *Engine) fail(ctx context.Context, execution *models.Execution, index int, message string) {
	now := e.clock.Now()
	execution.Status = models.ExecutionStatusFailed
	execution.Error = fmt.Sprintf("Step %d failed: %s", index+1, message)
	execution.CompletedAt = &now
	e.persist(ctx, execution)

	e.publish(ctx, execution.WorkflowID, events.ExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		Error:       execution.Error,
		StepIndex:   index,
	})

	e.logger.WarnContext(ctx, "Execution failed",
		"execution_id", execution.ID,
		"workflow_id", execution.WorkflowID,
		"step_index", index,
		"error", message,
	)
}

// pauseAfterStep pauses the execution after a completed step so it can be
// resumed at the next index later. Caller holds the execution lock.
func (e *Engine) pauseAfterStep(ctx context.Context, execution *models.Execution, completedIndex int) {
	now := e.clock.Now()
	execution.Status = models.ExecutionStatusPaused
	execution.PausedAt = &now
	e.persist(ctx, execution)

	e.publish(ctx, execution.WorkflowID, events.ExecutionPaused{
		BaseEvent:   events.NewBaseEvent(events.ExecutionPausedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		StepIndex:   completedIndex,
	})
}

// lookup returns the engine's live copy of an execution, falling back to the
// store for executions from earlier process lifetimes.
func (e *Engine) lookup(ctx context.Context, executionID string) *models.Execution {
	e.mu.Lock()
	execution, ok := e.executions[executionID]
	e.mu.Unlock()

	if ok {
		return execution
	}

	stored, err := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to load execution", "execution_id", executionID, "error", err)

		return nil
	}

	if stored == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.executions[executionID]; ok {
		return existing
	}

	e.executions[executionID] = stored

	return stored
}

func (e *Engine) lockFor(executionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[executionID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[executionID] = lock
	}

	return lock
}

// persist writes the whole execution record. Persistence failures are logged
// and do not interrupt the state machine.
func (e *Engine) persist(ctx context.Context, execution *models.Execution) {
	if err := e.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		e.logger.ErrorContext(ctx, "Failed to persist execution",
			"execution_id", execution.ID,
			"error", err,
		)
	}
}

func (e *Engine) publish(ctx context.Context, workflowID string, event events.Event) {
	if e.eventBus == nil {
		return
	}

	if err := e.eventBus.Publish(ctx, workflowID, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"workflow_id", workflowID,
			"error", err,
		)
	}
}
