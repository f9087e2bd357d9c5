// Package triggers binds external events to workflow invocations.
package triggers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/barela/flowdeck/pkg/engine"
	"github.com/barela/flowdeck/pkg/eventbus"
	"github.com/barela/flowdeck/pkg/events"
	"github.com/barela/flowdeck/pkg/models"
	"github.com/barela/flowdeck/pkg/otelhelper"
	"github.com/barela/flowdeck/pkg/persistence"
	"github.com/barela/flowdeck/pkg/protocol"
)

// Executor starts workflow executions. Satisfied by engine.Engine.
type Executor interface {
	Execute(ctx context.Context, workflowID string, opts engine.ExecuteOptions) (*models.Execution, error)
}

// Registry evaluates incoming events against registered triggers and fires
// workflow executions for the ones that match.
type Registry struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	executor    Executor
	eventBus    eventbus.EventPublisher
	clock       protocol.Clock
	validator   *validator.Validate
	tracer      trace.Tracer
}

func NewRegistry(
	logger *slog.Logger,
	store persistence.Persistence,
	executor Executor,
	eventBus eventbus.EventPublisher,
	clk protocol.Clock,
) *Registry {
	return &Registry{
		logger:      logger.With("module", "trigger_registry"),
		persistence: store,
		executor:    executor,
		eventBus:    eventBus,
		clock:       clk,
		validator:   validator.New(),
		tracer:      otel.Tracer("flowdeck/triggers"),
	}
}

// Create validates and persists a new trigger.
func (r *Registry) Create(ctx context.Context, trigger *models.Trigger) error {
	if trigger.ID == "" {
		trigger.ID = uuid.New().String()
	}

	now := r.clock.Now()
	trigger.CreatedAt = now
	trigger.UpdatedAt = now

	if err := r.validator.Struct(trigger); err != nil {
		return fmt.Errorf("invalid trigger: %w", err)
	}

	if err := r.persistence.TriggerRepository().Save(ctx, trigger); err != nil {
		return fmt.Errorf("failed to persist trigger: %w", err)
	}

	r.logger.InfoContext(ctx, "Trigger created",
		"trigger_id", trigger.ID,
		"workflow_id", trigger.WorkflowID,
		"type", trigger.Type,
	)

	return nil
}

// Delete removes a trigger.
func (r *Registry) Delete(ctx context.Context, triggerID string) error {
	return r.persistence.TriggerRepository().Delete(ctx, triggerID)
}

// GetTriggers returns all triggers.
func (r *Registry) GetTriggers(ctx context.Context) ([]*models.Trigger, error) {
	return r.persistence.TriggerRepository().GetAll(ctx)
}

// GetTrigger returns one trigger, or nil when unknown.
func (r *Registry) GetTrigger(ctx context.Context, triggerID string) (*models.Trigger, error) {
	return r.persistence.TriggerRepository().GetByID(ctx, triggerID)
}

// SetEnabled flips a trigger's enabled flag.
func (r *Registry) SetEnabled(ctx context.Context, triggerID string, enabled bool) error {
	trigger, err := r.persistence.TriggerRepository().GetByID(ctx, triggerID)
	if err != nil {
		return fmt.Errorf("failed to load trigger %s: %w", triggerID, err)
	}

	if trigger == nil {
		return persistence.ErrTriggerNotFound
	}

	trigger.Enabled = enabled
	trigger.UpdatedAt = r.clock.Now()

	return r.persistence.TriggerRepository().Save(ctx, trigger)
}

// Evaluate checks all enabled triggers of the event's type against the
// payload and fires an execution for each match, updating the trigger's
// counters. It returns the executions it started.
func (r *Registry) Evaluate(ctx context.Context, eventType models.TriggerType, payload map[string]any) ([]*models.Execution, error) {
	triggers, err := r.persistence.TriggerRepository().GetByType(ctx, eventType)
	if err != nil {
		return nil, fmt.Errorf("failed to load triggers of type %s: %w", eventType, err)
	}

	var fired []*models.Execution

	for _, trigger := range triggers {
		if !trigger.Enabled || !trigger.Matches(payload) {
			continue
		}

		fireCtx, span := otelhelper.StartSpan(ctx, r.tracer, "triggers.fire",
			attribute.String(otelhelper.TriggerIDKey, trigger.ID),
			attribute.String(otelhelper.TriggerTypeKey, string(trigger.Type)),
			attribute.String(otelhelper.WorkflowIDKey, trigger.WorkflowID),
		)

		execution, err := r.executor.Execute(fireCtx, trigger.WorkflowID, engine.ExecuteOptions{
			AutoAdvance: true,
			Variables:   payload,
			Source:      models.ExecutionSourceTrigger,
		})
		if err != nil {
			otelhelper.SetError(span, err)
			span.End()
			r.logger.ErrorContext(ctx, "Triggered execution could not start",
				"trigger_id", trigger.ID,
				"workflow_id", trigger.WorkflowID,
				"error", err,
			)

			continue
		}

		span.End()

		now := r.clock.Now()
		trigger.TriggerCount++
		trigger.LastTriggered = &now

		if err := r.persistence.TriggerRepository().Save(ctx, trigger); err != nil {
			r.logger.ErrorContext(ctx, "Failed to persist trigger after firing",
				"trigger_id", trigger.ID,
				"error", err,
			)
		}

		r.publishFired(ctx, trigger, execution)

		fired = append(fired, execution)
	}

	return fired, nil
}

// BindToolUsage subscribes the registry to tool.used events so tool_usage
// triggers fire whenever the engine records a tool invocation.
func (r *Registry) BindToolUsage(bus eventbus.EventSubscriber) error {
	return bus.Handle(events.ToolUsedEvent, func(ctx context.Context, event any) error {
		used, ok := event.(*events.ToolUsed)
		if !ok {
			return nil
		}

		_, err := r.Evaluate(ctx, models.TriggerTypeToolUsage, map[string]any{
			"tool_id": used.ToolID,
		})

		return err
	})
}

func (r *Registry) publishFired(ctx context.Context, trigger *models.Trigger, execution *models.Execution) {
	if r.eventBus == nil {
		return
	}

	event := events.TriggerFired{
		BaseEvent:   events.NewBaseEvent(events.TriggerFiredEvent, trigger.WorkflowID),
		TriggerID:   trigger.ID,
		ExecutionID: execution.ID,
	}

	if err := r.eventBus.Publish(ctx, trigger.WorkflowID, event); err != nil {
		r.logger.WarnContext(ctx, "Failed to publish trigger firing", "trigger_id", trigger.ID, "error", err)
	}
}
