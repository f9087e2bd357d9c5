// Package scheduler fires workflow executions at schedule due times.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

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

// Scheduler keeps one pending timer per enabled schedule and fires executions
// when the timer elapses. Timer arming goes through an injectable clock so
// tests can advance time deterministically.
type Scheduler struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	executor    Executor
	eventBus    eventbus.EventPublisher
	clock       protocol.Clock
	validator   *validator.Validate
	tracer      trace.Tracer

	mu     sync.Mutex
	timers map[string]protocol.Timer
}

func NewScheduler(
	logger *slog.Logger,
	store persistence.Persistence,
	executor Executor,
	eventBus eventbus.EventPublisher,
	clk protocol.Clock,
) *Scheduler {
	return &Scheduler{
		logger:      logger.With("module", "scheduler"),
		persistence: store,
		executor:    executor,
		eventBus:    eventBus,
		clock:       clk,
		validator:   validator.New(),
		tracer:      otel.Tracer("flowdeck/scheduler"),
		timers:      make(map[string]protocol.Timer),
	}
}

// Start arms timers for every enabled schedule in the store, computing a next
// run time for any schedule that lacks one.
func (s *Scheduler) Start(ctx context.Context) error {
	schedules, err := s.persistence.ScheduleRepository().GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	for _, schedule := range schedules {
		if !schedule.Enabled {
			continue
		}

		if schedule.NextRun == nil {
			if err := s.recomputeNextRun(ctx, schedule); err != nil {
				continue
			}

			if err := s.persistence.ScheduleRepository().Save(ctx, schedule); err != nil {
				s.logger.ErrorContext(ctx, "Failed to persist schedule", "schedule_id", schedule.ID, "error", err)
			}
		}

		s.arm(schedule)
	}

	s.logger.InfoContext(ctx, "Scheduler started", "schedules", len(schedules))

	return nil
}

// Stop cancels every pending timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

// Create validates a new schedule, computes its first run time, persists it,
// and arms its timer when enabled.
func (s *Scheduler) Create(ctx context.Context, schedule *models.Schedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}

	now := s.clock.Now()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	if err := s.validate(schedule); err != nil {
		return err
	}

	if schedule.Enabled {
		next, err := schedule.ComputeNextRun(now)
		if err != nil {
			return err
		}

		schedule.NextRun = &next
	}

	if err := s.persistence.ScheduleRepository().Save(ctx, schedule); err != nil {
		return fmt.Errorf("failed to persist schedule: %w", err)
	}

	if schedule.Enabled {
		s.arm(schedule)
	}

	s.logger.InfoContext(ctx, "Schedule created",
		"schedule_id", schedule.ID,
		"workflow_id", schedule.WorkflowID,
		"type", schedule.Type,
	)

	return nil
}

// Update persists changed schedule parameters and re-arms the timer with the
// new values, discarding the stale arm time.
func (s *Scheduler) Update(ctx context.Context, schedule *models.Schedule) error {
	existing, err := s.persistence.ScheduleRepository().GetByID(ctx, schedule.ID)
	if err != nil {
		return fmt.Errorf("failed to load schedule %s: %w", schedule.ID, err)
	}

	if existing == nil {
		return persistence.ErrScheduleNotFound
	}

	if err := s.validate(schedule); err != nil {
		return err
	}

	schedule.CreatedAt = existing.CreatedAt
	schedule.UpdatedAt = s.clock.Now()
	schedule.LastRun = existing.LastRun
	schedule.RunCount = existing.RunCount

	s.disarm(schedule.ID)

	if schedule.Enabled {
		next, err := schedule.ComputeNextRun(s.clock.Now())
		if err != nil {
			return err
		}

		schedule.NextRun = &next
	} else {
		schedule.NextRun = nil
	}

	if err := s.persistence.ScheduleRepository().Save(ctx, schedule); err != nil {
		return fmt.Errorf("failed to persist schedule: %w", err)
	}

	if schedule.Enabled {
		s.arm(schedule)
	}

	return nil
}

// Disable cancels the schedule's pending timer immediately so no orphan
// firing can occur, then persists the disabled state.
func (s *Scheduler) Disable(ctx context.Context, scheduleID string) error {
	schedule, err := s.persistence.ScheduleRepository().GetByID(ctx, scheduleID)
	if err != nil {
		return fmt.Errorf("failed to load schedule %s: %w", scheduleID, err)
	}

	if schedule == nil {
		return persistence.ErrScheduleNotFound
	}

	s.disarm(scheduleID)

	schedule.Enabled = false
	schedule.NextRun = nil
	schedule.UpdatedAt = s.clock.Now()

	return s.persistence.ScheduleRepository().Save(ctx, schedule)
}

// Enable recomputes the schedule's next run, persists it, and arms the timer.
func (s *Scheduler) Enable(ctx context.Context, scheduleID string) error {
	schedule, err := s.persistence.ScheduleRepository().GetByID(ctx, scheduleID)
	if err != nil {
		return fmt.Errorf("failed to load schedule %s: %w", scheduleID, err)
	}

	if schedule == nil {
		return persistence.ErrScheduleNotFound
	}

	next, err := schedule.ComputeNextRun(s.clock.Now())
	if err != nil {
		return err
	}

	schedule.Enabled = true
	schedule.NextRun = &next
	schedule.UpdatedAt = s.clock.Now()

	if err := s.persistence.ScheduleRepository().Save(ctx, schedule); err != nil {
		return fmt.Errorf("failed to persist schedule: %w", err)
	}

	s.arm(schedule)

	return nil
}

// Delete cancels the timer and removes the schedule.
func (s *Scheduler) Delete(ctx context.Context, scheduleID string) error {
	s.disarm(scheduleID)

	return s.persistence.ScheduleRepository().Delete(ctx, scheduleID)
}

// GetSchedules returns all schedules.
func (s *Scheduler) GetSchedules(ctx context.Context) ([]*models.Schedule, error) {
	return s.persistence.ScheduleRepository().GetAll(ctx)
}

// GetSchedule returns one schedule, or nil when unknown.
func (s *Scheduler) GetSchedule(ctx context.Context, scheduleID string) (*models.Schedule, error) {
	return s.persistence.ScheduleRepository().GetByID(ctx, scheduleID)
}

func (s *Scheduler) validate(schedule *models.Schedule) error {
	if err := s.validator.Struct(schedule); err != nil {
		return fmt.Errorf("%w: %w", models.ErrInvalidSchedule, err)
	}

	return schedule.Validate()
}

// arm starts the timer for the schedule's next run. A due time already in the
// past fires immediately.
func (s *Scheduler) arm(schedule *models.Schedule) {
	if schedule.NextRun == nil {
		return
	}

	delay := schedule.NextRun.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}

	scheduleID := schedule.ID

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[scheduleID]; ok {
		existing.Stop()
	}

	s.timers[scheduleID] = s.clock.AfterFunc(delay, func() {
		s.fire(context.Background(), scheduleID)
	})
}

func (s *Scheduler) disarm(scheduleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[scheduleID]; ok {
		timer.Stop()
		delete(s.timers, scheduleID)
	}
}

// fire runs the schedule's workflow, updates the run bookkeeping, and re-arms
// the timer. A failed execution is recorded on the execution itself and never
// stops the scheduler from rescheduling.
func (s *Scheduler) fire(ctx context.Context, scheduleID string) {
	schedule, err := s.persistence.ScheduleRepository().GetByID(ctx, scheduleID)
	if err != nil || schedule == nil {
		s.logger.ErrorContext(ctx, "Failed to load schedule for firing", "schedule_id", scheduleID, "error", err)

		return
	}

	if !schedule.Enabled {
		return
	}

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "scheduler.fire",
		attribute.String(otelhelper.ScheduleIDKey, schedule.ID),
		attribute.String(otelhelper.WorkflowIDKey, schedule.WorkflowID),
	)
	defer span.End()

	execution, err := s.executor.Execute(ctx, schedule.WorkflowID, engine.ExecuteOptions{
		AutoAdvance: true,
		Source:      models.ExecutionSourceSchedule,
	})
	if err != nil {
		otelhelper.SetError(span, err)
		s.logger.ErrorContext(ctx, "Scheduled execution could not start",
			"schedule_id", scheduleID,
			"workflow_id", schedule.WorkflowID,
			"error", err,
		)
	}

	now := s.clock.Now()
	schedule.LastRun = &now
	schedule.RunCount++

	if err := s.recomputeNextRun(ctx, schedule); err != nil {
		schedule.Enabled = false
		schedule.NextRun = nil
	}

	if err := s.persistence.ScheduleRepository().Save(ctx, schedule); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist schedule after firing", "schedule_id", scheduleID, "error", err)
	}

	if execution != nil {
		s.publishFired(ctx, schedule, execution)
	}

	if schedule.Enabled {
		s.arm(schedule)
	} else {
		s.disarm(scheduleID)
	}
}

// recomputeNextRun updates NextRun from the schedule's type. Exhausted
// schedules report an error so the caller can disable them.
func (s *Scheduler) recomputeNextRun(ctx context.Context, schedule *models.Schedule) error {
	next, err := schedule.ComputeNextRun(s.clock.Now())
	if err != nil {
		if !errors.Is(err, models.ErrScheduleExhausted) {
			s.logger.ErrorContext(ctx, "Failed to compute next run", "schedule_id", schedule.ID, "error", err)
		}

		return err
	}

	schedule.NextRun = &next

	return nil
}

func (s *Scheduler) publishFired(ctx context.Context, schedule *models.Schedule, execution *models.Execution) {
	if s.eventBus == nil {
		return
	}

	event := events.ScheduleFired{
		BaseEvent:   events.NewBaseEvent(events.ScheduleFiredEvent, schedule.WorkflowID),
		ScheduleID:  schedule.ID,
		ExecutionID: execution.ID,
		RunCount:    schedule.RunCount,
	}

	if err := s.eventBus.Publish(ctx, schedule.WorkflowID, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish schedule firing", "schedule_id", schedule.ID, "error", err)
	}
}
