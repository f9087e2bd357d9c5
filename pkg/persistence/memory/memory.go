// Package memory provides an in-memory persistence implementation, used by
// tests and for "memory://" storage URLs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/barela/flowdeck/pkg/models"
	"github.com/barela/flowdeck/pkg/persistence"
)

// Persistence implements persistence.Persistence with process-local maps.
// Records are copied on the way in and out so callers never share memory with
// the store.
type Persistence struct {
	workflowRepo  *workflowRepository
	executionRepo *executionRepository
	scheduleRepo  *scheduleRepository
	triggerRepo   *triggerRepository
}

// NewPersistence creates an empty in-memory persistence.
func NewPersistence() *Persistence {
	return &Persistence{
		workflowRepo:  &workflowRepository{records: make(map[string]*models.Workflow)},
		executionRepo: &executionRepository{records: make(map[string]*models.Execution)},
		scheduleRepo:  &scheduleRepository{records: make(map[string]*models.Schedule)},
		triggerRepo:   &triggerRepository{records: make(map[string]*models.Trigger)},
	}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return p.scheduleRepo
}

func (p *Persistence) TriggerRepository() persistence.TriggerRepository {
	return p.triggerRepo
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// copyRecord deep-copies a record through its JSON form, the same shape every
// other driver round-trips through.
func copyRecord[T any](record *T) (*T, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to copy record: %w", err)
	}

	copied := new(T)
	if err := json.Unmarshal(data, copied); err != nil {
		return nil, fmt.Errorf("failed to copy record: %w", err)
	}

	return copied, nil
}

type workflowRepository struct {
	mu      sync.RWMutex
	records map[string]*models.Workflow
}

func (r *workflowRepository) GetAll(_ context.Context) ([]*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(r.records))

	for _, workflow := range r.records {
		copied, err := copyRecord(workflow)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, copied)
	}

	return workflows, nil
}

func (r *workflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflow, ok := r.records[id]
	if !ok {
		return nil, nil
	}

	return copyRecord(workflow)
}

func (r *workflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	copied, err := copyRecord(workflow)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[workflow.ID] = copied

	return nil
}

func (r *workflowRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return persistence.NewStoreError("Delete", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	delete(r.records, id)

	return nil
}

type executionRepository struct {
	mu      sync.RWMutex
	records map[string]*models.Execution
}

func (r *executionRepository) GetAll(_ context.Context) ([]*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executions := make([]*models.Execution, 0, len(r.records))

	for _, execution := range r.records {
		copied, err := copyRecord(execution)
		if err != nil {
			return nil, err
		}

		executions = append(executions, copied)
	}

	return executions, nil
}

func (r *executionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	execution, ok := r.records[id]
	if !ok {
		return nil, nil
	}

	return copyRecord(execution)
}

func (r *executionRepository) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	executions := make([]*models.Execution, 0)

	for _, execution := range all {
		if execution.WorkflowID == workflowID {
			executions = append(executions, execution)
		}
	}

	return executions, nil
}

func (r *executionRepository) Save(_ context.Context, execution *models.Execution) error {
	copied, err := copyRecord(execution)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[execution.ID] = copied

	return nil
}

type scheduleRepository struct {
	mu      sync.RWMutex
	records map[string]*models.Schedule
}

func (r *scheduleRepository) GetAll(_ context.Context) ([]*models.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schedules := make([]*models.Schedule, 0, len(r.records))

	for _, schedule := range r.records {
		copied, err := copyRecord(schedule)
		if err != nil {
			return nil, err
		}

		schedules = append(schedules, copied)
	}

	return schedules, nil
}

func (r *scheduleRepository) GetByID(_ context.Context, id string) (*models.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schedule, ok := r.records[id]
	if !ok {
		return nil, nil
	}

	return copyRecord(schedule)
}

func (r *scheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	copied, err := copyRecord(schedule)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[schedule.ID] = copied

	return nil
}

func (r *scheduleRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return persistence.NewStoreError("Delete", "schedule", id, persistence.ErrScheduleNotFound)
	}

	delete(r.records, id)

	return nil
}

type triggerRepository struct {
	mu      sync.RWMutex
	records map[string]*models.Trigger
}

func (r *triggerRepository) GetAll(_ context.Context) ([]*models.Trigger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	triggers := make([]*models.Trigger, 0, len(r.records))

	for _, trigger := range r.records {
		copied, err := copyRecord(trigger)
		if err != nil {
			return nil, err
		}

		triggers = append(triggers, copied)
	}

	return triggers, nil
}

func (r *triggerRepository) GetByID(_ context.Context, id string) (*models.Trigger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	trigger, ok := r.records[id]
	if !ok {
		return nil, nil
	}

	return copyRecord(trigger)
}

func (r *triggerRepository) GetByType(ctx context.Context, triggerType models.TriggerType) ([]*models.Trigger, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	triggers := make([]*models.Trigger, 0)

	for _, trigger := range all {
		if trigger.Type == triggerType {
			triggers = append(triggers, trigger)
		}
	}

	return triggers, nil
}

func (r *triggerRepository) Save(_ context.Context, trigger *models.Trigger) error {
	copied, err := copyRecord(trigger)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[trigger.ID] = copied

	return nil
}

func (r *triggerRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return persistence.NewStoreError("Delete", "trigger", id, persistence.ErrTriggerNotFound)
	}

	delete(r.records, id)

	return nil
}
