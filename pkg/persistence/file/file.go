// Package file provides file-based persistence for workflows, executions,
// schedules and triggers.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/barela/flowdeck/pkg/models"
	"github.com/barela/flowdeck/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file
// system. Every record is stored as one versioned JSON blob.
type Persistence struct {
	root          string
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
	scheduleRepo  *ScheduleRepository
	triggerRepo   *TriggerRepository
}

// NewPersistence creates a new file persistence rooted at the given directory.
// A "file://" prefix on root is tolerated.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:          cleanRoot,
		workflowRepo:  NewWorkflowRepository(cleanRoot),
		executionRepo: NewExecutionRepository(cleanRoot),
		scheduleRepo:  NewScheduleRepository(cleanRoot),
		triggerRepo:   NewTriggerRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file persistence there is nothing
// to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return fp.scheduleRepo
}

func (fp *Persistence) TriggerRepository() persistence.TriggerRepository {
	return fp.triggerRepo
}

// WorkflowRepository handles workflow definition files.
type WorkflowRepository struct {
	store *store[models.Workflow]
}

// NewWorkflowRepository creates a workflow repository rooted at root.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{
		store: newStore[models.Workflow](root, "workflows", nil, persistence.ErrWorkflowNotFound),
	}
}

func (wr *WorkflowRepository) GetAll(_ context.Context) ([]*models.Workflow, error) {
	return wr.store.all()
}

func (wr *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	return wr.store.get(id)
}

func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	return wr.store.save(workflow.ID, workflow)
}

func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	return wr.store.delete(id)
}

// ExecutionRepository handles execution record files.
type ExecutionRepository struct {
	store *store[models.Execution]
}

// NewExecutionRepository creates an execution repository rooted at root.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{
		store: newStore[models.Execution](root, "executions", nil, persistence.ErrExecutionNotFound),
	}
}

func (er *ExecutionRepository) GetAll(_ context.Context) ([]*models.Execution, error) {
	return er.store.all()
}

func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	return er.store.get(id)
}

func (er *ExecutionRepository) GetByWorkflow(_ context.Context, workflowID string) ([]*models.Execution, error) {
	all, err := er.store.all()
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

func (er *ExecutionRepository) Save(_ context.Context, execution *models.Execution) error {
	return er.store.save(execution.ID, execution)
}

// ScheduleRepository handles schedule configuration files.
type ScheduleRepository struct {
	store *store[models.Schedule]
}

// NewScheduleRepository creates a schedule repository rooted at root.
func NewScheduleRepository(root string) *ScheduleRepository {
	return &ScheduleRepository{
		store: newStore[models.Schedule](root, "schedules", nil, persistence.ErrScheduleNotFound),
	}
}

func (sr *ScheduleRepository) GetAll(_ context.Context) ([]*models.Schedule, error) {
	return sr.store.all()
}

func (sr *ScheduleRepository) GetByID(_ context.Context, id string) (*models.Schedule, error) {
	return sr.store.get(id)
}

func (sr *ScheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	return sr.store.save(schedule.ID, schedule)
}

func (sr *ScheduleRepository) Delete(_ context.Context, id string) error {
	return sr.store.delete(id)
}

// TriggerRepository handles trigger configuration files.
type TriggerRepository struct {
	store *store[models.Trigger]
}

// NewTriggerRepository creates a trigger repository rooted at root.
func NewTriggerRepository(root string) *TriggerRepository {
	return &TriggerRepository{
		store: newStore[models.Trigger](root, "triggers", nil, persistence.ErrTriggerNotFound),
	}
}

func (tr *TriggerRepository) GetAll(_ context.Context) ([]*models.Trigger, error) {
	return tr.store.all()
}

func (tr *TriggerRepository) GetByID(_ context.Context, id string) (*models.Trigger, error) {
	return tr.store.get(id)
}

func (tr *TriggerRepository) GetByType(_ context.Context, triggerType models.TriggerType) ([]*models.Trigger, error) {
	all, err := tr.store.all()
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

func (tr *TriggerRepository) Save(_ context.Context, trigger *models.Trigger) error {
	return tr.store.save(trigger.ID, trigger)
}

func (tr *TriggerRepository) Delete(_ context.Context, id string) error {
	return tr.store.delete(id)
}
