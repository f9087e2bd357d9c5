// Package persistence provides the data storage abstraction for workflows,
// executions, schedules and triggers.
package persistence

import (
	"context"

	"github.com/barela/flowdeck/pkg/models"
)

// Persistence bundles the repositories over one storage medium. All writes
// are whole-object snapshot writes; there are no partial field updates.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	ScheduleRepository() ScheduleRepository
	TriggerRepository() TriggerRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions. GetByID returns (nil, nil)
// when the workflow does not exist; callers map that to a typed not-found.
type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores execution records. Terminal executions are
// immutable history; Save overwrites the whole record.
type ExecutionRepository interface {
	GetAll(ctx context.Context) ([]*models.Execution, error)
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	GetByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error)
	Save(ctx context.Context, execution *models.Execution) error
}

// ScheduleRepository stores schedule configuration.
type ScheduleRepository interface {
	GetAll(ctx context.Context) ([]*models.Schedule, error)
	GetByID(ctx context.Context, id string) (*models.Schedule, error)
	Save(ctx context.Context, schedule *models.Schedule) error
	Delete(ctx context.Context, id string) error
}

// TriggerRepository stores trigger configuration.
type TriggerRepository interface {
	GetAll(ctx context.Context) ([]*models.Trigger, error)
	GetByID(ctx context.Context, id string) (*models.Trigger, error)
	GetByType(ctx context.Context, triggerType models.TriggerType) ([]*models.Trigger, error)
	Save(ctx context.Context, trigger *models.Trigger) error
	Delete(ctx context.Context, id string) error
}
