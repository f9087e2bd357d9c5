package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/barela/flowdeck/pkg/models"
	"github.com/barela/flowdeck/pkg/persistence"
	"github.com/barela/flowdeck/pkg/protocol"
)

// ToolCatalog answers whether a tool ID is resolvable. Satisfied by
// registry.Registry.
type ToolCatalog interface {
	HasTool(toolID string) bool
}

// Workflow manages workflow definitions. Validation problems come back as a
// ValidationErrors list so callers can present every problem at once.
type Workflow struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	catalog     ToolCatalog
	clock       protocol.Clock
	validator   *validator.Validate
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(logger *slog.Logger, store persistence.Persistence, catalog ToolCatalog, clk protocol.Clock) *Workflow {
	return &Workflow{
		logger:      logger.With("module", "workflow_service"),
		persistence: store,
		catalog:     catalog,
		clock:       clk,
		validator:   validator.New(),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := w.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create validates and persists a new workflow definition.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	now := w.clock.Now()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if errs := w.Validate(workflow); len(errs) > 0 {
		return nil, errs
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to persist workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow created", "workflow_id", workflow.ID, "name", workflow.Name)

	return workflow, nil
}

// Update validates and persists changes to an existing workflow definition.
// Executions already holding a snapshot of the previous steps are unaffected.
func (w *Workflow) Update(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.persistence.WorkflowRepository().GetByID(ctx, workflow.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", workflow.ID, err)
	}

	if existing == nil {
		return nil, ErrWorkflowNotFound
	}

	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = w.clock.Now()

	if errs := w.Validate(workflow); len(errs) > 0 {
		return nil, errs
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to persist workflow: %w", err)
	}

	return workflow, nil
}

// Delete removes a workflow definition.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	return w.persistence.WorkflowRepository().Delete(ctx, workflowID)
}

// Get returns one workflow, or nil when unknown.
func (w *Workflow) Get(ctx context.Context, workflowID string) (*models.Workflow, error) {
	return w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
}

// List returns all workflow definitions.
func (w *Workflow) List(ctx context.Context) ([]*models.Workflow, error) {
	return w.persistence.WorkflowRepository().GetAll(ctx)
}

// Validate collects every problem with the definition: struct-level rules,
// dense 0-based step ordering, unique tool references, and tool
// resolvability.
func (w *Workflow) Validate(workflow *models.Workflow) ValidationErrors {
	var errs ValidationErrors

	if err := w.validator.Struct(workflow); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			for _, fe := range fieldErrors {
				errs = append(errs, ValidationError{
					Field:   fe.Namespace(),
					Message: fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
				})
			}
		} else {
			errs = append(errs, ValidationError{Field: "workflow", Message: err.Error()})
		}
	}

	seenTools := make(map[string]bool)
	seenOrders := make(map[int]bool)

	for i, step := range workflow.Steps {
		field := fmt.Sprintf("steps[%d]", i)

		if step == nil {
			errs = append(errs, ValidationError{Field: field, Message: "step cannot be nil"})

			continue
		}

		if step.ToolID != "" {
			if seenTools[step.ToolID] {
				errs = append(errs, ValidationError{
					Field:   field + ".tool_id",
					Message: fmt.Sprintf("tool %q is referenced by more than one step", step.ToolID),
				})
			}

			seenTools[step.ToolID] = true

			if w.catalog != nil && !w.catalog.HasTool(step.ToolID) {
				errs = append(errs, ValidationError{
					Field:   field + ".tool_id",
					Message: fmt.Sprintf("tool %q is not available", step.ToolID),
				})
			}
		}

		if seenOrders[step.Order] {
			errs = append(errs, ValidationError{
				Field:   field + ".order",
				Message: fmt.Sprintf("order %d is used by more than one step", step.Order),
			})
		}

		seenOrders[step.Order] = true
	}

	// Orders must form a dense 0-based sequence.
	for i := range workflow.Steps {
		if !seenOrders[i] {
			errs = append(errs, ValidationError{
				Field:   "steps",
				Message: fmt.Sprintf("step orders must be contiguous from 0; missing order %d", i),
			})

			break
		}
	}

	return errs
}
