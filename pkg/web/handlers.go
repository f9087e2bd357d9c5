package web

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/barela/flowdeck/pkg/engine"
	"github.com/barela/flowdeck/pkg/metrics"
	"github.com/barela/flowdeck/pkg/models"
	"github.com/barela/flowdeck/pkg/otelhelper"
	"github.com/barela/flowdeck/pkg/registry"
	"github.com/barela/flowdeck/pkg/scheduler"
	"github.com/barela/flowdeck/pkg/services"
	"github.com/barela/flowdeck/pkg/triggers"
)

type APIHandlers struct {
	workflowService *services.Workflow
	engine          *engine.Engine
	scheduler       *scheduler.Scheduler
	triggers        *triggers.Registry
	metrics         *metrics.Aggregator
	registry        *registry.Registry
	validator       *validator.Validate
	tracer          trace.Tracer
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	executionEngine *engine.Engine,
	workflowScheduler *scheduler.Scheduler,
	triggerRegistry *triggers.Registry,
	aggregator *metrics.Aggregator,
	toolRegistry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		engine:          executionEngine,
		scheduler:       workflowScheduler,
		triggers:        triggerRegistry,
		metrics:         aggregator,
		registry:        toolRegistry,
		validator:       validator.New(validator.WithRequiredStructEnabled()),
		tracer:          otel.Tracer("flowdeck/api"),
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return internalError(c, err)
	}

	if workflow == nil {
		return notFound(c, "Workflow not found")
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	created, err := h.workflowService.Create(c.Context(), req.toModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	workflow := req.toModel()
	workflow.ID = c.Params("id")

	updated, err := h.workflowService.Update(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	if err := h.workflowService.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	var req ExecuteWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid request body: "+err.Error())
		}
	}

	autoAdvance := true
	if req.AutoAdvance != nil {
		autoAdvance = *req.AutoAdvance
	}

	ctx, span := otelhelper.StartSpan(c.Context(), h.tracer, "api.execute_workflow",
		attribute.String(otelhelper.ServiceIDKey, "api"),
		attribute.String(otelhelper.WorkflowIDKey, c.Params("id")),
	)
	defer span.End()

	execution, err := h.engine.Execute(ctx, c.Params("id"), engine.ExecuteOptions{
		AutoAdvance: autoAdvance,
		Variables:   req.Variables,
		Source:      models.ExecutionSourceManual,
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(execution)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	executions, err := h.engine.GetExecutions(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"executions": executions})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution := h.engine.GetExecution(c.Context(), c.Params("id"))
	if execution == nil {
		return notFound(c, "Execution not found")
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	executions, err := h.engine.GetWorkflowExecutions(c.Context(), c.Params("id"))
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"executions": executions})
}

func (h *APIHandlers) GetWorkflowMetrics(c fiber.Ctx) error {
	workflowMetrics, err := h.metrics.GetWorkflowMetrics(c.Context(), c.Params("id"))
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(workflowMetrics)
}

func (h *APIHandlers) PauseExecution(c fiber.Ctx) error {
	if !h.engine.Pause(c.Context(), c.Params("id")) {
		return badRequest(c, "Execution is not running")
	}

	return c.JSON(h.engine.GetExecution(c.Context(), c.Params("id")))
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	if !h.engine.Resume(c.Context(), c.Params("id")) {
		return badRequest(c, "Execution is not paused")
	}

	return c.JSON(h.engine.GetExecution(c.Context(), c.Params("id")))
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	if !h.engine.Cancel(c.Context(), c.Params("id")) {
		return badRequest(c, "Execution is already terminal")
	}

	return c.JSON(h.engine.GetExecution(c.Context(), c.Params("id")))
}

func (h *APIHandlers) GetSchedules(c fiber.Ctx) error {
	schedules, err := h.scheduler.GetSchedules(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"schedules": schedules})
}

func (h *APIHandlers) GetSchedule(c fiber.Ctx) error {
	schedule, err := h.scheduler.GetSchedule(c.Context(), c.Params("id"))
	if err != nil {
		return internalError(c, err)
	}

	if schedule == nil {
		return notFound(c, "Schedule not found")
	}

	return c.JSON(schedule)
}

func (h *APIHandlers) CreateSchedule(c fiber.Ctx) error {
	var req CreateScheduleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	schedule := req.toModel()
	if err := h.scheduler.Create(c.Context(), schedule); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(schedule)
}

func (h *APIHandlers) UpdateSchedule(c fiber.Ctx) error {
	var req CreateScheduleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	schedule := req.toModel()
	schedule.ID = c.Params("id")

	if err := h.scheduler.Update(c.Context(), schedule); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(schedule)
}

func (h *APIHandlers) DeleteSchedule(c fiber.Ctx) error {
	if err := h.scheduler.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) EnableSchedule(c fiber.Ctx) error {
	if err := h.scheduler.Enable(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) DisableSchedule(c fiber.Ctx) error {
	if err := h.scheduler.Disable(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetTriggers(c fiber.Ctx) error {
	allTriggers, err := h.triggers.GetTriggers(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"triggers": allTriggers})
}

func (h *APIHandlers) GetTrigger(c fiber.Ctx) error {
	trigger, err := h.triggers.GetTrigger(c.Context(), c.Params("id"))
	if err != nil {
		return internalError(c, err)
	}

	if trigger == nil {
		return notFound(c, "Trigger not found")
	}

	return c.JSON(trigger)
}

func (h *APIHandlers) CreateTrigger(c fiber.Ctx) error {
	var req CreateTriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	trigger := req.toModel()
	if err := h.triggers.Create(c.Context(), trigger); err != nil {
		return badRequest(c, err.Error())
	}

	return c.Status(fiber.StatusCreated).JSON(trigger)
}

func (h *APIHandlers) DeleteTrigger(c fiber.Ctx) error {
	if err := h.triggers.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetTools(c fiber.Ctx) error {
	factories := h.registry.Factories()

	tools := make([]ToolResponse, 0, len(factories))
	for _, factory := range factories {
		tools = append(tools, ToolResponse{
			ID:          factory.ID(),
			Name:        factory.Name(),
			Description: factory.Description(),
			Schema:      factory.Schema(),
		})
	}

	return c.JSON(fiber.Map{"tools": tools})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	message, healthy := h.workflowService.HealthCheck(c.Context())
	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":  "unhealthy",
			"message": message,
		})
	}

	return c.JSON(fiber.Map{
		"status":  "healthy",
		"message": message,
	})
}
