package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// NewApp builds the fiber application with all API routes registered.
func NewApp(handlers *APIHandlers) *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowdeck API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/execute", handlers.ExecuteWorkflow)
	w.Get("/:id/executions", handlers.GetWorkflowExecutions)
	w.Get("/:id/metrics", handlers.GetWorkflowMetrics)

	e := app.Group("/executions")
	e.Get("/", handlers.GetExecutions)
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/pause", handlers.PauseExecution)
	e.Post("/:id/resume", handlers.ResumeExecution)
	e.Post("/:id/cancel", handlers.CancelExecution)

	s := app.Group("/schedules")
	s.Get("/", handlers.GetSchedules)
	s.Post("/", handlers.CreateSchedule)
	s.Get("/:id", handlers.GetSchedule)
	s.Patch("/:id", handlers.UpdateSchedule)
	s.Delete("/:id", handlers.DeleteSchedule)
	s.Post("/:id/enable", handlers.EnableSchedule)
	s.Post("/:id/disable", handlers.DisableSchedule)

	t := app.Group("/triggers")
	t.Get("/", handlers.GetTriggers)
	t.Post("/", handlers.CreateTrigger)
	t.Get("/:id", handlers.GetTrigger)
	t.Delete("/:id", handlers.DeleteTrigger)

	app.Get("/tools", handlers.GetTools)
	app.Get("/health", handlers.HealthCheck)

	return app
}
