package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/barela/flowdeck/pkg/engine"
	"github.com/barela/flowdeck/pkg/services"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps service layer errors onto RFC 7807 responses.
// Validation problems carry the full problem list in the extensions.
func handleServiceError(c fiber.Ctx, err error) error {
	var validationErrs services.ValidationErrors
	if errors.As(err, &validationErrs) {
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("validation_error").
			WithDetail("workflow validation failed")

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"type":     problem.Type,
			"title":    problem.Title,
			"status":   problem.Status,
			"detail":   problem.Detail,
			"instance": problem.Instance,
			"errors":   validationErrs,
		})
	}

	switch {
	case errors.Is(err, engine.ErrWorkflowDisabled):
		return badRequest(c, err.Error())
	case services.IsValidationError(err):
		return badRequest(c, err.Error())
	case services.IsNotFoundError(err):
		return notFound(c, err.Error())
	default:
		return internalError(c, err)
	}
}
