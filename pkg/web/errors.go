package web

import (
	"errors"

	"github.com/dukex/chatflow/pkg/flowvalidator"
	"github.com/dukex/chatflow/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// invalidFlowProblem lists the validator findings that blocked a publish.
type invalidFlowProblem struct {
	*problems.Problem

	Errors []flowvalidator.ValidationError `json:"errors"`
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	var invalid *services.InvalidFlowError

	switch {
	case errors.As(err, &invalid):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("invalid_flow").
			WithDetail(invalid.Result.Summary())

		return c.Status(fiber.StatusBadRequest).JSON(invalidFlowProblem{
			Problem: problem,
			Errors:         invalid.Result.Errors,
		})

	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsNotFoundError(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("not_found").
			WithDetail(err.Error())

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	default:
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
