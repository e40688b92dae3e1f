package serverutils

import (
	"errors"

	"insight-assistant-be/pkg/dataset"
	"insight-assistant-be/pkg/run"
	"insight-assistant-be/pkg/store"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	var fiberErr *fiber.Error
	var validationErr *ValidationError

	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.As(err, &validationErr):
		return fiber.StatusBadRequest
	case errors.Is(err, dataset.ErrUnsupportedFormat):
		return fiber.StatusUnsupportedMediaType
	case errors.Is(err, dataset.ErrMalformedInput):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, dataset.ErrIngestionFailed):
		return fiber.StatusBadGateway
	case errors.Is(err, run.ErrRunAlreadyActive), errors.Is(err, run.ErrNoActiveRun):
		return fiber.StatusConflict
	case errors.Is(err, run.ErrEmptyTurn):
		return fiber.StatusBadRequest
	case errors.Is(err, store.ErrSessionNotFound):
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandlerMiddleware turns errors returned by handlers into the
// response envelope.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		code := StatusFor(err)
		message := err.Error()
		if code == fiber.StatusInternalServerError {
			message = "Internal server error"
		}
		return ctx.Status(code).JSON(ErrorResponse(code, message))
	}
}
