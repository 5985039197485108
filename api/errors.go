package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/totenbilder/imagesearch/pkg/errdefs"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, errdefs.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, errdefs.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, errdefs.ErrEncoding):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, errdefs.ErrAlreadyRunning):
		return fiber.StatusConflict
	case errdefs.IsTransient(err):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// errorHandler renders handler errors as ErrorResponse.
func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := statusFor(err)
		if status >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"status", status,
				"error", err,
			)
		}
		return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
	}
}
