package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/eruption-duration/backend/internal/dashboard"
)

var errorStatus = map[string]int{
	"validation":    fiber.StatusBadRequest,
	"lookup":        fiber.StatusNotFound,
	"configuration": fiber.StatusInternalServerError,
	"model_load":    fiber.StatusServiceUnavailable,
	"inference":     fiber.StatusUnprocessableEntity,
	"unavailable":   fiber.StatusServiceUnavailable,
}

// StatusFor maps an engine error to the HTTP status the API answers with.
func StatusFor(err error) int {
	if status, ok := errorStatus[dashboard.ErrorKind(err)]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

func writeError(c *fiber.Ctx, err error) error {
	kind := dashboard.ErrorKind(err)
	msg := err.Error()
	if kind == "internal" {
		msg = "Internal server error"
	}
	return c.Status(StatusFor(err)).JSON(fiber.Map{
		"error": msg,
		"kind":  kind,
	})
}
