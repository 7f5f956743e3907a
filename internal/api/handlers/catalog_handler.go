package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/eruption-duration/backend/internal/dashboard"
)

// CatalogHandler serves what the selector controls need: kinds, their inputs
// and the volcanoes usable for each kind.
type CatalogHandler struct {
	engine *dashboard.Engine
}

func NewCatalogHandler(engine *dashboard.Engine) *CatalogHandler {
	return &CatalogHandler{
		engine: engine,
	}
}

func (h *CatalogHandler) GetKinds(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"kinds": h.engine.Kinds(),
	})
}

func (h *CatalogHandler) GetVolcanoes(c *fiber.Ctx) error {
	kind := c.Query("kind")
	if kind == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "kind is required",
			"kind":  "validation",
		})
	}

	names, err := h.engine.Volcanoes(kind, c.Query("q"))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"kind":      kind,
		"volcanoes": names,
		"count":     len(names),
	})
}
