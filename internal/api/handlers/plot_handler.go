package handlers

import (
	"bytes"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/eruption-duration/backend/internal/dashboard"
	"github.com/eruption-duration/backend/internal/survival"
	"github.com/eruption-duration/backend/pkg/logger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	maxImageSide        = 2000
)

// PlotBody is the JSON body of a plot request. Only the fields of the chosen
// kind are used.
type PlotBody struct {
	Kind       string `json:"kind"`
	Volcano    string `json:"volcano"`
	Explosive  string `json:"explosive"`
	Continuous string `json:"continuous"`
	VEI        *int   `json:"vei"`
	UserID     string `json:"user_id"`
}

func (b PlotBody) Request() dashboard.PlotRequest {
	inputs := map[string]string{}
	if b.Explosive != "" {
		inputs["explosive"] = b.Explosive
	}
	if b.Continuous != "" {
		inputs["continuous"] = b.Continuous
	}
	if b.VEI != nil {
		inputs["vei"] = strconv.Itoa(*b.VEI)
	}
	return dashboard.PlotRequest{
		Kind:    b.Kind,
		Volcano: b.Volcano,
		Inputs:  inputs,
		UserID:  b.UserID,
	}
}

type ImageSize struct {
	Width  int
	Height int
}

type PlotHandler struct {
	engine *dashboard.Engine
	image  ImageSize
}

func NewPlotHandler(engine *dashboard.Engine, image ImageSize) *PlotHandler {
	return &PlotHandler{
		engine: engine,
		image:  image,
	}
}

func (h *PlotHandler) parse(c *fiber.Ctx) (dashboard.PlotRequest, error) {
	var body PlotBody
	if err := c.BodyParser(&body); err != nil {
		return dashboard.PlotRequest{}, err
	}
	if body.UserID == "" {
		body.UserID = c.Get("X-User-ID")
	}
	return body.Request(), nil
}

func (h *PlotHandler) HandlePlot(c *fiber.Ctx) error {
	req, err := h.parse(c)
	if err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
			"kind":  "validation",
		})
	}

	resp, err := h.engine.Generate(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"id":         resp.ID,
		"kind":       resp.Kind,
		"volcano":    resp.Volcano,
		"model_id":   resp.ModelID,
		"features":   resp.Features,
		"plot":       resp.Plot,
		"figure":     resp.Plot.Figure(),
		"cached":     resp.Cached,
		"latency_ms": resp.LatencyMS,
	})
}

// HandlePNG renders the same plot as HandlePlot as an image. width and height
// query parameters override the configured size.
func (h *PlotHandler) HandlePNG(c *fiber.Ctx) error {
	req, err := h.parse(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
			"kind":  "validation",
		})
	}

	width := c.QueryInt("width", h.image.Width)
	height := c.QueryInt("height", h.image.Height)
	if width < 100 || height < 100 || width > maxImageSide || height > maxImageSide {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "width and height must be between 100 and " + strconv.Itoa(maxImageSide),
			"kind":  "validation",
		})
	}

	resp, err := h.engine.Generate(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}

	var buf bytes.Buffer
	if err := survival.RenderPNG(resp.Plot, width, height, &buf); err != nil {
		logger.Error("Failed to render plot image", zap.String("request_id", resp.ID), zap.Error(err))
		return writeError(c, err)
	}

	c.Set(fiber.HeaderContentType, "image/png")
	c.Set("X-Plot-ID", resp.ID)
	return c.Send(buf.Bytes())
}

func (h *PlotHandler) GetHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 || limit > maxHistoryLimit {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be between 1 and " + strconv.Itoa(maxHistoryLimit),
			"kind":  "validation",
		})
	}

	records, err := h.engine.History(c.UserContext(), c.Query("user_id"), limit)
	if err != nil {
		logger.Error("Failed to list plot history", zap.Error(err))
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"history": records,
	})
}

func (h *PlotHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.engine.Stats(c.UserContext())
	if err != nil {
		logger.Error("Failed to compute plot stats", zap.Error(err))
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"stats": stats,
	})
}

func (h *PlotHandler) InvalidateCache(c *fiber.Ctx) error {
	n, err := h.engine.InvalidateCache(c.UserContext())
	if err != nil {
		logger.Error("Failed to invalidate plot cache", zap.Error(err))
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"invalidated": n,
	})
}
