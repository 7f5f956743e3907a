package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/eruption-duration/backend/internal/dashboard"
	"github.com/eruption-duration/backend/pkg/logger"
)

// WebSocketHandler regenerates plots as the client's selector values change.
// Each "plot" message gets a "status" message and then either "complete" or
// "error".
type WebSocketHandler struct {
	engine *dashboard.Engine
}

func NewWebSocketHandler(engine *dashboard.Engine) *WebSocketHandler {
	return &WebSocketHandler{
		engine: engine,
	}
}

type wsMessage struct {
	Type string `json:"type"`
	PlotBody
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error("Failed to read WebSocket message", zap.Error(err))
			}
			break
		}

		if msg.Type != "plot" {
			continue
		}

		if err := h.sendPlot(c, msg.PlotBody); err != nil {
			logger.Error("Failed to write WebSocket message", zap.Error(err))
			break
		}
	}
}

func (h *WebSocketHandler) sendPlot(c *websocket.Conn, body PlotBody) error {
	if err := c.WriteJSON(map[string]interface{}{
		"type":    "status",
		"content": "Generating plot...",
	}); err != nil {
		return err
	}

	resp, err := h.engine.Generate(context.Background(), body.Request())
	if err != nil {
		return h.sendError(c, err)
	}

	return c.WriteJSON(map[string]interface{}{
		"type":       "complete",
		"id":         resp.ID,
		"kind":       resp.Kind,
		"volcano":    resp.Volcano,
		"plot":       resp.Plot,
		"figure":     resp.Plot.Figure(),
		"cached":     resp.Cached,
		"latency_ms": resp.LatencyMS,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, err error) error {
	kind := dashboard.ErrorKind(err)
	msg := err.Error()
	if kind == "internal" {
		msg = "Failed to generate plot"
	}
	return c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": msg,
		"kind":  kind,
	})
}
