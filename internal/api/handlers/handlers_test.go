package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eruption-duration/backend/internal/activity"
	"github.com/eruption-duration/backend/internal/dashboard"
	"github.com/eruption-duration/backend/internal/dashboard/dashboardtest"
	"github.com/eruption-duration/backend/internal/features"
	"github.com/eruption-duration/backend/internal/model"
)

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	engine := dashboard.NewEngine(dashboardtest.Table(t), dashboardtest.Store(t))
	plots := NewPlotHandler(engine, ImageSize{Width: 640, Height: 400})
	catalog := NewCatalogHandler(engine)

	app := fiber.New()
	api := app.Group("/api/v1")
	api.Get("/kinds", catalog.GetKinds)
	api.Get("/volcanoes", catalog.GetVolcanoes)
	api.Post("/plots", plots.HandlePlot)
	api.Post("/plots/png", plots.HandlePNG)
	api.Get("/plots/history", plots.GetHistory)
	api.Get("/plots/stats", plots.GetStats)
	api.Delete("/plots/cache", plots.InvalidateCache)
	return app
}

func do(t *testing.T, app *fiber.App, method, target, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decode(t *testing.T, data []byte) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

func TestHandlePlot(t *testing.T) {
	app := newApp(t)

	status, data := do(t, app, "POST", "/api/v1/plots",
		`{"kind":"Event","volcano":"etna","explosive":"No","continuous":"Yes"}`)
	require.Equal(t, fiber.StatusOK, status, string(data))

	out := decode(t, data)
	assert.Equal(t, "Event", out["kind"])
	assert.Equal(t, "Etna", out["volcano"])
	assert.Len(t, out["features"], 14)

	plot := out["plot"].(map[string]interface{})
	assert.Equal(t, "Event Duration", plot["heading"])
	points := plot["points"].([]interface{})
	require.Len(t, points, 3)
	assert.Equal(t, map[string]interface{}{"x": 1.0, "y": 0.8}, points[1])

	figure := out["figure"].(map[string]interface{})
	assert.Contains(t, figure, "data")
	assert.Contains(t, figure, "layout")
}

func TestHandlePlot_Eruption(t *testing.T) {
	app := newApp(t)

	status, data := do(t, app, "POST", "/api/v1/plots",
		`{"kind":"Eruption","volcano":"Pinatubo","vei":3}`)
	require.Equal(t, fiber.StatusOK, status, string(data))

	out := decode(t, data)
	features := out["features"].([]interface{})
	require.Len(t, features, 22)
	assert.Equal(t, 3.0, features[0])
}

func TestHandlePlot_Errors(t *testing.T) {
	app := newApp(t)

	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{"malformed json", `{"kind":`, fiber.StatusBadRequest, "validation"},
		{"unknown kind", `{"kind":"Lava","volcano":"etna"}`, fiber.StatusBadRequest, "validation"},
		{"missing vei", `{"kind":"Eruption","volcano":"etna"}`, fiber.StatusBadRequest, "validation"},
		{"bad yes/no", `{"kind":"Event","volcano":"etna","explosive":"maybe","continuous":"No"}`, fiber.StatusBadRequest, "validation"},
		{"unknown volcano", `{"kind":"Event","volcano":"atlantis","explosive":"No","continuous":"No"}`, fiber.StatusNotFound, "lookup"},
		{"incomplete volcano", `{"kind":"Eruption","volcano":"fuji","vei":1}`, fiber.StatusNotFound, "lookup"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, data := do(t, app, "POST", "/api/v1/plots", tt.body)
			assert.Equal(t, tt.status, status, string(data))
			out := decode(t, data)
			assert.Equal(t, tt.kind, out["kind"])
			assert.NotEmpty(t, out["error"])
		})
	}
}

func TestHandlePNG(t *testing.T) {
	app := newApp(t)

	req := httptest.NewRequest("POST", "/api/v1/plots/png?width=320&height=240",
		bytes.NewBufferString(`{"kind":"Event","volcano":"etna","explosive":"Yes","continuous":"No"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Plot-ID"))

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 240, img.Bounds().Dy())
}

func TestHandlePNG_BadSize(t *testing.T) {
	app := newApp(t)

	status, _ := do(t, app, "POST", "/api/v1/plots/png?width=10",
		`{"kind":"Event","volcano":"etna","explosive":"Yes","continuous":"No"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestCatalog(t *testing.T) {
	app := newApp(t)

	status, data := do(t, app, "GET", "/api/v1/kinds", "")
	require.Equal(t, fiber.StatusOK, status)
	kinds := decode(t, data)["kinds"].([]interface{})
	require.Len(t, kinds, 2)
	assert.Equal(t, "Event", kinds[0].(map[string]interface{})["kind"])

	status, data = do(t, app, "GET", "/api/v1/volcanoes?kind=eruption", "")
	require.Equal(t, fiber.StatusOK, status)
	out := decode(t, data)
	assert.Equal(t, []interface{}{"Etna", "Pinatubo"}, out["volcanoes"])
	assert.Equal(t, 2.0, out["count"])

	status, _ = do(t, app, "GET", "/api/v1/volcanoes", "")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = do(t, app, "GET", "/api/v1/volcanoes?kind=Lava", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestHistory_Disabled(t *testing.T) {
	app := newApp(t)

	status, data := do(t, app, "GET", "/api/v1/plots/history", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Contains(t, string(data), "history is disabled")

	status, _ = do(t, app, "GET", "/api/v1/plots/history?limit=0", "")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = do(t, app, "GET", "/api/v1/plots/stats", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)

	status, data = do(t, app, "DELETE", "/api/v1/plots/cache", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 0.0, decode(t, data)["invalidated"])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{activity.ErrUnknownKind, fiber.StatusBadRequest},
		{features.ErrInvalidInput, fiber.StatusBadRequest},
		{features.ErrVolcanoNotFound, fiber.StatusNotFound},
		{features.ErrSchemaMismatch, fiber.StatusInternalServerError},
		{model.ErrModelLoad, fiber.StatusServiceUnavailable},
		{model.ErrInference, fiber.StatusUnprocessableEntity},
		{dashboard.ErrHistoryDisabled, fiber.StatusServiceUnavailable},
		{errors.New("other"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(fmt.Errorf("wrapped: %w", tt.err)), tt.err.Error())
	}
}

func TestPlotBody_Request(t *testing.T) {
	vei := 0
	req := PlotBody{Kind: "Eruption", Volcano: "etna", VEI: &vei, UserID: "u"}.Request()
	assert.Equal(t, map[string]string{"vei": "0"}, req.Inputs)
	assert.Equal(t, "u", req.UserID)

	req = PlotBody{Kind: "Event", Explosive: "Yes"}.Request()
	assert.Equal(t, map[string]string{"explosive": "Yes"}, req.Inputs)
}
