// Package survival turns a model's survivor function into display-ready
// plot coordinates and images.
package survival

import (
	"fmt"

	"github.com/eruption-duration/backend/internal/activity"
	"github.com/eruption-duration/backend/internal/features"
	"github.com/eruption-duration/backend/internal/model"
)

const (
	Title = "Survivor function"
	// LineShape is the Plotly name for a step that holds each value until the
	// next breakpoint.
	LineShape = "hv"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Axis struct {
	Label string `json:"label"`
	Log   bool   `json:"log"`
	// Range is in axis units: log10 bounds when Log is set.
	Range [2]float64 `json:"range"`
}

type Plot struct {
	Kind      activity.Kind `json:"kind"`
	Title     string        `json:"title"`
	Heading   string        `json:"heading"`
	LineShape string        `json:"line_shape"`
	Points    []Point       `json:"points"`
	XAxis     Axis          `json:"x_axis"`
	YAxis     Axis          `json:"y_axis"`
}

// Predict runs single-row inference. Errors from the model are returned
// as-is.
func Predict(p model.Predictor, v features.Vector) (model.StepFunction, error) {
	curves, err := p.PredictSurvivalFunction(v.Batch())
	if err != nil {
		return model.StepFunction{}, err
	}
	if len(curves) != 1 {
		return model.StepFunction{}, fmt.Errorf("%w: expected 1 curve, got %d", model.ErrInference, len(curves))
	}
	if err := curves[0].Validate(); err != nil {
		return model.StepFunction{}, fmt.Errorf("%w: %v", model.ErrInference, err)
	}
	return curves[0], nil
}

// Render rescales the curve's time axis to display units and attaches the
// kind's axis layout. Probabilities are passed through unchanged.
func Render(schema activity.Schema, curve model.StepFunction) Plot {
	spec := schema.Plot
	points := make([]Point, len(curve.X))
	for i := range curve.X {
		points[i] = Point{X: curve.X[i] / spec.TimeDivisor, Y: curve.Y[i]}
	}

	return Plot{
		Kind:      schema.Kind,
		Title:     Title,
		Heading:   string(schema.Kind) + " Duration",
		LineShape: LineShape,
		Points:    points,
		XAxis: Axis{
			Label: spec.XLabel,
			Log:   true,
			Range: spec.LogRange,
		},
		YAxis: Axis{
			Label: spec.YLabel,
			Range: [2]float64{0, 1},
		},
	}
}

// At evaluates the plotted step curve: the value of the last point at or
// before x, or 1 before the first point.
func (p Plot) At(x float64) float64 {
	y := 1.0
	for _, pt := range p.Points {
		if pt.X > x {
			break
		}
		y = pt.Y
	}
	return y
}

// Figure returns a Plotly figure for the plot.
func (p Plot) Figure() map[string]interface{} {
	xs := make([]float64, len(p.Points))
	ys := make([]float64, len(p.Points))
	for i, pt := range p.Points {
		xs[i] = pt.X
		ys[i] = pt.Y
	}

	xType := "linear"
	if p.XAxis.Log {
		xType = "log"
	}

	return map[string]interface{}{
		"data": []map[string]interface{}{
			{
				"type": "scatter",
				"mode": "lines",
				"x":    xs,
				"y":    ys,
				"line": map[string]interface{}{"shape": p.LineShape},
			},
		},
		"layout": map[string]interface{}{
			"title": map[string]interface{}{"text": "<b>" + p.Title + "</b>"},
			"xaxis": map[string]interface{}{
				"type":  xType,
				"range": p.XAxis.Range,
				"title": map[string]interface{}{"text": p.XAxis.Label},
			},
			"yaxis": map[string]interface{}{
				"title": map[string]interface{}{"text": p.YAxis.Label},
			},
		},
	}
}
