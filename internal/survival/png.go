package survival

import (
	"fmt"
	"io"
	"math"
	"strconv"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var curveColor = drawing.ColorFromHex("D62728")

// StepPath returns the vertices of the plotted step curve in axis units,
// clipped to the x range. Log axes drop non-positive x values.
func StepPath(p Plot) ([]float64, []float64) {
	lo, hi := p.XAxis.Range[0], p.XAxis.Range[1]
	toAxis := func(x float64) float64 { return x }
	fromAxis := toAxis
	if p.XAxis.Log {
		toAxis = math.Log10
		fromAxis = func(x float64) float64 { return math.Pow(10, x) }
	}

	y := p.At(fromAxis(lo))
	xs := []float64{lo}
	ys := []float64{y}
	for _, pt := range p.Points {
		if p.XAxis.Log && pt.X <= 0 {
			continue
		}
		ax := toAxis(pt.X)
		if ax <= lo {
			continue
		}
		if ax >= hi {
			break
		}
		xs = append(xs, ax, ax)
		ys = append(ys, y, pt.Y)
		y = pt.Y
	}
	xs = append(xs, hi)
	ys = append(ys, y)
	return xs, ys
}

func axisTicks(a Axis) []chart.Tick {
	lo, hi := a.Range[0], a.Range[1]
	var ticks []chart.Tick
	if a.Log {
		for k := math.Ceil(lo); k <= math.Floor(hi); k++ {
			ticks = append(ticks, chart.Tick{
				Value: k,
				Label: strconv.FormatFloat(math.Pow(10, k), 'g', -1, 64),
			})
		}
		return ticks
	}
	step := (hi - lo) / 5
	for i := 0; i <= 5; i++ {
		v := lo + float64(i)*step
		ticks = append(ticks, chart.Tick{Value: v, Label: strconv.FormatFloat(v, 'f', 1, 64)})
	}
	return ticks
}

// RenderPNG draws the plot as a PNG image of the given size.
func RenderPNG(p Plot, width, height int, w io.Writer) error {
	xs, ys := StepPath(p)

	ch := chart.Chart{
		Title:      fmt.Sprintf("%s: %s", p.Heading, p.Title),
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 24, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:  p.XAxis.Label,
			Range: &chart.ContinuousRange{Min: p.XAxis.Range[0], Max: p.XAxis.Range[1]},
			Ticks: axisTicks(p.XAxis),
		},
		YAxis: chart.YAxis{
			Name:  p.YAxis.Label,
			Range: &chart.ContinuousRange{Min: p.YAxis.Range[0], Max: p.YAxis.Range[1]},
			Ticks: axisTicks(p.YAxis),
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    p.Title,
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: curveColor,
					StrokeWidth: 2,
				},
			},
		},
	}

	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}
	return nil
}
