package render

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/rendis/reportpipe/pkg/schema"
)

const (
	chartWidth  = 800
	chartHeight = 500

	// Bar charts beyond this many categories become unreadable.
	maxBarCategories = 20
)

// Renderer turns a chart spec plus result rows into a PNG image.
type Renderer struct {
	projector *Projector
	logger    *slog.Logger
}

// NewRenderer creates a chart renderer.
func NewRenderer(logger *slog.Logger) *Renderer {
	return &Renderer{projector: NewProjector(), logger: logger}
}

// Render produces the chart image. It never fails: empty data, unsupported
// chart types and rendering faults all yield a placeholder image with a
// textual notice.
func (r *Renderer) Render(ctx context.Context, rows []map[string]any, spec schema.ChartSpec) []byte {
	if len(rows) == 0 {
		return r.placeholder("no data to visualize")
	}

	points, err := r.projector.Project(ctx, rows, spec)
	if err != nil {
		r.logger.WarnContext(ctx, "series projection failed", "error", err)
		return r.placeholder(fmt.Sprintf("could not project chart series: %v", err))
	}
	if len(points) == 0 {
		return r.placeholder("no data to visualize")
	}

	var buf bytes.Buffer
	switch spec.ChartType {
	case "bar":
		err = r.renderBar(&buf, spec.Title, points)
	case "pie":
		err = r.renderPie(&buf, points)
	case "line":
		err = r.renderContinuous(&buf, spec.Title, points, false)
	case "scatter":
		err = r.renderContinuous(&buf, spec.Title, points, true)
	default:
		r.logger.WarnContext(ctx, "unsupported chart type, falling back to bar", "chart_type", spec.ChartType)
		err = r.renderBar(&buf, spec.Title, points)
	}
	if err != nil {
		r.logger.WarnContext(ctx, "chart rendering failed", "chart_type", spec.ChartType, "error", err)
		return r.placeholder(fmt.Sprintf("chart rendering failed: %v", err))
	}
	return buf.Bytes()
}

func (r *Renderer) renderBar(buf *bytes.Buffer, title string, points []Point) error {
	if len(points) > maxBarCategories {
		points = points[:maxBarCategories]
	}
	bars := make([]chart.Value, len(points))
	for i, pt := range points {
		bars[i] = chart.Value{Label: pt.Label, Value: pt.Value}
	}
	graph := chart.BarChart{
		Title:    title,
		Width:    chartWidth,
		Height:   chartHeight,
		BarWidth: 40,
		Bars:     bars,
	}
	return graph.Render(chart.PNG, buf)
}

func (r *Renderer) renderPie(buf *bytes.Buffer, points []Point) error {
	values := make([]chart.Value, 0, len(points))
	for _, pt := range points {
		// The pie renderer rejects non-positive slices.
		if pt.Value > 0 {
			values = append(values, chart.Value{Label: pt.Label, Value: pt.Value})
		}
	}
	if len(values) == 0 {
		return fmt.Errorf("no positive values for pie chart")
	}
	graph := chart.PieChart{
		Width:  chartWidth,
		Height: chartHeight,
		Values: values,
	}
	return graph.Render(chart.PNG, buf)
}

func (r *Renderer) renderContinuous(buf *bytes.Buffer, title string, points []Point, scatter bool) error {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	ticks := make([]chart.Tick, len(points))
	for i, pt := range points {
		xs[i] = float64(i)
		ys[i] = pt.Value
		ticks[i] = chart.Tick{Value: float64(i), Label: pt.Label}
	}

	style := chart.Style{}
	if scatter {
		style.StrokeWidth = chart.Disabled
		style.DotWidth = 5
	}

	graph := chart.Chart{
		Title:  title,
		Width:  chartWidth,
		Height: chartHeight,
		XAxis:  chart.XAxis{Ticks: ticks},
		Series: []chart.Series{
			chart.ContinuousSeries{Style: style, XValues: xs, YValues: ys},
		},
	}
	return graph.Render(chart.PNG, buf)
}

// placeholder renders a flat chart carrying the notice as its title, so the
// document always embeds an image even when there is nothing to plot.
func (r *Renderer) placeholder(notice string) []byte {
	graph := chart.Chart{
		Title:  notice,
		Width:  chartWidth,
		Height: chartHeight / 2,
		Series: []chart.Series{
			chart.ContinuousSeries{XValues: []float64{0, 1}, YValues: []float64{0, 1}},
		},
	}
	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		// Should not happen for a fixed two-point series; return an empty
		// image rather than propagate.
		r.logger.Error("placeholder rendering failed", "error", err)
		return nil
	}
	return buf.Bytes()
}
