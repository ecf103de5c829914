package stages

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/rendis/reportpipe/internal/llm"
	"github.com/rendis/reportpipe/internal/prompts"
	"github.com/rendis/reportpipe/internal/render"
	"github.com/rendis/reportpipe/pkg/schema"
)

// Visualize picks a chart for the result set and renders it. This stage
// never fails: an unusable chart decision degrades to the fallback spec and
// empty data yields a placeholder image.
type Visualize struct {
	llm      llm.Client
	renderer *render.Renderer
	parser   *Parser
	logger   *slog.Logger
}

// NewVisualize creates the visualization stage.
func NewVisualize(client llm.Client, renderer *render.Renderer, parser *Parser, logger *slog.Logger) *Visualize {
	return &Visualize{llm: client, renderer: renderer, parser: parser, logger: logger}
}

func (s *Visualize) Name() schema.Stage { return schema.StageVisualizing }

func (s *Visualize) Run(ctx context.Context, state *schema.WorkflowState) (*Result, *schema.StageFailure) {
	spec := s.decideChart(ctx, state)

	state.Visualization = s.renderer.Render(ctx, state.DataResults, spec)
	state.ChartType = spec.ChartType
	state.ChartTitle = spec.Title

	return &Result{Summary: map[string]any{
		"chart_type": spec.ChartType,
		"title":      spec.Title,
	}}, nil
}

func (s *Visualize) decideChart(ctx context.Context, state *schema.WorkflowState) schema.ChartSpec {
	if len(state.DataResults) == 0 {
		return schema.ChartSpec{ChartType: "bar", Title: "No data to visualize"}
	}

	scope := &prompts.Scope{
		Query: map[string]any{"text": state.Query},
		Data: map[string]any{
			"row_count": len(state.DataResults),
			"columns":   columnsOf(state.DataResults),
			"sample":    sampleJSON(state.DataResults, 5),
			"stats":     statsJSON(state.DataResults),
		},
	}

	system, user, err := prompts.ChartDecision(scope)
	if err != nil {
		s.logger.WarnContext(ctx, "chart prompt build failed, using fallback spec", "error", err)
		return fallbackChartSpec()
	}

	raw, err := s.llm.Complete(ctx, system, user)
	if err != nil {
		s.logger.WarnContext(ctx, "chart decision call failed, using fallback spec", "error", err)
		return fallbackChartSpec()
	}

	return s.parser.ParseChartSpec(raw)
}

func fallbackChartSpec() schema.ChartSpec {
	return schema.ChartSpec{
		ChartType: "bar",
		Title:     "Data Visualization",
		Reasoning: "fallback after chart decision failure",
	}
}

// columnsOf returns the first row's keys in sorted order.
func columnsOf(rows []map[string]any) []string {
	if len(rows) == 0 {
		return nil
	}
	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// sampleJSON renders the first n rows as indented JSON for prompt context.
func sampleJSON(rows []map[string]any, n int) string {
	if len(rows) > n {
		rows = rows[:n]
	}
	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(b)
}

// statsJSON computes min/max/mean for every numeric column.
func statsJSON(rows []map[string]any) string {
	type colStats struct {
		Min  float64 `json:"min"`
		Max  float64 `json:"max"`
		Mean float64 `json:"mean"`
	}

	sums := map[string]float64{}
	counts := map[string]int{}
	mins := map[string]float64{}
	maxs := map[string]float64{}

	for _, row := range rows {
		for col, v := range row {
			f, ok := toFloat(v)
			if !ok {
				continue
			}
			if counts[col] == 0 {
				mins[col], maxs[col] = f, f
			} else {
				if f < mins[col] {
					mins[col] = f
				}
				if f > maxs[col] {
					maxs[col] = f
				}
			}
			sums[col] += f
			counts[col]++
		}
	}

	stats := make(map[string]colStats, len(counts))
	for col, n := range counts {
		stats[col] = colStats{Min: mins[col], Max: maxs[col], Mean: sums[col] / float64(n)}
	}
	b, err := json.Marshal(stats)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
