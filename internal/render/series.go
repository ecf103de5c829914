// Package render turns result rows into chart images. Projection of rows
// into labeled series runs through jq programs; rendering never fails, it
// degrades to a placeholder image instead.
package render

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/rendis/reportpipe/pkg/schema"
)

// Point is one labeled value of a chart series.
type Point struct {
	Label string
	Value float64
}

// Projector extracts chart series from row-maps via jq programs.
// Thread-safe: compiled *Code objects are cached and reused across goroutines.
type Projector struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewProjector creates a series projector.
func NewProjector() *Projector {
	return &Projector{cache: make(map[string]*gojq.Code)}
}

// Project builds the series for the chart spec. Missing x/y columns fall
// back to a heuristic pick over the first row. Aggregations group by label.
func (p *Projector) Project(ctx context.Context, rows []map[string]any, spec schema.ChartSpec) ([]Point, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	xCol, yCol := chooseColumns(rows[0], spec)
	if xCol == "" || yCol == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "no usable columns for chart series")
	}

	expr := seriesExpr(xCol, yCol, spec.Aggregation)
	code, err := p.getOrCompile(expr)
	if err != nil {
		return nil, err
	}

	input := map[string]any{"rows": normalizeForJQ(rows)}
	iter := code.RunWithContext(ctx, input)

	val, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if evalErr, isErr := val.(error); isErr {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"series projection failed for %q: %s", expr, evalErr.Error()).WithCause(evalErr)
	}

	items, ok := val.([]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"series projection returned %T, expected array", val)
	}

	points := make([]Point, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		point := Point{}
		if label, ok := m["label"].(string); ok {
			point.Label = label
		}
		switch v := m["value"].(type) {
		case float64:
			point.Value = v
		case int:
			point.Value = float64(v)
		}
		points = append(points, point)
	}
	return points, nil
}

// seriesExpr builds the jq program for one x/y/aggregation combination.
// Non-numeric y values coerce to 0 rather than failing the projection.
func seriesExpr(xCol, yCol, aggregation string) string {
	base := fmt.Sprintf(
		`[.rows[] | {label: ((.[%q] // "(null)") | tostring), value: ((.[%q] // 0) | tonumber? // 0)}]`,
		xCol, yCol)

	var reduce string
	switch aggregation {
	case "sum":
		reduce = `(map(.value) | add)`
	case "avg":
		reduce = `(map(.value) | add / length)`
	case "count":
		reduce = `length`
	case "max":
		reduce = `(map(.value) | max)`
	case "min":
		reduce = `(map(.value) | min)`
	default:
		return base
	}
	return base + fmt.Sprintf(` | group_by(.label) | map({label: .[0].label, value: %s})`, reduce)
}

// chooseColumns fills in missing x/y columns: x prefers the first
// non-numeric column, y the first numeric one. Keys are scanned in sorted
// order since row-maps are unordered.
func chooseColumns(row map[string]any, spec schema.ChartSpec) (string, string) {
	xCol, yCol := spec.XColumn, spec.YColumn
	if xCol != "" && yCol != "" {
		return xCol, yCol
	}

	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var firstText, firstNumeric string
	for _, k := range keys {
		switch row[k].(type) {
		case float64, int, int64, float32, int32:
			if firstNumeric == "" {
				firstNumeric = k
			}
		default:
			if firstText == "" {
				firstText = k
			}
		}
	}

	if xCol == "" {
		xCol = firstText
		if xCol == "" {
			xCol = firstNumeric
		}
	}
	if yCol == "" {
		yCol = firstNumeric
		if yCol == "" {
			yCol = firstText
		}
	}
	return xCol, yCol
}

func (p *Projector) getOrCompile(expression string) (*gojq.Code, error) {
	p.mu.RLock()
	if code, ok := p.cache[expression]; ok {
		p.mu.RUnlock()
		return code, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if code, ok := p.cache[expression]; ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq parse error in %q: %s", expression, err.Error()).WithCause(err)
	}
	code, err := gojq.Compile(query,
		// Sandbox: empty env blocks $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq compile error in %q: %s", expression, err.Error()).WithCause(err)
	}

	p.cache[expression] = code
	return code, nil
}

// normalizeForJQ converts Go native types into jq-compatible ones.
// jq uses float64 for all numbers.
func normalizeForJQ(v any) any {
	switch val := v.(type) {
	case []map[string]any:
		out := make([]any, len(val))
		for i, m := range val {
			out[i] = normalizeForJQ(m)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeForJQ(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeForJQ(item)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}
