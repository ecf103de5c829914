package stages

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/reportpipe/pkg/schema"
)

// JSON Schemas for the three structured model outputs, embedded as constants
// to avoid filesystem dependencies.
const generationSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["sql_query", "explanation"],
  "properties": {
    "sql_query": { "type": "string", "minLength": 1 },
    "explanation": { "type": "string" },
    "tables_used": { "type": "array", "items": { "type": "string" } },
    "estimated_rows": { "type": "number" },
    "confidence_score": { "type": "number", "minimum": 0, "maximum": 1 }
  }
}`

const chartSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["chart_type", "title"],
  "properties": {
    "chart_type": { "type": "string", "minLength": 1 },
    "title": { "type": "string", "minLength": 1 },
    "x_column": { "type": "string" },
    "y_column": { "type": "string" },
    "color_column": { "type": "string" },
    "aggregation": { "type": "string" },
    "reasoning": { "type": "string" }
  }
}`

const reviewSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["approved", "overall_score", "feedback"],
  "properties": {
    "approved": { "type": "boolean" },
    "overall_score": { "type": "number", "minimum": 0, "maximum": 10 },
    "scores": { "type": "object", "additionalProperties": { "type": "number" } },
    "feedback": { "type": "string" },
    "specific_issues": { "type": "array", "items": { "type": "string" } },
    "suggestions": { "type": "array", "items": { "type": "string" } },
    "highlights": { "type": "array", "items": { "type": "string" } }
  }
}`

// reviewFallbackScore is the conservative score a malformed review degrades
// to, so the controller can still route.
const reviewFallbackScore = 5.0

// Parser decodes the model's structured outputs: strip code fences, coerce
// score and boolean fields, validate against the embedded schema, then map
// into the record type.
type Parser struct {
	generation *jsonschema.Schema
	chart      *jsonschema.Schema
	review     *jsonschema.Schema
}

// NewParser compiles the embedded output schemas.
func NewParser() (*Parser, error) {
	generation, err := compileSchema("reportpipe://schemas/generation.json", generationSchemaJSON)
	if err != nil {
		return nil, err
	}
	chart, err := compileSchema("reportpipe://schemas/chart.json", chartSchemaJSON)
	if err != nil {
		return nil, err
	}
	review, err := compileSchema("reportpipe://schemas/review.json", reviewSchemaJSON)
	if err != nil {
		return nil, err
	}
	return &Parser{generation: generation, chart: chart, review: review}, nil
}

func compileSchema(url, schemaJSON string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema %s: %w", url, err)
	}
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", url, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", url, err)
	}
	return compiled, nil
}

// ParseGeneration decodes the SQL generation output. When the JSON shape is
// unusable it falls back to extracting SQL from a fenced block or from raw
// SELECT text before giving up.
func (p *Parser) ParseGeneration(raw string) (*schema.GenerationResult, error) {
	m, err := decodeObject(raw)
	if err == nil {
		coerceNumberField(m, "estimated_rows")
		coerceNumberField(m, "confidence_score")
		if verr := p.generation.Validate(m); verr == nil {
			return &schema.GenerationResult{
				SQLQuery:      asStr(m["sql_query"]),
				Explanation:   asStr(m["explanation"]),
				TablesUsed:    asStrList(m["tables_used"]),
				EstimatedRows: int(asNum(m["estimated_rows"])),
				Confidence:    asNum(m["confidence_score"]),
			}, nil
		} else {
			err = verr
		}
	}

	// Fallback chain: a fenced sql block, then bare SELECT/WITH text.
	if sqlText, ok := extractSQL(raw); ok {
		return &schema.GenerationResult{
			SQLQuery:    sqlText,
			Explanation: "extracted from unstructured model output",
		}, nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeParse, "unusable generation output: %s", err.Error()).WithCause(err)
}

// ParseChartSpec decodes the chart decision. It never fails: malformed
// output degrades to a bar chart with a generic title.
func (p *Parser) ParseChartSpec(raw string) schema.ChartSpec {
	m, err := decodeObject(raw)
	if err == nil && p.chart.Validate(m) == nil {
		return schema.ChartSpec{
			ChartType:   asStr(m["chart_type"]),
			Title:       asStr(m["title"]),
			XColumn:     asStr(m["x_column"]),
			YColumn:     asStr(m["y_column"]),
			ColorColumn: asStr(m["color_column"]),
			Aggregation: asStr(m["aggregation"]),
			Reasoning:   asStr(m["reasoning"]),
		}
	}
	return schema.ChartSpec{
		ChartType: "bar",
		Title:     "Data Visualization",
		Reasoning: "fallback after unusable chart decision output",
	}
}

// ParseReview decodes the review output. It never fails: malformed output
// degrades to a conservative unapproved record at the fallback score.
func (p *Parser) ParseReview(raw string) schema.ReviewVerdict {
	m, err := decodeObject(raw)
	if err == nil {
		coerceBoolField(m, "approved")
		coerceNumberField(m, "overall_score")
		coerceScoreMap(m, "scores")
		if p.review.Validate(m) == nil {
			return schema.ReviewVerdict{
				Approved:     asBool(m["approved"]),
				OverallScore: asNum(m["overall_score"]),
				Scores:       asNumMap(m["scores"]),
				Feedback:     asStr(m["feedback"]),
				Issues:       asStrList(m["specific_issues"]),
				Suggestions:  asStrList(m["suggestions"]),
				Highlights:   asStrList(m["highlights"]),
			}
		}
	}
	return schema.ReviewVerdict{
		Approved:     false,
		OverallScore: reviewFallbackScore,
		Feedback:     "Review output could not be parsed. Manual check recommended.",
		Issues:       []string{"unparseable review output"},
	}
}

// decodeObject strips optional code fences and decodes a JSON object with
// json.Number for numeric values, as the schema validator expects.
func decodeObject(raw string) (map[string]any, error) {
	stripped := stripFences(raw)
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(stripped))
	if err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("model output is %T, expected object", doc)
	}
	return m, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		// Drop the language tag line.
		firstLine := strings.TrimSpace(s[:idx])
		if firstLine == "" || isFenceTag(firstLine) {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func isFenceTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// extractSQL pulls SQL out of unstructured output: first from a ```sql
// fence, then from bare text when it reads like a SELECT statement.
func extractSQL(raw string) (string, bool) {
	lower := strings.ToLower(raw)
	if idx := strings.Index(lower, "```sql"); idx >= 0 {
		rest := raw[idx+len("```sql"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			if sqlText := strings.TrimSpace(rest[:end]); sqlText != "" {
				return sqlText, true
			}
		}
	}

	trimmed := strings.TrimSpace(stripFences(raw))
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH") {
		return trimmed, true
	}
	return "", false
}

// Coercions: model output sometimes carries numbers and booleans as strings.

func coerceNumberField(m map[string]any, key string) {
	v, ok := m[key]
	if !ok {
		return
	}
	if s, isStr := v.(string); isStr {
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			m[key] = json.Number(s)
		}
	}
}

func coerceBoolField(m map[string]any, key string) {
	v, ok := m[key]
	if !ok {
		return
	}
	if s, isStr := v.(string); isStr {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes":
			m[key] = true
		case "false", "no":
			m[key] = false
		}
	}
}

func coerceScoreMap(m map[string]any, key string) {
	scores, ok := m[key].(map[string]any)
	if !ok {
		return
	}
	for k := range scores {
		coerceNumberField(scores, k)
	}
}

// Extraction helpers over the validated object.

func asStr(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asNum(v any) float64 {
	switch n := v.(type) {
	case json.Number:
		f, _ := n.Float64()
		return f
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

func asStrList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asNumMap(v any) map[string]float64 {
	items, ok := v.(map[string]any)
	if !ok {
		return map[string]float64{}
	}
	out := make(map[string]float64, len(items))
	for k, item := range items {
		out[k] = asNum(item)
	}
	return out
}
