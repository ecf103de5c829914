package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	p, err := NewParser()
	require.NoError(t, err)
	return p
}

func TestParseGenerationWellFormed(t *testing.T) {
	p := newTestParser(t)

	raw := `{
		"sql_query": "SELECT region, SUM(amount) FROM sales GROUP BY region LIMIT 100;",
		"explanation": "totals per region",
		"tables_used": ["sales"],
		"estimated_rows": 4,
		"confidence_score": 0.92
	}`

	gen, err := p.ParseGeneration(raw)
	require.NoError(t, err)
	assert.Equal(t, "SELECT region, SUM(amount) FROM sales GROUP BY region LIMIT 100;", gen.SQLQuery)
	assert.Equal(t, "totals per region", gen.Explanation)
	assert.Equal(t, []string{"sales"}, gen.TablesUsed)
	assert.Equal(t, 4, gen.EstimatedRows)
	assert.InDelta(t, 0.92, gen.Confidence, 1e-9)
}

func TestParseGenerationStripsFences(t *testing.T) {
	p := newTestParser(t)

	raw := "```json\n{\"sql_query\": \"SELECT 1\", \"explanation\": \"x\"}\n```"

	gen, err := p.ParseGeneration(raw)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", gen.SQLQuery)
}

func TestParseGenerationCoercesStringNumbers(t *testing.T) {
	p := newTestParser(t)

	raw := `{"sql_query": "SELECT 1", "explanation": "x", "confidence_score": "0.5", "estimated_rows": "12"}`

	gen, err := p.ParseGeneration(raw)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, gen.Confidence, 1e-9)
	assert.Equal(t, 12, gen.EstimatedRows)
}

func TestParseGenerationSQLFenceFallback(t *testing.T) {
	p := newTestParser(t)

	raw := "Here is the query you asked for:\n```sql\nSELECT name FROM users LIMIT 10;\n```\nHope this helps."

	gen, err := p.ParseGeneration(raw)
	require.NoError(t, err)
	assert.Equal(t, "SELECT name FROM users LIMIT 10;", gen.SQLQuery)
	assert.Equal(t, "extracted from unstructured model output", gen.Explanation)
}

func TestParseGenerationBareSelectFallback(t *testing.T) {
	p := newTestParser(t)

	gen, err := p.ParseGeneration("SELECT COUNT(*) FROM orders")
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM orders", gen.SQLQuery)
}

func TestParseGenerationUnusable(t *testing.T) {
	p := newTestParser(t)

	_, err := p.ParseGeneration("I am sorry, I cannot produce a query for that.")
	require.Error(t, err)
}

func TestParseGenerationMissingRequiredField(t *testing.T) {
	p := newTestParser(t)

	// No sql_query and no extractable SQL text.
	_, err := p.ParseGeneration(`{"explanation": "forgot the query"}`)
	require.Error(t, err)
}

func TestParseChartSpecWellFormed(t *testing.T) {
	p := newTestParser(t)

	raw := `{
		"chart_type": "line",
		"title": "Monthly Revenue",
		"x_column": "month",
		"y_column": "revenue",
		"aggregation": "sum",
		"reasoning": "time series"
	}`

	spec := p.ParseChartSpec(raw)
	assert.Equal(t, "line", spec.ChartType)
	assert.Equal(t, "Monthly Revenue", spec.Title)
	assert.Equal(t, "month", spec.XColumn)
	assert.Equal(t, "revenue", spec.YColumn)
	assert.Equal(t, "sum", spec.Aggregation)
}

func TestParseChartSpecFallback(t *testing.T) {
	p := newTestParser(t)

	for _, raw := range []string{
		"not json at all",
		`{"title": "missing chart type"}`,
		`["a", "list"]`,
	} {
		spec := p.ParseChartSpec(raw)
		assert.Equal(t, "bar", spec.ChartType, "input %q", raw)
		assert.Equal(t, "Data Visualization", spec.Title, "input %q", raw)
	}
}

func TestParseReviewWellFormed(t *testing.T) {
	p := newTestParser(t)

	raw := `{
		"approved": true,
		"overall_score": 8.5,
		"scores": {"sql_quality": 9, "data_relevance": 8},
		"feedback": "Solid report.",
		"specific_issues": [],
		"suggestions": ["add a date filter"],
		"highlights": ["clear chart"]
	}`

	v := p.ParseReview(raw)
	assert.True(t, v.Approved)
	assert.InDelta(t, 8.5, v.OverallScore, 1e-9)
	assert.InDelta(t, 9.0, v.Scores["sql_quality"], 1e-9)
	assert.Equal(t, "Solid report.", v.Feedback)
	assert.Equal(t, []string{"add a date filter"}, v.Suggestions)
	assert.Equal(t, []string{"clear chart"}, v.Highlights)
	assert.Empty(t, v.Issues)
}

func TestParseReviewCoercions(t *testing.T) {
	p := newTestParser(t)

	raw := `{"approved": "yes", "overall_score": "7.5", "scores": {"accuracy": "8"}, "feedback": "ok"}`

	v := p.ParseReview(raw)
	assert.True(t, v.Approved)
	assert.InDelta(t, 7.5, v.OverallScore, 1e-9)
	assert.InDelta(t, 8.0, v.Scores["accuracy"], 1e-9)
}

func TestParseReviewFallback(t *testing.T) {
	p := newTestParser(t)

	for _, raw := range []string{
		"the model rambled instead of emitting json",
		`{"overall_score": 9.0}`,
		`{"approved": true, "overall_score": 14, "feedback": "score out of range"}`,
	} {
		v := p.ParseReview(raw)
		assert.False(t, v.Approved, "input %q", raw)
		assert.InDelta(t, reviewFallbackScore, v.OverallScore, 1e-9, "input %q", raw)
		assert.Contains(t, v.Feedback, "could not be parsed", "input %q", raw)
	}
}

func TestStripFences(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"{\"a\": 1}", "{\"a\": 1}"},
		{"```json\n{\"a\": 1}\n```", "{\"a\": 1}"},
		{"```\n{\"a\": 1}\n```", "{\"a\": 1}"},
		{"  ```JSON\n{\"a\": 1}\n```  ", "{\"a\": 1}"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, stripFences(tc.in), "input %q", tc.in)
	}
}
