package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSimple(t *testing.T) {
	scope := &Scope{
		Query: map[string]any{"text": "top customers by revenue"},
	}

	out, err := Resolve("Question: ${{query.text}}", scope)

	require.NoError(t, err)
	assert.Equal(t, "Question: top customers by revenue", out)
}

func TestResolveNestedPath(t *testing.T) {
	scope := &Scope{
		Data: map[string]any{
			"stats": map[string]any{
				"amount": map[string]any{"mean": 42.5},
			},
		},
	}

	out, err := Resolve("mean=${{data.stats.amount.mean}}", scope)

	require.NoError(t, err)
	assert.Equal(t, "mean=42.5", out)
}

func TestResolveNonStringValues(t *testing.T) {
	scope := &Scope{
		Data: map[string]any{
			"row_count": 7,
			"columns":   []any{"region", "total"},
			"empty":     nil,
			"flag":      true,
		},
	}

	out, err := Resolve("${{data.row_count}} ${{data.columns}} ${{data.empty}} ${{data.flag}}", scope)

	require.NoError(t, err)
	assert.Equal(t, `7 ["region","total"] null true`, out)
}

func TestResolveMultipleTokens(t *testing.T) {
	scope := &Scope{
		Query:    map[string]any{"text": "q"},
		Feedback: map[string]any{"notes": "improve grouping"},
	}

	out, err := Resolve("${{query.text}} / ${{feedback.notes}}", scope)

	require.NoError(t, err)
	assert.Equal(t, "q / improve grouping", out)
}

func TestResolveErrors(t *testing.T) {
	scope := &Scope{Query: map[string]any{"text": "q"}}

	t.Run("unclosed", func(t *testing.T) {
		_, err := Resolve("${{query.text", scope)
		assert.ErrorContains(t, err, "unclosed")
	})

	t.Run("empty expression", func(t *testing.T) {
		_, err := Resolve("${{  }}", scope)
		assert.ErrorContains(t, err, "empty variable reference")
	})

	t.Run("nested", func(t *testing.T) {
		_, err := Resolve("${{query.${{query.text}}}}", scope)
		assert.ErrorContains(t, err, "nested interpolation")
	})

	t.Run("unknown namespace", func(t *testing.T) {
		_, err := Resolve("${{secrets.key}}", scope)
		assert.ErrorContains(t, err, "unknown namespace")
	})

	t.Run("missing field", func(t *testing.T) {
		_, err := Resolve("${{query.missing}}", scope)
		assert.ErrorContains(t, err, "not found")
	})

	t.Run("empty scope namespace", func(t *testing.T) {
		_, err := Resolve("${{data.rows}}", scope)
		assert.ErrorContains(t, err, "scope is empty")
	})
}

func TestResolveNoTokensPassthrough(t *testing.T) {
	out, err := Resolve("plain text, no references", &Scope{})

	require.NoError(t, err)
	assert.Equal(t, "plain text, no references", out)
}

func TestGenerationPrompt(t *testing.T) {
	scope := &Scope{
		Query: map[string]any{"text": "sales by region", "context": "{}", "profile": "analyst"},
		Scheme: map[string]any{
			"schema":        "CREATE TABLE sales (...)",
			"dictionary":    "sales: one row per order",
			"relationships": "sales.customer_id -> customers.id",
			"examples":      "Q: total sales\nA: SELECT SUM(amount) FROM sales",
		},
		Feedback: map[string]any{"notes": "no previous feedback"},
	}

	system, user, err := Generation(scope)

	require.NoError(t, err)
	assert.Contains(t, system, "CREATE TABLE sales")
	assert.Contains(t, system, "sql_query")
	assert.Contains(t, user, "sales by region")
	assert.Contains(t, user, "no previous feedback")
}

func TestReviewPrompt(t *testing.T) {
	scope := &Scope{
		Query: map[string]any{"text": "sales by region", "profile": "analyst"},
		Data: map[string]any{
			"sql":             "SELECT region FROM sales LIMIT 1000;",
			"sql_explanation": "groups by region",
			"row_count":       3,
			"columns":         []any{"region"},
			"sample":          "[]",
			"chart_type":      "bar",
			"chart_title":     "Sales by region",
		},
		Feedback: map[string]any{"iteration": 2, "notes": "tighten grouping"},
	}

	system, user, err := Review(scope)

	require.NoError(t, err)
	assert.Contains(t, system, "overall_score")
	assert.Contains(t, user, "ITERATION NUMBER: 2")
	assert.Contains(t, user, "tighten grouping")
}
