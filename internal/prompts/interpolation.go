package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rendis/reportpipe/pkg/schema"
)

// Scope holds the data available for ${{...}} resolution in prompt templates.
type Scope struct {
	Query    map[string]any // the user request: text, profile, context
	Scheme   map[string]any // warehouse metadata: schema, dictionary, relationships, examples
	Feedback map[string]any // review feedback carried into a retry pass
	Data     map[string]any // execution results: rows, columns, stats, chart metadata
}

// Resolve replaces every ${{namespace.path}} token in the template with the
// value from the scope. Strings embed as-is; other values embed as JSON.
func Resolve(template string, scope *Scope) (string, error) {
	var result strings.Builder
	result.Grow(len(template))

	i := 0
	for i < len(template) {
		idx := strings.Index(template[i:], "${{")
		if idx == -1 {
			result.WriteString(template[i:])
			break
		}

		result.WriteString(template[i : i+idx])
		start := i + idx + 3

		end := strings.Index(template[start:], "}}")
		if end == -1 {
			return "", schema.NewError(schema.ErrCodeInterpolation, "unclosed ${{ expression")
		}
		end += start

		expr := strings.TrimSpace(template[start:end])
		if expr == "" {
			return "", schema.NewError(schema.ErrCodeInterpolation, "empty variable reference: ${{  }}")
		}
		if strings.Contains(expr, "${{") {
			return "", schema.NewError(schema.ErrCodeInterpolation,
				"nested interpolation not allowed: ${{...}} cannot contain ${{")
		}

		val, err := resolveExpr(expr, scope)
		if err != nil {
			return "", err
		}
		result.WriteString(marshalInline(val))

		i = end + 2
	}

	return result.String(), nil
}

func resolveExpr(expr string, scope *Scope) (any, error) {
	parts := strings.SplitN(expr, ".", 2)
	if len(parts) < 2 || parts[1] == "" {
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"invalid reference %q: expected <namespace>.<field>", expr)
	}

	var data map[string]any
	switch parts[0] {
	case "query":
		data = scope.Query
	case "scheme":
		data = scope.Scheme
	case "feedback":
		data = scope.Feedback
	case "data":
		data = scope.Data
	default:
		available := []string{"query", "scheme", "feedback", "data"}
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"unknown namespace %q in ${{%s}}; available: %s", parts[0], expr, strings.Join(available, ", "))
	}

	if data == nil {
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"cannot resolve %q: %s scope is empty", expr, parts[0])
	}

	// Direct key lookup first, then dot traversal into nested maps.
	if val, ok := data[parts[1]]; ok {
		return val, nil
	}
	return traversePath(data, parts[1], expr)
}

func traversePath(root any, path, expr string) (any, error) {
	current := root
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"empty segment in path %q", expr)
		}
		m, ok := current.(map[string]any)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"cannot traverse into non-object at %q in %q (type: %T)", seg, expr, current)
		}
		val, ok := m[seg]
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"field %q not found in %q", seg, expr)
		}
		current = val
	}
	return current, nil
}

func marshalInline(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return "null"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
