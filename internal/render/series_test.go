package render

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/reportpipe/pkg/schema"
)

func salesRows() []map[string]any {
	return []map[string]any{
		{"region": "north", "amount": int64(10)},
		{"region": "south", "amount": 20.5},
		{"region": "north", "amount": int64(5)},
	}
}

func TestProjectPlain(t *testing.T) {
	p := NewProjector()

	points, err := p.Project(context.Background(), salesRows(), schema.ChartSpec{
		XColumn: "region", YColumn: "amount",
	})

	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, Point{Label: "north", Value: 10}, points[0])
	assert.Equal(t, Point{Label: "south", Value: 20.5}, points[1])
	assert.Equal(t, Point{Label: "north", Value: 5}, points[2])
}

func TestProjectAggregations(t *testing.T) {
	p := NewProjector()
	ctx := context.Background()

	find := func(points []Point, label string) Point {
		for _, pt := range points {
			if pt.Label == label {
				return pt
			}
		}
		t.Fatalf("label %q not found in %v", label, points)
		return Point{}
	}

	t.Run("sum groups by label", func(t *testing.T) {
		points, err := p.Project(ctx, salesRows(), schema.ChartSpec{
			XColumn: "region", YColumn: "amount", Aggregation: "sum",
		})
		require.NoError(t, err)
		require.Len(t, points, 2)
		assert.Equal(t, 15.0, find(points, "north").Value)
		assert.Equal(t, 20.5, find(points, "south").Value)
	})

	t.Run("avg", func(t *testing.T) {
		points, err := p.Project(ctx, salesRows(), schema.ChartSpec{
			XColumn: "region", YColumn: "amount", Aggregation: "avg",
		})
		require.NoError(t, err)
		assert.Equal(t, 7.5, find(points, "north").Value)
	})

	t.Run("count", func(t *testing.T) {
		points, err := p.Project(ctx, salesRows(), schema.ChartSpec{
			XColumn: "region", YColumn: "amount", Aggregation: "count",
		})
		require.NoError(t, err)
		assert.Equal(t, 2.0, find(points, "north").Value)
		assert.Equal(t, 1.0, find(points, "south").Value)
	})

	t.Run("max and min", func(t *testing.T) {
		points, err := p.Project(ctx, salesRows(), schema.ChartSpec{
			XColumn: "region", YColumn: "amount", Aggregation: "max",
		})
		require.NoError(t, err)
		assert.Equal(t, 10.0, find(points, "north").Value)

		points, err = p.Project(ctx, salesRows(), schema.ChartSpec{
			XColumn: "region", YColumn: "amount", Aggregation: "min",
		})
		require.NoError(t, err)
		assert.Equal(t, 5.0, find(points, "north").Value)
	})
}

func TestProjectColumnFallback(t *testing.T) {
	p := NewProjector()

	// No columns in the chart spec: x falls back to the first text column,
	// y to the first numeric one.
	points, err := p.Project(context.Background(), salesRows(), schema.ChartSpec{})

	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, "north", points[0].Label)
	assert.Equal(t, 10.0, points[0].Value)
}

func TestProjectNilAndNonNumericValues(t *testing.T) {
	p := NewProjector()

	rows := []map[string]any{
		{"region": nil, "amount": "not a number"},
		{"region": "east", "amount": "12.5"},
	}
	points, err := p.Project(context.Background(), rows, schema.ChartSpec{
		XColumn: "region", YColumn: "amount",
	})

	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, Point{Label: "(null)", Value: 0}, points[0])
	assert.Equal(t, Point{Label: "east", Value: 12.5}, points[1])
}

func TestProjectEmptyRows(t *testing.T) {
	p := NewProjector()

	points, err := p.Project(context.Background(), nil, schema.ChartSpec{})

	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestProjectNumericLabels(t *testing.T) {
	p := NewProjector()

	rows := []map[string]any{
		{"year": int64(2024), "total": int64(100)},
		{"year": int64(2025), "total": int64(120)},
	}
	points, err := p.Project(context.Background(), rows, schema.ChartSpec{
		XColumn: "year", YColumn: "total",
	})

	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "2024", points[0].Label)
}

func TestProjectorCachesCompiledPrograms(t *testing.T) {
	p := NewProjector()
	ctx := context.Background()
	spec := schema.ChartSpec{XColumn: "region", YColumn: "amount"}

	_, err := p.Project(ctx, salesRows(), spec)
	require.NoError(t, err)
	_, err = p.Project(ctx, salesRows(), spec)
	require.NoError(t, err)

	assert.Len(t, p.cache, 1)
}
