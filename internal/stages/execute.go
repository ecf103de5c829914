package stages

import (
	"context"

	"github.com/rendis/reportpipe/internal/warehouse"
	"github.com/rendis/reportpipe/pkg/schema"
)

// Execute runs the sanitized query against the warehouse. Zero rows is a
// valid outcome, not a failure.
type Execute struct {
	querier warehouse.Querier
}

// NewExecute creates the execution stage.
func NewExecute(querier warehouse.Querier) *Execute {
	return &Execute{querier: querier}
}

func (s *Execute) Name() schema.Stage { return schema.StageExecuting }

func (s *Execute) Run(ctx context.Context, state *schema.WorkflowState) (*Result, *schema.StageFailure) {
	rows, err := s.querier.Query(ctx, state.SQLQuery)
	if err != nil {
		return nil, schema.NewStageFailure(s.Name(), schema.FailureCapability,
			"query execution failed: "+err.Error(), err)
	}

	state.DataResults = rows

	return &Result{Summary: map[string]any{"row_count": len(rows)}}, nil
}
