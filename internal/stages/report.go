package stages

import (
	"context"
	"time"

	"github.com/rendis/reportpipe/internal/report"
	"github.com/rendis/reportpipe/pkg/schema"
)

// Report assembles the final PDF document from the accumulated state.
type Report struct {
	generator *report.Generator
}

// NewReport creates the reporting stage.
func NewReport(generator *report.Generator) *Report {
	return &Report{generator: generator}
}

func (s *Report) Name() schema.Stage { return schema.StageReporting }

func (s *Report) Run(_ context.Context, state *schema.WorkflowState) (*Result, *schema.StageFailure) {
	var verdict schema.ReviewVerdict
	if state.Review != nil {
		verdict = *state.Review
	}

	doc, err := s.generator.Generate(report.Input{
		Query:          state.Query,
		SQLQuery:       state.SQLQuery,
		SQLExplanation: state.SQLExplanation,
		Rows:           state.DataResults,
		ChartImage:     state.Visualization,
		ChartTitle:     state.ChartTitle,
		Review:         verdict,
		Iteration:      state.IterationCount,
		GeneratedAt:    time.Now().UTC(),
	})
	if err != nil {
		return nil, schema.NewStageFailure(s.Name(), schema.FailureCapability,
			"document generation failed: "+err.Error(), err)
	}

	state.FinalDocument = doc

	return &Result{Summary: map[string]any{"document_bytes": len(doc)}}, nil
}
