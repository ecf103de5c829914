package stages

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rendis/reportpipe/internal/llm"
	"github.com/rendis/reportpipe/internal/prompts"
	"github.com/rendis/reportpipe/pkg/schema"
)

// Review scores the assembled report. The raw verdict lands on the state;
// the engine applies the iteration policy on top of it, so the producer's
// own approved flag never routes anything.
type Review struct {
	llm    llm.Client
	parser *Parser
	logger *slog.Logger
}

// NewReview creates the review stage.
func NewReview(client llm.Client, parser *Parser, logger *slog.Logger) *Review {
	return &Review{llm: client, parser: parser, logger: logger}
}

func (s *Review) Name() schema.Stage { return schema.StageReviewing }

func (s *Review) Run(ctx context.Context, state *schema.WorkflowState) (*Result, *schema.StageFailure) {
	profile := "{}"
	if len(state.UserProfile) > 0 {
		if b, err := json.Marshal(state.UserProfile); err == nil {
			profile = string(b)
		}
	}

	feedback := "first pass"
	if state.ReviewFeedback != "" {
		feedback = state.ReviewFeedback
	}

	scope := &prompts.Scope{
		Query: map[string]any{"text": state.Query, "profile": profile},
		Data: map[string]any{
			"sql":             state.SQLQuery,
			"sql_explanation": state.SQLExplanation,
			"row_count":       len(state.DataResults),
			"columns":         columnsOf(state.DataResults),
			"sample":          sampleJSON(state.DataResults, 5),
			"chart_type":      state.ChartType,
			"chart_title":     state.ChartTitle,
		},
		Feedback: map[string]any{
			"iteration": state.IterationCount,
			"notes":     feedback,
		},
	}

	system, user, err := prompts.Review(scope)
	if err != nil {
		return nil, schema.NewStageFailure(s.Name(), schema.FailureParse,
			"build review prompt: "+err.Error(), err)
	}

	raw, err := s.llm.Complete(ctx, system, user)
	if err != nil {
		return nil, schema.NewStageFailure(s.Name(), schema.FailureCapability,
			"review completion failed: "+err.Error(), err)
	}

	verdict := s.parser.ParseReview(raw)
	state.Review = &verdict

	s.logger.InfoContext(ctx, "review scored",
		"overall_score", verdict.OverallScore, "iteration", state.IterationCount)

	return &Result{Summary: map[string]any{
		"overall_score": verdict.OverallScore,
	}}, nil
}
