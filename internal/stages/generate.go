package stages

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rendis/reportpipe/internal/llm"
	"github.com/rendis/reportpipe/internal/prompts"
	"github.com/rendis/reportpipe/internal/warehouse"
	"github.com/rendis/reportpipe/pkg/schema"
)

// Generate turns the natural-language question into SQL, feeding the model
// the warehouse metadata and any review feedback from the previous pass.
type Generate struct {
	llm    llm.Client
	meta   *warehouse.MetadataCache
	parser *Parser
	logger *slog.Logger
}

// NewGenerate creates the generation stage.
func NewGenerate(client llm.Client, meta *warehouse.MetadataCache, parser *Parser, logger *slog.Logger) *Generate {
	return &Generate{llm: client, meta: meta, parser: parser, logger: logger}
}

func (s *Generate) Name() schema.Stage { return schema.StageGenerating }

func (s *Generate) Run(ctx context.Context, state *schema.WorkflowState) (*Result, *schema.StageFailure) {
	scope, err := s.buildScope(ctx, state)
	if err != nil {
		return nil, schema.NewStageFailure(s.Name(), schema.FailureCapability,
			"load warehouse metadata: "+err.Error(), err)
	}

	system, user, err := prompts.Generation(scope)
	if err != nil {
		return nil, schema.NewStageFailure(s.Name(), schema.FailureParse,
			"build generation prompt: "+err.Error(), err)
	}

	raw, err := s.llm.Complete(ctx, system, user)
	if err != nil {
		return nil, schema.NewStageFailure(s.Name(), schema.FailureCapability,
			"language model completion failed: "+err.Error(), err)
	}

	gen, err := s.parser.ParseGeneration(raw)
	if err != nil {
		return nil, schema.NewStageFailure(s.Name(), schema.FailureParse, err.Error(), err)
	}

	state.SQLQuery = gen.SQLQuery
	state.SQLExplanation = gen.Explanation

	s.logger.InfoContext(ctx, "sql generated",
		"tables_used", gen.TablesUsed, "confidence", gen.Confidence)

	return &Result{Summary: map[string]any{
		"tables_used": gen.TablesUsed,
		"confidence":  gen.Confidence,
	}}, nil
}

func (s *Generate) buildScope(ctx context.Context, state *schema.WorkflowState) (*prompts.Scope, error) {
	ddl, err := s.meta.FullSchema(ctx)
	if err != nil {
		return nil, err
	}
	dictionary, err := s.meta.DataDictionary(ctx)
	if err != nil {
		return nil, err
	}
	relationships, err := s.meta.Relationships(ctx)
	if err != nil {
		return nil, err
	}
	examples, err := s.meta.FewShotExamples(ctx)
	if err != nil {
		return nil, err
	}

	feedback := "no previous feedback"
	if state.ReviewFeedback != "" {
		feedback = state.ReviewFeedback
	}

	profile := "{}"
	if len(state.UserProfile) > 0 {
		if b, err := json.Marshal(state.UserProfile); err == nil {
			profile = string(b)
		}
	}

	return &prompts.Scope{
		Query: map[string]any{
			"text":    state.Query,
			"context": profile,
			"profile": profile,
		},
		Scheme: map[string]any{
			"schema":        ddl,
			"dictionary":    dictionary,
			"relationships": relationships,
			"examples":      examples,
		},
		Feedback: map[string]any{"notes": feedback},
	}, nil
}
