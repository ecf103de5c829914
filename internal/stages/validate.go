package stages

import (
	"context"
	"strings"

	"github.com/rendis/reportpipe/internal/sqlguard"
	"github.com/rendis/reportpipe/pkg/schema"
)

// Validate gates the generated SQL through the safety validator. Invalid SQL
// is terminal for the run: the sanitized query alone may reach execution.
type Validate struct {
	guard *sqlguard.Validator
}

// NewValidate creates the validation stage.
func NewValidate(guard *sqlguard.Validator) *Validate {
	return &Validate{guard: guard}
}

func (s *Validate) Name() schema.Stage { return schema.StageValidating }

func (s *Validate) Run(_ context.Context, state *schema.WorkflowState) (*Result, *schema.StageFailure) {
	verdict := s.guard.Validate(state.SQLQuery)
	if !verdict.Valid {
		for _, e := range verdict.Errors {
			state.AppendError(e)
		}
		return nil, schema.NewStageFailure(s.Name(), schema.FailureValidation,
			"sql rejected: "+strings.Join(verdict.Errors, "; "), nil)
	}

	state.SQLQuery = verdict.SanitizedQuery

	return &Result{Summary: map[string]any{
		"security_score": verdict.SecurityScore,
		"warnings":       verdict.Warnings,
	}}, nil
}
