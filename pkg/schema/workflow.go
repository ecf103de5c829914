package schema

import "time"

// Stage represents one phase of the report pipeline state machine.
type Stage string

const (
	StageGenerating  Stage = "generating"
	StageValidating  Stage = "validating"
	StageExecuting   Stage = "executing"
	StageVisualizing Stage = "visualizing"
	StageReviewing   Stage = "reviewing"
	StageReporting   Stage = "reporting"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Terminal reports whether the stage is a terminal state of the machine.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// WorkflowState is the per-request state of one report run.
// It is mutated exclusively by the active stage, under the orchestrator's
// control, and archived when a terminal stage is reached.
type WorkflowState struct {
	ID          string         `json:"id"`
	Query       string         `json:"query"`
	UserProfile map[string]any `json:"user_profile,omitempty"`

	SQLQuery       string `json:"sql_query,omitempty"`
	SQLExplanation string `json:"sql_explanation,omitempty"`

	DataResults []map[string]any `json:"data_results,omitempty"`

	Visualization []byte `json:"visualization,omitempty"`
	ChartType     string `json:"chart_type,omitempty"`
	ChartTitle    string `json:"chart_title,omitempty"`

	ReviewScore    float64 `json:"review_score"`
	ReviewApproved bool    `json:"review_approved"`
	ReviewFeedback string  `json:"review_feedback,omitempty"`

	// Review holds the full verdict of the latest review pass, including
	// the per-criterion scores and lists the document renders.
	Review *ReviewVerdict `json:"review,omitempty"`

	// IterationCount starts at 1 and increases by exactly 1 on each
	// return to the generating stage. It never exceeds MaxIterations+1.
	IterationCount int `json:"iteration_count"`
	MaxIterations  int `json:"max_iterations"`

	FinalDocument []byte   `json:"final_document,omitempty"`
	Errors        []string `json:"errors,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewWorkflowState creates the initial state for a run. The ID is assigned
// by the orchestrator.
func NewWorkflowState(query string, profile map[string]any, maxIterations int) *WorkflowState {
	if maxIterations < 1 {
		maxIterations = 1
	}
	return &WorkflowState{
		Query:          query,
		UserProfile:    profile,
		IterationCount: 1,
		MaxIterations:  maxIterations,
		CreatedAt:      time.Now().UTC(),
	}
}

// AppendError records a failure message on the state.
func (w *WorkflowState) AppendError(msg string) {
	w.Errors = append(w.Errors, msg)
}

// StageFailure is the tagged failure value returned by stage adapters.
// Adapters never let faults cross into the orchestrator as panics or
// untyped errors.
type StageFailure struct {
	Stage   Stage         `json:"stage"`
	Reason  FailureReason `json:"reason"`
	Message string        `json:"message"`
	Cause   error         `json:"-"`
}

// FailureReason classifies a stage failure.
type FailureReason string

const (
	FailureParse      FailureReason = "parse_error"
	FailureCapability FailureReason = "capability_error"
	FailureValidation FailureReason = "validation_error"
)

func (f *StageFailure) Error() string {
	return string(f.Stage) + ": " + string(f.Reason) + ": " + f.Message
}

func (f *StageFailure) Unwrap() error {
	return f.Cause
}

// NewStageFailure builds a tagged failure for a stage.
func NewStageFailure(stage Stage, reason FailureReason, msg string, cause error) *StageFailure {
	return &StageFailure{Stage: stage, Reason: reason, Message: msg, Cause: cause}
}
