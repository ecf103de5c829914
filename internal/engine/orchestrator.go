package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/reportpipe/internal/logging"
	"github.com/rendis/reportpipe/internal/policy"
	"github.com/rendis/reportpipe/internal/stages"
	"github.com/rendis/reportpipe/internal/store"
	"github.com/rendis/reportpipe/internal/streaming"
	"github.com/rendis/reportpipe/pkg/schema"
)

const defaultStageTimeout = 2 * time.Minute

// Orchestrator drives a run through the pipeline stages. Stage faults arrive
// as tagged failure values and terminate the run through the failed stage;
// only infrastructure errors (store, event log) surface as Go errors.
type Orchestrator struct {
	pipeline     map[schema.Stage]stages.Stage
	policy       *policy.Controller
	fsm          *StageFSM
	store        store.Store
	appender     EventAppender
	hub          streaming.EventHub
	logger       *slog.Logger
	stageTimeout time.Duration
}

// NewOrchestrator assembles the orchestrator from its collaborators. Every
// stage the transition table can reach must be present in the pipeline slice.
func NewOrchestrator(
	pipeline []stages.Stage,
	ctrl *policy.Controller,
	st store.Store,
	appender EventAppender,
	hub streaming.EventHub,
	logger *slog.Logger,
	stageTimeout time.Duration,
) *Orchestrator {
	if stageTimeout <= 0 {
		stageTimeout = defaultStageTimeout
	}
	byName := make(map[schema.Stage]stages.Stage, len(pipeline))
	for _, s := range pipeline {
		byName[s.Name()] = s
	}
	return &Orchestrator{
		pipeline:     byName,
		policy:       ctrl,
		fsm:          NewStageFSM(appender),
		store:        st,
		appender:     appender,
		hub:          hub,
		logger:       logger,
		stageTimeout: stageTimeout,
	}
}

// Run executes the full pipeline for one question and returns the terminal
// result. The returned error is reserved for infrastructure faults; pipeline
// failures are reported inside the RunResult.
func (o *Orchestrator) Run(ctx context.Context, query string, profile map[string]any, maxIterations int) (*schema.RunResult, error) {
	state := schema.NewWorkflowState(query, profile, maxIterations)
	state.ID = uuid.NewString()
	ctx = logging.WithRunID(ctx, state.ID)

	if err := o.store.CreateRun(ctx, &store.Run{
		ID:            state.ID,
		Query:         query,
		UserProfile:   profile,
		Status:        schema.RunStatusActive,
		Stage:         schema.StageGenerating,
		Iteration:     state.IterationCount,
		MaxIterations: state.MaxIterations,
		CreatedAt:     state.CreatedAt,
	}); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "create run: %s", err.Error()).WithCause(err)
	}

	o.emit(ctx, state.ID, "", schema.EventRunStarted, map[string]any{"query": query})
	o.emit(ctx, state.ID, string(schema.StageGenerating), schema.EventStageStarted, nil)
	o.logger.InfoContext(ctx, "run started", "query", query, "max_iterations", state.MaxIterations)

	current := schema.StageGenerating
	for {
		if err := ctx.Err(); err != nil {
			return o.finishCancelled(state, current, err), nil
		}

		stage, ok := o.pipeline[current]
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidTransition, "no stage registered for %s", current)
		}

		res, fail := o.runStage(ctx, stage, state)
		if fail != nil {
			return o.finishFailed(ctx, state, current, fail)
		}
		o.emit(ctx, state.ID, string(current), schema.EventStageCompleted, res.Summary)

		next := o.nextStage(ctx, state, current)
		if err := o.fsm.Transition(ctx, state.ID, current, next); err != nil {
			return nil, err
		}
		o.publishTransition(ctx, state.ID, next)
		current = next
		o.persistProgress(ctx, state, current)

		if current == schema.StageDone {
			return o.finishCompleted(ctx, state)
		}
	}
}

// runStage executes one stage under its own timeout with the stage name in
// the logging context.
func (o *Orchestrator) runStage(ctx context.Context, stage stages.Stage, state *schema.WorkflowState) (*stages.Result, *schema.StageFailure) {
	stageCtx := logging.WithStage(ctx, string(stage.Name()))
	stageCtx, cancel := context.WithTimeout(stageCtx, o.stageTimeout)
	defer cancel()

	o.logger.InfoContext(stageCtx, "stage running", "iteration", state.IterationCount)
	return stage.Run(stageCtx, state)
}

// nextStage picks the successor of a completed stage. After review it applies
// the iteration policy and routes on the decided verdict, never on the
// producer's own approved flag.
func (o *Orchestrator) nextStage(ctx context.Context, state *schema.WorkflowState, current schema.Stage) schema.Stage {
	switch current {
	case schema.StageGenerating:
		return schema.StageValidating
	case schema.StageValidating:
		return schema.StageExecuting
	case schema.StageExecuting:
		return schema.StageVisualizing
	case schema.StageVisualizing:
		return schema.StageReviewing
	case schema.StageReviewing:
		return o.decideAfterReview(ctx, state)
	case schema.StageReporting:
		return schema.StageDone
	}
	return schema.StageFailed
}

func (o *Orchestrator) decideAfterReview(ctx context.Context, state *schema.WorkflowState) schema.Stage {
	raw := schema.ReviewVerdict{
		OverallScore: 5.0,
		Feedback:     "review verdict missing",
	}
	if state.Review != nil {
		raw = *state.Review
	}

	decided, route := o.policy.Decide(raw, state.IterationCount, state.MaxIterations)
	state.Review = &decided
	state.ReviewScore = decided.OverallScore
	state.ReviewApproved = decided.Approved
	state.ReviewFeedback = decided.Feedback

	if route == policy.RouteRetry {
		o.emit(ctx, state.ID, string(schema.StageReviewing), schema.EventReviewRejected, map[string]any{
			"score":     decided.OverallScore,
			"iteration": state.IterationCount,
		})
		o.logger.InfoContext(ctx, "review rejected, retrying",
			"score", decided.OverallScore, "iteration", state.IterationCount)
		state.IterationCount++
		return schema.StageGenerating
	}

	// Reaching the iteration cap forces reporting even below the normal
	// approval floor.
	if state.IterationCount >= state.MaxIterations && raw.OverallScore < 7.0 {
		o.emit(ctx, state.ID, string(schema.StageReviewing), schema.EventReviewForced, map[string]any{
			"score":    decided.OverallScore,
			"approved": decided.Approved,
		})
	}
	return schema.StageReporting
}

func (o *Orchestrator) finishCompleted(ctx context.Context, state *schema.WorkflowState) (*schema.RunResult, error) {
	result := resultFromState(state, schema.StageDone)

	now := time.Now().UTC()
	status := schema.RunStatusCompleted
	stage := schema.StageDone
	o.updateRun(ctx, state, store.RunUpdate{
		Status:      &status,
		Stage:       &stage,
		Document:    state.FinalDocument,
		CompletedAt: &now,
	})

	o.logger.InfoContext(ctx, "run completed",
		"score", state.ReviewScore, "approved", state.ReviewApproved, "iterations", state.IterationCount)
	return result, nil
}

func (o *Orchestrator) finishFailed(ctx context.Context, state *schema.WorkflowState, current schema.Stage, fail *schema.StageFailure) (*schema.RunResult, error) {
	state.AppendError(fail.Error())

	o.emit(ctx, state.ID, string(current), schema.EventStageFailed, map[string]any{
		"reason":  string(fail.Reason),
		"message": fail.Message,
	})
	if err := o.fsm.Transition(ctx, state.ID, current, schema.StageFailed); err != nil {
		return nil, err
	}
	o.publishTransition(ctx, state.ID, schema.StageFailed)

	now := time.Now().UTC()
	status := schema.RunStatusFailed
	stage := schema.StageFailed
	o.updateRun(ctx, state, store.RunUpdate{
		Status:      &status,
		Stage:       &stage,
		CompletedAt: &now,
	})

	o.logger.ErrorContext(ctx, "run failed",
		"stage", string(current), "reason", string(fail.Reason), "error", fail.Message)
	return resultFromState(state, schema.StageFailed), nil
}

func (o *Orchestrator) finishCancelled(state *schema.WorkflowState, current schema.Stage, cause error) *schema.RunResult {
	state.AppendError("run cancelled: " + cause.Error())

	// The inbound context is gone, so persistence uses a fresh one.
	ctx := logging.WithRunID(context.Background(), state.ID)
	o.emit(ctx, state.ID, string(current), schema.EventRunCancelled, nil)

	now := time.Now().UTC()
	status := schema.RunStatusCancelled
	stage := schema.StageFailed
	o.updateRun(ctx, state, store.RunUpdate{
		Status:      &status,
		Stage:       &stage,
		CompletedAt: &now,
	})

	o.logger.WarnContext(ctx, "run cancelled", "stage", string(current))
	return resultFromState(state, schema.StageFailed)
}

// persistProgress records the current stage and any fields the completed
// stages have produced so far.
func (o *Orchestrator) persistProgress(ctx context.Context, state *schema.WorkflowState, current schema.Stage) {
	update := store.RunUpdate{
		Stage:     &current,
		Iteration: &state.IterationCount,
	}
	if state.SQLQuery != "" {
		update.SQLQuery = &state.SQLQuery
	}
	if state.ChartType != "" {
		update.ChartType = &state.ChartType
	}
	if state.Review != nil {
		update.Score = &state.ReviewScore
		update.Approved = &state.ReviewApproved
	}
	o.updateRun(ctx, state, update)
}

func (o *Orchestrator) updateRun(ctx context.Context, state *schema.WorkflowState, update store.RunUpdate) {
	update.Errors = state.Errors
	if update.Score == nil && state.Review != nil {
		update.Score = &state.ReviewScore
		update.Approved = &state.ReviewApproved
	}
	if update.Iteration == nil {
		update.Iteration = &state.IterationCount
	}
	if err := o.store.UpdateRun(ctx, state.ID, update); err != nil {
		o.logger.ErrorContext(ctx, "persist run update failed", "error", err)
	}
}

// publishTransition mirrors an FSM transition event onto the hub. The FSM
// already appended it to the log.
func (o *Orchestrator) publishTransition(ctx context.Context, runID string, to schema.Stage) {
	if o.hub == nil {
		return
	}
	eventType := transitionEventType(to)
	if eventType == "" {
		return
	}
	_ = o.hub.Publish(ctx, streaming.StreamEvent{
		RunID:     runID,
		Stage:     string(to),
		EventType: eventType,
	})
}

// emit appends an event to the log and publishes it on the hub. Event faults
// are logged, never fatal to the run.
func (o *Orchestrator) emit(ctx context.Context, runID, stage, eventType string, payload map[string]any) {
	var raw json.RawMessage
	if len(payload) > 0 {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}

	if err := o.appender.AppendEvent(ctx, &store.Event{
		RunID:   runID,
		Stage:   stage,
		Type:    eventType,
		Payload: raw,
	}); err != nil {
		o.logger.WarnContext(ctx, "append event failed", "event_type", eventType, "error", err)
	}

	if o.hub != nil {
		_ = o.hub.Publish(ctx, streaming.StreamEvent{
			RunID:     runID,
			Stage:     stage,
			EventType: eventType,
			Payload:   payload,
		})
	}
}

func resultFromState(state *schema.WorkflowState, terminal schema.Stage) *schema.RunResult {
	return &schema.RunResult{
		RunID:     state.ID,
		Stage:     terminal,
		Document:  state.FinalDocument,
		ChartType: state.ChartType,
		SQLQuery:  state.SQLQuery,
		Score:     state.ReviewScore,
		Approved:  state.ReviewApproved,
		Iteration: state.IterationCount,
		Errors:    state.Errors,
	}
}
