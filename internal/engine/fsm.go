package engine

import (
	"context"
	"sync"

	"github.com/rendis/reportpipe/internal/store"
	"github.com/rendis/reportpipe/pkg/schema"
)

// TransitionHook is called before or after a stage transition.
type TransitionHook func(from, to string) error

// EventAppender is satisfied by the Store and EventLog; used by the FSM to
// emit events on transitions.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

type hookKey struct {
	from, to schema.Stage
}

// StageFSM manages the pipeline's stage transitions for a run.
type StageFSM struct {
	mu       sync.Mutex
	appender EventAppender
	before   map[hookKey][]TransitionHook
	after    map[hookKey][]TransitionHook
}

// NewStageFSM creates a StageFSM that emits events via the given appender.
func NewStageFSM(appender EventAppender) *StageFSM {
	return &StageFSM{
		appender: appender,
		before:   make(map[hookKey][]TransitionHook),
		after:    make(map[hookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a stage transition.
func (f *StageFSM) OnBefore(from, to schema.Stage, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a stage transition.
func (f *StageFSM) OnAfter(from, to schema.Stage, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates and executes a stage transition, emitting the
// corresponding event via the appender. The caller is responsible for
// persisting the new stage to the store.
func (f *StageFSM) Transition(ctx context.Context, runID string, from, to schema.Stage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !isValidTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid stage transition: %s -> %s", from, to).
			WithDetails(map[string]any{"run_id": runID, "from": string(from), "to": string(to)})
	}

	key := hookKey{from, to}

	for _, hook := range f.before[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	eventType := transitionEventType(to)
	if eventType != "" {
		event := &store.Event{
			RunID: runID,
			Stage: string(to),
			Type:  eventType,
		}
		if err := f.appender.AppendEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "emit stage event: %s", err.Error()).WithCause(err)
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	return nil
}

func isValidTransition(from, to schema.Stage) bool {
	allowed, ok := ValidStageTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}

func transitionEventType(to schema.Stage) string {
	switch to {
	case schema.StageDone:
		return schema.EventRunCompleted
	case schema.StageFailed:
		return schema.EventRunFailed
	default:
		return schema.EventStageStarted
	}
}

// ValidStageTransitions defines the allowed transitions of the pipeline.
// The only backward edge is reviewing -> generating, taken on a retry.
var ValidStageTransitions = map[schema.Stage][]schema.Stage{
	schema.StageGenerating:  {schema.StageValidating, schema.StageFailed},
	schema.StageValidating:  {schema.StageExecuting, schema.StageFailed},
	schema.StageExecuting:   {schema.StageVisualizing, schema.StageFailed},
	schema.StageVisualizing: {schema.StageReviewing, schema.StageFailed},
	schema.StageReviewing:   {schema.StageGenerating, schema.StageReporting, schema.StageFailed},
	schema.StageReporting:   {schema.StageDone, schema.StageFailed},
	schema.StageDone:        {},
	schema.StageFailed:      {},
}
