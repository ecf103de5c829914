package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/reportpipe/internal/store"
	"github.com/rendis/reportpipe/pkg/schema"
)

// memAppender records appended events in memory.
type memAppender struct {
	mu     sync.Mutex
	events []*store.Event
	err    error
}

func (a *memAppender) AppendEvent(_ context.Context, event *store.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, event)
	return nil
}

func (a *memAppender) types() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.events))
	for i, e := range a.events {
		out[i] = e.Type
	}
	return out
}

func TestTransitionEmitsStageStarted(t *testing.T) {
	app := &memAppender{}
	fsm := NewStageFSM(app)

	err := fsm.Transition(context.Background(), "run-1", schema.StageGenerating, schema.StageValidating)
	require.NoError(t, err)

	require.Len(t, app.events, 1)
	assert.Equal(t, schema.EventStageStarted, app.events[0].Type)
	assert.Equal(t, "validating", app.events[0].Stage)
	assert.Equal(t, "run-1", app.events[0].RunID)
}

func TestTransitionTerminalEvents(t *testing.T) {
	app := &memAppender{}
	fsm := NewStageFSM(app)
	ctx := context.Background()

	require.NoError(t, fsm.Transition(ctx, "run-1", schema.StageReporting, schema.StageDone))
	require.NoError(t, fsm.Transition(ctx, "run-2", schema.StageExecuting, schema.StageFailed))

	assert.Equal(t, []string{schema.EventRunCompleted, schema.EventRunFailed}, app.types())
}

func TestTransitionRejectsInvalid(t *testing.T) {
	fsm := NewStageFSM(&memAppender{})
	ctx := context.Background()

	cases := []struct{ from, to schema.Stage }{
		{schema.StageGenerating, schema.StageExecuting},
		{schema.StageValidating, schema.StageGenerating},
		{schema.StageDone, schema.StageGenerating},
		{schema.StageFailed, schema.StageGenerating},
		{schema.StageExecuting, schema.StageReporting},
	}
	for _, tc := range cases {
		err := fsm.Transition(ctx, "run-1", tc.from, tc.to)
		require.Error(t, err, "%s -> %s", tc.from, tc.to)
		pipeErr, ok := err.(*schema.PipeError)
		require.True(t, ok)
		assert.Equal(t, schema.ErrCodeInvalidTransition, pipeErr.Code)
	}
}

func TestTransitionRetryEdge(t *testing.T) {
	app := &memAppender{}
	fsm := NewStageFSM(app)

	err := fsm.Transition(context.Background(), "run-1", schema.StageReviewing, schema.StageGenerating)
	require.NoError(t, err)
	require.Len(t, app.events, 1)
	assert.Equal(t, schema.EventStageStarted, app.events[0].Type)
	assert.Equal(t, "generating", app.events[0].Stage)
}

func TestTransitionHooks(t *testing.T) {
	app := &memAppender{}
	fsm := NewStageFSM(app)

	var order []string
	fsm.OnBefore(schema.StageGenerating, schema.StageValidating, func(from, to string) error {
		order = append(order, "before:"+from+"->"+to)
		return nil
	})
	fsm.OnAfter(schema.StageGenerating, schema.StageValidating, func(from, to string) error {
		order = append(order, "after:"+from+"->"+to)
		return nil
	})

	require.NoError(t, fsm.Transition(context.Background(), "run-1", schema.StageGenerating, schema.StageValidating))
	assert.Equal(t, []string{"before:generating->validating", "after:generating->validating"}, order)
}

func TestTransitionBeforeHookBlocks(t *testing.T) {
	app := &memAppender{}
	fsm := NewStageFSM(app)

	fsm.OnBefore(schema.StageGenerating, schema.StageValidating, func(_, _ string) error {
		return errors.New("blocked")
	})

	err := fsm.Transition(context.Background(), "run-1", schema.StageGenerating, schema.StageValidating)
	require.Error(t, err)
	assert.Empty(t, app.events)
}

func TestTransitionAppendFailure(t *testing.T) {
	app := &memAppender{err: errors.New("disk full")}
	fsm := NewStageFSM(app)

	err := fsm.Transition(context.Background(), "run-1", schema.StageGenerating, schema.StageValidating)
	require.Error(t, err)
	pipeErr, ok := err.(*schema.PipeError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeStore, pipeErr.Code)
}
