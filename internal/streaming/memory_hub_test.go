package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/reportpipe/pkg/schema"
)

func TestPublishSubscribe(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	event := StreamEvent{
		RunID:     "run-1",
		Stage:     "generating",
		EventType: schema.EventStageCompleted,
		Payload:   map[string]any{"tables_used": []string{"sales"}},
	}

	err = hub.Publish(ctx, event)
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, event.RunID, got.RunID)
		assert.Equal(t, event.Stage, got.Stage)
		assert.Equal(t, event.EventType, got.EventType)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestFilterByRunID(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{RunID: "run-1"})
	require.NoError(t, err)
	defer cancel()

	// Matching run, should be received.
	err = hub.Publish(ctx, StreamEvent{RunID: "run-1", EventType: schema.EventStageStarted})
	require.NoError(t, err)

	// Different run, should be dropped.
	err = hub.Publish(ctx, StreamEvent{RunID: "run-2", EventType: schema.EventStageStarted})
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, "run-1", got.RunID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
		// expected: the run-2 event was filtered out
	}
}

func TestFilterByEventType(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{
		EventTypes: []string{schema.EventStageCompleted, schema.EventRunFailed},
	})
	require.NoError(t, err)
	defer cancel()

	err = hub.Publish(ctx, StreamEvent{RunID: "run-1", EventType: schema.EventStageCompleted})
	require.NoError(t, err)

	err = hub.Publish(ctx, StreamEvent{RunID: "run-1", EventType: schema.EventStageStarted})
	require.NoError(t, err)

	err = hub.Publish(ctx, StreamEvent{RunID: "run-1", EventType: schema.EventRunFailed})
	require.NoError(t, err)

	var received []string
	for i := 0; i < 2; i++ {
		select {
		case got := <-ch:
			received = append(received, got.EventType)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	assert.Equal(t, []string{schema.EventStageCompleted, schema.EventRunFailed}, received)

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
		// expected
	}
}

func TestMultipleSubscribers(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch1, cancel1, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel1()

	ch2, cancel2, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel2()

	event := StreamEvent{RunID: "run-1", EventType: schema.EventRunCompleted}
	err = hub.Publish(ctx, event)
	require.NoError(t, err)

	for _, ch := range []<-chan StreamEvent{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, "run-1", got.RunID)
			assert.Equal(t, schema.EventRunCompleted, got.EventType)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestCancelSubscription(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)

	cancel()

	err = hub.Publish(ctx, StreamEvent{RunID: "run-1", EventType: schema.EventStageCompleted})
	require.NoError(t, err)

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event after cancel: %+v", evt)
	case <-time.After(50 * time.Millisecond):
		// expected: subscriber was removed
	}

	hub.mu.RLock()
	assert.Empty(t, hub.byRun)
	hub.mu.RUnlock()
}

func TestCancelLeavesSiblingWatchers(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch1, cancel1, err := hub.Subscribe(ctx, EventFilter{RunID: "run-1"})
	require.NoError(t, err)
	_, cancel2, err := hub.Subscribe(ctx, EventFilter{RunID: "run-1"})
	require.NoError(t, err)
	defer cancel1()

	// Removing one watcher from a run bucket must not disturb the other.
	cancel2()
	cancel2() // double cancel is a no-op

	require.NoError(t, hub.Publish(ctx, StreamEvent{RunID: "run-1", EventType: schema.EventStageStarted}))

	select {
	case got := <-ch1:
		assert.Equal(t, "run-1", got.RunID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBackpressure(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	// Fill the channel buffer then publish more. None of these should block.
	for i := 0; i < defaultChannelBuffer+10; i++ {
		err = hub.Publish(ctx, StreamEvent{RunID: "run-1", EventType: "tick"})
		require.NoError(t, err)
	}

	drained := 0
	for {
		select {
		case <-ch:
			drained++
		default:
			goto done
		}
	}
done:
	assert.Equal(t, defaultChannelBuffer, drained)
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()
	const goroutines = 20
	const eventsPerGoroutine = 50

	var wg sync.WaitGroup

	cancels := make([]func(), goroutines)
	for i := 0; i < goroutines; i++ {
		_, cancel, err := hub.Subscribe(ctx, EventFilter{})
		require.NoError(t, err)
		cancels[i] = cancel
	}
	defer func() {
		for _, c := range cancels {
			c()
		}
	}()

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				_ = hub.Publish(ctx, StreamEvent{RunID: "run-concurrent", EventType: "tick"})
			}
		}()
	}

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
			if err != nil {
				return
			}
			for range 5 {
				select {
				case <-ch:
				case <-time.After(10 * time.Millisecond):
				}
			}
			cancel()
		}()
	}

	wg.Wait()
}

func TestPublishCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := hub.Publish(ctx, StreamEvent{RunID: "run-1", EventType: "tick"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubscribeCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := hub.Subscribe(ctx, EventFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}
