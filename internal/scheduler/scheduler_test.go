package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/reportpipe/internal/streaming"
	"github.com/rendis/reportpipe/pkg/schema"
)

type countingRefresher struct {
	calls atomic.Int64
	err   error
}

func (r *countingRefresher) Refresh(context.Context) error {
	r.calls.Add(1)
	return r.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewSchedulerRejectsBadCron(t *testing.T) {
	_, err := NewScheduler(&countingRefresher{}, "not a cron", nil, testLogger())
	require.Error(t, err)
}

func TestNextRun(t *testing.T) {
	s, err := NewScheduler(&countingRefresher{}, "0 * * * *", nil, testLogger())
	require.NoError(t, err)

	from := time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)
	next := s.NextRun(from)
	assert.Equal(t, time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC), next)
}

func TestRefreshNowPublishesEvent(t *testing.T) {
	hub := streaming.NewMemoryHub()
	r := &countingRefresher{}
	s, err := NewScheduler(r, "0 * * * *", hub, testLogger())
	require.NoError(t, err)

	ch, cancel, err := hub.Subscribe(context.Background(), streaming.EventFilter{
		EventTypes: []string{schema.EventCacheRefreshed},
	})
	require.NoError(t, err)
	defer cancel()

	s.RefreshNow(context.Background())
	assert.Equal(t, int64(1), r.calls.Load())

	select {
	case got := <-ch:
		assert.Equal(t, schema.EventCacheRefreshed, got.EventType)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for refresh event")
	}
}

func TestRefreshNowFailureSkipsEvent(t *testing.T) {
	hub := streaming.NewMemoryHub()
	r := &countingRefresher{err: errors.New("database is locked")}
	s, err := NewScheduler(r, "0 * * * *", hub, testLogger())
	require.NoError(t, err)

	ch, cancel, err := hub.Subscribe(context.Background(), streaming.EventFilter{})
	require.NoError(t, err)
	defer cancel()

	s.RefreshNow(context.Background())

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event after failed refresh: %+v", evt)
	case <-time.After(50 * time.Millisecond):
		// expected
	}
}

func TestStartStop(t *testing.T) {
	r := &countingRefresher{}
	s, err := NewScheduler(r, "0 * * * *", nil, testLogger())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()))

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())

	// After a full stop the scheduler can be started again.
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
}

func TestLoopFiresOnSchedule(t *testing.T) {
	r := &countingRefresher{}
	s, err := NewScheduler(r, "* * * * *", nil, testLogger())
	require.NoError(t, err)

	// Pin "now" just before a minute boundary so the first tick lands fast.
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	// schedule.Next(base) is 10:01; the timer would wait a real minute, so
	// verify the computation instead of sleeping through it.
	next := s.NextRun(base)
	assert.Equal(t, base.Add(time.Minute), next)
}
