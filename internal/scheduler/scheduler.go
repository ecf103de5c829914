package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/reportpipe/internal/streaming"
	"github.com/rendis/reportpipe/pkg/schema"
)

// Refresher is the interface the scheduler drives on each tick.
// Satisfied by the warehouse metadata cache.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler refreshes the warehouse metadata cache on a cron schedule so
// prompts keep seeing a current picture of the schema.
type Scheduler struct {
	refresher Refresher
	schedule  cron.Schedule
	hub       streaming.EventHub
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// now is swappable for tests.
	now func() time.Time
}

// NewScheduler parses the cron expression (standard five-field form) and
// returns a scheduler. The hub is optional.
func NewScheduler(refresher Refresher, cronExpr string, hub streaming.EventHub, logger *slog.Logger) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return &Scheduler{
		refresher: refresher,
		schedule:  schedule,
		hub:       hub,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start launches the background refresh loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("metadata refresh scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	for {
		next := s.schedule.Next(s.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.RefreshNow(ctx)
		}
	}
}

// RefreshNow refreshes the cache immediately, outside the schedule.
func (s *Scheduler) RefreshNow(ctx context.Context) {
	start := s.now()
	if err := s.refresher.Refresh(ctx); err != nil {
		s.logger.Error("metadata refresh failed", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("metadata refreshed",
		slog.Duration("took", s.now().Sub(start)))

	if s.hub != nil {
		_ = s.hub.Publish(ctx, streaming.StreamEvent{
			EventType: schema.EventCacheRefreshed,
		})
	}
}

// NextRun returns the next scheduled refresh after the given time.
func (s *Scheduler) NextRun(from time.Time) time.Time {
	return s.schedule.Next(from)
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("metadata refresh scheduler stopped")
	return nil
}
