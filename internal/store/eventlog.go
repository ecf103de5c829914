package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rendis/reportpipe/pkg/schema"
)

// EventLog provides event-sourcing operations on top of a LibSQLStore.
type EventLog struct {
	store *LibSQLStore
}

// NewEventLog wraps a LibSQLStore to provide event-sourcing operations.
func NewEventLog(s *LibSQLStore) *EventLog {
	return &EventLog{store: s}
}

// AppendEvent appends an event with a monotonically increasing per-run
// sequence. A write-intent statement forces immediate lock acquisition so
// concurrent writers cannot interleave sequence reads and writes.
func (el *EventLog) AppendEvent(ctx context.Context, event *Event) error {
	db := el.store.DB()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin immediate tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode, BeginTx alone may start a deferred transaction.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE run_id = ?`, event.RunID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (run_id, stage, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.RunID, nullStr(event.Stage), event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// GetEvents returns events for a run with sequence > since, ordered by sequence ASC.
func (el *EventLog) GetEvents(ctx context.Context, runID string, since int64) ([]*Event, error) {
	return el.store.GetEvents(ctx, runID, since)
}

// GetEventsByType returns events of a specific type matching the filter.
func (el *EventLog) GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error) {
	return el.store.GetEventsByType(ctx, eventType, filter)
}

// StageRecord is a reconstructed view of one stage pass within a run.
type StageRecord struct {
	Stage       string     `json:"stage"`
	Completed   bool       `json:"completed"`
	Failed      bool       `json:"failed"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms,omitempty"`
}

// ReplayRun replays the event log of a run and returns the ordered stage
// timeline. Returns an error if sequence gaps are detected.
func (el *EventLog) ReplayRun(ctx context.Context, runID string) ([]*StageRecord, error) {
	events, err := el.store.GetEvents(ctx, runID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in run %s: expected %d, got %d", runID, expected, e.Sequence)
		}
	}

	var timeline []*StageRecord
	var current *StageRecord

	for _, e := range events {
		switch e.Type {
		case schema.EventStageStarted:
			ts := e.Timestamp
			current = &StageRecord{Stage: e.Stage, StartedAt: &ts}
			timeline = append(timeline, current)

		case schema.EventStageCompleted:
			if current == nil || current.Stage != e.Stage {
				continue
			}
			ts := e.Timestamp
			current.Completed = true
			current.CompletedAt = &ts
			if current.StartedAt != nil {
				current.DurationMs = ts.Sub(*current.StartedAt).Milliseconds()
			}

		case schema.EventStageFailed:
			if current == nil || current.Stage != e.Stage {
				continue
			}
			current.Failed = true
		}
	}

	return timeline, nil
}
