package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRun(ctx context.Context, id string, update RunUpdate) error
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Event log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, runID string, since int64) ([]*Event, error)
	GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
