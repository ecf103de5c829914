package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/reportpipe/pkg/schema"
)

// Run is the persisted record of one report run.
type Run struct {
	ID            string           `json:"id"`
	Query         string           `json:"query"`
	UserProfile   map[string]any   `json:"user_profile,omitempty"`
	Status        schema.RunStatus `json:"status"`
	Stage         schema.Stage     `json:"stage"`
	SQLQuery      string           `json:"sql_query,omitempty"`
	ChartType     string           `json:"chart_type,omitempty"`
	Score         float64          `json:"score"`
	Approved      bool             `json:"approved"`
	Iteration     int              `json:"iteration"`
	MaxIterations int              `json:"max_iterations"`
	Document      []byte           `json:"-"`
	Errors        []string         `json:"errors,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Event is an immutable entry in the per-run event log.
type Event struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id"`
	Stage     string          `json:"stage,omitempty"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status *schema.RunStatus `json:"status,omitempty"`
	Since  *time.Time        `json:"since,omitempty"`
	Limit  int               `json:"limit,omitempty"`
	Offset int               `json:"offset,omitempty"`
}

// RunUpdate specifies mutable fields of a run.
type RunUpdate struct {
	Status      *schema.RunStatus `json:"status,omitempty"`
	Stage       *schema.Stage     `json:"stage,omitempty"`
	SQLQuery    *string           `json:"sql_query,omitempty"`
	ChartType   *string           `json:"chart_type,omitempty"`
	Score       *float64          `json:"score,omitempty"`
	Approved    *bool             `json:"approved,omitempty"`
	Iteration   *int              `json:"iteration,omitempty"`
	Document    []byte            `json:"-"`
	Errors      []string          `json:"errors,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// EventFilter specifies criteria for listing events.
type EventFilter struct {
	RunID     string     `json:"run_id,omitempty"`
	Stage     string     `json:"stage,omitempty"`
	EventType string     `json:"event_type,omitempty"`
	Since     *time.Time `json:"since,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}
