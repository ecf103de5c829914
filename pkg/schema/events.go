package schema

// Event type constants for the run event log.
const (
	EventRunStarted   = "run_started"
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
	EventRunCancelled = "run_cancelled"

	EventStageStarted   = "stage_started"
	EventStageCompleted = "stage_completed"
	EventStageFailed    = "stage_failed"

	EventReviewRejected = "review_rejected"
	EventReviewForced   = "review_forced"

	EventCacheRefreshed = "cache_refreshed"
)

// RunStatus represents the lifecycle state of a persisted run.
type RunStatus string

const (
	RunStatusActive    RunStatus = "active"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)
