package domain

import "time"

// EventType identifies a pipeline lifecycle event.
type EventType string

const (
	EventTypeRunSubmitted EventType = "run.submitted"
	EventTypeRunStarted   EventType = "run.started"
	EventTypeRunSucceeded EventType = "run.succeeded"
	EventTypeRunFailed    EventType = "run.failed"
	EventTypeRunCancelled EventType = "run.cancelled"

	EventTypeStageStarted  EventType = "stage.started"
	EventTypeStageSuccess  EventType = "stage.success"
	EventTypeStageFailure  EventType = "stage.failure"
	EventTypeStageSkipped  EventType = "stage.skipped"
	EventTypeNotifySent    EventType = "notify.sent"
	EventTypeNotifyFailure EventType = "notify.failure"
)

// Event is published on the event bus at every run and stage transition.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	RunID     string                 `json:"run_id"`
	StageID   string                 `json:"stage_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
