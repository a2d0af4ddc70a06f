package interfaces

import "context"

// EventType identifies an application event published on the in-process bus
type EventType string

const (
	EventSourceCreated EventType = "source_created"
	EventSourceDeleted EventType = "source_deleted"
	EventSourceLive    EventType = "source_live"
	EventSourceErrored EventType = "source_errored"

	EventJobQueued    EventType = "job_queued"
	EventJobStarted   EventType = "job_started"
	EventJobCompleted EventType = "job_completed"
	EventJobFailed    EventType = "job_failed"
	EventJobRequeued  EventType = "job_requeued"

	EventStepStarted   EventType = "step_started"
	EventStepCompleted EventType = "step_completed"
	EventStepFailed    EventType = "step_failed"

	EventHealthChecked EventType = "health_checked"
)

// Event is a published application event
type Event struct {
	Type    EventType              `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// EventHandler processes a published event
type EventHandler func(ctx context.Context, event Event) error

// EventService is the in-process pub/sub bus. It feeds the websocket
// stream and, through a subscriber, the queue wake notifier.
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error
	Publish(ctx context.Context, event Event) error
	PublishSync(ctx context.Context, event Event) error
}
