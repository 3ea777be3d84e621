// Package events provides the process-local publish/subscribe layer modules
// use to notify each other without importing one another.
// This is part of the platform layer and contains no business logic.
package events

import (
	"context"
	"time"
)

// Event is implemented by every domain event. Subscriptions key on the
// event name, so it must be stable and unique per event type.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent carries the timestamp every event shares. Embed it and let
// NewBaseEvent fill it at publish time.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler processes events of one type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes events to subscribed handlers.
type Bus interface {
	// Publish dispatches to every handler of the event's name, each on its
	// own goroutine. Handler errors are logged, not returned.
	Publish(ctx context.Context, event Event)

	// PublishSync runs the handlers inline and collects their errors.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler under the name an Event reports from
	// EventName.
	Subscribe(eventName string, handler Handler)
}
