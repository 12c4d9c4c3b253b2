// Package eventbus defines the publish/subscribe contract used to announce
// exchange-rate refreshes.
package eventbus

import "context"

// Event is anything that can be routed by its type name.
type Event interface {
	Type() string
}

// HandlerFunc handles one event.
type HandlerFunc func(ctx context.Context, e Event) error

// Bus publishes events and dispatches them to registered handlers.
type Bus interface {
	Emit(ctx context.Context, e Event) error
	Register(eventType string, handler HandlerFunc)
}

// Factory returns a new zero event to decode a payload into. Buses that
// cross a process boundary use one per event type.
type Factory func() Event

// Factories maps event types to their factories.
type Factories map[string]Factory
