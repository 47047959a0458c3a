package interfaces

import (
	"context"

	"github.com/ternarybob/lectern/internal/models"
)

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event models.Event)

// Subscription is a handle returned by Subscribe. Releasing it is always
// safe, including after the service is closed.
type Subscription interface {
	Unsubscribe()
}

// EventService manages the in-process pub/sub event bus
type EventService interface {
	// Subscribe registers a handler for an event type
	Subscribe(eventType models.EventType, handler EventHandler) Subscription

	// Publish delivers an event to all subscribers asynchronously
	Publish(ctx context.Context, event models.Event)

	// PublishSync delivers an event and waits for all handlers to complete
	PublishSync(ctx context.Context, event models.Event)

	// Close shuts down the event service
	Close() error
}
