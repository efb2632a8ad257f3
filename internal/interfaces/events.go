package interfaces

import (
	"context"
	"errors"

	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/models/events"
)

// ErrSubscriptionClosed is returned by Fetch once the subscription is closed.
var ErrSubscriptionClosed = errors.New("subscription closed")

// EventPublisher enqueues posting events on the channel.
type EventPublisher interface {
	Publish(ctx context.Context, event events.PostingCreated) error
}

// Delivery is one received event awaiting acknowledgment.
type Delivery interface {
	Event() events.PostingCreated
	// Ack confirms the event's effect has been applied. Unacknowledged
	// deliveries are redelivered after the subscription reconnects.
	Ack(ctx context.Context) error
}

// EventSubscriber is a single subscription delivering events in queue order.
type EventSubscriber interface {
	// Fetch blocks until the next delivery is available or ctx is done.
	Fetch(ctx context.Context) (Delivery, error)
	// Close releases the subscription and its connection.
	Close() error
}
