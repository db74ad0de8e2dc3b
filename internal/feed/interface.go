package feed

import (
	"context"
	"time"

	"github.com/studyhub/dashboard-api/internal/models"
)

// MessageInterface defines the interface for feed messages
// This enables better testability by allowing mock implementations
type MessageInterface interface {
	Ack() error
	Nack(requeue bool) error
	GetEvent() *models.ChangeEvent
}

// ChangeFeed is the interface for the row-change event feed
type ChangeFeed interface {
	// Publish sends a change event to the feed
	Publish(ctx context.Context, ev *models.ChangeEvent) error

	// Consume returns a channel of messages from the feed
	// Messages are delivered asynchronously as they arrive
	// The caller is responsible for acknowledging each message
	// Prefetch controls how many unacknowledged messages each consumer can hold
	// Returns a channel that will be closed when the context is cancelled or an error occurs
	Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error)

	// Close closes the feed connection
	Close() error

	// HealthCheck verifies the feed connection is healthy
	HealthCheck(ctx context.Context) error
}

// DLQPurger removes dead-lettered messages older than a retention window
type DLQPurger interface {
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error)
}
