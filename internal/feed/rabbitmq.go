package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/studyhub/dashboard-api/internal/models"
)

const (
	// DefaultExchangeName is the topic exchange carrying row changes
	DefaultExchangeName = "studyhub.changes"
	// DefaultQueueName is the queue the stats worker consumes
	DefaultQueueName = "dashboard_stats_changes"
	// DefaultDLQName is the dead letter queue for malformed events
	DefaultDLQName = "dashboard_stats_changes_dlq"
	// routingKeyPrefix prefixes per-table routing keys (change.<table>)
	routingKeyPrefix = "change."
	// dlqRoutingKey routes dead-lettered messages to the DLQ
	dlqRoutingKey = "dlq"
)

// RoutingKey returns the routing key for a table's change events
func RoutingKey(table models.ChangeTable) string {
	return routingKeyPrefix + string(table)
}

// RabbitMQFeed implements ChangeFeed using RabbitMQ
type RabbitMQFeed struct {
	conn         *amqp.Connection
	channel      *amqp.Channel
	queueName    string
	dlqName      string
	exchangeName string
}

// NewRabbitMQFeed connects to RabbitMQ and declares the change topology
func NewRabbitMQFeed(amqpURL string) (*RabbitMQFeed, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			_ = closeErr
		}
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	f := &RabbitMQFeed{
		conn:         conn,
		channel:      ch,
		queueName:    DefaultQueueName,
		dlqName:      DefaultDLQName,
		exchangeName: DefaultExchangeName,
	}

	if err := f.setup(); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			_ = closeErr
		}
		return nil, fmt.Errorf("failed to setup change feed: %w", err)
	}

	return f, nil
}

// setup declares the exchange, queue, and DLQ and binds them
func (f *RabbitMQFeed) setup() error {
	err := f.channel.ExchangeDeclare(
		f.exchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Dead letter queue for malformed events
	_, err = f.channel.QueueDeclare(
		f.dlqName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}

	err = f.channel.QueueBind(
		f.dlqName,
		dlqRoutingKey,
		f.exchangeName,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}

	// Main queue dead-letters into the DLQ
	queueArgs := amqp.Table{
		"x-dead-letter-exchange":    f.exchangeName,
		"x-dead-letter-routing-key": dlqRoutingKey,
	}
	_, err = f.channel.QueueDeclare(
		f.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		queueArgs,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	// One binding per table keeps unrelated traffic off the queue
	for _, table := range models.KnownTables {
		err = f.channel.QueueBind(
			f.queueName,
			RoutingKey(table),
			f.exchangeName,
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("failed to bind queue for table %s: %w", table, err)
		}
	}

	return nil
}

// Publish sends a change event to the feed, routed by its table
func (f *RabbitMQFeed) Publish(ctx context.Context, ev *models.ChangeEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("refusing to publish invalid event: %w", err)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Timestamp:    ev.OccurredAt,
	}

	err = f.channel.PublishWithContext(
		ctx,
		f.exchangeName,
		RoutingKey(ev.Table),
		false, // mandatory
		false, // immediate
		publishing,
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Consume returns a channel of messages from the feed using async delivery.
// Malformed payloads are nacked without requeue so they dead-letter into
// the DLQ instead of looping.
func (f *RabbitMQFeed) Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error) {
	// Dedicated channel for consuming, separate from the publish channel
	consumeCh, err := f.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create consumer channel: %w", err)
	}

	// Prefetch controls how many unacknowledged messages this consumer
	// holds; prefetch of 1 gives fair dispatch across workers
	if err := consumeCh.Qos(prefetchCount, 0, false); err != nil {
		if closeErr := consumeCh.Close(); closeErr != nil {
			_ = closeErr
		}
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := consumeCh.Consume(
		f.queueName,
		"",    // consumer tag (empty = auto-generate)
		false, // auto-ack (false = manual ack required)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		if closeErr := consumeCh.Close(); closeErr != nil {
			_ = closeErr
		}
		return nil, nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	msgChan := make(chan *Message, prefetchCount)
	errChan := make(chan error, 1)

	go func() {
		defer close(msgChan)
		defer close(errChan)
		defer func() {
			if err := consumeCh.Close(); err != nil {
				_ = err // channel may already be closed
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					errChan <- fmt.Errorf("delivery channel closed")
					return
				}

				var ev models.ChangeEvent
				if err := json.Unmarshal(delivery.Body, &ev); err != nil {
					// Malformed payload, dead-letter it
					_ = delivery.Nack(false, false)
					errChan <- fmt.Errorf("failed to unmarshal event: %w", err)
					continue
				}
				if err := ev.Validate(); err != nil {
					_ = delivery.Nack(false, false)
					errChan <- fmt.Errorf("invalid event: %w", err)
					continue
				}

				msg := &Message{
					Event:       &ev,
					DeliveryTag: delivery.DeliveryTag,
					Channel:     consumeCh,
				}

				select {
				case <-ctx.Done():
					// Context cancelled, requeue for another worker
					_ = delivery.Nack(false, true)
					return
				case msgChan <- msg:
				}
			}
		}
	}()

	return msgChan, errChan, nil
}

// HealthCheck verifies the feed connection is healthy
func (f *RabbitMQFeed) HealthCheck(ctx context.Context) error {
	if f.conn == nil || f.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection is closed")
	}
	if f.channel == nil || f.channel.IsClosed() {
		return fmt.Errorf("rabbitmq channel is closed")
	}
	return nil
}

// PurgeOlderThan drains DLQ messages older than retention. Messages are
// roughly FIFO, so the purge stops at the first young message and requeues
// it.
func (f *RabbitMQFeed) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)
	purged := 0

	for {
		if err := ctx.Err(); err != nil {
			return purged, err
		}

		msg, ok, err := f.channel.Get(f.dlqName, false)
		if err != nil {
			return purged, fmt.Errorf("failed to get DLQ message: %w", err)
		}
		if !ok {
			return purged, nil
		}

		if msg.Timestamp.IsZero() || msg.Timestamp.Before(cutoff) {
			if err := msg.Ack(false); err != nil {
				return purged, fmt.Errorf("failed to drop DLQ message: %w", err)
			}
			purged++
			continue
		}

		// First message younger than the cutoff; put it back and stop
		_ = msg.Nack(false, true)
		return purged, nil
	}
}

// Close closes the feed connection
func (f *RabbitMQFeed) Close() error {
	var err error
	if f.channel != nil {
		err = f.channel.Close()
	}
	if f.conn != nil {
		if closeErr := f.conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

// Ensure RabbitMQFeed satisfies the feed interfaces
var (
	_ ChangeFeed = (*RabbitMQFeed)(nil)
	_ DLQPurger  = (*RabbitMQFeed)(nil)
)
