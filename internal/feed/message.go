package feed

import (
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/studyhub/dashboard-api/internal/models"
)

// Message wraps a ChangeEvent with its RabbitMQ delivery information
type Message struct {
	Event       *models.ChangeEvent
	DeliveryTag uint64
	Channel     *amqp.Channel
}

// Ack acknowledges the message
func (m *Message) Ack() error {
	return m.Channel.Ack(m.DeliveryTag, false)
}

// Nack negatively acknowledges the message
func (m *Message) Nack(requeue bool) error {
	return m.Channel.Nack(m.DeliveryTag, false, requeue)
}

// GetEvent returns the change event carried by the message
func (m *Message) GetEvent() *models.ChangeEvent {
	return m.Event
}
