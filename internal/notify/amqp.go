package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Envelope is the JSON body published to the notification queue
type Envelope struct {
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPDispatcher hands notifications to a durable RabbitMQ queue for the mail/SMS workers
type AMQPDispatcher struct {
	mu     sync.Mutex
	conn   *amqp.Connection
	ch     publisher
	queue  string
	logger *logrus.Logger
}

// NewAMQPDispatcher dials the broker and declares the queue
func NewAMQPDispatcher(url, queue string, logger *logrus.Logger) (*AMQPDispatcher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: channel open failed: %w", err)
	}

	// durable, not auto-deleted, not exclusive
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: queue declare failed: %w", err)
	}

	return &AMQPDispatcher{conn: conn, ch: ch, queue: queue, logger: logger}, nil
}

func (d *AMQPDispatcher) SendTicket(ctx context.Context, n TicketNotification) error {
	// the QR data URL is large and workers can fetch it by order id
	n.QRCode = ""
	return d.publish(ctx, TypeTicketIssued, n)
}

func (d *AMQPDispatcher) SendCancellation(ctx context.Context, n CancellationNotification) error {
	return d.publish(ctx, TypeBookingCancelled, n)
}

func (d *AMQPDispatcher) publish(ctx context.Context, msgType string, data interface{}) error {
	now := time.Now().UTC()
	body, err := json.Marshal(Envelope{Type: msgType, OccurredAt: now, Data: data})
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal %s failed: %w", msgType, err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		Type:         msgType,
		Body:         body,
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ch.PublishWithContext(ctx, "", d.queue, false, false, pub); err != nil {
		d.logger.WithError(err).WithField("type", msgType).Warn("rabbitmq: publish failed")
		return fmt.Errorf("rabbitmq: publish %s failed: %w", msgType, err)
	}
	return nil
}

// Close closes the channel and connection
func (d *AMQPDispatcher) Close() error {
	if c, ok := d.ch.(*amqp.Channel); ok {
		_ = c.Close()
	}
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}
