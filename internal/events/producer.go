// Package events publishes payment lifecycle events to Kafka
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Payment event types
const (
	PaymentPending   = "payment.pending"
	PaymentCompleted = "payment.completed"
	PaymentRefunded  = "payment.refunded"
	PaymentDeleted   = "payment.deleted"
)

// PaymentEvent describes a change to a payment row
type PaymentEvent struct {
	Type       string     `json:"type"`
	PaymentID  uuid.UUID  `json:"payment_id"`
	OrderID    uuid.UUID  `json:"order_id"`
	BookingID  *uuid.UUID `json:"booking_id,omitempty"`
	UserID     uuid.UUID  `json:"user_id"`
	Amount     float64    `json:"amount"`
	Currency   string     `json:"currency"`
	Status     string     `json:"status"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Publisher publishes payment events
type Publisher interface {
	PublishPaymentEvent(ctx context.Context, event *PaymentEvent) error
	Close() error
}

// Producer is a sarama sync producer. With no brokers it runs in mock mode and only logs.
type Producer struct {
	producer    sarama.SyncProducer
	mockMode    bool
	topicPrefix string
	log         *logrus.Logger
}

// NewProducer connects to the brokers, or returns a mock producer when brokers is empty
func NewProducer(brokers []string, topicPrefix string, log *logrus.Logger) (*Producer, error) {
	if len(brokers) == 0 {
		log.Info("Kafka producer running in mock mode - no brokers configured")
		return &Producer{mockMode: true, topicPrefix: topicPrefix, log: log}, nil
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	log.WithField("brokers", brokers).Info("Connected to Kafka brokers")
	return newProducer(producer, topicPrefix, log), nil
}

func newProducer(producer sarama.SyncProducer, topicPrefix string, log *logrus.Logger) *Producer {
	return &Producer{producer: producer, topicPrefix: topicPrefix, log: log}
}

// PublishPaymentEvent sends the event keyed by order id so events of one order stay ordered
func (p *Producer) PublishPaymentEvent(ctx context.Context, event *PaymentEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := p.TopicFor(event.Type)

	if p.mockMode {
		p.log.WithFields(logrus.Fields{
			"topic":    topic,
			"type":     event.Type,
			"order_id": event.OrderID,
		}).Debug("Mock publishing payment event")
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.OrderID.String()),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.WithError(err).WithField("topic", topic).Error("Failed to send Kafka message")
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"topic":     topic,
		"partition": partition,
		"offset":    offset,
		"order_id":  event.OrderID,
	}).Debug("Payment event published")
	return nil
}

// TopicFor maps "payment.refunded" to "<prefix>-refunded"
func (p *Producer) TopicFor(eventType string) string {
	suffix := "events"
	if i := strings.LastIndex(eventType, "."); i >= 0 && i < len(eventType)-1 {
		suffix = eventType[i+1:]
	}
	return p.topicPrefix + "-" + suffix
}

func (p *Producer) Close() error {
	if p.mockMode || p.producer == nil {
		return nil
	}
	p.log.Info("Closing Kafka producer connection")
	return p.producer.Close()
}
