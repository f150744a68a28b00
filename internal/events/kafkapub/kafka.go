// Package kafkapub publishes domain events to a Kafka topic.
package kafkapub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/TomaszGol/iOS-Messenger/internal/events"
	"github.com/TomaszGol/iOS-Messenger/internal/metrics"
)

// Writer is the subset of *kafka.Writer used here.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes events keyed by conversation id, so a conversation's
// events stay ordered within one partition.
type Publisher struct {
	w       Writer
	log     *zap.Logger
	metrics *metrics.Metrics
}

var _ events.Publisher = (*Publisher)(nil)

// New connects a writer to brokers/topic.
func New(brokers []string, topic string, log *zap.Logger, m *metrics.Metrics) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return NewWithWriter(w, log, m)
}

// NewWithWriter wraps an existing writer.
func NewWithWriter(w Writer, log *zap.Logger, m *metrics.Metrics) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{w: w, log: log, metrics: m}
}

// Publish implements events.Publisher.
func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.ConversationID),
		Value: value,
		Time:  e.At,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	})
	p.metrics.Event(string(e.Type), err)
	if err != nil {
		p.log.Warn("publish event", zap.String("type", string(e.Type)), zap.String("conversation", e.ConversationID), zap.Error(err))
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error { return p.w.Close() }
