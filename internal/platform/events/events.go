// Package events publishes report run lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const TypeRunCompleted = "report.run.completed"

// Event announces the outcome of a report run.
type Event struct {
	Type        string    `json:"type"`
	RunID       string    `json:"runId"`
	ReportID    string    `json:"reportId"`
	Status      string    `json:"status"`
	RowCount    int       `json:"rowCount"`
	RequestedBy string    `json:"requestedBy,omitempty"`
	Error       string    `json:"error,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON keyed by report id, so every run of a
// report lands on the same partition.
type KafkaPublisher struct {
	w      messageWriter
	topic  string
	logger zerolog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) *KafkaPublisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	})
	return newKafkaPublisher(w, topic, logger)
}

func newKafkaPublisher(w messageWriter, topic string, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		w:      w,
		topic:  topic,
		logger: logger.With().Str("component", "events").Str("topic", topic).Logger(),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(evt.ReportID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(evt.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	p.logger.Debug().Str("run_id", evt.RunID).Str("type", evt.Type).Msg("event published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// NoopPublisher drops every event. It is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                         { return nil }
