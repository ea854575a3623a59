package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/trogers1052/position-exit-signals/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes position lifecycle events to Kafka
type Producer struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
		now:    time.Now,
	}
}

// PublishPositionOpened publishes a position opened event
func (p *Producer) PublishPositionOpened(ctx context.Context, pos *models.Position) error {
	return p.publish(ctx, models.PositionEvent{
		EventType:  models.EventPositionOpened,
		PositionID: pos.ID,
		Position:   pos,
		Timestamp:  p.now().UTC(),
	})
}

// PublishPositionSold publishes a position sold event
func (p *Producer) PublishPositionSold(ctx context.Context, pos *models.Position) error {
	return p.publish(ctx, models.PositionEvent{
		EventType:  models.EventPositionSold,
		PositionID: pos.ID,
		Position:   pos,
		Timestamp:  p.now().UTC(),
	})
}

// Events for one position share a key so they stay ordered on a partition
func (p *Producer) publish(ctx context.Context, event models.PositionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.PositionID),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
