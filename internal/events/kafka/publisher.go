package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/models"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/models/events"
)

const (
	eventTypeHeader  = "event-type"
	postingCreatedV1 = "posting.created.v1"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer messageWriter
}

// NewPublisher writes to topic. Messages are keyed by day so all events for one
// day land on the same partition and keep their order.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, event events.PostingCreated) error {
	data, err := event.Encode()
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(models.FormatDay(event.CreatedAt)),
		Value: data,
		Headers: []kafka.Header{
			{Key: eventTypeHeader, Value: []byte(postingCreatedV1)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
