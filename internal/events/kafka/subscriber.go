package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/segmentio/kafka-go"
	interfaces "github.com/sheikh-saqib/distributed-cashflow-ledger/internal/interfaces"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/models/events"
)

// ErrClosed is returned by Fetch once the reader has been closed.
var ErrClosed = interfaces.ErrSubscriptionClosed

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Subscriber reads one topic as a member of a consumer group. Offsets are committed
// only through Delivery.Ack, so anything fetched but not acknowledged is delivered
// again after a restart or rebalance.
type Subscriber struct {
	reader messageReader
	logger *slog.Logger
}

// NewSubscriber joins groupID on topic.
func NewSubscriber(brokers []string, topic, groupID string, logger *slog.Logger) *Subscriber {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return newSubscriber(reader, logger)
}

func newSubscriber(reader messageReader, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{reader: reader, logger: logger}
}

// Fetch returns the next decodable event. Malformed payloads can never be applied,
// so they are committed and skipped.
func (s *Subscriber) Fetch(ctx context.Context) (interfaces.Delivery, error) {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if errors.Is(err, io.EOF) {
			return nil, ErrClosed
		}
		if err != nil {
			return nil, fmt.Errorf("kafka fetch: %w", err)
		}

		event, err := events.DecodePostingCreated(msg.Value)
		if err != nil {
			s.logger.Warn("skipping malformed posting event",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			if err := s.reader.CommitMessages(ctx, msg); err != nil {
				return nil, fmt.Errorf("kafka commit malformed message: %w", err)
			}
			continue
		}

		return &delivery{reader: s.reader, msg: msg, event: event}, nil
	}
}

func (s *Subscriber) Close() error {
	return s.reader.Close()
}

type delivery struct {
	reader messageReader
	msg    kafka.Message
	event  events.PostingCreated
}

func (d *delivery) Event() events.PostingCreated {
	return d.event
}

func (d *delivery) Ack(ctx context.Context) error {
	if err := d.reader.CommitMessages(ctx, d.msg); err != nil {
		return fmt.Errorf("kafka commit: %w", err)
	}
	return nil
}

var (
	_ interfaces.EventSubscriber = (*Subscriber)(nil)
	_ interfaces.EventPublisher  = (*Publisher)(nil)
)
