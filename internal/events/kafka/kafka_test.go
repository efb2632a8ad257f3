package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/models"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/models/events"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func sampleEvent() events.PostingCreated {
	return events.PostingCreated{
		PostingID: "0b7e2a44-0d1c-4a9b-9a55-3d1f6f1d2f10",
		Amount:    decimal.RequireFromString("100.00"),
		Kind:      models.Credit,
		CreatedAt: time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{writer: w}

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "2024-01-01", string(w.msgs[0].Key))
	assert.Equal(t, postingCreatedV1, string(w.msgs[0].Headers[0].Value))

	decoded, err := events.DecodePostingCreated(w.msgs[0].Value)
	require.NoError(t, err)
	assert.True(t, decoded.Amount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, models.Credit, decoded.Kind)
}

func TestPublisher_PublishError(t *testing.T) {
	p := &Publisher{writer: &fakeWriter{err: errors.New("leader not available")}}
	assert.ErrorContains(t, p.Publish(context.Background(), sampleEvent()), "kafka publish")
}

func TestSubscriber_FetchAndAck(t *testing.T) {
	data, err := sampleEvent().Encode()
	require.NoError(t, err)

	r := &fakeReader{msgs: []kafka.Message{{Offset: 7, Value: data}}}
	s := newSubscriber(r, nil)
	ctx := context.Background()

	d, err := s.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", models.FormatDay(d.Event().Day()))
	assert.Empty(t, r.committed, "fetch must not commit")

	require.NoError(t, d.Ack(ctx))
	assert.Equal(t, []int64{7}, r.committed)

	_, err = s.Fetch(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubscriber_SkipsMalformed(t *testing.T) {
	good, err := sampleEvent().Encode()
	require.NoError(t, err)

	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte("{not json")},
		{Offset: 2, Value: []byte(`{"amount":"1.00","kind":"X","createdAt":"2024-01-01T00:00:00Z"}`)},
		{Offset: 3, Value: []byte(`{"amount":"-50.00","kind":"C","createdAt":"2024-01-01T00:00:00Z"}`)},
		{Offset: 4, Value: good},
	}}
	s := newSubscriber(r, nil)

	d, err := s.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Credit, d.Event().Kind)
	assert.Equal(t, []int64{1, 2, 3}, r.committed)
	assert.True(t, d.Event().Delta().IsPositive())
}
