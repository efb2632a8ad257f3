// Package memory is an in-process, at-least-once event channel. Deliveries that are
// not acknowledged before their subscription closes go back to the head of the queue.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	interfaces "github.com/sheikh-saqib/distributed-cashflow-ledger/internal/interfaces"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/models/events"
)

var (
	ErrClosed          = interfaces.ErrSubscriptionClosed
	ErrUnknownDelivery = errors.New("memory channel: delivery already acknowledged or requeued")
)

type message struct {
	tag   uint64
	event events.PostingCreated
}

// Channel is a single FIFO queue shared by all of its subscriptions.
type Channel struct {
	mu      sync.Mutex
	queue   []message
	nextTag uint64
	wake    chan struct{}
}

// NewChannel creates an empty queue.
func NewChannel() *Channel {
	return &Channel{wake: make(chan struct{})}
}

// Publish enqueues event at the tail.
func (c *Channel) Publish(ctx context.Context, event events.PostingCreated) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextTag++
	c.queue = append(c.queue, message{tag: c.nextTag, event: event})
	c.signal()
	return nil
}

// Pending is the number of queued, undelivered events.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Subscribe opens a subscription with manual acknowledgment.
func (c *Channel) Subscribe() *Subscription {
	return &Subscription{ch: c, unacked: make(map[uint64]message)}
}

// signal wakes every waiting Fetch. Caller holds mu.
func (c *Channel) signal() {
	close(c.wake)
	c.wake = make(chan struct{})
}

// requeue puts messages back at the head of the queue in their original order. Caller holds mu.
func (c *Channel) requeue(msgs []message) {
	if len(msgs) == 0 {
		return
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].tag < msgs[j].tag })
	c.queue = append(msgs, c.queue...)
}

// Subscription receives events from a Channel.
type Subscription struct {
	ch      *Channel
	unacked map[uint64]message
	closed  bool
}

func (s *Subscription) Fetch(ctx context.Context) (interfaces.Delivery, error) {
	for {
		s.ch.mu.Lock()
		if s.closed {
			s.ch.mu.Unlock()
			return nil, ErrClosed
		}
		if len(s.ch.queue) > 0 {
			msg := s.ch.queue[0]
			s.ch.queue = s.ch.queue[1:]
			s.unacked[msg.tag] = msg
			s.ch.mu.Unlock()
			return &delivery{sub: s, msg: msg}, nil
		}
		wake := s.ch.wake
		s.ch.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}

// Unacked is the number of deliveries awaiting acknowledgment.
func (s *Subscription) Unacked() int {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	return len(s.unacked)
}

// Close requeues every unacknowledged delivery.
func (s *Subscription) Close() error {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	msgs := make([]message, 0, len(s.unacked))
	for _, m := range s.unacked {
		msgs = append(msgs, m)
	}
	s.unacked = nil
	s.ch.requeue(msgs)
	// Wakes Fetch calls blocked on this subscription as well as other subscribers.
	s.ch.signal()
	return nil
}

type delivery struct {
	sub *Subscription
	msg message
}

func (d *delivery) Event() events.PostingCreated {
	return d.msg.event
}

func (d *delivery) Ack(ctx context.Context) error {
	d.sub.ch.mu.Lock()
	defer d.sub.ch.mu.Unlock()

	if d.sub.closed {
		return ErrClosed
	}
	if _, ok := d.sub.unacked[d.msg.tag]; !ok {
		return ErrUnknownDelivery
	}
	delete(d.sub.unacked, d.msg.tag)
	return nil
}

var (
	_ interfaces.EventPublisher  = (*Channel)(nil)
	_ interfaces.EventSubscriber = (*Subscription)(nil)
)
