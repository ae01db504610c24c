// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// All subscribes a handler to every event type.
const All EventType = "*"

var (
	ErrBusClosed = errors.New("event bus is closed")
	ErrBusFull   = errors.New("event bus queue is full")
)

type subscriber struct {
	id      string
	typ     EventType
	handler Handler
}

func (s subscriber) matches(typ EventType) bool {
	return s.typ == All || s.typ == typ
}

// Bus fans committed records out to in-process subscribers. Records queued
// with Publish reach every subscriber in the order they were queued, and
// subscribers of one record run in the order they subscribed.
type Bus struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers []subscriber
	closed      bool
	queue       chan Record
	done        chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
	lastSeq   atomic.Uint64
}

// BusStats is a point-in-time view of the bus.
type BusStats struct {
	Subscribers int
	Pending     int
	Capacity    int
	Delivered   uint64
	Dropped     uint64
	LastSeq     uint64
}

// NewBus starts a bus whose queue holds up to bufferSize records.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	b := &Bus{
		logger: logger.Named("event_bus"),
		queue:  make(chan Record, bufferSize),
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

// Subscribe registers handler for records of eventType, or of every type
// when eventType is All.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	s := subscriber{id: uuid.NewString(), typ: eventType, handler: handler}

	b.mu.Lock()
	b.subscribers = append(b.subscribers, s)
	b.mu.Unlock()

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", s.id))
	return &subscription{bus: b, id: s.id}
}

// SubscribeFunc is Subscribe for a plain function.
func (b *Bus) SubscribeFunc(eventType EventType, fn func(context.Context, Record) error) Subscription {
	return b.Subscribe(eventType, HandlerFunc(fn))
}

func (b *Bus) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subscribers {
		if s.id == id {
			b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
			b.logger.Debug("Handler unsubscribed", zap.String("subscription_id", id))
			return
		}
	}
}

// Publish queues rec without blocking. The ledger log is authoritative, so
// a full queue drops the record and subscribers catch up from the log.
func (b *Bus) Publish(rec Record) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}

	select {
	case b.queue <- rec:
		return nil
	default:
		b.dropped.Add(1)
		b.logger.Warn("Event queue full, dropping record",
			zap.String("event_type", string(rec.Event.Type())),
			zap.Uint64("seq", rec.Seq))
		return ErrBusFull
	}
}

// Dispatch runs every matching subscriber on rec in the calling goroutine.
// Every subscriber runs even if an earlier one fails.
func (b *Bus) Dispatch(ctx context.Context, rec Record) error {
	typ := rec.Event.Type()

	b.mu.RLock()
	matched := make([]subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		if s.matches(typ) {
			matched = append(matched, s)
		}
	}
	b.mu.RUnlock()

	var errs []error
	for _, s := range matched {
		if err := s.handler.Handle(ctx, rec); err != nil {
			b.logger.Error("Subscriber failed",
				zap.String("event_type", string(typ)),
				zap.Uint64("seq", rec.Seq),
				zap.String("subscription_id", s.id),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	b.delivered.Add(1)
	b.lastSeq.Store(rec.Seq)

	if len(errs) > 0 {
		return fmt.Errorf("%d subscriber(s) failed on record %d: %w", len(errs), rec.Seq, errors.Join(errs...))
	}
	return nil
}

// run delivers queued records until the queue is closed and drained.
func (b *Bus) run() {
	defer close(b.done)
	for rec := range b.queue {
		_ = b.Dispatch(context.Background(), rec)
	}
}

// Shutdown stops accepting records and waits for the queued ones to be
// delivered, or for ctx to expire.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()

	select {
	case <-b.done:
		b.logger.Info("Event bus stopped",
			zap.Uint64("delivered", b.delivered.Load()),
			zap.Uint64("dropped", b.dropped.Load()))
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus stop timed out", zap.Int("pending", len(b.queue)))
		return ctx.Err()
	}
}

func (b *Bus) Stats() BusStats {
	b.mu.RLock()
	n := len(b.subscribers)
	b.mu.RUnlock()

	return BusStats{
		Subscribers: n,
		Pending:     len(b.queue),
		Capacity:    cap(b.queue),
		Delivered:   b.delivered.Load(),
		Dropped:     b.dropped.Load(),
		LastSeq:     b.lastSeq.Load(),
	}
}
