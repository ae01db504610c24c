package events

import (
	"context"
	"sync"
)

// Handler consumes committed records. Handlers share the delivery goroutine,
// so a slow handler delays every later record.
type Handler interface {
	Handle(ctx context.Context, rec Record) error
}

type HandlerFunc func(ctx context.Context, rec Record) error

func (f HandlerFunc) Handle(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}

// Subscription is returned by Bus.Subscribe.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	bus  *Bus
	id   string
	once sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() { s.bus.unsubscribe(s.id) })
}
