package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/garyjia/purchase-approval/internal/domain/event"
)

// ErrClosed is returned by Close on a dispatcher that is already shut down
var ErrClosed = errors.New("dispatcher closed")

// Handler reacts to one purchase event
type Handler func(ctx context.Context, evt *event.Event) error

// Dispatcher fans committed purchase events out to their subscribers. Every
// handler runs on its own goroutine and Close waits for the ones in flight.
type Dispatcher interface {
	Subscribe(eventType event.Type, name string, handler Handler)
	Publish(ctx context.Context, events ...*event.Event)
	Close() error
}

// Logger is the slice of the service logger the dispatcher needs
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type subscriber struct {
	name   string
	handle Handler
}

type bus struct {
	logger Logger

	// mu guards subs and closed; Publish holds it while adding to inflight
	mu       sync.RWMutex
	subs     map[event.Type][]subscriber
	closed   bool
	inflight sync.WaitGroup
}

// Option configures the dispatcher
type Option func(*bus)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(b *bus) {
		b.logger = logger
	}
}

// NewDispatcher creates an open dispatcher with no subscribers
func NewDispatcher(opts ...Option) Dispatcher {
	b := &bus{
		logger: nopLogger{},
		subs:   make(map[event.Type][]subscriber),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *bus) Subscribe(eventType event.Type, name string, handler Handler) {
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], subscriber{name: name, handle: handler})
	b.mu.Unlock()

	b.logger.Info("Handler subscribed", "event_type", eventType, "handler_name", name)
}

// Publish hands each non-nil event to its subscribers in slice order. The
// handlers are detached from ctx cancellation since the caller's request
// usually ends before they finish.
func (b *bus) Publish(ctx context.Context, events ...*event.Event) {
	ctx = context.WithoutCancel(ctx)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, evt := range events {
		if evt == nil {
			continue
		}
		if b.closed {
			b.logger.Error("Event dropped, dispatcher is closed",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"request_id", evt.RequestID,
			)
			continue
		}

		subs := b.subs[evt.Type]
		b.logger.Info("Publishing event",
			"event_type", evt.Type,
			"event_id", evt.ID,
			"request_id", evt.RequestID,
			"handler_count", len(subs),
		)
		for _, sub := range subs {
			b.inflight.Add(1)
			go b.run(ctx, evt, sub)
		}
	}
}

func (b *bus) run(ctx context.Context, evt *event.Event, sub subscriber) {
	defer b.inflight.Done()

	if err := invoke(ctx, evt, sub.handle); err != nil {
		b.logger.Error("Event handler failed",
			"event_type", evt.Type,
			"event_id", evt.ID,
			"request_id", evt.RequestID,
			"handler_name", sub.name,
			"error", err,
		)
	}
}

// invoke turns a handler panic into an error
func invoke(ctx context.Context, evt *event.Event, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, evt)
}

// Close stops accepting events and blocks until running handlers return
func (b *bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.closed = true
	b.mu.Unlock()

	b.logger.Info("Closing dispatcher, waiting for handlers")
	b.inflight.Wait()
	b.logger.Info("Dispatcher closed")
	return nil
}
