package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/purchase-approval/internal/domain/event"
)

type recordingLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (l *recordingLogger) Info(msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *recordingLogger) Error(msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) errorMessages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errors...)
}

// seen collects the events a handler received
type seen struct {
	mu     sync.Mutex
	events []*event.Event
}

func (s *seen) handler(ctx context.Context, evt *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *seen) types() []event.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Type, 0, len(s.events))
	for _, evt := range s.events {
		out = append(out, evt.Type)
	}
	return out
}

func TestDispatcher_PublishRoutesByType(t *testing.T) {
	tests := []struct {
		name         string
		events       []*event.Event
		wantApprover []event.Type
		wantOutcome  []event.Type
	}{
		{
			name:         "step activation",
			events:       []*event.Event{event.NewEvent(event.TypeStepActivated, 1, nil)},
			wantApprover: []event.Type{event.TypeStepActivated},
		},
		{
			name: "mixed batch",
			events: []*event.Event{
				event.NewEvent(event.TypeStepActivated, 1, nil),
				event.NewEvent(event.TypeRequestApproved, 1, nil),
			},
			wantApprover: []event.Type{event.TypeStepActivated},
			wantOutcome:  []event.Type{event.TypeRequestApproved},
		},
		{
			name:        "nil events are skipped",
			events:      []*event.Event{nil, event.NewEvent(event.TypeRequestRejected, 2, nil), nil},
			wantOutcome: []event.Type{event.TypeRequestRejected},
		},
		{
			name:   "no subscribers",
			events: []*event.Event{event.NewEvent(event.TypeStatusChanged, 3, nil)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher()
			approver, outcome := &seen{}, &seen{}
			d.Subscribe(event.TypeStepActivated, "approver", approver.handler)
			d.Subscribe(event.TypeRequestApproved, "outcome", outcome.handler)
			d.Subscribe(event.TypeRequestRejected, "outcome", outcome.handler)

			d.Publish(context.Background(), tt.events...)
			require.NoError(t, d.Close())

			assert.ElementsMatch(t, tt.wantApprover, approver.types())
			assert.ElementsMatch(t, tt.wantOutcome, outcome.types())
		})
	}
}

func TestDispatcher_EverySubscriberRuns(t *testing.T) {
	d := NewDispatcher()
	var calls atomic.Int32
	for _, name := range []string{"notify", "count", "audit"} {
		d.Subscribe(event.TypeRequestCancelled, name, func(ctx context.Context, evt *event.Event) error {
			calls.Add(1)
			return nil
		})
	}

	d.Publish(context.Background(), event.NewEvent(event.TypeRequestCancelled, 4, nil))
	require.NoError(t, d.Close())
	assert.Equal(t, int32(3), calls.Load())
}

func TestDispatcher_HandlerFailuresAreLogged(t *testing.T) {
	tests := []struct {
		name    string
		handler Handler
	}{
		{name: "error", handler: func(ctx context.Context, evt *event.Event) error { return errors.New("smtp down") }},
		{name: "panic", handler: func(ctx context.Context, evt *event.Event) error { panic("nil approver") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &recordingLogger{}
			d := NewDispatcher(WithLogger(logger))
			healthy := &seen{}
			d.Subscribe(event.TypeRequestApproved, "broken", tt.handler)
			d.Subscribe(event.TypeRequestApproved, "healthy", healthy.handler)

			d.Publish(context.Background(), event.NewEvent(event.TypeRequestApproved, 5, nil))
			require.NoError(t, d.Close())

			assert.Equal(t, []string{"Event handler failed"}, logger.errorMessages())
			assert.Len(t, healthy.types(), 1)
		})
	}
}

func TestDispatcher_HandlersOutliveCallerContext(t *testing.T) {
	d := NewDispatcher()
	release := make(chan struct{})
	var cancelled atomic.Bool

	d.Subscribe(event.TypeStepActivated, "slow", func(ctx context.Context, evt *event.Event) error {
		<-release
		cancelled.Store(ctx.Err() != nil)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	d.Publish(ctx, event.NewEvent(event.TypeStepActivated, 6, nil))
	cancel()
	close(release)
	require.NoError(t, d.Close())

	assert.False(t, cancelled.Load())
}

func TestDispatcher_Close(t *testing.T) {
	logger := &recordingLogger{}
	d := NewDispatcher(WithLogger(logger))
	started := make(chan struct{})
	var finished atomic.Bool

	d.Subscribe(event.TypeRequestRejected, "slow", func(ctx context.Context, evt *event.Event) error {
		close(started)
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil
	})

	d.Publish(context.Background(), event.NewEvent(event.TypeRequestRejected, 7, nil))
	<-started
	require.NoError(t, d.Close())
	assert.True(t, finished.Load(), "close must wait for running handlers")

	assert.ErrorIs(t, d.Close(), ErrClosed)

	d.Publish(context.Background(), event.NewEvent(event.TypeRequestRejected, 8, nil))
	assert.Equal(t, []string{"Event dropped, dispatcher is closed"}, logger.errorMessages())
}

func TestDispatcher_ConcurrentSubscribeAndPublish(t *testing.T) {
	d := NewDispatcher()
	var calls atomic.Int32
	count := func(ctx context.Context, evt *event.Event) error {
		calls.Add(1)
		return nil
	}
	d.Subscribe(event.TypeStatusChanged, "count", count)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			d.Publish(context.Background(), event.NewEvent(event.TypeStatusChanged, 9, nil))
		}()
		go func() {
			defer wg.Done()
			d.Subscribe(event.TypeStepActivated, "late", count)
		}()
	}
	wg.Wait()
	require.NoError(t, d.Close())

	assert.Equal(t, int32(20), calls.Load())
}
