package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/quantlab/papersim/internal/domain"
)

// Handler consumes one published event. Handlers for the same event
// type run concurrently; a failing handler does not stop the others.
type Handler func(ctx context.Context, ev *domain.Event) error

// PublishFunc is the publishing pipeline signature middleware wraps.
type PublishFunc func(ctx context.Context, ev *domain.Event) error

// Middleware wraps the publish pipeline. Middleware added first runs
// first.
type Middleware func(next PublishFunc) PublishFunc

// Bus is a process-scoped publish/subscribe event bus with a middleware
// chain, concurrent handler fan-out, a bounded time-ordered replay
// store, and a dead-letter list for failed publishes. Construct one per
// process and inject it; there is no global instance.
type Bus struct {
	mu         sync.RWMutex
	handlers   map[domain.EventType][]Handler
	middleware []Middleware
	store      []*domain.Event // bounded, append-only in publish order
	storeCap   int
	deadLetter []*domain.Event
	closed     bool
	logger     *slog.Logger
}

// New creates a Bus whose replay store keeps at most storeCap events.
func New(storeCap int, logger *slog.Logger) *Bus {
	return &Bus{
		handlers: make(map[domain.EventType][]Handler),
		storeCap: storeCap,
		logger:   logger,
	}
}

// Use appends a middleware to the publish pipeline. Call during process
// startup, before the first Publish.
func (b *Bus) Use(mw Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, mw)
}

// Subscribe registers a handler for an event type. Call during process
// startup; there is no unsubscribe.
func (b *Bus) Subscribe(t domain.EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// Publish runs the event through the middleware chain, then fans out to
// all handlers for its type concurrently and joins before returning.
// Publish reports success if at least one handler succeeded (or none
// are subscribed); total handler failure moves the event to the
// dead-letter list. Delivery is best-effort, not exactly-once.
func (b *Bus) Publish(ctx context.Context, ev *domain.Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return domain.ErrEventBusClosed
	}
	// Build the chain innermost-first so the first-added middleware
	// runs first.
	chain := b.deliver
	for i := len(b.middleware) - 1; i >= 0; i-- {
		chain = b.middleware[i](chain)
	}
	b.mu.RUnlock()

	if err := chain(ctx, ev); err != nil {
		b.mu.Lock()
		b.deadLetter = append(b.deadLetter, ev)
		b.mu.Unlock()
		b.logger.Warn("event moved to dead letter",
			slog.String("event_id", ev.EventID),
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// deliver is the pipeline core: append to the replay store, then fan
// out to handlers.
func (b *Bus) deliver(ctx context.Context, ev *domain.Event) error {
	b.mu.Lock()
	b.store = append(b.store, ev)
	if b.storeCap > 0 && len(b.store) > b.storeCap {
		b.store = b.store[len(b.store)-b.storeCap:]
	}
	handlers := make([]Handler, len(b.handlers[ev.Type]))
	copy(handlers, b.handlers[ev.Type])
	b.mu.Unlock()

	if len(handlers) == 0 {
		return nil
	}

	errs := make([]error, len(handlers))
	var wg sync.WaitGroup
	for i, h := range handlers {
		wg.Add(1)
		go func(i int, h Handler) {
			defer wg.Done()
			errs[i] = h(ctx, ev)
		}(i, h)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			b.logger.Warn("event handler failed",
				slog.String("event_id", ev.EventID),
				slog.String("type", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
	// Partial failure is tolerated; total failure is not.
	if failed == len(handlers) {
		return fmt.Errorf("all %d handlers failed for %s", failed, ev.Type)
	}
	return nil
}

// Replay returns stored events in publish order, optionally filtered by
// type. A zero type matches all events.
func (b *Bus) Replay(t domain.EventType) []*domain.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*domain.Event, 0, len(b.store))
	for _, ev := range b.store {
		if t == "" || ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// DeadLetters returns events whose publish failed, in failure order.
func (b *Bus) DeadLetters() []*domain.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*domain.Event, len(b.deadLetter))
	copy(out, b.deadLetter)
	return out
}

// Close stops the bus: subsequent publishes return ErrEventBusClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// Logging returns a middleware that logs every published event at
// debug level.
func Logging(logger *slog.Logger) Middleware {
	return func(next PublishFunc) PublishFunc {
		return func(ctx context.Context, ev *domain.Event) error {
			logger.Debug("event published",
				slog.String("event_id", ev.EventID),
				slog.String("type", string(ev.Type)),
				slog.String("priority", string(ev.Priority)),
				slog.String("instrument", ev.Instrument),
			)
			return next(ctx, ev)
		}
	}
}
