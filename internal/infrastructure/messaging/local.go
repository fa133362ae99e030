package messaging

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/alem-hub/habit-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOCAL BUS
// ══════════════════════════════════════════════════════════════════════════════

// LocalConfig configures a LocalBus.
type LocalConfig struct {
	// Workers bounds concurrent handler runs. Zero delivers synchronously
	// inside Publish.
	Workers int

	// Logger receives handler failures.
	Logger *slog.Logger

	// Stats collects counters (optional).
	Stats *Stats
}

// DefaultLocalConfig delivers on ten workers with counters enabled.
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{Workers: 10, Stats: NewStats()}
}

// LocalBus delivers events to handlers in this process. Handler errors are
// logged and counted, never returned to the publisher: the state change
// behind an event has already been committed.
type LocalBus struct {
	logger *slog.Logger
	stats  *Stats

	mu       sync.RWMutex
	byType   map[shared.EventType][]shared.EventHandler
	wildcard []shared.EventHandler
	closed   bool

	// slots is nil in synchronous mode.
	slots   chan struct{}
	done    chan struct{}
	pending sync.WaitGroup
}

// NewLocalBus creates a LocalBus.
func NewLocalBus(cfg LocalConfig) *LocalBus {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	b := &LocalBus{
		logger: cfg.Logger,
		stats:  cfg.Stats,
		byType: make(map[shared.EventType][]shared.EventHandler),
		done:   make(chan struct{}),
	}
	if cfg.Workers > 0 {
		b.slots = make(chan struct{}, cfg.Workers)
	}
	return b
}

// Subscribe registers a handler for one event type.
func (b *LocalBus) Subscribe(t shared.EventType, h shared.EventHandler) error {
	return b.register(h, func() { b.byType[t] = append(b.byType[t], h) })
}

// SubscribeAll registers a handler for every event.
func (b *LocalBus) SubscribeAll(h shared.EventHandler) error {
	return b.register(h, func() { b.wildcard = append(b.wildcard, h) })
}

func (b *LocalBus) register(h shared.EventHandler, add func()) error {
	if h == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	add()
	return nil
}

// Publish hands the event to its handlers: typed handlers first, then the
// handlers subscribed to everything.
func (b *LocalBus) Publish(e shared.Event) error {
	if e == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	typed := b.byType[e.EventType()]
	targets := make([]shared.EventHandler, 0, len(typed)+len(b.wildcard))
	targets = append(targets, typed...)
	targets = append(targets, b.wildcard...)
	// Added under the lock so Close cannot start waiting in between
	if b.slots != nil {
		b.pending.Add(len(targets))
	}
	b.mu.RUnlock()

	b.stats.countPublish(e.EventType())

	for _, h := range targets {
		if b.slots == nil {
			b.deliver(e, h)
			continue
		}
		go b.deliverAsync(e, h)
	}
	return nil
}

func (b *LocalBus) deliverAsync(e shared.Event, h shared.EventHandler) {
	defer b.pending.Done()

	select {
	case b.slots <- struct{}{}:
	case <-b.done:
		return
	}
	defer func() { <-b.slots }()

	b.deliver(e, h)
}

func (b *LocalBus) deliver(e shared.Event, h shared.EventHandler) {
	err := call(e, h)
	b.stats.countDelivery(e.EventType(), err)
	if err != nil {
		b.logger.Error("event handler failed",
			"event_type", e.EventType(),
			"aggregate_id", e.AggregateID(),
			"error", err,
		)
	}
}

// call runs h and turns a panic into ErrHandlerPanic.
func call(e shared.Event, h shared.EventHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(e)
}

// Close stops accepting events and waits for running handlers. Deliveries
// still waiting for a worker are dropped.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.pending.Wait()
	return nil
}

// Stats returns the bus counters, or nil when disabled.
func (b *LocalBus) Stats() *Stats {
	return b.stats
}
