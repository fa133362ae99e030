// Package messaging delivers domain events of the habit engine. LocalBus
// serves one process; RedisRelay also fans events out over Redis Pub/Sub to
// every instance sharing the channel.
package messaging

import (
	"errors"
	"sync"

	"github.com/alem-hub/habit-engine/internal/domain/shared"
)

var (
	// ErrEventBusClosed is returned by a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic wraps a panic raised by a handler.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrNilHandler is returned when subscribing a nil handler.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrNilEvent is returned when publishing a nil event.
	ErrNilEvent = errors.New("event cannot be nil")
)

// Stats counts bus traffic. A nil *Stats counts nothing.
type Stats struct {
	mu          sync.Mutex
	published   map[shared.EventType]int64
	failures    map[shared.EventType]int64
	delivered   int64
	relayed     int64
	relayErrors int64
	received    int64
	malformed   int64
}

// NewStats creates empty counters.
func NewStats() *Stats {
	return &Stats{
		published: make(map[shared.EventType]int64),
		failures:  make(map[shared.EventType]int64),
	}
}

func (s *Stats) countPublish(t shared.EventType) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.published[t]++
	s.mu.Unlock()
}

func (s *Stats) countDelivery(t shared.EventType, err error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.delivered++
	if err != nil {
		s.failures[t]++
	}
	s.mu.Unlock()
}

func (s *Stats) countRelay(err error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if err != nil {
		s.relayErrors++
	} else {
		s.relayed++
	}
	s.mu.Unlock()
}

func (s *Stats) countReceived(ok bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if ok {
		s.received++
	} else {
		s.malformed++
	}
	s.mu.Unlock()
}

// StatsSnapshot is a copy of the counters as served by /api/v1/stats.
type StatsSnapshot struct {
	Published       map[shared.EventType]int64 `json:"published"`
	TotalPublished  int64                      `json:"totalPublished"`
	Delivered       int64                      `json:"delivered"`
	HandlerFailures map[shared.EventType]int64 `json:"handlerFailures"`
	TotalFailures   int64                      `json:"totalFailures"`
	Relayed         int64                      `json:"relayed"`
	RelayErrors     int64                      `json:"relayErrors"`
	Received        int64                      `json:"received"`
	Malformed       int64                      `json:"malformed"`
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Published:       make(map[shared.EventType]int64),
		HandlerFailures: make(map[shared.EventType]int64),
	}
	if s == nil {
		return snap
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for t, n := range s.published {
		snap.Published[t] = n
		snap.TotalPublished += n
	}
	for t, n := range s.failures {
		snap.HandlerFailures[t] = n
		snap.TotalFailures += n
	}
	snap.Delivered = s.delivered
	snap.Relayed = s.relayed
	snap.RelayErrors = s.relayErrors
	snap.Received = s.received
	snap.Malformed = s.malformed
	return snap
}
