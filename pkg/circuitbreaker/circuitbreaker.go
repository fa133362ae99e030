// Package circuitbreaker stops calling a backing service after repeated
// failures and lets one trial call through after a cool-down. The engine puts
// Redis behind a breaker: while it is open, advice is generated without the
// cache and completion and presence fail fast instead of waiting on timeouts.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned without calling the service while the breaker is open
// or while its trial call is still running.
var ErrOpen = errors.New("circuit breaker is open")

// Settings configures a Breaker.
type Settings struct {
	Name string

	// Trip is the number of consecutive failures that opens the breaker.
	// Default 5.
	Trip int

	// Cooldown is how long the breaker stays open before a trial call.
	// Default 30s.
	Cooldown time.Duration

	// IsFailure decides which errors count against the service. Nil counts
	// every error.
	IsFailure func(error) bool

	OnStateChange func(name string, from, to State)

	// Now defaults to time.Now.
	Now func() time.Time
}

// Stats is a copy of the breaker counters.
type Stats struct {
	State               string    `json:"state"`
	Calls               int64     `json:"calls"`
	Failures            int64     `json:"failures"`
	Rejected            int64     `json:"rejected"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	OpenedAt            time.Time `json:"openedAt,omitempty"`
}

// Breaker guards calls to one service.
type Breaker struct {
	settings Settings

	mu          sync.Mutex
	state       State
	consecutive int
	openedAt    time.Time
	trial       bool
	calls       int64
	failures    int64
	rejected    int64
}

// New creates a closed breaker.
func New(s Settings) *Breaker {
	if s.Trip <= 0 {
		s.Trip = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return &Breaker{settings: s}
}

// Do calls fn unless the breaker rejects the call with ErrOpen. fn's error
// is returned unchanged.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.settings.Now().Sub(b.openedAt) < b.settings.Cooldown {
			b.rejected++
			return ErrOpen
		}
		b.transition(StateHalfOpen)
		b.trial = true
	case StateHalfOpen:
		if b.trial {
			b.rejected++
			return ErrOpen
		}
		b.trial = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls++
	b.trial = false

	failed := err != nil && (b.settings.IsFailure == nil || b.settings.IsFailure(err))
	if !failed {
		b.consecutive = 0
		if b.state == StateHalfOpen {
			b.transition(StateClosed)
		}
		return
	}

	b.failures++
	b.consecutive++
	if b.state == StateHalfOpen || b.consecutive >= b.settings.Trip {
		b.openedAt = b.settings.Now()
		b.transition(StateOpen)
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to == StateClosed {
		b.consecutive = 0
	}
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.settings.Name, from, to)
	}
}

// State returns the current state. An open breaker whose cool-down has passed
// still reports open until the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats copies the counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		State:               b.state.String(),
		Calls:               b.calls,
		Failures:            b.failures,
		Rejected:            b.rejected,
		ConsecutiveFailures: b.consecutive,
	}
	if b.state != StateClosed {
		s.OpenedAt = b.openedAt
	}
	return s
}

// Name returns Settings.Name.
func (b *Breaker) Name() string {
	return b.settings.Name
}
