// Package retry re-runs operations that fail transiently: connecting to
// PostgreSQL and Redis at startup, and serializable transactions that lose a
// write conflict.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Classifier reports whether err is worth another attempt.
type Classifier func(err error) bool

// Transient retries everything except cancellation. Used at startup, when any
// dial or auth failure may be a container that is still coming up.
func Transient(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

type stopError struct{ err error }

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

// Stop marks err as final whatever the classifier says. Do returns the
// unwrapped error.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// Backoff doubles the delay after every attempt, from Initial up to Max, and
// spreads it by ±Jitter (a fraction of the delay).
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64
}

// Delay returns the wait after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Initial
	for i := 1; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	if b.Jitter > 0 {
		d += time.Duration(float64(d) * b.Jitter * (rand.Float64()*2 - 1))
	}
	return max(d, 0)
}

// Policy describes how an operation is retried.
type Policy struct {
	// Attempts includes the first run. Values below 1 mean one run.
	Attempts int
	Backoff  Backoff

	// Retry classifies failures. Nil retries nothing.
	Retry Classifier

	// OnRetry is called before every wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Do runs op until it succeeds, fails with an error the classifier rejects,
// runs out of attempts or ctx ends. It returns the last error op returned.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := max(p.Attempts, 1)

	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		var stop *stopError
		if errors.As(err, &stop) {
			return stop.err
		}
		last = err

		if attempt >= attempts || p.Retry == nil || !p.Retry(err) {
			return err
		}

		delay := p.Backoff.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last
		case <-timer.C:
		}
	}
}

// Startup is the policy for connecting to backing services: every failure is
// retried with a slow backoff.
func Startup(attempts int, onRetry func(attempt int, err error, delay time.Duration)) Policy {
	return Policy{
		Attempts: attempts,
		Backoff:  Backoff{Initial: 500 * time.Millisecond, Max: 10 * time.Second, Jitter: 0.2},
		Retry:    Transient,
		OnRetry:  onRetry,
	}
}

// Conflicts is the policy for transactions that may lose a write conflict.
// isConflict is supplied by the store that knows its error codes.
func Conflicts(isConflict Classifier) Policy {
	return Policy{
		Attempts: 3,
		Backoff:  Backoff{Initial: 50 * time.Millisecond, Max: time.Second, Jitter: 0.05},
		Retry:    isConflict,
	}
}
