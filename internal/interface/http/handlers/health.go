package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/habit-engine/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH MONITOR
// ══════════════════════════════════════════════════════════════════════════════

// CheckFunc checks one dependency of the engine.
type CheckFunc func(ctx context.Context) error

// Severity says what a failing check means for the engine.
type Severity int

const (
	// Critical dependencies (PostgreSQL, the advisor) take the engine down.
	Critical Severity = iota

	// Optional dependencies (Redis) only degrade it: advice is served
	// uncached and completion and presence are refused.
	Optional
)

// Overall engine states reported in HealthStatus.Status.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDown     = "down"
)

// ErrDisabled is reported by checks of dependencies switched off by
// configuration.
var ErrDisabled = errors.New("disabled")

// HealthChecker reports engine health.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthStatus is served by /health and /ready.
type HealthStatus struct {
	Status string `json:"status"`

	// Healthy is false only when a critical check fails.
	Healthy bool `json:"healthy"`
	Ready   bool `json:"ready"`

	Message   string                 `json:"message"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	// Status is "ok", "failed" or "disabled".
	Status   string `json:"status"`
	Critical bool   `json:"critical"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration"`
}

type registeredCheck struct {
	name     string
	severity Severity
	check    CheckFunc
}

// Monitor runs the registered checks in parallel. Checks are registered
// during startup, before Check is first called.
type Monitor struct {
	version string
	timeout time.Duration
	started time.Time
	checks  []registeredCheck
}

// NewMonitor creates a monitor. Each check gets timeout (default 5s).
func NewMonitor(version string, timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Monitor{version: version, timeout: timeout, started: time.Now()}
}

// Register adds a check.
func (m *Monitor) Register(name string, severity Severity, p CheckFunc) {
	m.checks = append(m.checks, registeredCheck{name: name, severity: severity, check: p})
}

// Check runs every check and folds the results into one status.
func (m *Monitor) Check(ctx context.Context) HealthStatus {
	results := make([]CheckResult, len(m.checks))

	var g errgroup.Group
	for i, rc := range m.checks {
		g.Go(func() error {
			results[i] = m.run(ctx, rc)
			return nil
		})
	}
	_ = g.Wait()

	status := HealthStatus{
		Status:    StatusOK,
		Healthy:   true,
		Ready:     true,
		Message:   "all checks passed",
		Checks:    make(map[string]CheckResult, len(results)),
		Uptime:    time.Since(m.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   m.version,
	}

	var failing, degraded []string
	for i, r := range results {
		name := m.checks[i].name
		status.Checks[name] = r
		switch {
		case r.Status == "ok":
		case r.Critical:
			failing = append(failing, name)
		default:
			degraded = append(degraded, name)
		}
	}

	switch {
	case len(failing) > 0:
		status.Status = StatusDown
		status.Healthy = false
		status.Ready = false
		status.Message = "failing: " + strings.Join(failing, ", ")
	case len(degraded) > 0:
		status.Status = StatusDegraded
		status.Message = "degraded: " + strings.Join(degraded, ", ")
	}
	return status
}

func (m *Monitor) run(ctx context.Context, rc registeredCheck) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	err := rc.check(ctx)

	r := CheckResult{
		Status:   "ok",
		Critical: rc.severity == Critical,
		Duration: time.Since(start).Round(time.Millisecond).String(),
	}
	switch {
	case errors.Is(err, ErrDisabled):
		r.Status = "disabled"
		r.Message = err.Error()
	case err != nil:
		r.Status = "failed"
		r.Message = err.Error()
	}
	return r
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// Pinger is implemented by the PostgreSQL connection and the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks connectivity.
func Ping(p Pinger) CheckFunc {
	return p.Ping
}

// Disabled reports a dependency that configuration switched off.
func Disabled(reason string) CheckFunc {
	return func(context.Context) error {
		return fmt.Errorf("%w: %s", ErrDisabled, reason)
	}
}

// Breaker is the part of a circuit breaker a check needs.
type Breaker interface {
	Name() string
	State() circuitbreaker.State
}

// BreakerClosed fails while the breaker is open: calls behind it are being
// refused even if a ping would get through.
func BreakerClosed(b Breaker) CheckFunc {
	return func(context.Context) error {
		if st := b.State(); st != circuitbreaker.StateClosed {
			return fmt.Errorf("%s circuit is %s", b.Name(), st)
		}
		return nil
	}
}

// AllOf passes when every check passes, checked in order.
func AllOf(checks ...CheckFunc) CheckFunc {
	return func(ctx context.Context) error {
		for _, p := range checks {
			if err := p(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}
