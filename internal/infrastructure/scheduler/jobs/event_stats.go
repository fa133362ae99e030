// Package jobs contains the engine's scheduled jobs.
package jobs

import (
	"context"
	"log/slog"

	"github.com/alem-hub/habit-engine/internal/infrastructure/messaging"
)

// EventStatsJob logs event bus counters.
type EventStatsJob struct {
	stats  *messaging.Stats
	logger *slog.Logger
}

// NewEventStatsJob creates the job. stats must not be nil.
func NewEventStatsJob(stats *messaging.Stats, logger *slog.Logger) *EventStatsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventStatsJob{stats: stats, logger: logger}
}

// Name implements scheduler.Job.
func (j *EventStatsJob) Name() string { return "event_stats" }

// Run implements scheduler.Job.
func (j *EventStatsJob) Run(context.Context) error {
	snap := j.stats.Snapshot()

	attrs := []any{
		"published", snap.TotalPublished,
		"delivered", snap.Delivered,
		"handler_failures", snap.TotalFailures,
		"relayed", snap.Relayed,
		"relay_errors", snap.RelayErrors,
		"received", snap.Received,
	}
	for t, n := range snap.Published {
		attrs = append(attrs, slog.Int64("published."+string(t), n))
	}
	if snap.Malformed > 0 {
		attrs = append(attrs, slog.Int64("malformed", snap.Malformed))
	}

	j.logger.Info("event bus stats", attrs...)
	return nil
}
