package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Warmer fills the advice cache for one streak length.
// *eventhandler.OnMilestoneReachedHandler satisfies it.
type Warmer interface {
	Warm(ctx context.Context, days int) (int, error)
}

// AdviceWarmupJob pre-generates advice for the first milestone lengths so
// users crossing them overnight hit a warm cache.
type AdviceWarmupJob struct {
	warmer Warmer
	days   []int
	logger *slog.Logger
}

// NewAdviceWarmupJob creates the job for the given streak lengths.
func NewAdviceWarmupJob(warmer Warmer, days []int, logger *slog.Logger) *AdviceWarmupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdviceWarmupJob{warmer: warmer, days: days, logger: logger}
}

// Name implements scheduler.Job.
func (j *AdviceWarmupJob) Name() string { return "advice_warmup" }

// Run implements scheduler.Job. A failure for one length does not stop the others.
func (j *AdviceWarmupJob) Run(ctx context.Context) error {
	var errs []error
	total := 0

	for _, d := range j.days {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		n, err := j.warmer.Warm(ctx, d)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("days=%d: %w", d, err))
		}
	}

	j.logger.Info("advice cache warmed", "lengths", len(j.days), "generated", total)
	return errors.Join(errs...)
}
