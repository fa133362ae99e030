package redis

import (
	"context"
	"fmt"

	"github.com/alem-hub/habit-engine/internal/domain/routine"
	"github.com/alem-hub/habit-engine/pkg/timeutil"
)

// CompletionLog implements routine.CompletionLog with one Redis set per user
// and local day. The set expires shortly after the day ends.
type CompletionLog struct {
	cache *Cache
	clock *timeutil.Clock
}

// NewCompletionLog creates a new CompletionLog. A nil clock uses the default timezone.
func NewCompletionLog(cache *Cache, clock *timeutil.Clock) *CompletionLog {
	if clock == nil {
		clock = timeutil.NewClock(nil)
	}
	return &CompletionLog{cache: cache, clock: clock}
}

var _ routine.CompletionLog = (*CompletionLog)(nil)

// MarkCompleted adds the routine to today's set and reports whether it was new.
func (l *CompletionLog) MarkCompleted(ctx context.Context, userID string, id routine.ID) (bool, error) {
	now := l.clock.Now()
	key := CompletionKey(userID, timeutil.DayKey(now, l.clock.Location()))
	expireAt := timeutil.StartOfDay(now, l.clock.Location()).AddDate(0, 0, 1).Add(TTLCompletionGrace)

	added, err := l.cache.SAddExpireAt(ctx, key, id.String(), expireAt)
	if err != nil {
		return false, fmt.Errorf("mark routine completed: %w", err)
	}
	return added, nil
}

// CompletedToday returns the routines the user completed today.
func (l *CompletionLog) CompletedToday(ctx context.Context, userID string) ([]routine.ID, error) {
	members, err := l.cache.SMembers(ctx, CompletionKey(userID, l.clock.Today()))
	if err != nil {
		return nil, fmt.Errorf("list completed routines: %w", err)
	}

	ids := make([]routine.ID, len(members))
	for i, m := range members {
		ids[i] = routine.ID(m)
	}
	return ids, nil
}

// Unmark removes today's mark for the routine.
func (l *CompletionLog) Unmark(ctx context.Context, userID string, id routine.ID) error {
	if err := l.cache.SRem(ctx, CompletionKey(userID, l.clock.Today()), id.String()); err != nil {
		return fmt.Errorf("unmark routine: %w", err)
	}
	return nil
}
