package eventhandler

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/habit-engine/internal/domain/coaching"
	"github.com/alem-hub/habit-engine/internal/domain/routine"
	"github.com/alem-hub/habit-engine/internal/domain/shared"
	"github.com/alem-hub/habit-engine/internal/domain/streak"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]coaching.Bundle
	setErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]coaching.Bundle)}
}

func key(id routine.ID, days int) string { return id.String() + ":" + strconv.Itoa(days) }

func (c *memoryCache) Get(_ context.Context, id routine.ID, days int) (coaching.Bundle, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.entries[key(id, days)]
	return b, ok, nil
}

func (c *memoryCache) Set(_ context.Context, id routine.ID, days int, b coaching.Bundle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[key(id, days)] = b
	return nil
}

func newHandler(t *testing.T, cache coaching.Cache) *OnMilestoneReachedHandler {
	t.Helper()
	h, err := NewOnMilestoneReachedHandler(routine.DefaultCatalog(), streak.Linear(), cache,
		coaching.Config{Latency: 0}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), MilestoneConfig{})
	require.NoError(t, err)
	return h
}

func TestOnMilestoneReached_WarmsEveryRoutine(t *testing.T) {
	cache := newMemoryCache()
	h := newHandler(t, cache)

	require.NoError(t, h.Handle(shared.NewStreakMilestoneReachedEvent("u1", 10, 1.5)))

	assert.Len(t, cache.entries, 4)
	b := cache.entries[key(routine.Evening, 10)]
	assert.Contains(t, b.Motivation, "10 consecutive days")

	// Second pass finds everything cached.
	warmed, err := h.Warm(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, warmed)
}

func TestOnMilestoneReached_IgnoresOtherEvents(t *testing.T) {
	cache := newMemoryCache()
	h := newHandler(t, cache)

	require.NoError(t, h.Handle(shared.NewStreakResetEvent("u1", 3)))
	assert.Empty(t, cache.entries)
}

func TestOnMilestoneReached_CacheFailure(t *testing.T) {
	cache := newMemoryCache()
	cache.setErr = assert.AnError
	h := newHandler(t, cache)

	err := h.Handle(shared.NewStreakMilestoneReachedEvent("u1", 5, 1.3))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestOnMilestoneReached_Timeout(t *testing.T) {
	h, err := NewOnMilestoneReachedHandler(routine.DefaultCatalog(), nil, newMemoryCache(),
		coaching.Config{Latency: time.Hour}, nil, MilestoneConfig{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	warmed, err := h.Warm(ctx, 5)
	assert.ErrorIs(t, err, shared.ErrCanceled)
	assert.Zero(t, warmed)
}

func TestNewOnMilestoneReachedHandler_RequiresCache(t *testing.T) {
	_, err := NewOnMilestoneReachedHandler(routine.DefaultCatalog(), nil, nil, coaching.DefaultConfig(), nil, MilestoneConfig{})
	assert.Error(t, err)
}

func TestEventLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewEventLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, l.Handle(shared.NewRoutineCompletedEvent("u1", "coffee", 4)))

	out := buf.String()
	assert.Contains(t, out, `"event_type":"routine.completed"`)
	assert.Contains(t, out, `"routine_id":"coffee"`)
	assert.Contains(t, out, `"new_streak":4`)
}
