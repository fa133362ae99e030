package coaching

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/habit-engine/internal/domain/routine"
	"github.com/alem-hub/habit-engine/internal/domain/shared"
	"github.com/alem-hub/habit-engine/internal/domain/streak"
)

func newTestAdvisor(t *testing.T, latency time.Duration) *Advisor {
	t.Helper()
	a, err := NewAdvisor(routine.DefaultCatalog(), Config{Latency: latency})
	require.NoError(t, err)
	return a
}

func TestAdvisor_GenerateCoffee(t *testing.T) {
	a := newTestAdvisor(t, 0)

	b, err := a.Generate(context.Background(), routine.Coffee, streak.Linear().At(7))
	require.NoError(t, err)
	require.NoError(t, b.Validate())

	assert.True(t, strings.HasPrefix(b.Motivation, "🔥 Day 7 streak!"), b.Motivation)
	assert.Contains(t, b.Notification, "coffee")
	assert.Contains(t, b.HabitTip, "coffee ritual")
}

func TestAdvisor_EveryRoutineHasAdvice(t *testing.T) {
	a := newTestAdvisor(t, 0)
	s := streak.Milestone().At(42)

	for _, id := range routine.CanonicalIDs() {
		b, err := a.Generate(context.Background(), id, s)
		require.NoError(t, err, id)
		assert.NoError(t, b.Validate(), id)
		assert.Contains(t, b.Motivation, "42", id)

		suggestion, err := a.Suggestion(id)
		require.NoError(t, err, id)
		assert.NotEmpty(t, suggestion, id)
	}
}

func TestAdvisor_UnknownRoutineFailsFast(t *testing.T) {
	a := newTestAdvisor(t, time.Hour)

	start := time.Now()
	_, err := a.Generate(context.Background(), "gym", streak.Linear().Reset())
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrUnknownRoutine))
	assert.Less(t, time.Since(start), time.Second)

	_, err = a.Suggestion("gym")
	assert.True(t, errors.Is(err, shared.ErrUnknownRoutine))
}

func TestAdvisor_WaitsForLatency(t *testing.T) {
	a := newTestAdvisor(t, 50*time.Millisecond)

	start := time.Now()
	_, err := a.Generate(context.Background(), routine.Lunch, streak.Linear().At(3))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.False(t, a.inFlight())
}

func TestAdvisor_ContextCancel(t *testing.T) {
	a := newTestAdvisor(t, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	b, err := a.Generate(ctx, routine.Evening, streak.Linear().At(1))
	require.Error(t, err)
	assert.True(t, b.IsZero())
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, errors.Is(err, shared.ErrSuperseded))
}

func TestAdvisor_LastRequestWins(t *testing.T) {
	a := newTestAdvisor(t, 300*time.Millisecond)

	type outcome struct {
		bundle Bundle
		err    error
	}
	first := make(chan outcome, 1)

	go func() {
		b, err := a.Generate(context.Background(), routine.Coffee, streak.Linear().At(1))
		first <- outcome{b, err}
	}()

	require.Eventually(t, a.inFlight, time.Second, time.Millisecond)

	second, err := a.Generate(context.Background(), routine.Evening, streak.Linear().At(2))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(second.Motivation, "🌙 2 consecutive days!"))

	select {
	case got := <-first:
		require.Error(t, got.err)
		assert.True(t, errors.Is(got.err, shared.ErrSuperseded))
		assert.True(t, got.bundle.IsZero())
	case <-time.After(time.Second):
		t.Fatal("superseded request did not return")
	}
}

func TestAdvisor_ReserveCancelsInFlightRequest(t *testing.T) {
	a := newTestAdvisor(t, time.Hour)

	done := make(chan error, 1)
	go func() {
		_, err := a.Generate(context.Background(), routine.Lunch, streak.Linear().At(4))
		done <- err
	}()
	require.Eventually(t, a.inFlight, time.Second, time.Millisecond)

	ticket := a.Reserve()
	assert.True(t, a.Current(ticket))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, shared.ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("in-flight request was not canceled")
	}
	assert.False(t, a.inFlight())
}

func TestAdvisor_GenerateReservedWithStaleTicket(t *testing.T) {
	a := newTestAdvisor(t, 0)

	stale := a.Reserve()
	fresh := a.Reserve()
	assert.False(t, a.Current(stale))

	b, err := a.GenerateReserved(context.Background(), stale, routine.Commute, streak.State{})
	assert.ErrorIs(t, err, shared.ErrSuperseded)
	assert.True(t, b.IsZero())

	b, err = a.GenerateReserved(context.Background(), fresh, routine.Commute, streak.Linear().At(3))
	require.NoError(t, err)
	assert.NoError(t, b.Validate())

	_, err = a.GenerateReserved(context.Background(), fresh, "gym", streak.State{})
	assert.ErrorIs(t, err, shared.ErrUnknownRoutine)
}

func TestNewAdvisor_RequiresTemplatesForEveryRoutine(t *testing.T) {
	anchors := append(routine.DefaultAnchors(), routine.Anchor{
		ID:         "gym",
		Name:       "Gym",
		TimeWindow: "6-7 PM",
		StudyTypes: []string{"audio-lessons"},
		Difficulty: routine.DifficultyMedium,
		Window:     routine.WindowEvening,
	})
	catalog, err := routine.NewCatalog(anchors...)
	require.NoError(t, err)

	_, err = NewAdvisor(catalog, DefaultConfig())
	assert.Error(t, err)

	_, err = NewAdvisor(nil, DefaultConfig())
	assert.Error(t, err)

	_, err = NewAdvisor(routine.DefaultCatalog(), Config{Latency: -time.Second})
	assert.Error(t, err)
}

func TestBundle_Validate(t *testing.T) {
	assert.Error(t, Bundle{}.Validate())
	assert.Error(t, Bundle{Notification: "n", HabitTip: "t"}.Validate())
	assert.NoError(t, Bundle{Notification: "n", HabitTip: "t", Motivation: "m"}.Validate())
}
