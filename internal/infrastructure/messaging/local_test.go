package messaging

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/habit-engine/internal/domain/shared"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func syncBus() *LocalBus {
	return NewLocalBus(LocalConfig{Logger: quietLogger(), Stats: NewStats()})
}

func TestLocalBus_DeliversByTypeThenToAll(t *testing.T) {
	bus := syncBus()

	var order []string
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		order = append(order, "all:"+string(e.EventType()))
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventStreakMilestoneReached, func(e shared.Event) error {
		order = append(order, "typed:"+string(e.EventType()))
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewStreakMilestoneReachedEvent("u1", 15, 1.6)))
	require.NoError(t, bus.Publish(shared.NewStreakResetEvent("u1", 15)))

	assert.Equal(t, []string{
		"typed:" + string(shared.EventStreakMilestoneReached),
		"all:" + string(shared.EventStreakMilestoneReached),
		"all:" + string(shared.EventStreakReset),
	}, order)

	snap := bus.Stats().Snapshot()
	assert.Equal(t, int64(2), snap.TotalPublished)
	assert.Equal(t, int64(1), snap.Published[shared.EventStreakReset])
	assert.Equal(t, int64(3), snap.Delivered)
	assert.Zero(t, snap.TotalFailures)
}

func TestLocalBus_CountsEventsWithoutHandlers(t *testing.T) {
	bus := syncBus()
	require.NoError(t, bus.Publish(shared.NewStreakResetEvent("u1", 4)))

	snap := bus.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.TotalPublished)
	assert.Zero(t, snap.Delivered)
}

func TestLocalBus_HandlerPanicIsContained(t *testing.T) {
	bus := syncBus()
	var after bool

	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { after = true; return nil }))

	require.NoError(t, bus.Publish(shared.NewStreakResetEvent("u1", 3)))
	assert.True(t, after)
	assert.Equal(t, int64(1), bus.Stats().Snapshot().HandlerFailures[shared.EventStreakReset])

	err := call(shared.NewStreakResetEvent("u1", 3), func(shared.Event) error { panic("again") })
	assert.ErrorIs(t, err, ErrHandlerPanic)
}

func TestLocalBus_WorkersAreBounded(t *testing.T) {
	bus := NewLocalBus(LocalConfig{Workers: 2, Logger: quietLogger()})

	var running, peak, handled atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		handled.Add(1)
		return nil
	}))

	for i := 0; i < 6; i++ {
		require.NoError(t, bus.Publish(shared.NewRoutineCompletedEvent("u1", "coffee", i)))
	}

	require.Eventually(t, func() bool { return handled.Load() == 6 }, time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Nil(t, bus.Stats())
}

func TestLocalBus_Close(t *testing.T) {
	bus := NewLocalBus(LocalConfig{Workers: 1, Logger: quietLogger()})

	var handled atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		time.Sleep(10 * time.Millisecond)
		handled.Add(1)
		return nil
	}))
	for i := 0; i < 4; i++ {
		require.NoError(t, bus.Publish(shared.NewRoutineCompletedEvent("u1", "coffee", i)))
	}

	require.NoError(t, bus.Close())
	settled := handled.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, handled.Load(), "no handler runs after Close returns")

	assert.ErrorIs(t, bus.Publish(shared.NewStreakResetEvent("u1", 1)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventStreakReset, func(shared.Event) error { return nil }), ErrEventBusClosed)
	assert.NoError(t, bus.Close())
}

func TestLocalBus_RejectsNil(t *testing.T) {
	bus := syncBus()
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)
	assert.ErrorIs(t, bus.Subscribe(shared.EventStreakReset, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.SubscribeAll(nil), ErrNilHandler)
}

func TestStats_NilIsEmpty(t *testing.T) {
	var s *Stats
	s.countPublish(shared.EventStreakReset)

	snap := s.Snapshot()
	assert.Zero(t, snap.TotalPublished)
	assert.NotNil(t, snap.Published)
}
