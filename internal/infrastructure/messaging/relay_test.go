package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/habit-engine/internal/domain/shared"
)

// fakeHub is an in-process stand-in for Redis Pub/Sub.
type fakeHub struct {
	mu      sync.Mutex
	subs    []chan string
	failPub bool
}

func (h *fakeHub) Publish(_ context.Context, _ string, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failPub {
		return errors.New("redis down")
	}
	for _, s := range h.subs {
		s <- string(payload)
	}
	return nil
}

func (h *fakeHub) Subscribe(_ context.Context, _ string) (<-chan string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan string, 16)
	h.subs = append(h.subs, ch)
	return ch, nil
}

// inject pushes a raw payload to every subscriber.
func (h *fakeHub) inject(payload string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		s <- payload
	}
}

func relay(t *testing.T, hub *fakeHub, id string) *RedisRelay {
	t.Helper()
	r, err := NewRedisRelay(RelayConfig{
		PubSub:     hub,
		InstanceID: id,
		Logger:     quietLogger(),
		Local:      LocalConfig{Stats: NewStats()},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRedisRelay_FansOutToOtherInstances(t *testing.T) {
	hub := &fakeHub{}
	a := relay(t, hub, "a")
	b := relay(t, hub, "b")

	var onA, onB atomic.Int32
	var got atomic.Value
	require.NoError(t, a.SubscribeAll(func(shared.Event) error { onA.Add(1); return nil }))
	require.NoError(t, b.Subscribe(shared.EventBuddyConnected, func(e shared.Event) error {
		got.Store(e)
		onB.Add(1)
		return nil
	}))

	require.NoError(t, a.Publish(shared.NewBuddyConnectedEvent("c-1", "u1", "cand-2", "evening", 98)))

	require.Eventually(t, func() bool { return onB.Load() == 1 }, time.Second, 5*time.Millisecond)
	remote, ok := got.Load().(RemoteEvent)
	require.True(t, ok, "events from other instances arrive as RemoteEvent")
	assert.Equal(t, "a", remote.Origin)
	assert.Equal(t, "cand-2", remote.Payload()["candidate_id"])

	// Own echo is ignored.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), onA.Load())
	assert.Equal(t, int64(1), a.Stats().Snapshot().Relayed)
	assert.Equal(t, int64(1), b.Stats().Snapshot().Received)
}

func TestRedisRelay_PublishFailureStillDeliversLocally(t *testing.T) {
	hub := &fakeHub{failPub: true}
	r := relay(t, hub, "solo")

	var got atomic.Int32
	require.NoError(t, r.SubscribeAll(func(shared.Event) error { got.Add(1); return nil }))
	require.NoError(t, r.Publish(shared.NewStreakResetEvent("u1", 2)))

	assert.Equal(t, int32(1), got.Load())
	assert.Equal(t, int64(1), r.Stats().Snapshot().RelayErrors)

	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Publish(shared.NewStreakResetEvent("u1", 2)), ErrEventBusClosed)
}

func TestRedisRelay_DropsMalformedPayloads(t *testing.T) {
	hub := &fakeHub{}
	r := relay(t, hub, "a")

	var got atomic.Int32
	require.NoError(t, r.SubscribeAll(func(shared.Event) error { got.Add(1); return nil }))

	hub.inject("{not json")
	hub.inject(`{"origin":"b"}`)

	require.Eventually(t, func() bool { return r.Stats().Snapshot().Malformed == 2 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, got.Load())
}

func TestNewRedisRelay_RequiresPubSub(t *testing.T) {
	_, err := NewRedisRelay(RelayConfig{})
	assert.Error(t, err)
}
