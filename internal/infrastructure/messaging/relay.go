package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/alem-hub/habit-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDIS RELAY
// ══════════════════════════════════════════════════════════════════════════════

// DefaultChannel is the Pub/Sub channel shared by engine instances.
const DefaultChannel = "habit-engine:events"

// PubSub is the part of Redis Pub/Sub the relay needs. Subscribe returns raw
// payloads; the channel closes when ctx is done.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan string, error)
}

// RelayConfig configures a RedisRelay.
type RelayConfig struct {
	PubSub PubSub

	// Channel defaults to DefaultChannel.
	Channel string

	// InstanceID tags outgoing events so the relay can drop its own echo.
	// Defaults to a random UUID.
	InstanceID string

	// PublishTimeout bounds one Redis publish. Defaults to 2s.
	PublishTimeout time.Duration

	Local  LocalConfig
	Logger *slog.Logger
}

// RedisRelay delivers events locally at once and relays them to the other
// instances. Events from other instances arrive as RemoteEvent.
type RedisRelay struct {
	local          *LocalBus
	pubsub         PubSub
	channel        string
	instanceID     string
	publishTimeout time.Duration
	logger         *slog.Logger

	stop      context.CancelFunc
	loop      sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewRedisRelay subscribes to the channel and starts receiving.
func NewRedisRelay(cfg RelayConfig) (*RedisRelay, error) {
	if cfg.PubSub == nil {
		return nil, errors.New("messaging: pub/sub client is required")
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Local.Logger == nil {
		cfg.Local.Logger = cfg.Logger
	}

	ctx, stop := context.WithCancel(context.Background())
	incoming, err := cfg.PubSub.Subscribe(ctx, cfg.Channel)
	if err != nil {
		stop()
		return nil, fmt.Errorf("messaging: subscribe %s: %w", cfg.Channel, err)
	}

	r := &RedisRelay{
		local:          NewLocalBus(cfg.Local),
		pubsub:         cfg.PubSub,
		channel:        cfg.Channel,
		instanceID:     cfg.InstanceID,
		publishTimeout: cfg.PublishTimeout,
		logger:         cfg.Logger.With("instance_id", cfg.InstanceID),
		stop:           stop,
	}

	r.loop.Add(1)
	go func() {
		defer r.loop.Done()
		r.receiveLoop(ctx, incoming)
	}()

	return r, nil
}

// Subscribe registers a handler for one event type.
func (r *RedisRelay) Subscribe(t shared.EventType, h shared.EventHandler) error {
	return r.local.Subscribe(t, h)
}

// SubscribeAll registers a handler for every event.
func (r *RedisRelay) SubscribeAll(h shared.EventHandler) error {
	return r.local.SubscribeAll(h)
}

// Publish relays the event and delivers it locally. A relay failure is
// logged and counted; local delivery still happens.
func (r *RedisRelay) Publish(e shared.Event) error {
	if e == nil {
		return ErrNilEvent
	}
	if r.closed.Load() {
		return ErrEventBusClosed
	}

	data, err := json.Marshal(newEnvelope(r.instanceID, e))
	if err != nil {
		return fmt.Errorf("messaging: encode %s: %w", e.EventType(), err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.publishTimeout)
	err = r.pubsub.Publish(ctx, r.channel, data)
	cancel()

	r.local.stats.countRelay(err)
	if err != nil {
		r.logger.Warn("event not relayed", "event_type", e.EventType(), "error", err)
	}

	return r.local.Publish(e)
}

func (r *RedisRelay) receiveLoop(ctx context.Context, incoming <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-incoming:
			if !ok {
				return
			}
			r.receive(payload)
		}
	}
}

func (r *RedisRelay) receive(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil || env.Type == "" {
		r.local.stats.countReceived(false)
		r.logger.Warn("dropping malformed relayed event", "error", err)
		return
	}
	if env.Origin == r.instanceID {
		return
	}

	r.local.stats.countReceived(true)
	if err := r.local.Publish(env.remote()); err != nil {
		r.logger.Error("failed to deliver relayed event", "event_type", env.Type, "error", err)
	}
}

// Close stops receiving and drains local handlers.
func (r *RedisRelay) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.stop()
		r.loop.Wait()
		_ = r.local.Close()
	})
	return nil
}

// Stats returns the relay counters, or nil when disabled.
func (r *RedisRelay) Stats() *Stats {
	return r.local.Stats()
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRE FORMAT
// ══════════════════════════════════════════════════════════════════════════════

type envelope struct {
	Origin      string                 `json:"origin"`
	Type        shared.EventType       `json:"type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload"`
}

func newEnvelope(origin string, e shared.Event) envelope {
	return envelope{
		Origin:      origin,
		Type:        e.EventType(),
		AggregateID: e.AggregateID(),
		OccurredAt:  e.OccurredAt(),
		Payload:     e.Payload(),
	}
}

func (env envelope) remote() RemoteEvent {
	return RemoteEvent{
		Origin:    env.Origin,
		Type:      env.Type,
		Aggregate: env.AggregateID,
		At:        env.OccurredAt,
		Data:      env.Payload,
	}
}

// RemoteEvent is an event published by another instance. Handlers that own
// shared side effects (the advice cache) skip it.
type RemoteEvent struct {
	Origin    string
	Type      shared.EventType
	Aggregate string
	At        time.Time
	Data      map[string]interface{}
}

// EventType implements shared.Event.
func (e RemoteEvent) EventType() shared.EventType { return e.Type }

// OccurredAt implements shared.Event.
func (e RemoteEvent) OccurredAt() time.Time { return e.At }

// AggregateID implements shared.Event.
func (e RemoteEvent) AggregateID() string { return e.Aggregate }

// Payload implements shared.Event.
func (e RemoteEvent) Payload() map[string]interface{} { return e.Data }
