package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/habit-engine/internal/domain/buddy"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRESENCE TRACKER
// ══════════════════════════════════════════════════════════════════════════════

// ErrCandidateIDEmpty is returned when a candidate ID is empty.
var ErrCandidateIDEmpty = errors.New("presence: candidate ID cannot be empty")

// PresenceInfo is stored under presence:{id} while a candidate is online.
type PresenceInfo struct {
	CandidateID string     `json:"candidate_id"`
	RoutineID   string     `json:"routine_id,omitempty"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
	SessionFrom *time.Time `json:"session_from,omitempty"`
}

// PresenceTracker keeps TTL-based presence keys. A candidate is online while
// the key exists; a missed heartbeat lets it expire.
type PresenceTracker struct {
	cache *Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewPresenceTracker creates a new PresenceTracker. A non-positive ttl means TTLPresence.
func NewPresenceTracker(cache *Cache, ttl time.Duration) *PresenceTracker {
	if ttl <= 0 {
		ttl = TTLPresence
	}
	return &PresenceTracker{cache: cache, ttl: ttl, now: time.Now}
}

var _ buddy.Presence = (*PresenceTracker)(nil)

// TTL returns how long a heartbeat keeps a candidate online.
func (t *PresenceTracker) TTL() time.Duration {
	return t.ttl
}

// Heartbeat marks a candidate online for another TTL window.
// The session start of an existing entry is preserved.
func (t *PresenceTracker) Heartbeat(ctx context.Context, candidateID, routineID string) error {
	if candidateID == "" {
		return ErrCandidateIDEmpty
	}

	now := t.now().UTC()
	info := PresenceInfo{CandidateID: candidateID, RoutineID: routineID, LastSeenAt: now}

	var prev PresenceInfo
	err := t.cache.Get(ctx, PresenceKey(candidateID), &prev)
	switch {
	case err == nil && prev.SessionFrom != nil:
		info.SessionFrom = prev.SessionFrom
	case err == nil, errors.Is(err, ErrCacheMiss), errors.Is(err, ErrCacheSerialization):
		info.SessionFrom = &now
	default:
		return fmt.Errorf("presence heartbeat: %w", err)
	}

	if err := t.cache.Set(ctx, PresenceKey(candidateID), info, t.ttl); err != nil {
		return fmt.Errorf("presence heartbeat: %w", err)
	}
	return nil
}

// SetOffline removes a candidate's presence key.
func (t *PresenceTracker) SetOffline(ctx context.Context, candidateID string) error {
	if candidateID == "" {
		return ErrCandidateIDEmpty
	}
	if err := t.cache.Delete(ctx, PresenceKey(candidateID)); err != nil {
		return fmt.Errorf("presence offline: %w", err)
	}
	return nil
}

// Info returns the stored presence entry or ErrCacheMiss.
func (t *PresenceTracker) Info(ctx context.Context, candidateID string) (PresenceInfo, error) {
	if candidateID == "" {
		return PresenceInfo{}, ErrCandidateIDEmpty
	}

	var info PresenceInfo
	if err := t.cache.Get(ctx, PresenceKey(candidateID), &info); err != nil {
		return PresenceInfo{}, err
	}
	return info, nil
}

// Online reports which of ids currently have a presence key.
// Every id is present in the result.
func (t *PresenceTracker) Online(ctx context.Context, ids []string) (map[string]bool, error) {
	online := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return online, nil
	}

	cmds := make([]*redis.IntCmd, len(ids))
	err := t.cache.do(ctx, func(ctx context.Context) error {
		_, err := t.cache.Client().Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, id := range ids {
				cmds[i] = pipe.Exists(ctx, PresenceKey(id))
			}
			return nil
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("presence lookup: %w", err)
	}

	for i, id := range ids {
		online[id] = cmds[i].Val() > 0
	}
	return online, nil
}
