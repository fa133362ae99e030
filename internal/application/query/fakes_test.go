package query

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/alem-hub/habit-engine/internal/domain/buddy"
	"github.com/alem-hub/habit-engine/internal/domain/coaching"
	"github.com/alem-hub/habit-engine/internal/domain/routine"
	"github.com/alem-hub/habit-engine/internal/domain/shared"
	"github.com/alem-hub/habit-engine/internal/domain/streak"
)

type fakeStreakRepo struct {
	records map[string]streak.Record
	err     error
}

func (r *fakeStreakRepo) Get(_ context.Context, userID string) (streak.Record, error) {
	if r.err != nil {
		return streak.Record{}, r.err
	}
	rec, ok := r.records[userID]
	if !ok {
		return streak.Record{UserID: userID}, nil
	}
	return rec, nil
}

func (r *fakeStreakRepo) Update(context.Context, string, streak.Mutation, streak.UpdateFunc) (streak.Record, error) {
	return streak.Record{}, errors.New("read-only fake")
}

func repoWith(userID string, days int) *fakeStreakRepo {
	return &fakeStreakRepo{records: map[string]streak.Record{
		userID: {UserID: userID, Days: days, BestDays: days + 3, UpdatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
	}}
}

type fakeAdviceCache struct {
	mu      sync.Mutex
	entries map[string]coaching.Bundle
	getErr  error
	sets    int
}

func newFakeAdviceCache() *fakeAdviceCache {
	return &fakeAdviceCache{entries: make(map[string]coaching.Bundle)}
}

func adviceKey(id routine.ID, days int) string {
	return id.String() + ":" + strconv.Itoa(days)
}

func (c *fakeAdviceCache) Get(_ context.Context, id routine.ID, days int) (coaching.Bundle, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return coaching.Bundle{}, false, c.getErr
	}
	b, ok := c.entries[adviceKey(id, days)]
	return b, ok, nil
}

func (c *fakeAdviceCache) Set(_ context.Context, id routine.ID, days int, b coaching.Bundle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[adviceKey(id, days)] = b
	c.sets++
	return nil
}

type fakeDirectory struct {
	candidates []buddy.Candidate
	err        error
}

func (d *fakeDirectory) List(context.Context) ([]buddy.Candidate, error) {
	if d.err != nil {
		return nil, d.err
	}
	out := append([]buddy.Candidate(nil), d.candidates...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *fakeDirectory) Get(_ context.Context, id string) (buddy.Candidate, error) {
	for _, c := range d.candidates {
		if c.ID == id {
			return c, nil
		}
	}
	return buddy.Candidate{}, shared.ErrCandidateNotFound
}

type fakePresence struct {
	online map[string]bool
	err    error
}

func (p *fakePresence) Online(_ context.Context, ids []string) (map[string]bool, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = p.online[id]
	}
	return out, nil
}

type fakeConnectionStore struct {
	conns []buddy.Connection
	err   error
}

func (s *fakeConnectionStore) Save(_ context.Context, c buddy.Connection) error {
	s.conns = append(s.conns, c)
	return nil
}

func (s *fakeConnectionStore) ListByRequester(_ context.Context, requesterID string) ([]buddy.Connection, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []buddy.Connection
	for _, c := range s.conns {
		if c.RequesterID == requesterID {
			out = append(out, c)
		}
	}
	return out, nil
}

type gate map[string]bool

func (g gate) IsEnabled(feature, _ string) bool {
	enabled, ok := g[feature]
	return !ok || enabled
}

// sampleCandidates returns the demo buddies used across tests.
func sampleCandidates() []buddy.Candidate {
	return []buddy.Candidate{
		{ID: "1", Name: "Sarah", Level: 3, CurrentStreak: 15, StudyFocus: []string{"Spanish"}, PreferredTimeWindow: "Evening (7-9 PM)", IsOnline: true},
		{ID: "2", Name: "Mike", Level: 2, CurrentStreak: 8, StudyFocus: []string{"Python"}, PreferredTimeWindow: "Lunch Break (12-1 PM)", IsOnline: false},
		{ID: "3", Name: "Emma", Level: 4, CurrentStreak: 22, StudyFocus: []string{"Chemistry"}, PreferredTimeWindow: "Morning (7-10 AM)", IsOnline: true},
		{ID: "4", Name: "Alex", Level: 1, CurrentStreak: 3, StudyFocus: []string{"Economics"}, PreferredTimeWindow: "Evening (7-9 PM)", IsOnline: true},
	}
}
