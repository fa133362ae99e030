package command

import (
	"context"
	"errors"
	"sync"

	"github.com/alem-hub/habit-engine/internal/domain/buddy"
	"github.com/alem-hub/habit-engine/internal/domain/routine"
	"github.com/alem-hub/habit-engine/internal/domain/shared"
	"github.com/alem-hub/habit-engine/internal/domain/streak"
)

type fakeStreakRepo struct {
	mu        sync.Mutex
	records   map[string]streak.Record
	mutations []streak.Mutation
	updateErr error

	// conflicts makes the first Update attempts lose to a concurrent writer
	// that adds bump days; fn is then rerun on the winner's row.
	conflicts int
	bump      int
}

func newFakeStreakRepo() *fakeStreakRepo {
	return &fakeStreakRepo{records: make(map[string]streak.Record)}
}

func (r *fakeStreakRepo) Get(_ context.Context, userID string) (streak.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[userID]
	if !ok {
		return streak.Record{UserID: userID}, nil
	}
	return rec, nil
}

func (r *fakeStreakRepo) Update(_ context.Context, userID string, m streak.Mutation, fn streak.UpdateFunc) (streak.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return streak.Record{}, r.updateErr
	}
	current, ok := r.records[userID]
	if !ok {
		current = streak.Record{UserID: userID}
	}
	for ; r.conflicts > 0; r.conflicts-- {
		_ = fn(current)
		current.Days += r.bump
	}
	next := fn(current)
	next.UserID = userID
	r.records[userID] = next
	r.mutations = append(r.mutations, m)
	return next, nil
}

func (r *fakeStreakRepo) set(userID string, days int) {
	r.records[userID] = streak.Record{UserID: userID, Days: days, BestDays: days}
}

type fakeCompletionLog struct {
	mu        sync.Mutex
	done      map[string][]routine.ID
	err       error
	unmarkErr error

	// unmarkCtxErr records ctx.Err() seen by the last Unmark.
	unmarkCtxErr error
}

func newFakeCompletionLog() *fakeCompletionLog {
	return &fakeCompletionLog{done: make(map[string][]routine.ID)}
}

func (l *fakeCompletionLog) MarkCompleted(_ context.Context, userID string, id routine.ID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	for _, d := range l.done[userID] {
		if d == id {
			return false, nil
		}
	}
	l.done[userID] = append(l.done[userID], id)
	return true, nil
}

func (l *fakeCompletionLog) CompletedToday(_ context.Context, userID string) ([]routine.ID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]routine.ID(nil), l.done[userID]...), nil
}

func (l *fakeCompletionLog) Unmark(ctx context.Context, userID string, id routine.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unmarkCtxErr = ctx.Err()
	if l.unmarkErr != nil {
		return l.unmarkErr
	}
	kept := l.done[userID][:0]
	for _, d := range l.done[userID] {
		if d != id {
			kept = append(kept, d)
		}
	}
	l.done[userID] = kept
	return nil
}

type fakeDirectory struct {
	candidates map[string]buddy.Candidate
	upserted   []buddy.Candidate
}

func newFakeDirectory(cs ...buddy.Candidate) *fakeDirectory {
	d := &fakeDirectory{candidates: make(map[string]buddy.Candidate)}
	for _, c := range cs {
		d.candidates[c.ID] = c
	}
	return d
}

func (d *fakeDirectory) List(context.Context) ([]buddy.Candidate, error) {
	out := make([]buddy.Candidate, 0, len(d.candidates))
	for _, c := range d.candidates {
		out = append(out, c)
	}
	return out, nil
}

func (d *fakeDirectory) Get(_ context.Context, id string) (buddy.Candidate, error) {
	c, ok := d.candidates[id]
	if !ok {
		return buddy.Candidate{}, shared.WrapError("buddy", "Get", shared.ErrCandidateNotFound, "missing", nil)
	}
	return c, nil
}

func (d *fakeDirectory) Upsert(_ context.Context, c buddy.Candidate) error {
	d.upserted = append(d.upserted, c)
	d.candidates[c.ID] = c
	return nil
}

func (d *fakeDirectory) SetOnline(_ context.Context, id string, online bool) error {
	c, ok := d.candidates[id]
	if !ok {
		return shared.WrapError("buddy", "SetOnline", shared.ErrCandidateNotFound, "missing", nil)
	}
	d.candidates[id] = c.WithPresence(online)
	return nil
}

type fakeConnectionStore struct {
	saved []buddy.Connection
	err   error
}

func (s *fakeConnectionStore) Save(_ context.Context, c buddy.Connection) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, c)
	return nil
}

func (s *fakeConnectionStore) ListByRequester(_ context.Context, requesterID string) ([]buddy.Connection, error) {
	var out []buddy.Connection
	for _, c := range s.saved {
		if c.RequesterID == requesterID {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakePresence struct {
	online    map[string]bool
	err       error
	heartbeat []string
	offline   []string
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

func (p *fakePresence) Heartbeat(_ context.Context, candidateID, routineID string) error {
	p.heartbeat = append(p.heartbeat, candidateID+"@"+routineID)
	return nil
}

func (p *fakePresence) SetOffline(_ context.Context, candidateID string) error {
	p.offline = append(p.offline, candidateID)
	delete(p.online, candidateID)
	return nil
}

type recordingPublisher struct {
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	out := make([]shared.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

type gate map[string]bool

func (g gate) IsEnabled(feature, _ string) bool {
	enabled, ok := g[feature]
	return !ok || enabled
}

var errStore = errors.New("store down")
