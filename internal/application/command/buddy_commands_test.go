package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/habit-engine/config"
	"github.com/alem-hub/habit-engine/internal/domain/buddy"
	"github.com/alem-hub/habit-engine/internal/domain/routine"
	"github.com/alem-hub/habit-engine/internal/domain/shared"
)

var fixedTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestMatcher(t *testing.T) *buddy.Matcher {
	t.Helper()
	m, err := buddy.NewMatcher(routine.DefaultCatalog(),
		buddy.WithClock(func() time.Time { return fixedTime }),
		buddy.WithIDGenerator(func() string { return "conn-1" }))
	require.NoError(t, err)
	return m
}

func sarah() buddy.Candidate {
	return buddy.Candidate{
		ID:                  "1",
		Name:                "Sarah",
		Level:               3,
		CurrentStreak:       15,
		StudyFocus:          []string{"Spanish"},
		PreferredTimeWindow: "Evening (7-9 PM)",
		IsOnline:            true,
	}
}

func mike() buddy.Candidate {
	return buddy.Candidate{
		ID:                  "2",
		Name:                "Mike",
		Level:               2,
		CurrentStreak:       8,
		PreferredTimeWindow: "Lunch Break (12-1 PM)",
	}
}

func TestConnectBuddy_Success(t *testing.T) {
	store := &fakeConnectionStore{}
	pub := &recordingPublisher{}
	h := NewConnectBuddyHandler(newTestMatcher(t), newFakeDirectory(sarah(), mike()), nil, store, pub, nil)

	res, err := h.Handle(context.Background(), ConnectBuddyCommand{
		RequesterID: "u1", CandidateID: "1", RoutineID: "evening", CorrelationID: "req-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "conn-1", res.Connection.ID)
	assert.Equal(t, routine.Evening, res.Connection.RoutineID)
	assert.Equal(t, buddy.Result{Score: 98, Tier: buddy.TierHigh}, res.Connection.Result)
	assert.Equal(t, fixedTime, res.Connection.CreatedAt)
	require.Len(t, store.saved, 1)
	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventBuddyConnected, pub.events[0].EventType())
}

func TestConnectBuddy_OfflineCandidate(t *testing.T) {
	store := &fakeConnectionStore{}
	h := NewConnectBuddyHandler(newTestMatcher(t), newFakeDirectory(mike()), nil, store, nil, nil)

	_, err := h.Handle(context.Background(), ConnectBuddyCommand{RequesterID: "u1", CandidateID: "2"})
	assert.ErrorIs(t, err, shared.ErrCandidateUnavailable)
	assert.Empty(t, store.saved)
}

func TestConnectBuddy_LivePresenceMakesCandidateOnline(t *testing.T) {
	store := &fakeConnectionStore{}
	presence := &fakePresence{online: map[string]bool{"2": true}}
	h := NewConnectBuddyHandler(newTestMatcher(t), newFakeDirectory(mike()), presence, store, nil, nil)

	res, err := h.Handle(context.Background(), ConnectBuddyCommand{RequesterID: "u1", CandidateID: "2", RoutineID: "lunch"})
	require.NoError(t, err)

	assert.True(t, res.Candidate.IsOnline)
	assert.Equal(t, 95, res.Connection.Result.Score)
}

func TestConnectBuddy_PresenceErrorKeepsStoredFlag(t *testing.T) {
	presence := &fakePresence{err: errors.New("redis down")}
	h := NewConnectBuddyHandler(newTestMatcher(t), newFakeDirectory(sarah()), presence, &fakeConnectionStore{}, nil, nil)

	res, err := h.Handle(context.Background(), ConnectBuddyCommand{RequesterID: "u1", CandidateID: "1"})
	require.NoError(t, err)
	assert.True(t, res.Candidate.IsOnline)
}

func TestConnectBuddy_SignedOffCandidateIsUnavailable(t *testing.T) {
	dir := newFakeDirectory(sarah())
	presence := &fakePresence{online: map[string]bool{"1": true}}
	store := &fakeConnectionStore{}
	connect := NewConnectBuddyHandler(newTestMatcher(t), dir, presence, store, nil, nil)
	report := NewReportPresenceHandler(routine.DefaultCatalog(), presence, dir)
	ctx := context.Background()

	require.NoError(t, report.Handle(ctx, ReportPresenceCommand{CandidateID: "1", Online: false}))
	assert.False(t, dir.candidates["1"].IsOnline)

	_, err := connect.Handle(ctx, ConnectBuddyCommand{RequesterID: "u1", CandidateID: "1"})
	assert.ErrorIs(t, err, shared.ErrCandidateUnavailable)
	assert.Empty(t, store.saved)

	require.NoError(t, report.Handle(ctx, ReportPresenceCommand{CandidateID: "1", Online: true}))
	presence.online = map[string]bool{"1": true}
	res, err := connect.Handle(ctx, ConnectBuddyCommand{RequesterID: "u1", CandidateID: "1"})
	require.NoError(t, err)
	assert.True(t, res.Candidate.IsOnline)
}

func TestReportPresence_SignOffOfUnregisteredCandidate(t *testing.T) {
	presence := &fakePresence{}
	h := NewReportPresenceHandler(routine.DefaultCatalog(), presence, newFakeDirectory())

	require.NoError(t, h.Handle(context.Background(), ReportPresenceCommand{CandidateID: "9", Online: false}))
	assert.Equal(t, []string{"9"}, presence.offline)
}

func TestConnectBuddy_Errors(t *testing.T) {
	tests := []struct {
		name    string
		cmd     ConnectBuddyCommand
		gate    FeatureGate
		store   *fakeConnectionStore
		wantErr error
	}{
		{
			name:    "missing requester",
			cmd:     ConnectBuddyCommand{CandidateID: "1"},
			wantErr: shared.ErrInvalidID,
		},
		{
			name:    "unknown routine",
			cmd:     ConnectBuddyCommand{RequesterID: "u1", CandidateID: "1", RoutineID: "gym"},
			wantErr: shared.ErrUnknownRoutine,
		},
		{
			name:    "unknown candidate",
			cmd:     ConnectBuddyCommand{RequesterID: "u1", CandidateID: "42"},
			wantErr: shared.ErrCandidateNotFound,
		},
		{
			name:    "feature disabled",
			cmd:     ConnectBuddyCommand{RequesterID: "u1", CandidateID: "1"},
			gate:    gate{config.FeatureBuddyMatching: false},
			wantErr: shared.ErrUnavailable,
		},
		{
			name:    "store failure",
			cmd:     ConnectBuddyCommand{RequesterID: "u1", CandidateID: "1"},
			store:   &fakeConnectionStore{err: errStore},
			wantErr: errStore,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := tt.store
			if store == nil {
				store = &fakeConnectionStore{}
			}
			h := NewConnectBuddyHandler(newTestMatcher(t), newFakeDirectory(sarah()), nil, store, nil, tt.gate)

			_, err := h.Handle(context.Background(), tt.cmd)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRegisterCandidate(t *testing.T) {
	dir := newFakeDirectory()
	h := NewRegisterCandidateHandler(dir)

	c, err := h.Handle(context.Background(), RegisterCandidateCommand{Candidate: sarah()})
	require.NoError(t, err)
	assert.Equal(t, "Sarah", c.Name)
	require.Len(t, dir.upserted, 1)

	bad := sarah()
	bad.Name = ""
	_, err = h.Handle(context.Background(), RegisterCandidateCommand{Candidate: bad})
	assert.True(t, shared.IsValidation(err))
}

func TestReportPresence(t *testing.T) {
	presence := &fakePresence{}
	h := NewReportPresenceHandler(routine.DefaultCatalog(), presence, nil)
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, ReportPresenceCommand{CandidateID: "1", Online: true, RoutineID: "coffee"}))
	require.NoError(t, h.Handle(ctx, ReportPresenceCommand{CandidateID: "1", Online: false}))
	assert.Equal(t, []string{"1@coffee"}, presence.heartbeat)
	assert.Equal(t, []string{"1"}, presence.offline)

	err := h.Handle(ctx, ReportPresenceCommand{CandidateID: "1", Online: true, RoutineID: "gym"})
	assert.ErrorIs(t, err, shared.ErrUnknownRoutine)

	err = h.Handle(ctx, ReportPresenceCommand{Online: true})
	assert.True(t, shared.IsValidation(err))
}
