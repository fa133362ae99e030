package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/habit-engine/internal/application/command"
	"github.com/alem-hub/habit-engine/internal/application/query"
	"github.com/alem-hub/habit-engine/internal/domain/buddy"
	"github.com/alem-hub/habit-engine/internal/domain/coaching"
	"github.com/alem-hub/habit-engine/internal/domain/routine"
	"github.com/alem-hub/habit-engine/internal/domain/shared"
	"github.com/alem-hub/habit-engine/internal/domain/streak"
	"github.com/alem-hub/habit-engine/internal/interface/http/handlers"
	"github.com/alem-hub/habit-engine/pkg/logger"
)

// ── in-memory stores ────────────────────────────────────────────────────────

type memStreaks struct {
	mu      sync.Mutex
	records map[string]streak.Record
}

func (m *memStreaks) Get(_ context.Context, userID string) (streak.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[userID]; ok {
		return rec, nil
	}
	return streak.Record{UserID: userID}, nil
}

func (m *memStreaks) Update(_ context.Context, userID string, _ streak.Mutation, fn streak.UpdateFunc) (streak.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[userID]
	if !ok {
		cur = streak.Record{UserID: userID}
	}
	next := fn(cur)
	next.UserID = userID
	m.records[userID] = next
	return next, nil
}

type memCompletions struct {
	mu   sync.Mutex
	done map[string]map[routine.ID]bool
}

func (m *memCompletions) MarkCompleted(_ context.Context, userID string, id routine.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done[userID] == nil {
		m.done[userID] = make(map[routine.ID]bool)
	}
	if m.done[userID][id] {
		return false, nil
	}
	m.done[userID][id] = true
	return true, nil
}

func (m *memCompletions) CompletedToday(_ context.Context, userID string) ([]routine.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []routine.ID
	for id := range m.done[userID] {
		out = append(out, id)
	}
	return out, nil
}

func (m *memCompletions) Unmark(_ context.Context, userID string, id routine.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.done[userID], id)
	return nil
}

type memBuddies struct {
	mu          sync.Mutex
	candidates  map[string]buddy.Candidate
	connections []buddy.Connection
	heartbeats  map[string]bool
}

func (m *memBuddies) List(context.Context) ([]buddy.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]buddy.Candidate, 0, len(m.candidates))
	for _, c := range m.candidates {
		out = append(out, c)
	}
	return out, nil
}

func (m *memBuddies) Get(_ context.Context, id string) (buddy.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.candidates[id]
	if !ok {
		return buddy.Candidate{}, shared.WrapError("buddy", "Get", shared.ErrCandidateNotFound, "candidate "+id+" not found", nil)
	}
	return c, nil
}

func (m *memBuddies) Upsert(_ context.Context, c buddy.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates[c.ID] = c
	return nil
}

func (m *memBuddies) SetOnline(_ context.Context, id string, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.candidates[id]
	if !ok {
		return shared.WrapError("buddy", "SetOnline", shared.ErrCandidateNotFound, "candidate "+id+" not found", nil)
	}
	m.candidates[id] = c.WithPresence(online)
	return nil
}

func (m *memBuddies) Save(_ context.Context, c buddy.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections = append(m.connections, c)
	return nil
}

func (m *memBuddies) ListByRequester(_ context.Context, requesterID string) ([]buddy.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []buddy.Connection
	for _, c := range m.connections {
		if c.RequesterID == requesterID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memBuddies) Online(_ context.Context, ids []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = m.heartbeats[id]
	}
	return out, nil
}

func (m *memBuddies) Heartbeat(_ context.Context, candidateID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats[candidateID] = true
	return nil
}

func (m *memBuddies) SetOffline(_ context.Context, candidateID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.heartbeats, candidateID)
	return nil
}

// ── harness ─────────────────────────────────────────────────────────────────

func newTestServer(t *testing.T, cfg Config) http.Handler {
	t.Helper()

	catalog := routine.DefaultCatalog()
	streaks := &memStreaks{records: map[string]streak.Record{}}
	completions := &memCompletions{done: map[string]map[routine.ID]bool{}}
	buddies := &memBuddies{
		candidates: map[string]buddy.Candidate{
			"1": {ID: "1", Name: "Sarah", CurrentStreak: 15, PreferredTimeWindow: "Evening (7-9 PM)", IsOnline: true},
			"2": {ID: "2", Name: "Mike", CurrentStreak: 8, PreferredTimeWindow: "Lunch Break (12-1 PM)"},
		},
		heartbeats: map[string]bool{},
	}

	matcher, err := buddy.NewMatcher(catalog)
	require.NoError(t, err)
	advisors, err := query.NewAdvisorPool(catalog, coaching.Config{Latency: 0})
	require.NoError(t, err)

	log := logger.Nop()
	srv := NewServer(cfg, Dependencies{
		AdjustStreak:      command.NewAdjustStreakHandler(streaks, streak.Linear(), nil, nil),
		ResetStreak:       command.NewResetStreakHandler(streaks, streak.Linear(), nil),
		CompleteRoutine:   command.NewCompleteRoutineHandler(catalog, completions, streaks, streak.Milestone(), nil, nil),
		ConnectBuddy:      command.NewConnectBuddyHandler(matcher, buddies, buddies, buddies, nil, nil),
		RegisterCandidate: command.NewRegisterCandidateHandler(buddies),
		ReportPresence:    command.NewReportPresenceHandler(catalog, buddies, buddies),
		GetStreak:         query.NewGetStreakHandler(streaks, streak.Linear()),
		GetAdvice:         query.NewGetAdviceHandler(catalog, streaks, streak.Linear(), advisors, nil, nil, log),
		FindBuddies:       query.NewFindBuddiesHandler(matcher, buddies, buddies, buddies, nil, query.Limits{}, log),
		ListConnections:   query.NewListConnectionsHandler(buddies),
		ListRoutines:      query.NewListRoutinesHandler(catalog, advisors),
		Stats:             func() any { return map[string]int{"published": 0} },
		Logger:            log,
		Version:           "test",
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv.Handler()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	return cfg
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	RequestID string          `json:"request_id"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

// ── tests ───────────────────────────────────────────────────────────────────

func TestHealthEndpoints(t *testing.T) {
	h := newTestServer(t, testConfig())

	for _, path := range []string{"/health", "/ready", "/live", "/"} {
		rec, env := do(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.True(t, env.Success, path)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"), path)
	}
}

func TestHealthReportsDegradedAndDown(t *testing.T) {
	m := handlers.NewMonitor("test", 0)
	m.Register("postgres", handlers.Critical, func(context.Context) error { return nil })
	m.Register("redis", handlers.Optional, handlers.Disabled("REDIS_DISABLED=true"))
	h := NewServer(testConfig(), Dependencies{HealthChecker: m}).Handler()

	rec, env := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status handlers.HealthStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, handlers.StatusDegraded, status.Status)
	assert.Equal(t, "disabled", status.Checks["redis"].Status)

	rec, env = do(t, h, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","health":"degraded"}`, string(env.Data))

	m.Register("advisor", handlers.Critical, func(context.Context) error { return errors.New("no templates for gym") })
	rec, _ = do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec, _ = do(t, h, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStreakFlow(t *testing.T) {
	h := newTestServer(t, testConfig())

	rec, env := do(t, h, http.MethodPost, "/api/v1/users/u1/streak/adjust", `{"delta": 7}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var change StreakChangeResponse
	require.NoError(t, json.Unmarshal(env.Data, &change))
	assert.Equal(t, 7, change.Current.Days)
	assert.Equal(t, 1.4, change.Current.Multiplier)
	assert.Equal(t, []int{5}, change.Milestones)
	assert.False(t, change.Clamped)

	rec, env = do(t, h, http.MethodPost, "/api/v1/users/u1/streak/adjust", `{"delta": 1000, "policy": "milestone"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &change))
	assert.Equal(t, 365, change.Current.Days)
	assert.True(t, change.Clamped)
	assert.NotEmpty(t, change.Warning)

	rec, env = do(t, h, http.MethodGet, "/api/v1/users/u1/streak?policy=milestone", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got query.StreakResult
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, 365, got.State.Days)
	assert.Equal(t, 365, got.BestDays)

	rec, env = do(t, h, http.MethodPost, "/api/v1/users/u1/streak/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &change))
	assert.Equal(t, 0, change.Current.Days)
	assert.Equal(t, 365, change.BestDays)
}

func TestStreakValidation(t *testing.T) {
	h := newTestServer(t, testConfig())

	tests := []struct {
		name string
		path string
		body string
		code string
	}{
		{"missing delta", "/api/v1/users/u1/streak/adjust", `{}`, "validation_error"},
		{"unknown field", "/api/v1/users/u1/streak/adjust", `{"delta": 1, "days": 3}`, "invalid_payload"},
		{"bad policy", "/api/v1/users/u1/streak/adjust", `{"delta": 1, "policy": "cubic"}`, "validation_error"},
		{"malformed json", "/api/v1/users/u1/streak/reset", `{`, "invalid_payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestCompleteRoutine(t *testing.T) {
	h := newTestServer(t, testConfig())

	rec, env := do(t, h, http.MethodPost, "/api/v1/users/u1/routines/coffee/complete", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res CompleteRoutineResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 1, res.State.Days)
	assert.Equal(t, 5, res.NextMilestone.Days)
	assert.Equal(t, []routine.ID{routine.Coffee}, res.CompletedToday)

	rec, env = do(t, h, http.MethodPost, "/api/v1/users/u1/routines/coffee/complete", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.AlreadyCompleted)
	assert.Equal(t, 1, res.State.Days)

	rec, env = do(t, h, http.MethodPost, "/api/v1/users/u1/routines/gym/complete", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown_routine", env.Error.Code)
}

func TestAdviceAndRoutines(t *testing.T) {
	h := newTestServer(t, testConfig())

	rec, env := do(t, h, http.MethodGet, "/api/v1/routines", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var routines []query.RoutineDTO
	require.NoError(t, json.Unmarshal(env.Data, &routines))
	assert.Len(t, routines, 4)

	rec, env = do(t, h, http.MethodGet, "/api/v1/users/u1/advice?routine=evening", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var advice query.AdviceResult
	require.NoError(t, json.Unmarshal(env.Data, &advice))
	assert.Equal(t, routine.Evening, advice.Routine.ID)
	assert.Contains(t, advice.Advice.Motivation, "0 consecutive days")

	rec, env = do(t, h, http.MethodGet, "/api/v1/users/u1/advice?routine=gym", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_routine", env.Error.Code)
}

func TestBuddyFlow(t *testing.T) {
	h := newTestServer(t, testConfig())

	rec, env := do(t, h, http.MethodGet, "/api/v1/buddies?routine=evening&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var found query.FindBuddiesResult
	require.NoError(t, json.Unmarshal(env.Data, &found))
	require.Len(t, found.Matches, 1)
	assert.Equal(t, "1", found.Matches[0].Candidate.ID)
	assert.Equal(t, 98, found.Matches[0].Result.Score)
	assert.Equal(t, 2, found.Total)

	rec, env = do(t, h, http.MethodPost, "/api/v1/users/u1/buddies/2/connect", `{"routine": "lunch"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "candidate_unavailable", env.Error.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/v1/buddies/2/presence", `{"routine": "lunch"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = do(t, h, http.MethodPost, "/api/v1/users/u1/buddies/2/connect", `{"routine": "lunch"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var conn ConnectBuddyResponse
	require.NoError(t, json.Unmarshal(env.Data, &conn))
	assert.Equal(t, 95, conn.Connection.Result.Score)
	assert.Equal(t, routine.Lunch, conn.Connection.RoutineID)

	rec, env = do(t, h, http.MethodGet, "/api/v1/users/u1/buddies", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var conns query.ConnectionsResult
	require.NoError(t, json.Unmarshal(env.Data, &conns))
	assert.Len(t, conns.Connections, 1)

	rec, env = do(t, h, http.MethodPost, "/api/v1/users/u1/buddies/42/connect", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "candidate_not_found", env.Error.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/v1/buddies/1/presence", `{"online": false}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = do(t, h, http.MethodPost, "/api/v1/users/u1/buddies/1/connect", `{"routine": "evening"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "candidate_unavailable", env.Error.Code)

	rec, env = do(t, h, http.MethodGet, "/api/v1/buddies?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestRegisterCandidate(t *testing.T) {
	h := newTestServer(t, testConfig())

	rec, _ := do(t, h, http.MethodPut, "/api/v1/buddies/7",
		`{"name": "Dana", "level": 2, "currentStreak": 12, "studyFocus": ["Go"], "preferredTimeWindow": "Morning (7-10 AM)", "isOnline": true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env := do(t, h, http.MethodGet, "/api/v1/buddies?routine=coffee&online=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var found query.FindBuddiesResult
	require.NoError(t, json.Unmarshal(env.Data, &found))
	assert.Equal(t, "7", found.Matches[0].Candidate.ID)

	rec, env = do(t, h, http.MethodPut, "/api/v1/buddies/8", `{"level": -1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestAPIKeyProtectsWrites(t *testing.T) {
	cfg := testConfig()
	cfg.APIKeys = []string{"secret"}
	h := newTestServer(t, cfg)

	rec, env := do(t, h, http.MethodPost, "/api/v1/users/u1/streak/reset", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "missing_api_key", env.Error.Code)
	assert.NotEmpty(t, env.RequestID)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/u1/streak/reset", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/users/u1/streak", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 2
	h := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		rec, _ := do(t, h, http.MethodGet, "/live", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec, env := do(t, h, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limit_exceeded", env.Error.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{shared.WrapError("coaching", "Generate", shared.ErrSuperseded, "x", nil), http.StatusConflict},
		{shared.WrapError("query", "x", shared.ErrUnavailable, "x", nil), http.StatusServiceUnavailable},
		{shared.WrapError("query", "x", shared.ErrInvalidID, "x", nil), http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := statusFor(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	s := &Server{logger: logger.Nop()}
	h := s.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
