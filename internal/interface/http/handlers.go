package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/alem-hub/habit-engine/internal/application/command"
	"github.com/alem-hub/habit-engine/internal/application/query"
	"github.com/alem-hub/habit-engine/internal/domain/buddy"
	"github.com/alem-hub/habit-engine/internal/domain/routine"
	"github.com/alem-hub/habit-engine/internal/domain/shared"
	"github.com/alem-hub/habit-engine/internal/domain/streak"
	"github.com/alem-hub/habit-engine/pkg/codec"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"name":    "habit-engine",
		"version": s.deps.Version,
		"endpoints": map[string]string{
			"health":   "/health",
			"routines": "/api/v1/routines",
			"streak":   "/api/v1/users/{id}/streak",
			"advice":   "/api/v1/users/{id}/advice?routine=",
			"buddies":  "/api/v1/buddies?routine=&limit=",
		},
	})
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// handleReady handles the readiness endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": status.Message,
		})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready", "health": status.Status})
}

// handleLive handles the liveness endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// handleStats reports runtime counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime": s.Uptime().Round(time.Second).String(),
	}
	if s.deps.Stats != nil {
		stats["engine"] = s.deps.Stats()
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// StreakChangeResponse is the body returned by streak-changing endpoints.
type StreakChangeResponse struct {
	Previous   streak.State `json:"previous"`
	Current    streak.State `json:"current"`
	BestDays   int          `json:"bestDays"`
	Milestones []int        `json:"milestones,omitempty"`
	Clamped    bool         `json:"clamped"`
	Warning    string       `json:"warning,omitempty"`
}

func newStreakChangeResponse(res *command.StreakChangeResult) StreakChangeResponse {
	out := StreakChangeResponse{
		Previous:   res.Previous,
		Current:    res.Current,
		BestDays:   res.BestDays,
		Milestones: res.Milestones,
	}
	if res.Warning != nil {
		out.Clamped = true
		out.Warning = res.Warning.Error()
	}
	return out
}

type adjustStreakRequest struct {
	Delta  *int   `json:"delta"`
	Policy string `json:"policy"`
}

type resetStreakRequest struct {
	Policy string `json:"policy"`
}

// handleGetStreak returns the user's streak.
func (s *Server) handleGetStreak(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.GetStreak.Handle(r.Context(), query.GetStreakQuery{
		UserID: r.PathValue("id"),
		Policy: streak.PolicyName(r.URL.Query().Get("policy")),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleAdjustStreak applies a signed delta.
func (s *Server) handleAdjustStreak(w http.ResponseWriter, r *http.Request) {
	var req adjustStreakRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Delta == nil {
		s.writeError(w, r, shared.WrapError("http", "AdjustStreak", shared.ErrInvalidInput, "delta is required", nil))
		return
	}

	res, err := s.deps.AdjustStreak.Handle(r.Context(), command.AdjustStreakCommand{
		UserID:        r.PathValue("id"),
		Delta:         *req.Delta,
		Policy:        streak.PolicyName(req.Policy),
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newStreakChangeResponse(res))
}

// handleResetStreak resets the streak to zero.
func (s *Server) handleResetStreak(w http.ResponseWriter, r *http.Request) {
	var req resetStreakRequest
	if err := decodeBody(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.ResetStreak.Handle(r.Context(), command.ResetStreakCommand{
		UserID:        r.PathValue("id"),
		Policy:        streak.PolicyName(req.Policy),
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newStreakChangeResponse(res))
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTINE & ADVICE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// CompleteRoutineResponse is the body returned by the complete endpoint.
type CompleteRoutineResponse struct {
	Routine          routine.Anchor `json:"routine"`
	AlreadyCompleted bool           `json:"alreadyCompleted"`
	State            streak.State   `json:"state"`
	BestDays         int            `json:"bestDays"`
	Milestones       []int          `json:"milestones,omitempty"`
	NextMilestone    streak.State   `json:"nextMilestone"`
	CompletedToday   []routine.ID   `json:"completedToday"`
}

// handleListRoutines returns the routine catalog.
func (s *Server) handleListRoutines(w http.ResponseWriter, r *http.Request) {
	routines, err := s.deps.ListRoutines.Handle()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, routines, &ResponseMeta{TotalCount: len(routines)})
}

// handleCompleteRoutine marks a routine done for today.
func (s *Server) handleCompleteRoutine(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.CompleteRoutine.Handle(r.Context(), command.CompleteRoutineCommand{
		UserID:        r.PathValue("id"),
		RoutineID:     r.PathValue("routine"),
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeRoutinePathError(w, r, err)
		return
	}

	status := http.StatusOK
	if !res.AlreadyCompleted {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, CompleteRoutineResponse{
		Routine:          res.Routine,
		AlreadyCompleted: res.AlreadyCompleted,
		State:            res.State,
		BestDays:         res.BestDays,
		Milestones:       res.Milestones,
		NextMilestone:    res.NextMilestone,
		CompletedToday:   res.CompletedToday,
	})
}

// handleGetAdvice returns advice for a routine.
func (s *Server) handleGetAdvice(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.GetAdvice.Handle(r.Context(), query.GetAdviceQuery{
		UserID:    r.PathValue("id"),
		RoutineID: r.URL.Query().Get("routine"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// BUDDY HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type connectBuddyRequest struct {
	Routine string `json:"routine"`
}

// ConnectBuddyResponse is the body returned by the connect endpoint.
type ConnectBuddyResponse struct {
	Connection buddy.Connection `json:"connection"`
	Candidate  buddy.Candidate  `json:"candidate"`
}

type registerCandidateRequest struct {
	Name                string   `json:"name"`
	Level               int      `json:"level"`
	CurrentStreak       int      `json:"currentStreak"`
	StudyFocus          []string `json:"studyFocus"`
	PreferredTimeWindow string   `json:"preferredTimeWindow"`
	IsOnline            bool     `json:"isOnline"`
}

type reportPresenceRequest struct {
	Online  *bool  `json:"online"`
	Routine string `json:"routine"`
}

// handleFindBuddies ranks buddy candidates.
func (s *Server) handleFindBuddies(w http.ResponseWriter, r *http.Request) {
	limit, err := getQueryParamInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, shared.WrapError("http", "FindBuddies", shared.ErrInvalidFormat, err.Error(), nil))
		return
	}

	res, err := s.deps.FindBuddies.Handle(r.Context(), query.FindBuddiesQuery{
		UserID:     r.URL.Query().Get("user"),
		RoutineID:  r.URL.Query().Get("routine"),
		Limit:      limit,
		OnlineOnly: getQueryParamBool(r, "online"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, res, &ResponseMeta{TotalCount: res.Total})
}

// handleConnectBuddy connects the user with a candidate.
func (s *Server) handleConnectBuddy(w http.ResponseWriter, r *http.Request) {
	var req connectBuddyRequest
	if err := decodeBody(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.ConnectBuddy.Handle(r.Context(), command.ConnectBuddyCommand{
		RequesterID:   r.PathValue("id"),
		CandidateID:   r.PathValue("candidate"),
		RoutineID:     req.Routine,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, ConnectBuddyResponse{
		Connection: res.Connection,
		Candidate:  res.Candidate,
	})
}

// handleListConnections lists the user's buddy connections.
func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.ListConnections.Handle(r.Context(), query.ListConnectionsQuery{UserID: r.PathValue("id")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, res, &ResponseMeta{TotalCount: len(res.Connections)})
}

// handleRegisterCandidate adds or updates a candidate profile.
func (s *Server) handleRegisterCandidate(w http.ResponseWriter, r *http.Request) {
	var req registerCandidateRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	c, err := s.deps.RegisterCandidate.Handle(r.Context(), command.RegisterCandidateCommand{
		Candidate: buddy.Candidate{
			ID:                  r.PathValue("id"),
			Name:                req.Name,
			Level:               req.Level,
			CurrentStreak:       req.CurrentStreak,
			StudyFocus:          req.StudyFocus,
			PreferredTimeWindow: req.PreferredTimeWindow,
			IsOnline:            req.IsOnline,
		},
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

// handleReportPresence records a heartbeat or sign-off.
func (s *Server) handleReportPresence(w http.ResponseWriter, r *http.Request) {
	var req reportPresenceRequest
	if err := decodeBody(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}

	online := req.Online == nil || *req.Online
	err := s.deps.ReportPresence.Handle(r.Context(), command.ReportPresenceCommand{
		CandidateID: r.PathValue("id"),
		Online:      online,
		RoutineID:   req.Routine,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeBody decodes a strict JSON body. An empty body is accepted when optional.
func decodeBody(r *http.Request, v any, optional bool) error {
	err := codec.DecodeStrict(r.Body, v)
	if err == nil {
		return nil
	}
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
