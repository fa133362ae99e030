package http

import (
	"errors"
	"net/http"

	"github.com/alem-hub/habit-engine/internal/domain/shared"
	"github.com/alem-hub/habit-engine/pkg/codec"
	"github.com/alem-hub/habit-engine/pkg/logger"
)

// errorMapping maps a domain error kind to a response.
type errorMapping struct {
	kind   error
	status int
	code   string
}

// Order matters: the first matching kind wins.
var errorMappings = []errorMapping{
	{shared.ErrUnknownRoutine, http.StatusBadRequest, "unknown_routine"},
	{shared.ErrCandidateNotFound, http.StatusNotFound, "candidate_not_found"},
	{shared.ErrCandidateUnavailable, http.StatusConflict, "candidate_unavailable"},
	{shared.ErrSuperseded, http.StatusConflict, "superseded"},
	{shared.ErrAlreadyExists, http.StatusConflict, "already_exists"},
	{shared.ErrNotFound, http.StatusNotFound, "not_found"},
	{codec.ErrInvalidPayload, http.StatusBadRequest, "invalid_payload"},
	{shared.ErrUnavailable, http.StatusServiceUnavailable, "unavailable"},
	{shared.ErrCanceled, http.StatusServiceUnavailable, "canceled"},
}

// statusFor returns the HTTP status and error code for err.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.kind) {
			return m.status, m.code
		}
	}
	if shared.IsValidation(err) {
		return http.StatusBadRequest, "validation_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError writes err as a JSON error. Unexpected errors are logged and
// their message is not exposed.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	s.writeErrorStatus(w, r, status, code, err)
}

// writeRoutinePathError is writeError for endpoints that take the routine
// from the path: an unknown routine there is a missing resource.
func (s *Server) writeRoutinePathError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, shared.ErrUnknownRoutine) {
		s.writeErrorStatus(w, r, http.StatusNotFound, "unknown_routine", err)
		return
	}
	s.writeError(w, r, err)
}

func (s *Server) writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
		if status == http.StatusInternalServerError {
			message = "An unexpected error occurred"
		}
	}
	writeJSONError(w, r, status, code, message)
}
