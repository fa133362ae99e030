package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/habit-engine/internal/domain/buddy"
	"github.com/alem-hub/habit-engine/internal/domain/routine"
	"github.com/alem-hub/habit-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORT PRESENCE COMMAND
// Keeps a candidate online (heartbeat) or takes them offline. A sign-off also
// clears the stored online flag so the candidate cannot be connected to.
// ══════════════════════════════════════════════════════════════════════════════

// ReportPresenceCommand contains a presence signal.
type ReportPresenceCommand struct {
	// CandidateID is the candidate reporting presence.
	CandidateID string

	// Online is false for an explicit sign-off.
	Online bool

	// RoutineID is the routine the candidate is studying in (optional).
	RoutineID string
}

// Validate validates the command.
func (c ReportPresenceCommand) Validate() error {
	if c.CandidateID == "" {
		return shared.WrapError("buddy", "Presence", shared.ErrInvalidID, "candidate_id is required", nil)
	}
	return nil
}

// ReportPresenceHandler handles the ReportPresenceCommand.
type ReportPresenceHandler struct {
	catalog  *routine.Catalog
	reporter buddy.PresenceReporter
	registry buddy.Registry
}

// NewReportPresenceHandler creates a new ReportPresenceHandler. A nil reporter
// makes every report fail with ErrUnavailable. registry may be nil.
func NewReportPresenceHandler(
	catalog *routine.Catalog,
	reporter buddy.PresenceReporter,
	registry buddy.Registry,
) *ReportPresenceHandler {
	return &ReportPresenceHandler{catalog: catalog, reporter: reporter, registry: registry}
}

// Handle executes the report presence command.
func (h *ReportPresenceHandler) Handle(ctx context.Context, cmd ReportPresenceCommand) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("report_presence: validation failed: %w", err)
	}
	if h.reporter == nil {
		return shared.WrapError("buddy", "ReportPresence", shared.ErrUnavailable,
			"presence tracking is disabled", nil)
	}

	if !cmd.Online {
		if err := h.reporter.SetOffline(ctx, cmd.CandidateID); err != nil {
			return fmt.Errorf("report_presence: %w", err)
		}
		if h.registry == nil {
			return nil
		}
		// Candidates known only to the presence tracker have no stored flag
		err := h.registry.SetOnline(ctx, cmd.CandidateID, false)
		if err != nil && !errors.Is(err, shared.ErrCandidateNotFound) {
			return fmt.Errorf("report_presence: %w", err)
		}
		return nil
	}

	if cmd.RoutineID != "" {
		if _, err := h.catalog.Lookup(cmd.RoutineID); err != nil {
			return fmt.Errorf("report_presence: %w", err)
		}
	}

	if err := h.reporter.Heartbeat(ctx, cmd.CandidateID, cmd.RoutineID); err != nil {
		return fmt.Errorf("report_presence: %w", err)
	}
	return nil
}
