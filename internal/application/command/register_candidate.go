package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/habit-engine/internal/domain/buddy"
	"github.com/alem-hub/habit-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER CANDIDATE COMMAND
// Adds or refreshes a buddy candidate profile in the directory.
// ══════════════════════════════════════════════════════════════════════════════

// RegisterCandidateCommand contains a candidate profile.
type RegisterCandidateCommand struct {
	Candidate buddy.Candidate
}

// Validate validates the command.
func (c RegisterCandidateCommand) Validate() error {
	if err := c.Candidate.Validate(); err != nil {
		return shared.WrapError("buddy", "Register", shared.ErrValidation, err.Error(), nil)
	}
	if c.Candidate.Name == "" {
		return shared.WrapError("buddy", "Register", shared.ErrValidation, "candidate name is required", nil)
	}
	return nil
}

// RegisterCandidateHandler handles the RegisterCandidateCommand.
type RegisterCandidateHandler struct {
	registry buddy.Registry
}

// NewRegisterCandidateHandler creates a new RegisterCandidateHandler.
func NewRegisterCandidateHandler(registry buddy.Registry) *RegisterCandidateHandler {
	return &RegisterCandidateHandler{registry: registry}
}

// Handle executes the register candidate command.
func (h *RegisterCandidateHandler) Handle(ctx context.Context, cmd RegisterCandidateCommand) (*buddy.Candidate, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("register_candidate: validation failed: %w", err)
	}

	if err := h.registry.Upsert(ctx, cmd.Candidate); err != nil {
		return nil, fmt.Errorf("register_candidate: %w", err)
	}

	c := cmd.Candidate.WithPresence(cmd.Candidate.IsOnline)
	return &c, nil
}
