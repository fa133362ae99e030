package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/habit-engine/internal/domain/shared"
	"github.com/alem-hub/habit-engine/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESET STREAK COMMAND
// Drops a user's streak back to zero days. The best streak is kept.
// ══════════════════════════════════════════════════════════════════════════════

// ResetStreakCommand contains the data to reset a streak.
type ResetStreakCommand struct {
	// UserID is the owner of the streak.
	UserID string

	// Policy selects the multiplier policy of the returned state.
	Policy streak.PolicyName

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ResetStreakCommand) Validate() error {
	return AdjustStreakCommand{UserID: c.UserID, Policy: c.Policy}.Validate()
}

// ResetStreakHandler handles the ResetStreakCommand.
type ResetStreakHandler struct {
	repo           streak.Repository
	engine         *streak.Engine
	eventPublisher shared.EventPublisher
}

// NewResetStreakHandler creates a new ResetStreakHandler.
func NewResetStreakHandler(repo streak.Repository, engine *streak.Engine, eventPublisher shared.EventPublisher) *ResetStreakHandler {
	return &ResetStreakHandler{
		repo:           repo,
		engine:         engine,
		eventPublisher: publisherOrDefault(eventPublisher),
	}
}

// Handle executes the reset streak command.
func (h *ResetStreakHandler) Handle(ctx context.Context, cmd ResetStreakCommand) (*StreakChangeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("reset_streak: validation failed: %w", err)
	}

	engine, err := resolveEngine(cmd.Policy, h.engine)
	if err != nil {
		return nil, fmt.Errorf("reset_streak: %w", err)
	}

	var previous streak.State
	rec, err := h.repo.Update(ctx, cmd.UserID, streak.Mutation{Reason: streak.ReasonReset},
		func(current streak.Record) streak.Record {
			previous = current.State(engine)
			return current.WithDays(engine.Reset().Days)
		})
	if err != nil {
		return nil, fmt.Errorf("reset_streak: %w", err)
	}

	result := &StreakChangeResult{
		Previous: previous,
		Current:  rec.State(engine),
		BestDays: rec.BestDays,
	}

	if previous.Days > 0 {
		event := shared.NewStreakResetEvent(cmd.UserID, previous.Days)
		event.BaseEvent = event.WithCorrelationID(cmd.CorrelationID)
		result.Events = append(result.Events, event)
	}

	publishAll(h.eventPublisher, result.Events)

	return result, nil
}
