package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/habit-engine/internal/domain/shared"
	"github.com/alem-hub/habit-engine/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADJUST STREAK COMMAND
// Applies a signed delta to a user's streak. Out-of-range results are clamped
// to [0, 365] and reported as a warning, never as a failure.
// ══════════════════════════════════════════════════════════════════════════════

// AdjustStreakCommand contains the data to adjust a streak.
type AdjustStreakCommand struct {
	// UserID is the owner of the streak.
	UserID string

	// Delta is the signed number of days to add.
	Delta int

	// Policy selects the multiplier policy (empty = handler default).
	Policy streak.PolicyName

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c AdjustStreakCommand) Validate() error {
	if c.UserID == "" {
		return shared.WrapError("streak", "Adjust", shared.ErrInvalidID, "user_id is required", nil)
	}
	if c.Policy != "" && !c.Policy.IsValid() {
		return shared.WrapError("streak", "Adjust", shared.ErrInvalidInput,
			fmt.Sprintf("unknown policy %q", c.Policy), nil)
	}
	return nil
}

// StreakChangeResult is returned by the streak-changing commands.
type StreakChangeResult struct {
	// Previous is the state before the change.
	Previous streak.State

	// Current is the state after the change.
	Current streak.State

	// BestDays is the longest streak seen for the user.
	BestDays int

	// Milestones lists milestones crossed by this change.
	Milestones []int

	// Warning is set when the delta was clamped (errors.Is ErrInvalidRange).
	Warning error

	// Events contains domain events generated.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AdjustStreakHandler handles the AdjustStreakCommand.
type AdjustStreakHandler struct {
	repo           streak.Repository
	engine         *streak.Engine
	eventPublisher shared.EventPublisher
	features       FeatureGate
}

// NewAdjustStreakHandler creates a new AdjustStreakHandler.
// engine supplies the default policy.
func NewAdjustStreakHandler(
	repo streak.Repository,
	engine *streak.Engine,
	eventPublisher shared.EventPublisher,
	features FeatureGate,
) *AdjustStreakHandler {
	return &AdjustStreakHandler{
		repo:           repo,
		engine:         engine,
		eventPublisher: publisherOrDefault(eventPublisher),
		features:       gateOrDefault(features),
	}
}

// Handle executes the adjust streak command.
func (h *AdjustStreakHandler) Handle(ctx context.Context, cmd AdjustStreakCommand) (*StreakChangeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("adjust_streak: validation failed: %w", err)
	}

	engine, err := resolveEngine(cmd.Policy, h.engine)
	if err != nil {
		return nil, fmt.Errorf("adjust_streak: %w", err)
	}

	var change streak.Change
	rec, err := h.repo.Update(ctx, cmd.UserID, streak.Mutation{Reason: streak.ReasonAdjust},
		func(current streak.Record) streak.Record {
			change = engine.Apply(current.State(engine), cmd.Delta)
			return current.WithDays(change.Current.Days)
		})
	if err != nil {
		return nil, fmt.Errorf("adjust_streak: %w", err)
	}

	result := &StreakChangeResult{
		Previous:   change.Previous,
		Current:    change.Current,
		BestDays:   rec.BestDays,
		Milestones: change.Milestones,
		Warning:    change.Warning(),
	}

	adjusted := shared.NewStreakAdjustedEvent(cmd.UserID, change.Previous.Days, change.Current.Days,
		change.Current.Multiplier, string(engine.Policy().Name()), change.Clamped)
	adjusted.BaseEvent = adjusted.WithCorrelationID(cmd.CorrelationID)

	result.Events = append(result.Events, adjusted)
	result.Events = append(result.Events, milestoneEvents(cmd.UserID, engine, change, h.features)...)

	publishAll(h.eventPublisher, result.Events)

	return result, nil
}
