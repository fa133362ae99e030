package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/habit-engine/config"
	"github.com/alem-hub/habit-engine/internal/domain/routine"
	"github.com/alem-hub/habit-engine/internal/domain/shared"
	"github.com/alem-hub/habit-engine/internal/domain/streak"
	"github.com/alem-hub/habit-engine/pkg/logger"
)

// unmarkTimeout bounds the rollback of a completion mark.
const unmarkTimeout = 2 * time.Second

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE ROUTINE COMMAND
// Marks a routine anchor as done for today. The first completion of a routine
// on a calendar day extends the streak by one day; repeats are no-ops.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteRoutineCommand contains the data to complete a routine.
type CompleteRoutineCommand struct {
	// UserID is the user completing the routine.
	UserID string

	// RoutineID is the raw routine id from the request.
	RoutineID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c CompleteRoutineCommand) Validate() error {
	if c.UserID == "" {
		return shared.WrapError("routine", "Complete", shared.ErrInvalidID, "user_id is required", nil)
	}
	if c.RoutineID == "" {
		return shared.WrapError("routine", "Complete", shared.ErrInvalidInput, "routine_id is required", nil)
	}
	return nil
}

// CompleteRoutineResult contains the result of completing a routine.
type CompleteRoutineResult struct {
	// Routine is the completed anchor.
	Routine routine.Anchor

	// AlreadyCompleted is true when the routine was done earlier today.
	AlreadyCompleted bool

	// State is the streak after the command.
	State streak.State

	// BestDays is the longest streak seen for the user.
	BestDays int

	// Milestones lists milestones crossed by this completion.
	Milestones []int

	// NextMilestone previews the next milestone target.
	NextMilestone streak.State

	// CompletedToday lists every routine done today, this one included.
	CompletedToday []routine.ID

	// Events contains domain events generated.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CompleteRoutineHandler handles the CompleteRoutineCommand.
type CompleteRoutineHandler struct {
	catalog        *routine.Catalog
	completions    routine.CompletionLog
	repo           streak.Repository
	engine         *streak.Engine
	eventPublisher shared.EventPublisher
	features       FeatureGate
}

// NewCompleteRoutineHandler creates a new CompleteRoutineHandler.
// engine is the habit-stacking policy (milestone by default).
func NewCompleteRoutineHandler(
	catalog *routine.Catalog,
	completions routine.CompletionLog,
	repo streak.Repository,
	engine *streak.Engine,
	eventPublisher shared.EventPublisher,
	features FeatureGate,
) *CompleteRoutineHandler {
	if engine == nil {
		engine = streak.Milestone()
	}
	return &CompleteRoutineHandler{
		catalog:        catalog,
		completions:    completions,
		repo:           repo,
		engine:         engine,
		eventPublisher: publisherOrDefault(eventPublisher),
		features:       gateOrDefault(features),
	}
}

// Handle executes the complete routine command.
func (h *CompleteRoutineHandler) Handle(ctx context.Context, cmd CompleteRoutineCommand) (*CompleteRoutineResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("complete_routine: validation failed: %w", err)
	}

	if !h.features.IsEnabled(config.FeatureRoutineCompletion, cmd.UserID) {
		return nil, shared.WrapError("routine", "Complete", shared.ErrUnavailable,
			"routine completion is disabled", nil)
	}

	anchor, err := h.catalog.Lookup(cmd.RoutineID)
	if err != nil {
		return nil, fmt.Errorf("complete_routine: %w", err)
	}

	first, err := h.completions.MarkCompleted(ctx, cmd.UserID, anchor.ID)
	if err != nil {
		return nil, fmt.Errorf("complete_routine: %w", err)
	}

	result := &CompleteRoutineResult{
		Routine:          anchor,
		AlreadyCompleted: !first,
	}

	if first {
		if err := h.extend(ctx, cmd, anchor, result); err != nil {
			// Give the user a chance to retry today
			if uerr := h.unmark(ctx, cmd.UserID, anchor.ID); uerr != nil {
				err = errors.Join(err, uerr)
			}
			return nil, fmt.Errorf("complete_routine: %w", err)
		}
	} else {
		rec, err := h.repo.Get(ctx, cmd.UserID)
		if err != nil {
			return nil, fmt.Errorf("complete_routine: %w", err)
		}
		result.State = rec.State(h.engine)
		result.BestDays = rec.BestDays
	}

	result.NextMilestone = h.engine.Preview(h.engine.NextMilestone(result.State.Days))

	done, err := h.completions.CompletedToday(ctx, cmd.UserID)
	if err == nil {
		result.CompletedToday = orderByCatalog(h.catalog, done)
	}

	publishAll(h.eventPublisher, result.Events)

	return result, nil
}

// extend adds one day to the streak and collects events.
func (h *CompleteRoutineHandler) extend(ctx context.Context, cmd CompleteRoutineCommand, anchor routine.Anchor, result *CompleteRoutineResult) error {
	var change streak.Change
	rec, err := h.repo.Update(ctx, cmd.UserID,
		streak.Mutation{Reason: streak.ReasonRoutineCompleted, RoutineID: anchor.ID.String()},
		func(current streak.Record) streak.Record {
			change = h.engine.Apply(current.State(h.engine), 1)
			return current.WithDays(change.Current.Days)
		})
	if err != nil {
		return err
	}

	result.State = change.Current
	result.BestDays = rec.BestDays
	result.Milestones = change.Milestones

	completed := shared.NewRoutineCompletedEvent(cmd.UserID, anchor.ID.String(), change.Current.Days)
	completed.BaseEvent = completed.WithCorrelationID(cmd.CorrelationID)

	result.Events = append(result.Events, completed)
	result.Events = append(result.Events, milestoneEvents(cmd.UserID, h.engine, change, h.features)...)
	return nil
}

// unmark removes today's mark after a failed save. It runs even when the
// request has been canceled.
func (h *CompleteRoutineHandler) unmark(ctx context.Context, userID string, id routine.ID) error {
	log := logger.FromContext(ctx)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unmarkTimeout)
	defer cancel()

	if err := h.completions.Unmark(ctx, userID, id); err != nil {
		log.Error("failed to roll back routine completion",
			logger.UserID(userID),
			logger.RoutineID(id.String()),
			logger.Err(err),
		)
		return fmt.Errorf("unmark %s: %w", id, err)
	}
	return nil
}

// orderByCatalog sorts ids in catalog order and drops unknown ones.
func orderByCatalog(c *routine.Catalog, ids []routine.ID) []routine.ID {
	seen := make(map[routine.ID]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}

	out := make([]routine.ID, 0, len(ids))
	for _, id := range c.IDs() {
		if seen[id] {
			out = append(out, id)
		}
	}
	return out
}
