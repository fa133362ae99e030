package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/habit-engine/config"
	"github.com/alem-hub/habit-engine/internal/domain/buddy"
	"github.com/alem-hub/habit-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONNECT BUDDY COMMAND
// Connects a user with an online study buddy candidate for an optional
// routine context. Offline candidates are rejected with ErrCandidateUnavailable.
// ══════════════════════════════════════════════════════════════════════════════

// ConnectBuddyCommand contains the data to create a buddy connection.
type ConnectBuddyCommand struct {
	// RequesterID is the user initiating the connection.
	RequesterID string

	// CandidateID is the candidate being connected to.
	CandidateID string

	// RoutineID is the routine context (empty = none).
	RoutineID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ConnectBuddyCommand) Validate() error {
	if c.RequesterID == "" {
		return shared.WrapError("buddy", "Connect", shared.ErrInvalidID, "requester_id is required", nil)
	}
	if c.CandidateID == "" {
		return shared.WrapError("buddy", "Connect", shared.ErrInvalidID, "candidate_id is required", nil)
	}
	return nil
}

// ConnectBuddyResult contains the result of creating a connection.
type ConnectBuddyResult struct {
	// Connection is the stored connection.
	Connection buddy.Connection

	// Candidate is the candidate as seen at connection time.
	Candidate buddy.Candidate

	// Events contains domain events generated.
	Events []shared.Event
}

// ConnectBuddyHandler handles the ConnectBuddyCommand.
type ConnectBuddyHandler struct {
	matcher        *buddy.Matcher
	directory      buddy.Directory
	presence       buddy.Presence
	store          buddy.ConnectionStore
	eventPublisher shared.EventPublisher
	features       FeatureGate
	presenceWait   time.Duration
}

// NewConnectBuddyHandler creates a new ConnectBuddyHandler. presence may be nil.
func NewConnectBuddyHandler(
	matcher *buddy.Matcher,
	directory buddy.Directory,
	presence buddy.Presence,
	store buddy.ConnectionStore,
	eventPublisher shared.EventPublisher,
	features FeatureGate,
) *ConnectBuddyHandler {
	return &ConnectBuddyHandler{
		matcher:        matcher,
		directory:      directory,
		presence:       presence,
		store:          store,
		eventPublisher: publisherOrDefault(eventPublisher),
		features:       gateOrDefault(features),
		presenceWait:   500 * time.Millisecond,
	}
}

// Handle executes the connect buddy command.
func (h *ConnectBuddyHandler) Handle(ctx context.Context, cmd ConnectBuddyCommand) (*ConnectBuddyResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("connect_buddy: validation failed: %w", err)
	}

	if !h.features.IsEnabled(config.FeatureBuddyMatching, cmd.RequesterID) {
		return nil, shared.WrapError("buddy", "Connect", shared.ErrUnavailable,
			"buddy matching is disabled", nil)
	}

	requested, err := h.matcher.ParseRoutine(cmd.RoutineID)
	if err != nil {
		return nil, fmt.Errorf("connect_buddy: %w", err)
	}

	candidate, err := h.directory.Get(ctx, cmd.CandidateID)
	if err != nil {
		return nil, fmt.Errorf("connect_buddy: %w", err)
	}
	candidate = h.overlayPresence(ctx, cmd.RequesterID, candidate)

	conn, err := h.matcher.Connect(cmd.RequesterID, candidate, requested)
	if err != nil {
		return nil, fmt.Errorf("connect_buddy: %w", err)
	}

	if err := h.store.Save(ctx, conn); err != nil {
		return nil, fmt.Errorf("connect_buddy: failed to save connection: %w", err)
	}

	event := shared.NewBuddyConnectedEvent(conn.ID, conn.RequesterID, conn.CandidateID,
		conn.RoutineID.String(), conn.Result.Score)
	event.BaseEvent = event.WithCorrelationID(cmd.CorrelationID)

	result := &ConnectBuddyResult{
		Connection: conn,
		Candidate:  candidate,
		Events:     []shared.Event{event},
	}

	publishAll(h.eventPublisher, result.Events)

	return result, nil
}

// overlayPresence marks the candidate online when live presence says so.
// Presence errors keep the stored flag.
func (h *ConnectBuddyHandler) overlayPresence(ctx context.Context, userID string, c buddy.Candidate) buddy.Candidate {
	if h.presence == nil || !h.features.IsEnabled(config.FeatureBuddyPresence, userID) {
		return c
	}

	ctx, cancel := context.WithTimeout(ctx, h.presenceWait)
	defer cancel()

	online, err := h.presence.Online(ctx, []string{c.ID})
	if err != nil {
		return c
	}
	return c.WithPresence(c.IsOnline || online[c.ID])
}
