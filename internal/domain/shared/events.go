package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types.
const (
	// Streak events
	EventStreakAdjusted         EventType = "streak.adjusted"
	EventStreakReset            EventType = "streak.reset"
	EventStreakMilestoneReached EventType = "streak.milestone_reached"
	EventRoutineCompleted       EventType = "routine.completed"

	// Buddy events
	EventBuddyConnected EventType = "buddy.connected"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Streak Events
// ═══════════════════════════════════════════════════════════════════════════

// StreakAdjustedEvent is emitted whenever a user's streak changes.
type StreakAdjustedEvent struct {
	BaseEvent
	UserID     string  `json:"user_id"`
	OldDays    int     `json:"old_days"`
	NewDays    int     `json:"new_days"`
	Multiplier float64 `json:"multiplier"`
	Policy     string  `json:"policy"`
	Clamped    bool    `json:"clamped"`
}

// Payload implements Event interface.
func (e StreakAdjustedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"old_days":   e.OldDays,
		"new_days":   e.NewDays,
		"multiplier": e.Multiplier,
		"policy":     e.Policy,
		"clamped":    e.Clamped,
	}
}

// NewStreakAdjustedEvent creates a new StreakAdjustedEvent.
func NewStreakAdjustedEvent(userID string, oldDays, newDays int, multiplier float64, policy string, clamped bool) StreakAdjustedEvent {
	return StreakAdjustedEvent{
		BaseEvent:  NewBaseEvent(EventStreakAdjusted, userID),
		UserID:     userID,
		OldDays:    oldDays,
		NewDays:    newDays,
		Multiplier: multiplier,
		Policy:     policy,
		Clamped:    clamped,
	}
}

// StreakResetEvent is emitted when a user's streak is reset to zero.
type StreakResetEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	LostDays int    `json:"lost_days"`
}

// Payload implements Event interface.
func (e StreakResetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"lost_days": e.LostDays,
	}
}

// NewStreakResetEvent creates a new StreakResetEvent.
func NewStreakResetEvent(userID string, lostDays int) StreakResetEvent {
	return StreakResetEvent{
		BaseEvent: NewBaseEvent(EventStreakReset, userID),
		UserID:    userID,
		LostDays:  lostDays,
	}
}

// StreakMilestoneReachedEvent is emitted for every milestone crossed by a streak increase.
type StreakMilestoneReachedEvent struct {
	BaseEvent
	UserID     string  `json:"user_id"`
	Milestone  int     `json:"milestone"`
	Multiplier float64 `json:"multiplier"`
}

// Payload implements Event interface.
func (e StreakMilestoneReachedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"milestone":  e.Milestone,
		"multiplier": e.Multiplier,
	}
}

// NewStreakMilestoneReachedEvent creates a new StreakMilestoneReachedEvent.
func NewStreakMilestoneReachedEvent(userID string, milestone int, multiplier float64) StreakMilestoneReachedEvent {
	return StreakMilestoneReachedEvent{
		BaseEvent:  NewBaseEvent(EventStreakMilestoneReached, userID),
		UserID:     userID,
		Milestone:  milestone,
		Multiplier: multiplier,
	}
}

// RoutineCompletedEvent is emitted the first time a routine is completed on a given day.
type RoutineCompletedEvent struct {
	BaseEvent
	UserID    string `json:"user_id"`
	RoutineID string `json:"routine_id"`
	NewStreak int    `json:"new_streak"`
}

// Payload implements Event interface.
func (e RoutineCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"routine_id": e.RoutineID,
		"new_streak": e.NewStreak,
	}
}

// NewRoutineCompletedEvent creates a new RoutineCompletedEvent.
func NewRoutineCompletedEvent(userID, routineID string, newStreak int) RoutineCompletedEvent {
	return RoutineCompletedEvent{
		BaseEvent: NewBaseEvent(EventRoutineCompleted, userID),
		UserID:    userID,
		RoutineID: routineID,
		NewStreak: newStreak,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Buddy Events
// ═══════════════════════════════════════════════════════════════════════════

// BuddyConnectedEvent is emitted when a user connects with a study buddy.
type BuddyConnectedEvent struct {
	BaseEvent
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
	CandidateID  string `json:"candidate_id"`
	RoutineID    string `json:"routine_id,omitempty"`
	Score        int    `json:"score"`
}

// Payload implements Event interface.
func (e BuddyConnectedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"connection_id": e.ConnectionID,
		"user_id":       e.UserID,
		"candidate_id":  e.CandidateID,
		"routine_id":    e.RoutineID,
		"score":         e.Score,
	}
}

// NewBuddyConnectedEvent creates a new BuddyConnectedEvent.
func NewBuddyConnectedEvent(connectionID, userID, candidateID, routineID string, score int) BuddyConnectedEvent {
	return BuddyConnectedEvent{
		BaseEvent:    NewBaseEvent(EventBuddyConnected, userID),
		ConnectionID: connectionID,
		UserID:       userID,
		CandidateID:  candidateID,
		RoutineID:    routineID,
		Score:        score,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
