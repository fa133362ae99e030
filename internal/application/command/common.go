// Package command contains write operations (CQRS - Commands).
package command

import (
	"github.com/alem-hub/habit-engine/config"
	"github.com/alem-hub/habit-engine/internal/domain/shared"
	"github.com/alem-hub/habit-engine/internal/domain/streak"
)

// FeatureGate reports whether a feature is enabled for a user.
// *config.FeatureFlags satisfies it.
type FeatureGate interface {
	IsEnabled(featureName, userID string) bool
}

type allEnabled struct{}

func (allEnabled) IsEnabled(string, string) bool { return true }

func gateOrDefault(g FeatureGate) FeatureGate {
	if g == nil {
		return allEnabled{}
	}
	return g
}

func publisherOrDefault(p shared.EventPublisher) shared.EventPublisher {
	if p == nil {
		return shared.NopPublisher{}
	}
	return p
}

// resolveEngine picks the engine for an optional policy name.
func resolveEngine(name streak.PolicyName, fallback *streak.Engine) (*streak.Engine, error) {
	if name == "" {
		return fallback, nil
	}
	return streak.NewEngineByName(name)
}

// milestoneEvents builds one event per crossed milestone. The multiplier is
// the one reached at that milestone.
func milestoneEvents(userID string, e *streak.Engine, change streak.Change, gate FeatureGate) []shared.Event {
	if !change.ReachedMilestone() || !gate.IsEnabled(config.FeatureMilestoneEvents, userID) {
		return nil
	}

	events := make([]shared.Event, 0, len(change.Milestones))
	for _, m := range change.Milestones {
		events = append(events, shared.NewStreakMilestoneReachedEvent(userID, m, e.At(m).Multiplier))
	}
	return events
}

// publishAll publishes events. Publishing is best-effort: the state change
// has already been committed.
func publishAll(p shared.EventPublisher, events []shared.Event) {
	for _, e := range events {
		_ = p.Publish(e)
	}
}
