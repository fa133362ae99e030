// Package query contains read operations (CQRS - Queries).
package query

import (
	"github.com/alem-hub/habit-engine/internal/domain/streak"
)

// FeatureGate сообщает, включена ли функция для пользователя.
// *config.FeatureFlags удовлетворяет интерфейсу.
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

// resolveEngine выбирает движок по необязательному имени политики.
func resolveEngine(name streak.PolicyName, fallback *streak.Engine) (*streak.Engine, error) {
	if name == "" {
		return fallback, nil
	}
	return streak.NewEngineByName(name)
}

// MilestonePreview - подсказка "Reach N days for X× multiplier".
type MilestonePreview struct {
	// Days - следующая веха.
	Days int `json:"days"`

	// Multiplier - множитель на этой вехе.
	Multiplier float64 `json:"multiplier"`

	// DaysLeft - сколько дней осталось.
	DaysLeft int `json:"daysLeft"`
}

func previewFor(e *streak.Engine, days int) MilestonePreview {
	next := e.NextMilestone(days)
	return MilestonePreview{
		Days:       next,
		Multiplier: e.Preview(next).Multiplier,
		DaysLeft:   next - days,
	}
}
