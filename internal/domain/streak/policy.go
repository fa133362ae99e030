package streak

import (
	"fmt"

	"github.com/alem-hub/habit-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MULTIPLIER POLICIES
//
// Две кривые вознаграждения используются на разных поверхностях:
//   - linear    - тренер (coaching): round(1 + days*0.05, 1 знак)
//   - milestone - стек привычек (habit stacking): floor(days/5)*0.2 + 1
//
// Обе считаются в целых десятых, чтобы результат был точным и не зависел
// от ошибок округления float64.
// ══════════════════════════════════════════════════════════════════════════════

// PolicyName - имя политики множителя.
type PolicyName string

const (
	// PolicyLinear - линейная кривая тренера.
	PolicyLinear PolicyName = "linear"

	// PolicyMilestone - ступенчатая кривая по вехам.
	PolicyMilestone PolicyName = "milestone"
)

// IsValid проверяет, что политика зарегистрирована.
func (n PolicyName) IsValid() bool {
	_, err := PolicyByName(n)
	return err == nil
}

// Policy вычисляет множитель по длине серии.
// Реализации обязаны быть монотонно неубывающими и возвращать 1.0 для нуля дней.
type Policy interface {
	// Name возвращает имя политики.
	Name() PolicyName

	// Multiplier возвращает множитель для числа дней (значение уже округлено).
	Multiplier(days int) float64
}

// LinearPolicy - линейная политика: +0.05 за день, округление до десятых (half-up).
type LinearPolicy struct{}

// Name реализует Policy.
func (LinearPolicy) Name() PolicyName { return PolicyLinear }

// Multiplier реализует Policy.
func (LinearPolicy) Multiplier(days int) float64 {
	days = clampDays(days)
	// 10*(1 + d*0.05) = 10 + d/2, half-up
	tenths := 10 + (days+1)/2
	return float64(tenths) / 10
}

// MilestonePolicy - ступенчатая политика: +0.2 за каждые MilestoneStep дней.
type MilestonePolicy struct{}

// Name реализует Policy.
func (MilestonePolicy) Name() PolicyName { return PolicyMilestone }

// Multiplier реализует Policy.
func (MilestonePolicy) Multiplier(days int) float64 {
	days = clampDays(days)
	tenths := 10 + 2*(days/MilestoneStep)
	return float64(tenths) / 10
}

// PolicyByName возвращает политику по имени.
func PolicyByName(name PolicyName) (Policy, error) {
	switch name {
	case PolicyLinear:
		return LinearPolicy{}, nil
	case PolicyMilestone:
		return MilestonePolicy{}, nil
	default:
		return nil, shared.WrapError("streak", "PolicyByName", shared.ErrInvalidInput,
			fmt.Sprintf("unknown multiplier policy %q", name), nil)
	}
}

// Policies возвращает все зарегистрированные политики.
func Policies() []Policy {
	return []Policy{LinearPolicy{}, MilestonePolicy{}}
}
