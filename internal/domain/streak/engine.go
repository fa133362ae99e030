// Package streak содержит движок серий (streak engine): вычисление множителя
// вознаграждения по длине серии, ограниченные изменения серии и поиск вех.
//
// Движок не хранит состояния: State принадлежит вызывающему коду
// (сессии пользователя) и меняется только через методы Engine.
package streak

import (
	"errors"
	"fmt"

	"github.com/alem-hub/habit-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// MinDays - нижняя граница серии.
	MinDays = 0

	// MaxDays - верхняя граница серии (год).
	MaxDays = 365

	// MilestoneStep - шаг вех серии в днях.
	MilestoneStep = 5
)

// ══════════════════════════════════════════════════════════════════════════════
// STATE
// ══════════════════════════════════════════════════════════════════════════════

// State - состояние серии пользователя.
// Инвариант: Multiplier == policy(Policy).Multiplier(Days).
type State struct {
	// Days - длина серии в днях [0, 365].
	Days int `json:"days"`

	// Multiplier - производный множитель (>= 1.0).
	Multiplier float64 `json:"multiplier"`

	// Policy - политика, которой посчитан множитель.
	Policy PolicyName `json:"policy"`
}

// Validate проверяет инвариант состояния (нужно после десериализации).
func (s State) Validate() error {
	p, err := PolicyByName(s.Policy)
	if err != nil {
		return err
	}
	if s.Days < MinDays || s.Days > MaxDays {
		return shared.WrapError("streak", "Validate", shared.ErrValueOutOfRange,
			fmt.Sprintf("days %d outside [%d, %d]", s.Days, MinDays, MaxDays), nil)
	}
	if want := p.Multiplier(s.Days); s.Multiplier != want {
		return shared.WrapError("streak", "Validate", shared.ErrInvalidState,
			fmt.Sprintf("multiplier %.1f does not match %s policy (%.1f)", s.Multiplier, s.Policy, want), nil)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CHANGE
// ══════════════════════════════════════════════════════════════════════════════

// Change описывает результат изменения серии.
type Change struct {
	// Previous - состояние до изменения.
	Previous State

	// Current - состояние после изменения.
	Current State

	// Requested - запрошенная дельта.
	Requested int

	// Applied - фактически применённая дельта (после ограничения).
	Applied int

	// Clamped - дельта была урезана до границ [0, 365].
	Clamped bool

	// Milestones - вехи, пересечённые при росте серии (по возрастанию).
	Milestones []int
}

// Warning возвращает ErrInvalidRange, если дельта была урезана.
// Это предупреждение: Current всё равно корректен.
func (c Change) Warning() error {
	if !c.Clamped {
		return nil
	}
	return shared.WrapError("streak", "Adjust", shared.ErrInvalidRange,
		fmt.Sprintf("delta %d clamped to %d", c.Requested, c.Applied), nil)
}

// ReachedMilestone возвращает true, если пересечена хотя бы одна веха.
func (c Change) ReachedMilestone() bool {
	return len(c.Milestones) > 0
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Engine - чистый движок серий для одной политики множителя.
// Безопасен для конкурентного использования.
type Engine struct {
	policy Policy
}

// NewEngine создаёт движок с заданной политикой.
func NewEngine(policy Policy) (*Engine, error) {
	if policy == nil {
		return nil, errors.New("streak: policy is required")
	}
	return &Engine{policy: policy}, nil
}

// NewEngineByName создаёт движок по имени политики.
func NewEngineByName(name PolicyName) (*Engine, error) {
	p, err := PolicyByName(name)
	if err != nil {
		return nil, err
	}
	return &Engine{policy: p}, nil
}

// Linear возвращает движок поверхности тренера.
func Linear() *Engine {
	return &Engine{policy: LinearPolicy{}}
}

// Milestone возвращает движок поверхности стека привычек.
func Milestone() *Engine {
	return &Engine{policy: MilestonePolicy{}}
}

// Policy возвращает политику движка.
func (e *Engine) Policy() Policy {
	return e.policy
}

// At возвращает состояние для заданного числа дней (с ограничением).
func (e *Engine) At(days int) State {
	days = clampDays(days)
	return State{
		Days:       days,
		Multiplier: e.policy.Multiplier(days),
		Policy:     e.policy.Name(),
	}
}

// Reset возвращает нулевое состояние.
func (e *Engine) Reset() State {
	return e.At(0)
}

// Adjust применяет дельту к серии: days' = clamp(days + delta, 0, 365).
// Ошибок нет, выход за границы молча ограничивается.
func (e *Engine) Adjust(s State, delta int) State {
	return e.Apply(s, delta).Current
}

// Apply применяет дельту и сообщает подробности: было ли ограничение
// и какие вехи пересечены.
func (e *Engine) Apply(s State, delta int) Change {
	from := clampDays(s.Days)
	to, clamped := addClamped(from, delta)

	return Change{
		Previous:   e.At(from),
		Current:    e.At(to),
		Requested:  delta,
		Applied:    to - from,
		Clamped:    clamped,
		Milestones: CrossedMilestones(from, to),
	}
}

// Preview возвращает состояние, которое будет при достижении цели
// (например, следующей вехи): та же формула, вычисленная в цели.
func (e *Engine) Preview(target int) State {
	return e.At(target)
}

// NextMilestone возвращает ближайшую веху строго больше days
// (не больше MaxDays).
func (e *Engine) NextMilestone(days int) int {
	return NextMilestone(days)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// NextMilestone возвращает ближайшую кратную MilestoneStep веху больше days.
func NextMilestone(days int) int {
	days = clampDays(days)
	next := (days/MilestoneStep + 1) * MilestoneStep
	if next > MaxDays {
		return MaxDays
	}
	return next
}

// DaysToMilestone возвращает число дней до ближайшей вехи.
func DaysToMilestone(days int) int {
	return NextMilestone(days) - clampDays(days)
}

// CrossedMilestones возвращает вехи в полуинтервале (from, to].
// Для уменьшения серии возвращает nil.
func CrossedMilestones(from, to int) []int {
	from, to = clampDays(from), clampDays(to)
	if to <= from {
		return nil
	}

	var out []int
	for m := (from/MilestoneStep + 1) * MilestoneStep; m <= to; m += MilestoneStep {
		out = append(out, m)
	}
	return out
}

func clampDays(days int) int {
	switch {
	case days < MinDays:
		return MinDays
	case days > MaxDays:
		return MaxDays
	default:
		return days
	}
}

// addClamped складывает без переполнения int для любых дельт.
func addClamped(days, delta int) (int, bool) {
	switch {
	case delta > MaxDays-days:
		return MaxDays, true
	case delta < MinDays-days:
		return MinDays, true
	default:
		return days + delta, false
	}
}
