package streak

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// PERSISTENT RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Reason - причина изменения серии (для журнала).
type Reason string

const (
	ReasonAdjust           Reason = "adjust"
	ReasonReset            Reason = "reset"
	ReasonRoutineCompleted Reason = "routine_completed"
)

// Record - сохранённая серия пользователя.
// Хранится только число дней: множитель выводится политикой при чтении.
type Record struct {
	UserID    string
	Days      int
	BestDays  int
	UpdatedAt time.Time
}

// State возвращает состояние серии, посчитанное движком e.
func (r Record) State(e *Engine) State {
	return e.At(r.Days)
}

// WithDays возвращает копию записи с новым числом дней и обновлённым рекордом.
func (r Record) WithDays(days int) Record {
	r.Days = clampDays(days)
	if r.Days > r.BestDays {
		r.BestDays = r.Days
	}
	return r
}

// Mutation описывает изменение для журнала.
type Mutation struct {
	Reason    Reason
	RoutineID string
}

// UpdateFunc вычисляет новую запись из текущей.
// Может вызываться повторно при конфликте транзакций, поэтому должна быть чистой.
type UpdateFunc func(current Record) Record

// Repository - хранилище серий.
type Repository interface {
	// Get возвращает запись пользователя; для нового пользователя - нулевую запись.
	Get(ctx context.Context, userID string) (Record, error)

	// Update атомарно читает, изменяет и сохраняет запись.
	Update(ctx context.Context, userID string, m Mutation, fn UpdateFunc) (Record, error)
}
