// Package buddy содержит подбор напарников по учёбе: оценку совместимости
// кандидата для рутины, уровни совместимости, ранжирование и подключение.
//
// Кандидаты приходят извне (Directory) и только читаются: ни оценка,
// ни подключение их не изменяют.
package buddy

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/habit-engine/internal/domain/routine"
)

// ══════════════════════════════════════════════════════════════════════════════
// CANDIDATE
// ══════════════════════════════════════════════════════════════════════════════

// Candidate - кандидат в напарники.
type Candidate struct {
	// ID - уникальный идентификатор кандидата.
	ID string `json:"id"`

	// Name - имя для отображения.
	Name string `json:"name"`

	// Level - учебный уровень (>= 0).
	Level int `json:"level"`

	// CurrentStreak - текущая серия кандидата в днях (>= 0).
	CurrentStreak int `json:"currentStreak"`

	// StudyFocus - предметы, которыми занимается кандидат.
	StudyFocus []string `json:"studyFocus"`

	// PreferredTimeWindow - предпочитаемое время, например "Evening (7-9 PM)".
	PreferredTimeWindow string `json:"preferredTimeWindow"`

	// IsOnline - онлайн ли кандидат сейчас.
	IsOnline bool `json:"isOnline"`
}

// Validate проверяет корректность кандидата.
func (c Candidate) Validate() error {
	if c.ID == "" {
		return errors.New("candidate id is required")
	}
	if c.Level < 0 {
		return errors.New("candidate level must be non-negative")
	}
	if c.CurrentStreak < 0 {
		return errors.New("candidate streak must be non-negative")
	}
	return nil
}

// HasFocus проверяет, занимается ли кандидат предметом.
func (c Candidate) HasFocus(subject string) bool {
	for _, s := range c.StudyFocus {
		if s == subject {
			return true
		}
	}
	return false
}

// WithPresence возвращает копию кандидата с заданным статусом онлайн.
func (c Candidate) WithPresence(online bool) Candidate {
	c.StudyFocus = append([]string(nil), c.StudyFocus...)
	c.IsOnline = online
	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION
// ══════════════════════════════════════════════════════════════════════════════

// Connection - состоявшееся подключение к напарнику.
type Connection struct {
	// ID - идентификатор подключения (UUID).
	ID string `json:"id"`

	// RequesterID - кто подключается.
	RequesterID string `json:"requesterId"`

	// CandidateID - к кому подключаются.
	CandidateID string `json:"candidateId"`

	// RoutineID - рутина, для которой подобран напарник (пусто, если без рутины).
	RoutineID routine.ID `json:"routineId,omitempty"`

	// Result - совместимость на момент подключения.
	Result Result `json:"result"`

	// CreatedAt - время подключения (UTC).
	CreatedAt time.Time `json:"createdAt"`
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Directory - источник кандидатов (только чтение).
type Directory interface {
	// List возвращает всех кандидатов.
	List(ctx context.Context) ([]Candidate, error)

	// Get возвращает кандидата по ID или ErrCandidateNotFound.
	Get(ctx context.Context, id string) (Candidate, error)
}

// ConnectionStore хранит подключения.
type ConnectionStore interface {
	// Save сохраняет подключение.
	Save(ctx context.Context, conn Connection) error

	// ListByRequester возвращает подключения пользователя, новые первыми.
	ListByRequester(ctx context.Context, requesterID string) ([]Connection, error)
}

// Presence сообщает, кто сейчас онлайн.
type Presence interface {
	// Online возвращает множество онлайн-кандидатов среди ids.
	Online(ctx context.Context, ids []string) (map[string]bool, error)
}

// Registry регистрирует и обновляет профили кандидатов.
type Registry interface {
	// Upsert создаёт или обновляет кандидата.
	Upsert(ctx context.Context, c Candidate) error

	// SetOnline меняет сохранённый флаг онлайн или возвращает
	// ErrCandidateNotFound.
	SetOnline(ctx context.Context, id string, online bool) error
}

// PresenceReporter принимает сигналы присутствия кандидатов.
type PresenceReporter interface {
	// Heartbeat продлевает статус онлайн.
	Heartbeat(ctx context.Context, candidateID, routineID string) error

	// SetOffline сбрасывает статус онлайн.
	SetOffline(ctx context.Context, candidateID string) error
}
