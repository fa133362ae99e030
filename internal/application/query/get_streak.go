package query

import (
	"context"
	"time"

	"github.com/alem-hub/habit-engine/internal/domain/shared"
	"github.com/alem-hub/habit-engine/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STREAK QUERY
// Возвращает текущую серию пользователя, множитель по выбранной политике,
// лучшую серию и подсказку о следующей вехе.
// ══════════════════════════════════════════════════════════════════════════════

// GetStreakQuery содержит параметры запроса серии.
type GetStreakQuery struct {
	// UserID - владелец серии.
	UserID string

	// Policy - политика множителя (пусто = по умолчанию).
	Policy streak.PolicyName
}

// Validate проверяет корректность параметров.
func (q GetStreakQuery) Validate() error {
	if q.UserID == "" {
		return shared.WrapError("query", "GetStreak", shared.ErrInvalidID, "user_id is required", nil)
	}
	if q.Policy != "" && !q.Policy.IsValid() {
		return shared.WrapError("query", "GetStreak", shared.ErrInvalidInput, "unknown policy "+string(q.Policy), nil)
	}
	return nil
}

// StreakResult - ответ на запрос серии.
type StreakResult struct {
	UserID string `json:"userId"`

	// State - текущее состояние серии.
	State streak.State `json:"state"`

	// BestDays - лучшая серия пользователя.
	BestDays int `json:"bestDays"`

	// Next - следующая веха.
	Next MilestonePreview `json:"nextMilestone"`

	// UpdatedAt - время последнего изменения (нулевое для новой серии).
	UpdatedAt time.Time `json:"updatedAt"`
}

// GetStreakHandler обрабатывает GetStreakQuery.
type GetStreakHandler struct {
	repo   streak.Repository
	engine *streak.Engine
}

// NewGetStreakHandler создаёт обработчик. engine задаёт политику по умолчанию.
func NewGetStreakHandler(repo streak.Repository, engine *streak.Engine) *GetStreakHandler {
	return &GetStreakHandler{repo: repo, engine: engine}
}

// Handle выполняет запрос.
func (h *GetStreakHandler) Handle(ctx context.Context, q GetStreakQuery) (*StreakResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	engine, err := resolveEngine(q.Policy, h.engine)
	if err != nil {
		return nil, err
	}

	rec, err := h.repo.Get(ctx, q.UserID)
	if err != nil {
		return nil, shared.WrapError("query", "GetStreak", shared.ErrUnavailable, "failed to load streak", err)
	}

	state := rec.State(engine)
	return &StreakResult{
		UserID:    q.UserID,
		State:     state,
		BestDays:  rec.BestDays,
		Next:      previewFor(engine, state.Days),
		UpdatedAt: rec.UpdatedAt,
	}, nil
}
