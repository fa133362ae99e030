package query

import (
	"context"

	"github.com/alem-hub/habit-engine/config"
	"github.com/alem-hub/habit-engine/internal/domain/coaching"
	"github.com/alem-hub/habit-engine/internal/domain/routine"
	"github.com/alem-hub/habit-engine/internal/domain/shared"
	"github.com/alem-hub/habit-engine/internal/domain/streak"
	"github.com/alem-hub/habit-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ADVICE QUERY
// Совет для выбранной рутины с учётом текущей серии пользователя.
// Неизвестная рутина отклоняется сразу. Готовые советы берутся из кэша;
// ответ из кэша тоже считается новым запросом и отменяет генерацию,
// которая уже идёт для этого пользователя.
// ══════════════════════════════════════════════════════════════════════════════

// GetAdviceQuery содержит параметры запроса совета.
type GetAdviceQuery struct {
	// UserID - пользователь, для которого нужен совет.
	UserID string

	// RoutineID - выбранная рутина (сырой идентификатор из запроса).
	RoutineID string
}

// Validate проверяет корректность параметров.
func (q GetAdviceQuery) Validate() error {
	if q.UserID == "" {
		return shared.WrapError("query", "GetAdvice", shared.ErrInvalidID, "user_id is required", nil)
	}
	if q.RoutineID == "" {
		return shared.WrapError("query", "GetAdvice", shared.ErrInvalidInput, "routine is required", nil)
	}
	return nil
}

// AdviceResult - совет и контекст.
type AdviceResult struct {
	// Routine - выбранная рутина.
	Routine routine.Anchor `json:"routine"`

	// Advice - совет.
	Advice coaching.Bundle `json:"advice"`

	// Suggestion - короткая контекстная подсказка.
	Suggestion string `json:"suggestion"`

	// Streak - серия, по которой построен совет.
	Streak streak.State `json:"streak"`

	// Next - следующая веха.
	Next MilestonePreview `json:"nextMilestone"`

	// Cached - совет взят из кэша.
	Cached bool `json:"cached"`
}

// GetAdviceHandler обрабатывает GetAdviceQuery.
type GetAdviceHandler struct {
	catalog  *routine.Catalog
	repo     streak.Repository
	engine   *streak.Engine
	advisors *AdvisorPool
	cache    coaching.Cache
	features FeatureGate
	log      *logger.Logger
}

// NewGetAdviceHandler создаёт обработчик. cache может быть nil.
func NewGetAdviceHandler(
	catalog *routine.Catalog,
	repo streak.Repository,
	engine *streak.Engine,
	advisors *AdvisorPool,
	cache coaching.Cache,
	features FeatureGate,
	log *logger.Logger,
) *GetAdviceHandler {
	if engine == nil {
		engine = streak.Linear()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GetAdviceHandler{
		catalog:  catalog,
		repo:     repo,
		engine:   engine,
		advisors: advisors,
		cache:    cache,
		features: gateOrDefault(features),
		log:      log.With(logger.Component("get_advice")),
	}
}

// Handle выполняет запрос.
func (h *GetAdviceHandler) Handle(ctx context.Context, q GetAdviceQuery) (*AdviceResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	anchor, err := h.catalog.Lookup(q.RoutineID)
	if err != nil {
		return nil, err
	}

	ticket := h.advisors.Reserve(q.UserID)
	defer ticket.Release()

	rec, err := h.repo.Get(ctx, q.UserID)
	if err != nil {
		return nil, shared.WrapError("query", "GetAdvice", shared.ErrUnavailable, "failed to load streak", err)
	}
	state := rec.State(h.engine)

	suggestion, err := h.advisors.Suggestion(anchor.ID)
	if err != nil {
		return nil, err
	}

	result := &AdviceResult{
		Routine:    anchor,
		Suggestion: suggestion,
		Streak:     state,
		Next:       previewFor(h.engine, state.Days),
	}

	useCache := h.cache != nil && h.features.IsEnabled(config.FeatureAdviceCache, q.UserID)
	if useCache {
		bundle, ok, err := h.cache.Get(ctx, anchor.ID, state.Days)
		if err != nil {
			h.log.Warn("advice cache read failed", logger.RoutineID(anchor.ID.String()), logger.Err(err))
		}
		if ok {
			if !ticket.Current() {
				return nil, shared.WrapError("query", "GetAdvice", shared.ErrSuperseded,
					"advice superseded by a newer request", nil)
			}
			result.Advice = bundle
			result.Cached = true
			return result, nil
		}
	}

	bundle, err := ticket.Generate(ctx, anchor.ID, state)
	if err != nil {
		return nil, err
	}
	result.Advice = bundle

	if useCache {
		if err := h.cache.Set(ctx, anchor.ID, state.Days, bundle); err != nil {
			h.log.Warn("advice cache write failed", logger.RoutineID(anchor.ID.String()), logger.Err(err))
		}
	}

	h.log.Debug("advice generated",
		logger.UserID(q.UserID),
		logger.RoutineID(anchor.ID.String()),
		logger.StreakDays(state.Days),
	)

	return result, nil
}
