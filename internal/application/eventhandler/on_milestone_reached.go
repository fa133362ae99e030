// Package eventhandler содержит обработчики доменных событий.
// Обработчики реагируют на изменения серий и подключения и запускают
// побочные эффекты: прогрев кэша советов и журналирование.
package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/habit-engine/internal/domain/coaching"
	"github.com/alem-hub/habit-engine/internal/domain/routine"
	"github.com/alem-hub/habit-engine/internal/domain/shared"
	"github.com/alem-hub/habit-engine/internal/domain/streak"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON MILESTONE REACHED HANDLER
// Когда серия достигает вехи, пользователь скорее всего попросит совет
// на этой длине серии. Прогреваем кэш советов по всем рутинам.
// ═══════════════════════════════════════════════════════════════════════════

// MilestoneConfig содержит конфигурацию обработчика.
type MilestoneConfig struct {
	// WarmTimeout - общий лимит на прогрев всех рутин.
	WarmTimeout time.Duration
}

// DefaultMilestoneConfig возвращает конфигурацию по умолчанию.
func DefaultMilestoneConfig() MilestoneConfig {
	return MilestoneConfig{WarmTimeout: 30 * time.Second}
}

// OnMilestoneReachedHandler прогревает кэш советов.
type OnMilestoneReachedHandler struct {
	catalog *routine.Catalog
	engine  *streak.Engine
	cache   coaching.Cache

	// Свой советник: генерации идут последовательно и не
	// пересекаются с пользовательскими запросами.
	advisor *coaching.Advisor

	logger *slog.Logger
	config MilestoneConfig
}

// NewOnMilestoneReachedHandler создаёт обработчик. engine должен совпадать
// с движком, по которому строятся советы.
func NewOnMilestoneReachedHandler(
	catalog *routine.Catalog,
	engine *streak.Engine,
	cache coaching.Cache,
	advisorConfig coaching.Config,
	logger *slog.Logger,
	config MilestoneConfig,
) (*OnMilestoneReachedHandler, error) {
	if cache == nil {
		return nil, errors.New("advice cache is required")
	}
	advisor, err := coaching.NewAdvisor(catalog, advisorConfig)
	if err != nil {
		return nil, err
	}
	if engine == nil {
		engine = streak.Linear()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.WarmTimeout <= 0 {
		config.WarmTimeout = DefaultMilestoneConfig().WarmTimeout
	}

	return &OnMilestoneReachedHandler{
		catalog: catalog,
		engine:  engine,
		cache:   cache,
		advisor: advisor,
		logger:  logger.With("handler", "on_milestone_reached"),
		config:  config,
	}, nil
}

// Handle обрабатывает событие достижения вехи.
// Реализует интерфейс shared.EventHandler.
func (h *OnMilestoneReachedHandler) Handle(event shared.Event) error {
	var ev shared.StreakMilestoneReachedEvent
	switch e := event.(type) {
	case shared.StreakMilestoneReachedEvent:
		ev = e
	case *shared.StreakMilestoneReachedEvent:
		ev = *e
	default:
		// Копии с других инстансов: кэш общий, его уже прогрели там
		h.logger.Debug("skipping event", "event_type", event.EventType())
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.WarmTimeout)
	defer cancel()

	warmed, err := h.Warm(ctx, ev.Milestone)
	if err != nil {
		h.logger.Error("advice warm-up failed",
			"user_id", ev.UserID,
			"milestone", ev.Milestone,
			"warmed", warmed,
			"error", err,
		)
		return fmt.Errorf("warm advice: %w", err)
	}

	h.logger.Info("advice cache warmed",
		"user_id", ev.UserID,
		"milestone", ev.Milestone,
		"warmed", warmed,
	)
	return nil
}

// Warm генерирует недостающие советы для серии длиной days.
// Возвращает число добавленных записей.
func (h *OnMilestoneReachedHandler) Warm(ctx context.Context, days int) (int, error) {
	state := h.engine.At(days)

	warmed := 0
	for _, id := range h.catalog.IDs() {
		if _, ok, err := h.cache.Get(ctx, id, state.Days); err == nil && ok {
			continue
		}

		bundle, err := h.advisor.Generate(ctx, id, state)
		if err != nil {
			return warmed, err
		}
		if err := h.cache.Set(ctx, id, state.Days, bundle); err != nil {
			return warmed, err
		}
		warmed++
	}
	return warmed, nil
}
