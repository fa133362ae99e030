package query

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/habit-engine/config"
	"github.com/alem-hub/habit-engine/internal/domain/buddy"
	"github.com/alem-hub/habit-engine/internal/domain/routine"
	"github.com/alem-hub/habit-engine/internal/domain/shared"
	"github.com/alem-hub/habit-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// FIND BUDDIES QUERY
// Подбирает напарников для выбранной рутины. Справочник кандидатов и
// подключения пользователя читаются параллельно, затем статус онлайн
// уточняется по живому присутствию и кандидаты ранжируются.
// ══════════════════════════════════════════════════════════════════════════════

// Лимиты выдачи по умолчанию.
const (
	DefaultBuddyLimit = 10
	MaxBuddyLimit     = 50
)

// FindBuddiesQuery содержит параметры подбора.
type FindBuddiesQuery struct {
	// UserID - кто ищет напарника (необязательно; исключается из выдачи).
	UserID string

	// RoutineID - рутина (пусто = без рутины).
	RoutineID string

	// Limit - максимум результатов (0 = по умолчанию).
	Limit int

	// OnlineOnly - только кандидаты онлайн.
	OnlineOnly bool
}

// Validate проверяет корректность параметров.
func (q FindBuddiesQuery) Validate() error {
	if q.Limit < 0 {
		return shared.WrapError("query", "FindBuddies", shared.ErrValueOutOfRange, "limit must be non-negative", nil)
	}
	return nil
}

// BuddyMatch - кандидат в выдаче.
type BuddyMatch struct {
	buddy.Ranked

	// Fit - соответствие выбранной рутине.
	Fit buddy.Fit `json:"fit"`

	// Reasons - из чего сложилась оценка.
	Reasons []buddy.Reason `json:"reasons"`

	// AlreadyConnected - пользователь уже подключался к кандидату.
	AlreadyConnected bool `json:"alreadyConnected"`
}

// FindBuddiesResult - результат подбора.
type FindBuddiesResult struct {
	// Routine - рутина подбора (nil = без рутины).
	Routine *routine.ID `json:"routine,omitempty"`

	// Matches - кандидаты по убыванию оценки.
	Matches []BuddyMatch `json:"matches"`

	// Total - сколько кандидатов прошло фильтры до лимита.
	Total int `json:"total"`

	// OnlineCount - сколько из них онлайн.
	OnlineCount int `json:"onlineCount"`
}

// Limits - лимиты выдачи.
type Limits struct {
	Default int
	Max     int
}

// FindBuddiesHandler обрабатывает FindBuddiesQuery.
type FindBuddiesHandler struct {
	matcher      *buddy.Matcher
	directory    buddy.Directory
	presence     buddy.Presence
	connections  buddy.ConnectionStore
	features     FeatureGate
	limits       Limits
	presenceWait time.Duration
	log          *logger.Logger
}

// NewFindBuddiesHandler создаёт обработчик. presence и connections могут быть nil.
func NewFindBuddiesHandler(
	matcher *buddy.Matcher,
	directory buddy.Directory,
	presence buddy.Presence,
	connections buddy.ConnectionStore,
	features FeatureGate,
	limits Limits,
	log *logger.Logger,
) *FindBuddiesHandler {
	if limits.Max <= 0 {
		limits.Max = MaxBuddyLimit
	}
	if limits.Default <= 0 || limits.Default > limits.Max {
		limits.Default = min(DefaultBuddyLimit, limits.Max)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &FindBuddiesHandler{
		matcher:      matcher,
		directory:    directory,
		presence:     presence,
		connections:  connections,
		features:     gateOrDefault(features),
		limits:       limits,
		presenceWait: 500 * time.Millisecond,
		log:          log.With(logger.Component("find_buddies")),
	}
}

// Handle выполняет запрос.
func (h *FindBuddiesHandler) Handle(ctx context.Context, q FindBuddiesQuery) (*FindBuddiesResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if !h.features.IsEnabled(config.FeatureBuddyMatching, q.UserID) {
		return nil, shared.WrapError("query", "FindBuddies", shared.ErrUnavailable, "buddy matching is disabled", nil)
	}

	requested, err := h.matcher.ParseRoutine(q.RoutineID)
	if err != nil {
		return nil, err
	}

	var (
		candidates []buddy.Candidate
		connected  map[string]bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		candidates, err = h.directory.List(gctx)
		return err
	})
	if h.connections != nil && q.UserID != "" {
		g.Go(func() error {
			conns, err := h.connections.ListByRequester(gctx, q.UserID)
			if err != nil {
				return err
			}
			connected = make(map[string]bool, len(conns))
			for _, c := range conns {
				connected[c.CandidateID] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, shared.WrapError("query", "FindBuddies", shared.ErrUnavailable, "failed to load candidates", err)
	}

	candidates = h.overlayPresence(ctx, q.UserID, candidates)

	filtered := make([]buddy.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == q.UserID {
			continue
		}
		if q.OnlineOnly && !c.IsOnline {
			continue
		}
		filtered = append(filtered, c)
	}

	ranked := h.matcher.Rank(filtered, requested)

	result := &FindBuddiesResult{
		Routine: requested,
		Total:   len(ranked),
	}
	for _, r := range ranked {
		if r.Candidate.IsOnline {
			result.OnlineCount++
		}
	}

	limit := h.limit(q.Limit)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	result.Matches = make([]BuddyMatch, 0, len(ranked))
	for _, r := range ranked {
		result.Matches = append(result.Matches, BuddyMatch{
			Ranked:           r,
			Fit:              h.matcher.RoutineFit(r.Candidate, requested),
			Reasons:          h.matcher.Explain(r.Candidate, requested),
			AlreadyConnected: connected[r.Candidate.ID],
		})
	}

	return result, nil
}

func (h *FindBuddiesHandler) limit(requested int) int {
	switch {
	case requested <= 0:
		return h.limits.Default
	case requested > h.limits.Max:
		return h.limits.Max
	default:
		return requested
	}
}

// overlayPresence отмечает онлайн тех, кого видит живое присутствие.
// При ошибке остаются сохранённые флаги.
func (h *FindBuddiesHandler) overlayPresence(ctx context.Context, userID string, candidates []buddy.Candidate) []buddy.Candidate {
	if h.presence == nil || len(candidates) == 0 || !h.features.IsEnabled(config.FeatureBuddyPresence, userID) {
		return candidates
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}

	ctx, cancel := context.WithTimeout(ctx, h.presenceWait)
	defer cancel()

	online, err := h.presence.Online(ctx, ids)
	if err != nil {
		h.log.Warn("presence lookup failed, using stored flags", logger.Err(err))
		return candidates
	}

	out := make([]buddy.Candidate, len(candidates))
	for i, c := range candidates {
		out[i] = c.WithPresence(c.IsOnline || online[c.ID])
	}
	return out
}
