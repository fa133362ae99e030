package buddy

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/habit-engine/internal/domain/routine"
	"github.com/alem-hub/habit-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORING
//
// База 70, затем бонусы:
//   +20 совпадение времени (окно рутины входит в предпочтение кандидата)
//   +10 серия кандидата больше 10 дней
//   +5  кандидат онлайн
// Итог ограничен сверху 98: идеальной совместимости не бывает.
// ══════════════════════════════════════════════════════════════════════════════

const (
	BaseScore            = 70
	TimeMatchBonus       = 20
	StreakBonus          = 10
	StreakBonusThreshold = 10
	OnlineBonus          = 5
	MaxScore             = 98

	// HighTierMin - нижняя граница высокого уровня.
	HighTierMin = 85

	// MediumTierMin - нижняя граница среднего уровня.
	MediumTierMin = 70
)

// Tier - уровень совместимости.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// TierFor возвращает уровень по оценке. Уровень - функция только оценки.
func TierFor(score int) Tier {
	switch {
	case score >= HighTierMin:
		return TierHigh
	case score >= MediumTierMin:
		return TierMedium
	default:
		return TierLow
	}
}

// IsValid проверяет корректность уровня.
func (t Tier) IsValid() bool {
	return t == TierHigh || t == TierMedium || t == TierLow
}

// Result - оценка совместимости.
type Result struct {
	// Score - оценка [0, 98].
	Score int `json:"score"`

	// Tier - уровень, всегда TierFor(Score).
	Tier Tier `json:"tier"`
}

// NewResult создаёт результат с ограничением оценки.
func NewResult(score int) Result {
	switch {
	case score > MaxScore:
		score = MaxScore
	case score < 0:
		score = 0
	}
	return Result{Score: score, Tier: TierFor(score)}
}

// Validate проверяет инварианты результата.
func (r Result) Validate() error {
	if r.Score < 0 || r.Score > MaxScore {
		return shared.WrapError("buddy", "Validate", shared.ErrValueOutOfRange,
			fmt.Sprintf("score %d outside [0, %d]", r.Score, MaxScore), nil)
	}
	if want := TierFor(r.Score); r.Tier != want {
		return shared.WrapError("buddy", "Validate", shared.ErrInvalidState,
			fmt.Sprintf("tier %q does not match score %d (want %q)", r.Tier, r.Score, want), nil)
	}
	return nil
}

// Reason - вклад одного фактора в оценку.
type Reason struct {
	// Factor - название фактора.
	Factor string `json:"factor"`

	// Points - добавленные очки.
	Points int `json:"points"`

	// Description - описание для пользователя.
	Description string `json:"description"`
}

// Факторы совместимости.
const (
	FactorBase      = "base"
	FactorTimeMatch = "time_match"
	FactorStreak    = "streak"
	FactorOnline    = "online"
	FactorCap       = "cap"
)

// Ranked - кандидат с оценкой и позицией в выдаче.
type Ranked struct {
	Candidate Candidate `json:"candidate"`
	Result    Result    `json:"result"`

	// Position - позиция в выдаче, начиная с 1.
	Position int `json:"position"`
}

// Fit - насколько кандидат подходит к выбранной рутине.
type Fit string

const (
	// FitNeutral - рутина не выбрана.
	FitNeutral Fit = "neutral"

	// FitHigh - время кандидата совпадает с окном рутины.
	FitHigh Fit = "high"

	// FitMedium - рутина выбрана, но время не совпадает.
	FitMedium Fit = "medium"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATCHER
// ══════════════════════════════════════════════════════════════════════════════

// Matcher оценивает и ранжирует кандидатов. Не хранит изменяемого
// состояния и безопасен для конкурентного использования.
type Matcher struct {
	catalog *routine.Catalog
	now     func() time.Time
	newID   func() string
}

// MatcherOption настраивает Matcher.
type MatcherOption func(*Matcher)

// WithClock задаёт источник времени для подключений.
func WithClock(now func() time.Time) MatcherOption {
	return func(m *Matcher) { m.now = now }
}

// WithIDGenerator задаёт генератор идентификаторов подключений.
func WithIDGenerator(newID func() string) MatcherOption {
	return func(m *Matcher) { m.newID = newID }
}

// NewMatcher создаёт Matcher поверх каталога рутин.
func NewMatcher(catalog *routine.Catalog, opts ...MatcherOption) (*Matcher, error) {
	if catalog == nil {
		return nil, errors.New("buddy: routine catalog is required")
	}
	m := &Matcher{
		catalog: catalog,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Score оценивает кандидата. requested == nil означает "без рутины".
// Рутина, которой нет в каталоге, не даёт бонуса времени;
// для строгой проверки используйте ScoreFor.
func (m *Matcher) Score(c Candidate, requested *routine.ID) Result {
	total := 0
	for _, r := range m.Explain(c, requested) {
		total += r.Points
	}
	return NewResult(total)
}

// ScoreFor оценивает кандидата для рутины, заданной строкой.
// Пустая строка - без рутины; неизвестная рутина - ErrUnknownRoutine.
func (m *Matcher) ScoreFor(c Candidate, routineID string) (Result, error) {
	requested, err := m.ParseRoutine(routineID)
	if err != nil {
		return Result{}, err
	}
	return m.Score(c, requested), nil
}

// ParseRoutine разбирает необязательный идентификатор рутины.
func (m *Matcher) ParseRoutine(raw string) (*routine.ID, error) {
	if raw == "" {
		return nil, nil
	}
	a, err := m.catalog.Lookup(raw)
	if err != nil {
		return nil, err
	}
	id := a.ID
	return &id, nil
}

// Explain возвращает вклад каждого фактора. Сумма Points равна Score.
func (m *Matcher) Explain(c Candidate, requested *routine.ID) []Reason {
	reasons := []Reason{{
		Factor:      FactorBase,
		Points:      BaseScore,
		Description: "Base compatibility",
	}}

	if requested != nil && m.timeMatches(c, *requested) {
		reasons = append(reasons, Reason{
			Factor:      FactorTimeMatch,
			Points:      TimeMatchBonus,
			Description: fmt.Sprintf("Studies during %s", *requested),
		})
	}

	if c.CurrentStreak > StreakBonusThreshold {
		reasons = append(reasons, Reason{
			Factor:      FactorStreak,
			Points:      StreakBonus,
			Description: fmt.Sprintf("%d-day streak", c.CurrentStreak),
		})
	}

	if c.IsOnline {
		reasons = append(reasons, Reason{
			Factor:      FactorOnline,
			Points:      OnlineBonus,
			Description: "Online now",
		})
	}

	total := 0
	for _, r := range reasons {
		total += r.Points
	}
	if total > MaxScore {
		reasons = append(reasons, Reason{
			Factor:      FactorCap,
			Points:      MaxScore - total,
			Description: fmt.Sprintf("Capped at %d", MaxScore),
		})
	}

	return reasons
}

// Rank оценивает и сортирует кандидатов: по убыванию оценки,
// при равенстве по возрастанию ID. Позиции начинаются с 1.
func (m *Matcher) Rank(candidates []Candidate, requested *routine.ID) []Ranked {
	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		ranked[i] = Ranked{Candidate: c, Result: m.Score(c, requested)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Result.Score != ranked[j].Result.Score {
			return ranked[i].Result.Score > ranked[j].Result.Score
		}
		return ranked[i].Candidate.ID < ranked[j].Candidate.ID
	})

	for i := range ranked {
		ranked[i].Position = i + 1
	}
	return ranked
}

// RoutineFit возвращает метку соответствия кандидата выбранной рутине.
func (m *Matcher) RoutineFit(c Candidate, requested *routine.ID) Fit {
	if requested == nil {
		return FitNeutral
	}
	if m.timeMatches(c, *requested) {
		return FitHigh
	}
	return FitMedium
}

// Connect подключает пользователя к кандидату. Возможно только для
// кандидата онлайн, иначе ErrCandidateUnavailable. Кандидат не изменяется.
func (m *Matcher) Connect(requesterID string, c Candidate, requested *routine.ID) (Connection, error) {
	if requesterID == "" {
		return Connection{}, shared.WrapError("buddy", "Connect", shared.ErrInvalidID,
			"requester id is required", nil)
	}
	if requesterID == c.ID {
		return Connection{}, shared.WrapError("buddy", "Connect", shared.ErrInvalidInput,
			"cannot connect to yourself", nil)
	}
	if !c.IsOnline {
		return Connection{}, shared.WrapError("buddy", "Connect", shared.ErrCandidateUnavailable,
			fmt.Sprintf("candidate %s is offline", c.ID), nil)
	}

	conn := Connection{
		ID:          m.newID(),
		RequesterID: requesterID,
		CandidateID: c.ID,
		Result:      m.Score(c, requested),
		CreatedAt:   m.now(),
	}
	if requested != nil {
		conn.RoutineID = *requested
	}
	return conn, nil
}

func (m *Matcher) timeMatches(c Candidate, id routine.ID) bool {
	a, err := m.catalog.Get(id)
	if err != nil {
		return false
	}
	return a.Window.Matches(c.PreferredTimeWindow)
}
