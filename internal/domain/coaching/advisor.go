// Package coaching выдаёт контекстные советы для рутины и текущей серии.
//
// Генерация детерминирована: это выбор шаблона по рутине с подстановкой
// длины серии. Задержка "размышления" моделируется таймером, который
// отменяется через context. Новый запрос к тому же Advisor отменяет
// предыдущий (побеждает последний запрос).
package coaching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alem-hub/habit-engine/internal/domain/routine"
	"github.com/alem-hub/habit-engine/internal/domain/shared"
	"github.com/alem-hub/habit-engine/internal/domain/streak"
)

// DefaultLatency - минимальная задержка генерации совета.
const DefaultLatency = 1500 * time.Millisecond

// ══════════════════════════════════════════════════════════════════════════════
// BUNDLE
// ══════════════════════════════════════════════════════════════════════════════

// Bundle - набор совета для рутины.
type Bundle struct {
	// Notification - короткое уведомление-предложение.
	Notification string `json:"notification"`

	// HabitTip - совет по встраиванию привычки.
	HabitTip string `json:"habitTip"`

	// Motivation - мотивационная строка с длиной серии.
	Motivation string `json:"motivation"`
}

// Validate проверяет, что все части совета заполнены.
func (b Bundle) Validate() error {
	if b.Notification == "" || b.HabitTip == "" || b.Motivation == "" {
		return shared.WrapError("coaching", "Validate", shared.ErrValidation,
			"advice bundle must have notification, habitTip and motivation", nil)
	}
	return nil
}

// IsZero возвращает true для пустого совета.
func (b Bundle) IsZero() bool {
	return b == Bundle{}
}

// ══════════════════════════════════════════════════════════════════════════════
// ADVISOR
// ══════════════════════════════════════════════════════════════════════════════

// Config - настройки советника.
type Config struct {
	// Latency - минимальная задержка перед выдачей совета.
	Latency time.Duration
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{Latency: DefaultLatency}
}

// Advisor генерирует советы. Хранит только отмену запроса, который
// сейчас выполняется.
type Advisor struct {
	catalog *routine.Catalog
	latency time.Duration

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelCauseFunc
}

// NewAdvisor создаёт советника и проверяет, что для каждой рутины
// каталога есть шаблоны.
func NewAdvisor(catalog *routine.Catalog, cfg Config) (*Advisor, error) {
	if catalog == nil {
		return nil, errors.New("coaching: routine catalog is required")
	}
	if cfg.Latency < 0 {
		return nil, fmt.Errorf("coaching: latency must be non-negative, got %s", cfg.Latency)
	}

	for _, id := range catalog.IDs() {
		if _, ok := templatesFor(id); !ok {
			return nil, fmt.Errorf("coaching: no advice templates for routine %q", id)
		}
	}

	return &Advisor{
		catalog: catalog,
		latency: cfg.Latency,
	}, nil
}

// Latency возвращает настроенную задержку.
func (a *Advisor) Latency() time.Duration {
	return a.latency
}

// Generate возвращает совет для рутины и серии.
//
// Неизвестная рутина возвращает ErrUnknownRoutine сразу, без задержки.
// Если во время ожидания пришёл новый запрос, текущий завершается
// с ErrSuperseded и совета не выдаёт.
func (a *Advisor) Generate(ctx context.Context, id routine.ID, state streak.State) (Bundle, error) {
	t, err := a.templates(id, "Generate")
	if err != nil {
		return Bundle{}, err
	}
	return a.generate(ctx, a.Reserve(), id, t, state)
}

// GenerateReserved генерирует совет по билету, выданному Reserve.
// Если после Reserve был зарегистрирован более новый запрос, возвращает
// ErrSuperseded.
func (a *Advisor) GenerateReserved(ctx context.Context, ticket uint64, id routine.ID, state streak.State) (Bundle, error) {
	t, err := a.templates(id, "Generate")
	if err != nil {
		return Bundle{}, err
	}
	return a.generate(ctx, ticket, id, t, state)
}

// Reserve регистрирует новый запрос: отменяет текущий и возвращает билет.
// Запрос, обслуженный без генерации (например, из кэша), тоже берёт билет.
func (a *Advisor) Reserve() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		a.cancel(shared.ErrSuperseded)
		a.cancel = nil
	}
	a.seq++
	return a.seq
}

// Current возвращает true, если билет принадлежит последнему запросу.
func (a *Advisor) Current(ticket uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seq == ticket
}

func (a *Advisor) generate(ctx context.Context, ticket uint64, id routine.ID, t templateSet, state streak.State) (Bundle, error) {
	reqCtx, cancel := context.WithCancelCause(ctx)
	if !a.attach(ticket, cancel) {
		cancel(nil)
		return Bundle{}, superseded(id)
	}
	defer a.finish(ticket, cancel)

	timer := time.NewTimer(a.latency)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-reqCtx.Done():
		if errors.Is(context.Cause(reqCtx), shared.ErrSuperseded) {
			return Bundle{}, superseded(id)
		}
		return Bundle{}, shared.WrapError("coaching", "Generate", shared.ErrCanceled,
			fmt.Sprintf("advice for %s canceled", id), reqCtx.Err())
	}

	// Таймер мог сработать одновременно с новым запросом
	if !a.Current(ticket) {
		return Bundle{}, superseded(id)
	}

	return t.render(state.Days), nil
}

// Suggestion возвращает короткую контекстную подсказку для рутины.
func (a *Advisor) Suggestion(id routine.ID) (string, error) {
	t, err := a.templates(id, "Suggestion")
	if err != nil {
		return "", err
	}
	return t.suggestion, nil
}

// templates находит шаблоны рутины из каталога.
func (a *Advisor) templates(id routine.ID, op string) (templateSet, error) {
	if !a.catalog.Has(id) {
		return templateSet{}, shared.WrapError("coaching", op, shared.ErrUnknownRoutine,
			fmt.Sprintf("no advice for routine %q", id), nil)
	}
	t, ok := templatesFor(id)
	if !ok {
		return templateSet{}, shared.WrapError("coaching", op, shared.ErrUnknownRoutine,
			fmt.Sprintf("no advice templates for routine %q", id), nil)
	}
	return t, nil
}

// attach связывает отмену с билетом, если он всё ещё последний.
func (a *Advisor) attach(ticket uint64, cancel context.CancelCauseFunc) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.seq != ticket {
		return false
	}
	a.cancel = cancel
	return true
}

// finish снимает регистрацию, если запрос всё ещё последний.
func (a *Advisor) finish(ticket uint64, cancel context.CancelCauseFunc) {
	a.mu.Lock()
	if a.seq == ticket {
		a.cancel = nil
	}
	a.mu.Unlock()
	cancel(nil)
}

// inFlight возвращает true, пока есть незавершённый запрос.
func (a *Advisor) inFlight() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

func superseded(id routine.ID) error {
	return shared.WrapError("coaching", "Generate", shared.ErrSuperseded,
		fmt.Sprintf("advice for %s superseded by a newer request", id), nil)
}
