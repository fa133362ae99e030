package query

import (
	"context"
	"sync"

	"github.com/alem-hub/habit-engine/internal/domain/coaching"
	"github.com/alem-hub/habit-engine/internal/domain/routine"
	"github.com/alem-hub/habit-engine/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADVISOR POOL
// Один советник на пользователя: новый запрос отменяет только предыдущий
// запрос того же пользователя. Сессия удаляется, когда её никто не держит.
// ══════════════════════════════════════════════════════════════════════════════

// AdvisorPool выдаёт советников по пользователям.
type AdvisorPool struct {
	catalog *routine.Catalog
	cfg     coaching.Config

	// base используется для подсказок, не требующих сессии.
	base *coaching.Advisor

	mu       sync.Mutex
	sessions map[string]*advisorSession
}

type advisorSession struct {
	advisor *coaching.Advisor
	refs    int
}

// NewAdvisorPool создаёт пул и проверяет настройки советника.
func NewAdvisorPool(catalog *routine.Catalog, cfg coaching.Config) (*AdvisorPool, error) {
	base, err := coaching.NewAdvisor(catalog, cfg)
	if err != nil {
		return nil, err
	}
	return &AdvisorPool{
		catalog:  catalog,
		cfg:      cfg,
		base:     base,
		sessions: make(map[string]*advisorSession),
	}, nil
}

// AdvisorTicket - зарегистрированный запрос пользователя. Взятие билета
// отменяет предыдущий запрос того же пользователя.
type AdvisorTicket struct {
	advisor *coaching.Advisor
	ticket  uint64
	release func()
}

// Reserve выдаёт билет в сессии пользователя. Билет нужно освободить
// через Release.
func (p *AdvisorPool) Reserve(userID string) *AdvisorTicket {
	var ticket uint64
	advisor, release := p.acquireWith(userID, func(a *coaching.Advisor) {
		ticket = a.Reserve()
	})
	return &AdvisorTicket{advisor: advisor, ticket: ticket, release: release}
}

// Generate генерирует совет по билету.
func (t *AdvisorTicket) Generate(ctx context.Context, id routine.ID, state streak.State) (coaching.Bundle, error) {
	return t.advisor.GenerateReserved(ctx, t.ticket, id, state)
}

// Current возвращает true, пока не пришёл более новый запрос.
func (t *AdvisorTicket) Current() bool {
	return t.advisor.Current(t.ticket)
}

// Release освобождает сессию.
func (t *AdvisorTicket) Release() {
	t.release()
}

// Suggestion возвращает контекстную подсказку рутины.
func (p *AdvisorPool) Suggestion(id routine.ID) (string, error) {
	return p.base.Suggestion(id)
}

// Check проверяет, что советник умеет отвечать по каждому ритуалу каталога.
// Используется как проба здоровья.
func (p *AdvisorPool) Check(context.Context) error {
	for _, id := range p.catalog.IDs() {
		if _, err := p.base.Suggestion(id); err != nil {
			return err
		}
	}
	return nil
}

// Active возвращает число открытых сессий.
func (p *AdvisorPool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

func (p *AdvisorPool) acquire(userID string) (*coaching.Advisor, func()) {
	return p.acquireWith(userID, nil)
}

// acquireWith вызывает fn под блокировкой пула, чтобы сессия и билет
// появлялись одновременно.
func (p *AdvisorPool) acquireWith(userID string, fn func(*coaching.Advisor)) (*coaching.Advisor, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[userID]
	if !ok {
		// Настройки проверены в NewAdvisorPool
		advisor, _ := coaching.NewAdvisor(p.catalog, p.cfg)
		s = &advisorSession{advisor: advisor}
		p.sessions[userID] = s
	}
	s.refs++
	if fn != nil {
		fn(s.advisor)
	}

	var once sync.Once
	return s.advisor, func() {
		once.Do(func() { p.release(userID, s) })
	}
}

func (p *AdvisorPool) release(userID string, s *advisorSession) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s.refs--
	if s.refs == 0 && p.sessions[userID] == s {
		delete(p.sessions, userID)
	}
}
