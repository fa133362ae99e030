package query

import (
	"github.com/alem-hub/habit-engine/internal/domain/routine"
)

// RoutineDTO - рутина с контекстной подсказкой.
type RoutineDTO struct {
	routine.Anchor
	Suggestion string `json:"suggestion"`
}

// ListRoutinesHandler возвращает каталог рутин в порядке отображения.
type ListRoutinesHandler struct {
	catalog  *routine.Catalog
	advisors *AdvisorPool
}

// NewListRoutinesHandler создаёт обработчик.
func NewListRoutinesHandler(catalog *routine.Catalog, advisors *AdvisorPool) *ListRoutinesHandler {
	return &ListRoutinesHandler{catalog: catalog, advisors: advisors}
}

// Handle выполняет запрос.
func (h *ListRoutinesHandler) Handle() ([]RoutineDTO, error) {
	anchors := h.catalog.All()
	out := make([]RoutineDTO, 0, len(anchors))
	for _, a := range anchors {
		s, err := h.advisors.Suggestion(a.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, RoutineDTO{Anchor: a, Suggestion: s})
	}
	return out, nil
}
