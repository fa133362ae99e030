package coaching

import (
	"context"

	"github.com/alem-hub/habit-engine/internal/domain/routine"
)

// Cache хранит готовые советы. Совет зависит только от рутины и длины серии,
// поэтому ключ - пара (routine, days).
type Cache interface {
	// Get возвращает совет и признак попадания.
	Get(ctx context.Context, id routine.ID, days int) (Bundle, bool, error)

	// Set сохраняет совет.
	Set(ctx context.Context, id routine.ID, days int, b Bundle) error
}
