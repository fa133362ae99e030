package routine

import "context"

// CompletionLog отмечает выполнение рутины не чаще раза в календарный день.
type CompletionLog interface {
	// MarkCompleted отмечает рутину выполненной сегодня.
	// Возвращает false, если она уже была отмечена в этот день.
	MarkCompleted(ctx context.Context, userID string, id ID) (bool, error)

	// CompletedToday возвращает рутины, выполненные пользователем сегодня.
	CompletedToday(ctx context.Context, userID string) ([]ID, error)

	// Unmark снимает отметку (откат, если серию сохранить не удалось).
	Unmark(ctx context.Context, userID string, id ID) error
}
