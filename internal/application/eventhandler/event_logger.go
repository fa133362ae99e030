package eventhandler

import (
	"log/slog"

	"github.com/alem-hub/habit-engine/internal/domain/shared"
)

// EventLogger пишет каждое событие в журнал. Подписывается на все события.
type EventLogger struct {
	logger *slog.Logger
}

// NewEventLogger создаёт журнал событий.
func NewEventLogger(logger *slog.Logger) *EventLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLogger{logger: logger.With("handler", "event_logger")}
}

// Handle реализует shared.EventHandler.
func (l *EventLogger) Handle(event shared.Event) error {
	attrs := []any{
		"event_type", event.EventType(),
		"aggregate_id", event.AggregateID(),
		"occurred_at", event.OccurredAt(),
	}
	for k, v := range event.Payload() {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.Info("domain event", attrs...)
	return nil
}
