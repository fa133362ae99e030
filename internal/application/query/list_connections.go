package query

import (
	"context"

	"github.com/alem-hub/habit-engine/internal/domain/buddy"
	"github.com/alem-hub/habit-engine/internal/domain/shared"
)

// ListConnectionsQuery - подключения пользователя.
type ListConnectionsQuery struct {
	UserID string
}

// ConnectionsResult - подключения, новые первыми.
type ConnectionsResult struct {
	UserID      string             `json:"userId"`
	Connections []buddy.Connection `json:"connections"`
}

// ListConnectionsHandler обрабатывает ListConnectionsQuery.
type ListConnectionsHandler struct {
	store buddy.ConnectionStore
}

// NewListConnectionsHandler создаёт обработчик.
func NewListConnectionsHandler(store buddy.ConnectionStore) *ListConnectionsHandler {
	return &ListConnectionsHandler{store: store}
}

// Handle выполняет запрос.
func (h *ListConnectionsHandler) Handle(ctx context.Context, q ListConnectionsQuery) (*ConnectionsResult, error) {
	if q.UserID == "" {
		return nil, shared.WrapError("query", "ListConnections", shared.ErrInvalidID, "user_id is required", nil)
	}

	conns, err := h.store.ListByRequester(ctx, q.UserID)
	if err != nil {
		return nil, shared.WrapError("query", "ListConnections", shared.ErrUnavailable, "failed to load connections", err)
	}
	if conns == nil {
		conns = []buddy.Connection{}
	}

	return &ConnectionsResult{UserID: q.UserID, Connections: conns}, nil
}
