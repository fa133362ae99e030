package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/habit-engine/internal/domain/streak"
)

// StreakRepository implements streak.Repository for PostgreSQL.
type StreakRepository struct {
	db      Querier
	tx      txRunner
	timeout time.Duration
	now     func() time.Time
}

// NewStreakRepository creates a new StreakRepository.
func NewStreakRepository(conn *Connection) *StreakRepository {
	return &StreakRepository{db: conn, tx: conn, timeout: conn.queryTimeout, now: time.Now}
}

var _ streak.Repository = (*StreakRepository)(nil)

// Get returns the user's streak record. A user without a row has a zero record.
func (r *StreakRepository) Get(ctx context.Context, userID string) (streak.Record, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	return r.get(ctx, r.db, userID, false)
}

// Update reads the record under a row lock, applies fn and writes the result
// together with a history entry. A serialization conflict reruns the whole
// transaction, fn included, against the row as the winner left it.
func (r *StreakRepository) Update(ctx context.Context, userID string, m streak.Mutation, fn streak.UpdateFunc) (streak.Record, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var saved streak.Record
	err := serializable(ctx, r.tx, func(tx pgx.Tx) error {
		current, err := r.get(ctx, tx, userID, true)
		if err != nil {
			return err
		}

		next := fn(current)
		next.UserID = userID
		next.UpdatedAt = r.now().UTC()

		if err := r.upsert(ctx, tx, next); err != nil {
			return err
		}
		if err := r.appendHistory(ctx, tx, current, next, m); err != nil {
			return err
		}

		saved = next
		return nil
	})
	if err != nil {
		return streak.Record{}, fmt.Errorf("failed to update streak: %w", err)
	}

	return saved, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *StreakRepository) get(ctx context.Context, q Querier, userID string, forUpdate bool) (streak.Record, error) {
	query := `
		SELECT user_id, days, best_days, updated_at
		FROM streak_states
		WHERE user_id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var rec streak.Record
	err := q.QueryRow(ctx, query, userID).Scan(&rec.UserID, &rec.Days, &rec.BestDays, &rec.UpdatedAt)
	if IsNoRows(err) {
		return streak.Record{UserID: userID}, nil
	}
	if err != nil {
		return streak.Record{}, fmt.Errorf("failed to get streak: %w", err)
	}

	return rec, nil
}

func (r *StreakRepository) upsert(ctx context.Context, q Querier, rec streak.Record) error {
	query := `
		INSERT INTO streak_states (user_id, days, best_days, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT(user_id) DO UPDATE SET
			days = EXCLUDED.days,
			best_days = GREATEST(streak_states.best_days, EXCLUDED.best_days),
			updated_at = EXCLUDED.updated_at
	`

	if _, err := q.Exec(ctx, query, rec.UserID, rec.Days, rec.BestDays, rec.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save streak: %w", err)
	}
	return nil
}

func (r *StreakRepository) appendHistory(ctx context.Context, q Querier, from, to streak.Record, m streak.Mutation) error {
	query := `
		INSERT INTO streak_history (user_id, old_days, new_days, reason, routine_id, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	`

	if _, err := q.Exec(ctx, query, to.UserID, from.Days, to.Days, string(m.Reason), m.RoutineID, to.UpdatedAt); err != nil {
		return fmt.Errorf("failed to append streak history: %w", err)
	}
	return nil
}
