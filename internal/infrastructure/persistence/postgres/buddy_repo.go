package postgres

import (
	"context"
	"fmt"

	"github.com/alem-hub/habit-engine/internal/domain/buddy"
	"github.com/alem-hub/habit-engine/internal/domain/routine"
	"github.com/alem-hub/habit-engine/internal/domain/shared"
)

// ─────────────────────────────────────────────────────────────────────────────
// CandidateDirectory
// ─────────────────────────────────────────────────────────────────────────────

// CandidateDirectory implements buddy.Directory over the buddy_candidates table.
type CandidateDirectory struct {
	conn *Connection
}

// NewCandidateDirectory creates a new CandidateDirectory.
func NewCandidateDirectory(conn *Connection) *CandidateDirectory {
	return &CandidateDirectory{conn: conn}
}

var (
	_ buddy.Directory = (*CandidateDirectory)(nil)
	_ buddy.Registry  = (*CandidateDirectory)(nil)
)

const candidateColumns = `id, name, level, current_streak, study_focus, preferred_time_window, is_online`

// List returns all candidates ordered by id.
func (d *CandidateDirectory) List(ctx context.Context) ([]buddy.Candidate, error) {
	ctx, cancel := d.conn.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + candidateColumns + ` FROM buddy_candidates ORDER BY id`

	rows, err := d.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	candidates := make([]buddy.Candidate, 0)
	for rows.Next() {
		var c buddy.Candidate
		if err := rows.Scan(&c.ID, &c.Name, &c.Level, &c.CurrentStreak, &c.StudyFocus, &c.PreferredTimeWindow, &c.IsOnline); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}

	return candidates, rows.Err()
}

// Get returns a candidate by id or shared.ErrCandidateNotFound.
func (d *CandidateDirectory) Get(ctx context.Context, id string) (buddy.Candidate, error) {
	ctx, cancel := d.conn.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + candidateColumns + ` FROM buddy_candidates WHERE id = $1`

	var c buddy.Candidate
	err := d.conn.QueryRow(ctx, query, id).
		Scan(&c.ID, &c.Name, &c.Level, &c.CurrentStreak, &c.StudyFocus, &c.PreferredTimeWindow, &c.IsOnline)
	if IsNoRows(err) {
		return buddy.Candidate{}, shared.WrapError("buddy", "Get", shared.ErrCandidateNotFound,
			fmt.Sprintf("candidate %s not found", id), nil)
	}
	if err != nil {
		return buddy.Candidate{}, fmt.Errorf("failed to get candidate: %w", err)
	}

	return c, nil
}

// Upsert registers or refreshes a candidate profile.
func (d *CandidateDirectory) Upsert(ctx context.Context, c buddy.Candidate) error {
	if err := c.Validate(); err != nil {
		return shared.WrapError("buddy", "Upsert", shared.ErrValidation, "invalid candidate", err)
	}

	query := `
		INSERT INTO buddy_candidates (` + candidateColumns + `, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT(id) DO UPDATE SET
			name = EXCLUDED.name,
			level = EXCLUDED.level,
			current_streak = EXCLUDED.current_streak,
			study_focus = EXCLUDED.study_focus,
			preferred_time_window = EXCLUDED.preferred_time_window,
			is_online = EXCLUDED.is_online,
			updated_at = NOW()
	`

	focus := c.StudyFocus
	if focus == nil {
		focus = []string{}
	}

	_, err := d.conn.Exec(ctx, query, c.ID, c.Name, c.Level, c.CurrentStreak, focus, c.PreferredTimeWindow, c.IsOnline)
	if err != nil {
		return fmt.Errorf("failed to upsert candidate: %w", err)
	}
	return nil
}

// SetOnline updates the stored online flag.
func (d *CandidateDirectory) SetOnline(ctx context.Context, id string, online bool) error {
	ctx, cancel := d.conn.withTimeout(ctx)
	defer cancel()

	tag, err := d.conn.Exec(ctx,
		`UPDATE buddy_candidates SET is_online = $2, updated_at = NOW() WHERE id = $1`, id, online)
	if err != nil {
		return fmt.Errorf("failed to update candidate presence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.WrapError("buddy", "SetOnline", shared.ErrCandidateNotFound,
			fmt.Sprintf("candidate %s not found", id), nil)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ConnectionRepository
// ─────────────────────────────────────────────────────────────────────────────

// ConnectionRepository implements buddy.ConnectionStore.
type ConnectionRepository struct {
	conn *Connection
}

// NewConnectionRepository creates a new ConnectionRepository.
func NewConnectionRepository(conn *Connection) *ConnectionRepository {
	return &ConnectionRepository{conn: conn}
}

var _ buddy.ConnectionStore = (*ConnectionRepository)(nil)

// Save stores a connection.
func (r *ConnectionRepository) Save(ctx context.Context, c buddy.Connection) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO buddy_connections (id, requester_id, candidate_id, routine_id, score, tier, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
	`

	_, err := r.conn.Exec(ctx, query,
		c.ID,
		c.RequesterID,
		c.CandidateID,
		string(c.RoutineID),
		c.Result.Score,
		string(c.Result.Tier),
		c.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("buddy", "Save", shared.ErrAlreadyExists,
				fmt.Sprintf("connection %s already exists", c.ID), err)
		}
		if IsForeignKeyViolation(err) {
			return shared.WrapError("buddy", "Save", shared.ErrCandidateNotFound,
				fmt.Sprintf("candidate %s not found", c.CandidateID), err)
		}
		return fmt.Errorf("failed to save connection: %w", err)
	}

	return nil
}

// ListByRequester returns a user's connections, newest first.
func (r *ConnectionRepository) ListByRequester(ctx context.Context, requesterID string) ([]buddy.Connection, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, requester_id, candidate_id, COALESCE(routine_id, ''), score, tier, created_at
		FROM buddy_connections
		WHERE requester_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.conn.Query(ctx, query, requesterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	connections := make([]buddy.Connection, 0)
	for rows.Next() {
		var c buddy.Connection
		var routineID, tier string
		if err := rows.Scan(&c.ID, &c.RequesterID, &c.CandidateID, &routineID, &c.Result.Score, &tier, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		c.RoutineID = routine.ID(routineID)
		c.Result.Tier = buddy.Tier(tier)
		connections = append(connections, c)
	}

	return connections, rows.Err()
}
