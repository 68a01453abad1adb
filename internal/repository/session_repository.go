package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/teachstack/livetest-backend/internal/model"
)

const sessionColumns = `id, name, description, test_id, teacher_id, kind, status,
	created_at, last_active, started_at, ended_at, max_participants,
	current_users, is_private, password_hash`

// SessionRepository handles live session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func scanSession(row pgx.Row) (*model.Session, error) {
	s := &model.Session{}
	err := row.Scan(
		&s.ID, &s.Name, &s.Description, &s.TestID, &s.TeacherID, &s.Kind,
		&s.Status, &s.CreatedAt, &s.LastActive, &s.StartedAt, &s.EndedAt,
		&s.MaxParticipants, &s.CurrentUsers, &s.IsPrivate, &s.PasswordHash,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions
		 (id, name, description, test_id, teacher_id, kind, status, created_at,
		  last_active, max_participants, is_private, password_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.Name, s.Description, s.TestID, s.TeacherID, s.Kind, s.Status,
		s.CreatedAt, s.LastActive, s.MaxParticipants, s.IsPrivate, s.PasswordHash,
	)
	return err
}

// Upsert writes the full mutable state of a session. Used by the session
// actor on lifecycle transitions so restarts can recover.
func (r *SessionRepository) Upsert(ctx context.Context, s *model.Session) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions
		 (id, name, description, test_id, teacher_id, kind, status, created_at,
		  last_active, started_at, ended_at, max_participants, current_users,
		  is_private, password_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (id) DO UPDATE
		 SET teacher_id = EXCLUDED.teacher_id,
		     status = EXCLUDED.status,
		     last_active = EXCLUDED.last_active,
		     started_at = EXCLUDED.started_at,
		     ended_at = EXCLUDED.ended_at,
		     current_users = EXCLUDED.current_users`,
		s.ID, s.Name, s.Description, s.TestID, s.TeacherID, s.Kind, s.Status,
		s.CreatedAt, s.LastActive, s.StartedAt, s.EndedAt, s.MaxParticipants,
		s.CurrentUsers, s.IsPrivate, s.PasswordHash,
	)
	return err
}

// GetByID retrieves a single session.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
}

// FindActiveByTeacher returns the teacher's active (not ended) session, or
// nil when none exists.
func (r *SessionRepository) FindActiveByTeacher(ctx context.Context, teacherID int) (*model.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE teacher_id = $1 AND status = 'active' AND ended_at IS NULL
		 ORDER BY last_active DESC
		 LIMIT 1`, teacherID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// FindJoinableByTest returns the most recently active lobby for a test that
// has not gone stale, or nil when none qualifies.
func (r *SessionRepository) FindJoinableByTest(ctx context.Context, testID string, staleAfter time.Duration) (*model.Session, error) {
	cutoff := time.Now().Add(-staleAfter)
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE test_id = $1 AND status = 'active'
		   AND started_at IS NULL AND ended_at IS NULL
		   AND last_active > $2
		 ORDER BY last_active DESC
		 LIMIT 1`, testID, cutoff))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// ListActive returns all active sessions, newest activity first.
func (r *SessionRepository) ListActive(ctx context.Context) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE status = 'active'
		 ORDER BY last_active DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// TouchLastActive bumps last_active and adjusts the connected-user counter.
// delta may be negative; the counter floors at zero.
func (r *SessionRepository) TouchLastActive(ctx context.Context, id uuid.UUID, delta int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions
		 SET last_active = NOW(),
		     current_users = GREATEST(current_users + $2, 0)
		 WHERE id = $1`, id, delta)
	return err
}

// Delete removes a session row.
func (r *SessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// DeleteStaleLobbies removes never-started active sessions whose last
// activity is older than the threshold. Returns ids of the deleted rows so
// the caller can tear down any in-memory state.
func (r *SessionRepository) DeleteStaleLobbies(ctx context.Context, staleAfter time.Duration) ([]uuid.UUID, error) {
	cutoff := time.Now().Add(-staleAfter)
	rows, err := r.pool.Query(ctx,
		`DELETE FROM sessions
		 WHERE status = 'active'
		   AND started_at IS NULL AND ended_at IS NULL
		   AND last_active < $1
		 RETURNING id`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ExpireInactive marks inactive sessions older than an hour as expired and
// purges expired rows older than a day. Ended test sessions keep their rows
// inside that window for score reference. Returns the ids that just expired
// so the caller can tear down any in-memory state still held for them.
func (r *SessionRepository) ExpireInactive(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE sessions SET status = 'expired'
		 WHERE status = 'inactive' AND last_active < NOW() - INTERVAL '1 hour'
		 RETURNING id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	_, err = r.pool.Exec(ctx,
		`DELETE FROM sessions
		 WHERE status = 'expired' AND last_active < NOW() - INTERVAL '24 hours'`)
	return ids, err
}
