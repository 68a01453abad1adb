package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/teachstack/livetest-backend/internal/model"
)

// TestRepository handles test catalog data access.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// GetByID retrieves one test with its question count.
func (r *TestRepository) GetByID(ctx context.Context, testID string) (*model.Test, error) {
	t := &model.Test{}
	err := r.pool.QueryRow(ctx,
		`SELECT t.test_id, t.name, t.duration_seconds, t.created_at,
		        (SELECT COUNT(*) FROM questions q WHERE q.test_id = t.test_id)
		 FROM tests t
		 WHERE t.test_id = $1`, testID,
	).Scan(&t.TestID, &t.Name, &t.DurationSeconds, &t.CreatedAt, &t.QuestionCount)
	if err != nil {
		return nil, err
	}
	return t, nil
}
