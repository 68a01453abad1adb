package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/teachstack/livetest-backend/internal/model"
)

// ScoreRepository handles persisted grading records.
type ScoreRepository struct {
	pool *pgxpool.Pool
}

// NewScoreRepository creates a new ScoreRepository.
func NewScoreRepository(pool *pgxpool.Pool) *ScoreRepository {
	return &ScoreRepository{pool: pool}
}

// Insert writes one grading record.
func (r *ScoreRepository) Insert(ctx context.Context, s *model.Score) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO scores (student_id, test_id, test_scores, comments, evaluator)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.StudentID, s.TestID, s.TestScores, s.Comments, s.Evaluator)
	return err
}

// ListByStudent retrieves all grading records for a student, newest first.
func (r *ScoreRepository) ListByStudent(ctx context.Context, studentID int) ([]model.Score, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, student_id, test_id, test_scores, comments, evaluator, created_at
		 FROM scores
		 WHERE student_id = $1
		 ORDER BY created_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []model.Score
	for rows.Next() {
		var s model.Score
		if err := rows.Scan(
			&s.ID, &s.StudentID, &s.TestID, &s.TestScores, &s.Comments,
			&s.Evaluator, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}
