package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/teachstack/livetest-backend/internal/model"
)

// QuestionRepository handles question catalog data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByTest retrieves a test's questions in question-number order.
func (r *QuestionRepository) ListByTest(ctx context.Context, testID string) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT qnumber, test_id, question_text, point_value, question_type,
		        options, correct_answer, weighted_options
		 FROM questions
		 WHERE test_id = $1
		 ORDER BY qnumber ASC`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(
			&q.QNumber, &q.TestID, &q.Text, &q.PointValue, &q.QuestionType,
			&q.Options, &q.CorrectAnswer, &q.WeightedOptions,
		); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
