package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/teachstack/livetest-backend/internal/config"
	"github.com/teachstack/livetest-backend/internal/model"
	"github.com/teachstack/livetest-backend/internal/repository"
)

// Catalog errors.
var (
	ErrTestNotFound = errors.New("test not found")
	ErrNoQuestions  = errors.New("test has no questions")
)

const questionCacheTTL = 10 * time.Minute

// CatalogService reads test and question data, caching question payloads in
// Redis. Question content is immutable while a session runs, so a short TTL
// is enough.
type CatalogService struct {
	tests     *repository.TestRepository
	questions *repository.QuestionRepository
	rdb       *redis.Client
	logger    zerolog.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(tests *repository.TestRepository, questions *repository.QuestionRepository, rdb *redis.Client) *CatalogService {
	return &CatalogService{
		tests:     tests,
		questions: questions,
		rdb:       rdb,
		logger:    log.With().Str("component", "catalog_service").Logger(),
	}
}

// GetTest retrieves one test's metadata.
func (s *CatalogService) GetTest(ctx context.Context, testID string) (*model.Test, error) {
	test, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("get test: %w", err)
	}
	return test, nil
}

// GetQuestions retrieves a test's questions in order, via the Redis cache
// when warm. A test without questions is an error: a session over it could
// never produce scores.
func (s *CatalogService) GetQuestions(ctx context.Context, testID string) ([]model.Question, error) {
	key := config.CacheKey.TestQuestionsKey(testID)

	cached, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		var questions []model.Question
		if err := json.Unmarshal([]byte(cached), &questions); err == nil {
			return questions, nil
		}
		// Corrupt cache entry. Drop it and fall through to the database.
		s.rdb.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn().Err(err).Str("test_id", testID).Msg("question cache read failed")
	}

	questions, err := s.questions.ListByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	if raw, err := json.Marshal(questions); err == nil {
		if err := s.rdb.Set(ctx, key, raw, questionCacheTTL).Err(); err != nil {
			s.logger.Warn().Err(err).Str("test_id", testID).Msg("question cache write failed")
		}
	}

	return questions, nil
}
