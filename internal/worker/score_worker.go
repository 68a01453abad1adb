package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/teachstack/livetest-backend/internal/config"
	"github.com/teachstack/livetest-backend/internal/model"
)

const (
	ScoreBatchSize    = 50
	ScoreBatchTimeout = 2 * time.Second
	ScorePollTimeout  = 1 * time.Second
)

// ScoreWorker drains the score persistence queue into Postgres. Bundles are
// batched by size and age; a failed batch falls back to row-at-a-time writes
// and requeues only what could not be stored.
type ScoreWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewScoreWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ScoreWorker {
	return &ScoreWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "score_worker").Logger(),
	}
}

func (w *ScoreWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ScoreWorker started")

	batch := make([]*model.Score, 0, ScoreBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ScoreBatchSize || time.Since(lastFlush) >= ScoreBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ScorePollTimeout, config.WorkerKey.PersistScoresQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var score model.Score
			if err := json.Unmarshal([]byte(item[1]), &score); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &score)
		}
	}
}

func (w *ScoreWorker) flushSafe(ctx context.Context, batch []*model.Score) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk score insert failed, using fallback")

		for _, score := range batch {
			if err := w.insertSingle(ctx, score); err != nil {
				w.log.Error().Err(err).
					Int("student_id", score.StudentID).
					Msg("insertSingle failed — requeueing")
				raw, _ := json.Marshal(score)
				w.rdb.RPush(ctx, config.WorkerKey.PersistScoresQueue, raw)
			}
		}
	}
}

const insertScoreSQL = `
	INSERT INTO scores (student_id, test_id, test_scores, comments, evaluator)
	VALUES ($1, $2, $3, $4, $5)`

// bulkInsert pipelines the whole batch in one round trip. Score rows carry
// per-question arrays of uneven length across tests, which rules out an
// UNNEST rewrite, so the batch API does the fan-in instead.
func (w *ScoreWorker) bulkInsert(ctx context.Context, scores []*model.Score) error {
	pgBatch := &pgx.Batch{}
	for _, s := range scores {
		pgBatch.Queue(insertScoreSQL, s.StudentID, s.TestID, s.TestScores, s.Comments, s.Evaluator)
	}

	results := w.pool.SendBatch(ctx, pgBatch)
	defer results.Close()

	for range scores {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (w *ScoreWorker) insertSingle(ctx context.Context, s *model.Score) error {
	_, err := w.pool.Exec(ctx, insertScoreSQL,
		s.StudentID, s.TestID, s.TestScores, s.Comments, s.Evaluator)
	return err
}
