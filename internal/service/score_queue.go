package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/teachstack/livetest-backend/internal/config"
	"github.com/teachstack/livetest-backend/internal/model"
)

// ScoreQueue pushes graded bundles onto the Redis persistence queue. The
// score worker drains it in batches, so a slow database never stalls a live
// session.
type ScoreQueue struct {
	rdb *redis.Client
}

// NewScoreQueue creates a Redis-backed score sink.
func NewScoreQueue(rdb *redis.Client) *ScoreQueue {
	return &ScoreQueue{rdb: rdb}
}

// Enqueue serializes one score bundle onto the queue.
func (q *ScoreQueue) Enqueue(ctx context.Context, score *model.Score) error {
	raw, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("marshal score: %w", err)
	}
	if err := q.rdb.RPush(ctx, config.WorkerKey.PersistScoresQueue, raw).Err(); err != nil {
		return fmt.Errorf("enqueue score: %w", err)
	}
	return nil
}
