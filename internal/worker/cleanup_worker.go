package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/teachstack/livetest-backend/internal/config"
	"github.com/teachstack/livetest-backend/internal/model"
)

const CleanupPollTimeout = 1 * time.Second

// SessionJanitor is the coordinator surface the cleanup worker drives.
type SessionJanitor interface {
	CleanupTeacher(ctx context.Context, teacherID int) error
	DropSessions(sessionIDs []uuid.UUID)
}

// SweepStore is the repository surface for the staleness sweep.
type SweepStore interface {
	DeleteStaleLobbies(ctx context.Context, staleAfter time.Duration) ([]uuid.UUID, error)
	ExpireInactive(ctx context.Context) ([]uuid.UUID, error)
}

// CleanupWorker has two jobs: draining the teacher-cleanup beacon queue, and
// periodically sweeping abandoned lobbies. Both paths are idempotent, so a
// beacon for an already-ended session is a no-op.
type CleanupWorker struct {
	janitor       SessionJanitor
	store         SweepStore
	rdb           *redis.Client
	staleAfter    time.Duration
	sweepInterval time.Duration
	log           zerolog.Logger
}

func NewCleanupWorker(janitor SessionJanitor, store SweepStore, rdb *redis.Client,
	staleAfter, sweepInterval time.Duration, log zerolog.Logger) *CleanupWorker {
	return &CleanupWorker{
		janitor:       janitor,
		store:         store,
		rdb:           rdb,
		staleAfter:    staleAfter,
		sweepInterval: sweepInterval,
		log:           log.With().Str("component", "cleanup_worker").Logger(),
	}
}

func (w *CleanupWorker) Start(ctx context.Context) {
	w.log.Info().Msg("CleanupWorker started")

	go w.runSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("CleanupWorker stopped")
			return
		default:
			item, err := w.rdb.BLPop(ctx, CleanupPollTimeout, config.WorkerKey.TeacherCleanupQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			var req model.TeacherCleanupRequest
			if err := json.Unmarshal([]byte(item[1]), &req); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			if err := w.janitor.CleanupTeacher(ctx, req.TeacherID); err != nil {
				w.log.Error().Err(err).
					Int("teacher_id", req.TeacherID).
					Msg("teacher cleanup failed")
				continue
			}
			w.log.Info().Int("teacher_id", req.TeacherID).Msg("teacher session cleaned up")
		}
	}
}

// runSweep deletes never-started lobbies that went quiet and ages out
// inactive sessions. Running sessions are never touched: they have
// started_at set, which every sweep query excludes.
func (w *CleanupWorker) runSweep(ctx context.Context) {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepOnce(ctx)
		}
	}
}

func (w *CleanupWorker) sweepOnce(ctx context.Context) {
	ids, err := w.store.DeleteStaleLobbies(ctx, w.staleAfter)
	if err != nil {
		w.log.Error().Err(err).Msg("stale lobby sweep failed")
	} else if len(ids) > 0 {
		w.janitor.DropSessions(ids)
		w.log.Info().Int("count", len(ids)).Msg("stale lobbies removed")
	}

	// Ended sessions keep their actor alive for post-test grading; once the
	// row ages out, the actor goes with it.
	expired, err := w.store.ExpireInactive(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("expire pass failed")
	} else if len(expired) > 0 {
		w.janitor.DropSessions(expired)
		w.log.Info().Int("count", len(expired)).Msg("expired sessions reclaimed")
	}
}
