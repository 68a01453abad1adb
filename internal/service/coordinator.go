package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/teachstack/livetest-backend/internal/config"
	"github.com/teachstack/livetest-backend/internal/model"
	ws "github.com/teachstack/livetest-backend/internal/websocket"
	"golang.org/x/crypto/bcrypt"
)

// Coordinator errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session has ended")
	ErrSessionFull     = errors.New("session is full")
	ErrNotSessionOwner = errors.New("not the session owner")
	ErrSessionPassword = errors.New("session password required")
)

// SessionStore is the persistence surface the coordinator needs. The pgx
// repository satisfies it; tests substitute an in-memory store.
type SessionStore interface {
	Create(ctx context.Context, s *model.Session) error
	Upsert(ctx context.Context, s *model.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	FindActiveByTeacher(ctx context.Context, teacherID int) (*model.Session, error)
	FindJoinableByTest(ctx context.Context, testID string, staleAfter time.Duration) (*model.Session, error)
	TouchLastActive(ctx context.Context, id uuid.UUID, delta int) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Catalog resolves test and question content.
type Catalog interface {
	GetTest(ctx context.Context, testID string) (*model.Test, error)
	GetQuestions(ctx context.Context, testID string) ([]model.Question, error)
}

// ScoreSink accepts graded bundles for asynchronous persistence.
type ScoreSink interface {
	Enqueue(ctx context.Context, score *model.Score) error
}

// Broadcaster delivers outbound messages to live connections. The websocket
// registry satisfies it.
type Broadcaster interface {
	Broadcast(sessionID uuid.UUID, message any, exclude uuid.UUID)
	SendTo(clientID uuid.UUID, message any)
	Disconnect(clientID uuid.UUID)
	CloseSession(sessionID uuid.UUID)
}

// Coordinator owns the live sessions. It spawns one actor per session and
// routes every event through that actor's ordered channel; its own lock only
// guards the actor table, never session state.
type Coordinator struct {
	store   SessionStore
	catalog Catalog
	scores  ScoreSink
	bcast   Broadcaster
	cfg     *config.Config
	logger  zerolog.Logger

	mu     sync.Mutex
	actors map[uuid.UUID]*sessionActor

	// noTicker disables the 1 Hz driver so tests can step time themselves.
	noTicker bool
}

// NewCoordinator creates the session coordinator.
func NewCoordinator(store SessionStore, catalog Catalog, scores ScoreSink, bcast Broadcaster, cfg *config.Config) *Coordinator {
	return &Coordinator{
		store:   store,
		catalog: catalog,
		scores:  scores,
		bcast:   bcast,
		cfg:     cfg,
		logger:  log.With().Str("component", "coordinator").Logger(),
		actors:  make(map[uuid.UUID]*sessionActor),
	}
}

// CreateOrJoin resolves the session a caller should connect to.
//
// A teacher reclaiming the same test gets their existing active session back
// (takeover); claiming a different test force-ends the old session first and
// creates a fresh lobby. Students join the most recent non-stale lobby for
// the test, or get NotFound.
func (c *Coordinator) CreateOrJoin(ctx context.Context, identity model.Identity, req model.CreateOrJoinRequest) (*model.Session, error) {
	if !identity.IsTeacher || identity.UserID == nil {
		session, err := c.store.FindJoinableByTest(ctx, req.TestID, c.cfg.LobbyStaleAfter)
		if err != nil {
			return nil, fmt.Errorf("find joinable session: %w", err)
		}
		if session == nil {
			return nil, ErrSessionNotFound
		}
		if session.IsPrivate && session.PasswordHash != nil {
			if req.Password == nil {
				return nil, ErrSessionPassword
			}
			if bcrypt.CompareHashAndPassword([]byte(*session.PasswordHash), []byte(*req.Password)) != nil {
				return nil, ErrSessionPassword
			}
		}
		return session, nil
	}

	teacherID := *identity.UserID
	existing, err := c.store.FindActiveByTeacher(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("find teacher session: %w", err)
	}
	if existing != nil {
		if existing.TestID == req.TestID {
			return existing, nil
		}
		// One live session per teacher: a new test supersedes the old room.
		if err := c.endSession(ctx, existing); err != nil {
			return nil, err
		}
	}

	test, err := c.catalog.GetTest(ctx, req.TestID)
	if err != nil {
		return nil, err
	}

	name := test.Name
	if req.Name != nil && *req.Name != "" {
		name = *req.Name
	}
	maxUsers := c.cfg.MaxSessionParticipants
	if req.MaxUsers != nil {
		maxUsers = *req.MaxUsers
	}

	session := model.NewTestSession(name, req.TestID, &teacherID, maxUsers)
	session.Description = req.Description
	if req.IsPrivate != nil && *req.IsPrivate && req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), c.cfg.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash session password: %w", err)
		}
		h := string(hash)
		session.IsPrivate = true
		session.PasswordHash = &h
	}

	if err := c.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	c.logger.Info().
		Str("session_id", session.ID.String()).
		Str("test_id", session.TestID).
		Int("teacher_id", teacherID).
		Msg("session created")

	return session, nil
}

// Admit registers a connection with a session's actor and assigns its role.
// The actor pushes role_assigned, the snapshot and the question payload to
// the connection; peers learn about the join through the roster broadcast.
func (c *Coordinator) Admit(ctx context.Context, sessionID, connID uuid.UUID, identity model.Identity) (model.Role, error) {
	actor, err := c.ensureActor(ctx, sessionID)
	if err != nil {
		return model.RoleUnknown, err
	}

	res := actor.deliver(ctx, actorCmd{kind: cmdJoin, conn: connID, identity: identity})
	if res.err != nil {
		return model.RoleUnknown, res.err
	}
	if res.outcome != OutcomeApplied {
		return model.RoleUnknown, ErrSessionEnded
	}
	return res.role, nil
}

// Apply routes one decoded wire event into the session's actor.
func (c *Coordinator) Apply(ctx context.Context, sessionID, connID uuid.UUID, event ws.Inbound) (Outcome, error) {
	actor := c.actor(sessionID)
	if actor == nil {
		return OutcomeIgnored, ErrSessionNotFound
	}
	res := actor.deliver(ctx, actorCmd{kind: cmdInbound, conn: connID, event: event})
	if res.outcome == OutcomeInvalid {
		c.logger.Debug().
			Str("session_id", sessionID.String()).
			Str("event", string(event.EventType())).
			Msg("invalid event dropped")
	}
	return res.outcome, res.err
}

// Leave marks a connection's participant as disconnected. Answers and
// identity are retained for scoring and reconnects.
func (c *Coordinator) Leave(ctx context.Context, sessionID, connID uuid.UUID) {
	actor := c.actor(sessionID)
	if actor == nil {
		return
	}
	actor.deliver(ctx, actorCmd{kind: cmdLeave, conn: connID})
}

// SubmitScores grades every answering student and enqueues the bundles for
// persistence. Only the owning teacher may submit.
func (c *Coordinator) SubmitScores(ctx context.Context, sessionID uuid.UUID, teacherID int, evaluator string) (int, error) {
	actor := c.actor(sessionID)
	if actor == nil {
		// The actor may have been torn down; fall back to ownership check
		// against the store so the caller gets a precise error.
		session, err := c.store.GetByID(ctx, sessionID)
		if err != nil {
			return 0, ErrSessionNotFound
		}
		if session.TeacherID == nil || *session.TeacherID != teacherID {
			return 0, ErrNotSessionOwner
		}
		return 0, ErrSessionEnded
	}

	// Ownership is checked inside the actor so session state is only ever
	// read on its serialized path.
	res := actor.deliver(ctx, actorCmd{kind: cmdScoreBundles, teacherID: teacherID, evaluator: evaluator})
	if res.err != nil {
		return 0, res.err
	}

	enqueued := 0
	for _, bundle := range res.scores {
		if err := c.scores.Enqueue(ctx, bundle); err != nil {
			return enqueued, fmt.Errorf("enqueue score: %w", err)
		}
		enqueued++
	}
	c.logger.Info().
		Str("session_id", sessionID.String()).
		Int("bundles", enqueued).
		Msg("score bundles enqueued")
	return enqueued, nil
}

// CleanupTeacher ends the teacher's active session, if any. Called from the
// unload beacon path and safe to run repeatedly.
func (c *Coordinator) CleanupTeacher(ctx context.Context, teacherID int) error {
	session, err := c.store.FindActiveByTeacher(ctx, teacherID)
	if err != nil {
		return fmt.Errorf("find teacher session: %w", err)
	}
	if session == nil {
		return nil
	}
	return c.endSession(ctx, session)
}

// DropSessions tears down actors and connections for sessions removed by the
// staleness sweep.
func (c *Coordinator) DropSessions(sessionIDs []uuid.UUID) {
	for _, id := range sessionIDs {
		c.stopActor(id)
		c.bcast.CloseSession(id)
	}
}

// Shutdown stops every actor, flushing lifecycle state through the store.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mu.Lock()
	ids := make([]uuid.UUID, 0, len(c.actors))
	for id := range c.actors {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		if actor := c.actor(id); actor != nil {
			actor.deliver(ctx, actorCmd{kind: cmdForceEnd})
		}
		c.stopActor(id)
	}
}

// ─── Internals ──────────────────────────────────────────────────────

func (c *Coordinator) actor(sessionID uuid.UUID) *sessionActor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actors[sessionID]
}

// ensureActor returns the session's actor, spawning one from persisted state
// on first contact.
func (c *Coordinator) ensureActor(ctx context.Context, sessionID uuid.UUID) (*sessionActor, error) {
	c.mu.Lock()
	if actor, ok := c.actors[sessionID]; ok {
		c.mu.Unlock()
		return actor, nil
	}
	c.mu.Unlock()

	session, err := c.store.GetByID(ctx, sessionID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	if session.IsEnded() {
		return nil, ErrSessionEnded
	}

	test, err := c.catalog.GetTest(ctx, session.TestID)
	if err != nil {
		return nil, err
	}
	questions, err := c.catalog.GetQuestions(ctx, session.TestID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if actor, ok := c.actors[sessionID]; ok {
		// Lost the race to another admit; use the winner.
		return actor, nil
	}
	actor := newSessionActor(session, test, questions, c.store, c.bcast, actorConfig{
		scoreFloor:      c.cfg.ScoreFloor,
		maxParticipants: session.MaxParticipants,
	}, c.logger)
	actor.noTicker = c.noTicker
	c.actors[sessionID] = actor
	go actor.run()
	return actor, nil
}

func (c *Coordinator) stopActor(sessionID uuid.UUID) {
	c.mu.Lock()
	actor, ok := c.actors[sessionID]
	delete(c.actors, sessionID)
	c.mu.Unlock()
	if ok {
		actor.deliver(context.Background(), actorCmd{kind: cmdStop})
	}
}

// endSession ends a session through its actor when one is live, or directly
// against the store when nobody is connected.
func (c *Coordinator) endSession(ctx context.Context, session *model.Session) error {
	if actor := c.actor(session.ID); actor != nil {
		actor.deliver(ctx, actorCmd{kind: cmdForceEnd})
		c.stopActor(session.ID)
		c.bcast.CloseSession(session.ID)
		return nil
	}

	now := time.Now().UTC()
	session.EndedAt = &now
	session.Status = model.SessionStatusInactive
	session.LastActive = now
	if err := c.store.Upsert(ctx, session); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}
