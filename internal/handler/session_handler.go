package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/teachstack/livetest-backend/internal/config"
	"github.com/teachstack/livetest-backend/internal/middleware"
	"github.com/teachstack/livetest-backend/internal/model"
	"github.com/teachstack/livetest-backend/internal/repository"
	"github.com/teachstack/livetest-backend/internal/response"
	"github.com/teachstack/livetest-backend/internal/service"
	"github.com/teachstack/livetest-backend/internal/validator"
)

// SessionHandler handles session lifecycle endpoints.
type SessionHandler struct {
	coordinator *service.Coordinator
	sessions    *repository.SessionRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(coordinator *service.Coordinator, sessions *repository.SessionRepository, rdb *redis.Client) *SessionHandler {
	return &SessionHandler{
		coordinator: coordinator,
		sessions:    sessions,
		rdb:         rdb,
		log:         log.With().Str("component", "session_handler").Logger(),
	}
}

// CreateOrJoin godoc
// POST /api/v1/sessions/create-or-join
// Teachers claim (or reclaim) a session for a test; students resolve the
// lobby to connect to. Anonymous callers are treated as students.
func (h *SessionHandler) CreateOrJoin(c *gin.Context) {
	var req model.CreateOrJoinRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	identity := model.Identity{}
	if claims := middleware.GetClaims(c); claims != nil {
		id := claims.TeacherID
		identity = model.Identity{UserID: &id, Name: claims.Name, IsTeacher: true}
	}

	session, err := h.coordinator.CreateOrJoin(c.Request.Context(), identity, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
		case errors.Is(err, service.ErrTestNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrTestNotFound)
		case errors.Is(err, service.ErrSessionPassword):
			response.Fail(c, http.StatusForbidden, response.ErrSessionPassword)
		default:
			h.log.Error().Err(err).Str("test_id", req.TestID).Msg("create-or-join failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// List godoc
// GET /api/v1/sessions
// Returns all active sessions, most recently active first.
func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.sessions.ListActive(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list sessions failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if sessions == nil {
		sessions = []model.Session{}
	}
	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// SubmitScores godoc
// POST /api/v1/sessions/:session_id/scores
// Grades every answering student in the session and queues the bundles for
// persistence. Owner only.
func (h *SessionHandler) SubmitScores(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	count, err := h.coordinator.SubmitScores(c.Request.Context(), sessionID, claims.TeacherID, claims.Name)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotSessionOwner):
			response.Fail(c, http.StatusForbidden, response.ErrNotSessionOwner)
		case errors.Is(err, service.ErrSessionNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
		case errors.Is(err, service.ErrSessionEnded):
			response.Fail(c, http.StatusConflict, response.ErrSessionEnded)
		default:
			h.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("score submission failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"enqueued": count})
}

// TeacherCleanupBeacon godoc
// POST /api/v1/beacon/teacher-cleanup
// Fire-and-forget unload beacon. The payload goes onto the cleanup queue and
// the worker ends the teacher's session; the browser never waits for that.
func (h *SessionHandler) TeacherCleanupBeacon(c *gin.Context) {
	var req model.TeacherCleanupRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	raw, err := json.Marshal(req)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if err := h.rdb.RPush(c.Request.Context(), config.WorkerKey.TeacherCleanupQueue, raw).Err(); err != nil {
		h.log.Error().Err(err).Int("teacher_id", req.TeacherID).Msg("cleanup enqueue failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{})
}
