package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/teachstack/livetest-backend/internal/middleware"
	"github.com/teachstack/livetest-backend/internal/model"
	"github.com/teachstack/livetest-backend/internal/response"
	"github.com/teachstack/livetest-backend/internal/service"
	ws "github.com/teachstack/livetest-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allow-list permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler upgrades session connections and pumps decoded events into the
// coordinator.
type WSHandler struct {
	coordinator *service.Coordinator
	registry    *ws.Registry
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(coordinator *service.Coordinator, registry *ws.Registry, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		coordinator: coordinator,
		registry:    registry,
		log:         log.With().Str("component", "ws_handler").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:session_id
// Upgrades to WebSocket and joins the live session. Teachers authenticate
// with ?token=; anonymous students identify themselves with their first
// frame (anonymous_student_join).
func (h *WSHandler) SessionStream(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	identity, err := h.resolveIdentity(c, conn)
	if err != nil {
		ws.WriteError(conn, "identification required")
		return
	}

	client := h.registry.Register(sessionID, conn)
	defer h.registry.Unregister(client.ID)

	// The request context dies with the HTTP handshake; session work keyed
	// to this connection must outlive it.
	ctx := context.Background()
	role, err := h.coordinator.Admit(ctx, sessionID, client.ID, identity)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionEnded):
			ws.WriteError(conn, response.GetMessage(response.ErrSessionEnded))
		case errors.Is(err, service.ErrSessionFull):
			ws.WriteError(conn, response.GetMessage(response.ErrSessionFull))
		default:
			ws.WriteError(conn, response.GetMessage(response.ErrSessionNotFound))
		}
		return
	}

	wsLog := h.log.With().
		Str("session_id", sessionID.String()).
		Str("participant", identity.Key()).
		Str("role", string(role)).
		Logger()
	wsLog.Info().Msg("participant connected")

	defer h.coordinator.Leave(ctx, sessionID, client.ID)

	for {
		data, err := ws.ReadFrame(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		event, err := ws.Decode(data)
		if err != nil {
			// Protocol errors go only to the offending connection.
			h.registry.SendTo(client.ID, ws.NewError(response.GetMessage(response.ErrInvalidEvent)))
			continue
		}

		outcome, err := h.coordinator.Apply(ctx, sessionID, client.ID, event)
		if errors.Is(err, service.ErrSessionNotFound) || errors.Is(err, service.ErrSessionEnded) {
			return
		}
		switch outcome {
		case service.OutcomeForbidden:
			h.registry.SendTo(client.ID, ws.NewError(response.GetMessage(response.ErrForbidden)))
		case service.OutcomeInvalid:
			h.registry.SendTo(client.ID, ws.NewError(response.GetMessage(response.ErrInvalidEvent)))
		}
	}
}

// resolveIdentity figures out who the connection belongs to. A valid JWT
// identifies a teacher immediately; everyone else must introduce themselves
// with an anonymous_student_join frame before joining.
func (h *WSHandler) resolveIdentity(c *gin.Context, conn *websocket.Conn) (model.Identity, error) {
	if claims := middleware.GetClaims(c); claims != nil {
		id := claims.TeacherID
		return model.Identity{UserID: &id, Name: claims.Name, IsTeacher: true}, nil
	}

	data, err := ws.ReadFrame(conn)
	if err != nil {
		return model.Identity{}, err
	}
	event, err := ws.Decode(data)
	if err != nil {
		return model.Identity{}, err
	}
	join, ok := event.(ws.AnonymousJoin)
	if !ok || join.StudentName == "" {
		return model.Identity{}, errors.New("expected anonymous_student_join")
	}

	externalID := join.StudentID
	if externalID == "" {
		externalID = uuid.New().String()
	}
	return model.Identity{Name: join.StudentName, ExternalID: externalID}, nil
}
