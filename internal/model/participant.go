package model

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Role is a participant's function within a session.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleUnknown Role = "unknown"

	// RoleSystem marks events synthesized inside the server (timer ticks,
	// supervisor cleanup). It is never assigned to a connection.
	RoleSystem Role = "system"
)

// ParticipantStatus tracks connection liveness without dropping identity.
type ParticipantStatus string

const (
	ParticipantConnected    ParticipantStatus = "connected"
	ParticipantDisconnected ParticipantStatus = "disconnected"
)

// Identity is the resolved caller identity for a connection. Authenticated
// teachers carry UserID; anonymous students carry Name plus an ExternalID
// minted by the client for public test-taking.
type Identity struct {
	UserID     *int   `json:"user_id,omitempty"`
	Name       string `json:"name"`
	ExternalID string `json:"external_id,omitempty"`
	IsTeacher  bool   `json:"is_teacher"`
}

// Anonymous reports whether the identity was supplied without authentication.
func (i Identity) Anonymous() bool {
	return i.UserID == nil
}

// Key returns a stable identity key used to match a reconnecting participant
// to their previous roster entry.
func (i Identity) Key() string {
	if i.UserID != nil {
		return "user:" + strconv.Itoa(*i.UserID)
	}
	return "anon:" + i.ExternalID
}

// Participant is one roster entry of a live session.
type Participant struct {
	ConnectionID uuid.UUID         `json:"connection_id"`
	SessionID    uuid.UUID         `json:"session_id"`
	Identity     Identity          `json:"identity"`
	Role         Role              `json:"role"`
	Status       ParticipantStatus `json:"status"`
	JoinedAt     time.Time         `json:"joined_at"`
}
