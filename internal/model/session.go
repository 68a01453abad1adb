package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates live session lifecycle states.
type SessionStatus string

const (
	SessionStatusActive   SessionStatus = "active"
	SessionStatusInactive SessionStatus = "inactive"
	SessionStatusExpired  SessionStatus = "expired"
)

// SessionKind distinguishes a generic room from a proctored test session.
type SessionKind string

const (
	SessionKindChat SessionKind = "chat"
	SessionKindTest SessionKind = "test"
)

// Session is one live test-taking room. It is associated with exactly one
// test and, once claimed, one teacher.
type Session struct {
	ID              uuid.UUID     `json:"id"`
	Name            string        `json:"name"`
	Description     *string       `json:"description,omitempty"`
	TestID          string        `json:"test_id"`
	TeacherID       *int          `json:"teacher_id,omitempty"`
	Kind            SessionKind   `json:"kind"`
	Status          SessionStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	LastActive      time.Time     `json:"last_active"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	MaxParticipants int           `json:"max_participants"`
	CurrentUsers    int           `json:"current_users"`
	IsPrivate       bool          `json:"is_private"`
	PasswordHash    *string       `json:"-"`
}

// NewTestSession builds a fresh lobby-state session for a test.
func NewTestSession(name, testID string, teacherID *int, maxParticipants int) *Session {
	now := time.Now()
	return &Session{
		ID:              uuid.New(),
		Name:            name,
		TestID:          testID,
		TeacherID:       teacherID,
		Kind:            SessionKindTest,
		Status:          SessionStatusActive,
		CreatedAt:       now,
		LastActive:      now,
		MaxParticipants: maxParticipants,
	}
}

// IsLobby reports whether the session is still waiting to start.
func (s *Session) IsLobby() bool {
	return s.Status == SessionStatusActive && s.StartedAt == nil && s.EndedAt == nil
}

// IsRunning reports whether the test has started and not yet ended.
func (s *Session) IsRunning() bool {
	return s.Status == SessionStatusActive && s.StartedAt != nil && s.EndedAt == nil
}

// IsEnded reports whether the session reached a terminal state.
func (s *Session) IsEnded() bool {
	return s.EndedAt != nil || s.Status != SessionStatusActive
}

// CreateOrJoinRequest is the payload for claiming or joining a test session.
type CreateOrJoinRequest struct {
	TestID      string  `json:"test_id" binding:"required,min=1,max=64"`
	Name        *string `json:"name,omitempty" binding:"omitempty,max=128"`
	IsPrivate   *bool   `json:"is_private,omitempty"`
	Password    *string `json:"password,omitempty" binding:"omitempty,min=4,max=72"`
	MaxUsers    *int    `json:"max_users,omitempty" binding:"omitempty,min=0,max=500"`
	Description *string `json:"description,omitempty" binding:"omitempty,max=512"`
}

// TeacherCleanupRequest is the beacon payload sent on browser unload.
type TeacherCleanupRequest struct {
	TeacherID int `json:"teacher_id" binding:"required,min=1"`
}
