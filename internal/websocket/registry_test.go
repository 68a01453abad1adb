package websocket

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeConn struct {
	mu       sync.Mutex
	messages []any
	failWith error
	closed   bool
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWith != nil {
		return c.failWith
	}
	c.messages = append(c.messages, v)
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func TestBroadcastSkipsExcluded(t *testing.T) {
	registry := NewRegistry()
	sessionID := uuid.New()

	sender := &fakeConn{}
	other := &fakeConn{}
	senderClient := registry.Register(sessionID, sender)
	registry.Register(sessionID, other)

	registry.Broadcast(sessionID, NewTestEnded(), senderClient.ID)

	if sender.count() != 0 {
		t.Errorf("excluded client received %d messages", sender.count())
	}
	if other.count() != 1 {
		t.Errorf("other client received %d messages, want 1", other.count())
	}
}

func TestBroadcastSurvivesFailedRecipient(t *testing.T) {
	registry := NewRegistry()
	sessionID := uuid.New()

	broken := &fakeConn{failWith: errors.New("write: broken pipe")}
	healthy := &fakeConn{}
	registry.Register(sessionID, broken)
	registry.Register(sessionID, healthy)

	registry.Broadcast(sessionID, NewTimeUpdate(30), uuid.Nil)

	if healthy.count() != 1 {
		t.Errorf("healthy client received %d messages, want 1", healthy.count())
	}
}

func TestBroadcastScopedToSession(t *testing.T) {
	registry := NewRegistry()
	sessionA := uuid.New()
	sessionB := uuid.New()

	inA := &fakeConn{}
	inB := &fakeConn{}
	registry.Register(sessionA, inA)
	registry.Register(sessionB, inB)

	registry.Broadcast(sessionA, NewFocusQuestion(2), uuid.Nil)

	if inA.count() != 1 {
		t.Errorf("session A client received %d messages, want 1", inA.count())
	}
	if inB.count() != 0 {
		t.Errorf("session B client received %d messages, want 0", inB.count())
	}
}

func TestCloseSessionClosesAllConnections(t *testing.T) {
	registry := NewRegistry()
	sessionID := uuid.New()

	first := &fakeConn{}
	second := &fakeConn{}
	registry.Register(sessionID, first)
	registry.Register(sessionID, second)

	registry.CloseSession(sessionID)

	if !first.closed || !second.closed {
		t.Error("expected all session connections closed")
	}
	if registry.SessionSize(sessionID) != 0 {
		t.Errorf("SessionSize = %d after close", registry.SessionSize(sessionID))
	}
}

func TestUnregisterRemovesClient(t *testing.T) {
	registry := NewRegistry()
	sessionID := uuid.New()

	conn := &fakeConn{}
	client := registry.Register(sessionID, conn)
	registry.Unregister(client.ID)

	registry.SendTo(client.ID, NewTestEnded())
	if conn.count() != 0 {
		t.Errorf("unregistered client received %d messages", conn.count())
	}
}
