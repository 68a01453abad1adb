package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fakeJanitor struct {
	mu      sync.Mutex
	cleaned []int
	dropped []uuid.UUID
}

func (j *fakeJanitor) CleanupTeacher(_ context.Context, teacherID int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cleaned = append(j.cleaned, teacherID)
	return nil
}

func (j *fakeJanitor) DropSessions(sessionIDs []uuid.UUID) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.dropped = append(j.dropped, sessionIDs...)
}

type fakeSweepStore struct {
	mu          sync.Mutex
	stale       []uuid.UUID
	expired     []uuid.UUID
	sweepCalls  int
	expireCalls int
}

func (s *fakeSweepStore) DeleteStaleLobbies(_ context.Context, _ time.Duration) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepCalls++
	out := s.stale
	s.stale = nil
	return out, nil
}

func (s *fakeSweepStore) ExpireInactive(_ context.Context) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireCalls++
	out := s.expired
	s.expired = nil
	return out, nil
}

func TestSweepDropsOnlyReportedStaleLobbies(t *testing.T) {
	staleID := uuid.New()
	store := &fakeSweepStore{stale: []uuid.UUID{staleID}}
	janitor := &fakeJanitor{}
	w := NewCleanupWorker(janitor, store, nil, 5*time.Minute, time.Minute, zerolog.Nop())

	w.sweepOnce(context.Background())

	janitor.mu.Lock()
	defer janitor.mu.Unlock()
	if len(janitor.dropped) != 1 || janitor.dropped[0] != staleID {
		t.Errorf("dropped = %v, want [%s]", janitor.dropped, staleID)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.expireCalls != 1 {
		t.Errorf("expire pass ran %d times, want 1", store.expireCalls)
	}
}

func TestSweepDropsExpiredSessions(t *testing.T) {
	expiredID := uuid.New()
	store := &fakeSweepStore{expired: []uuid.UUID{expiredID}}
	janitor := &fakeJanitor{}
	w := NewCleanupWorker(janitor, store, nil, 5*time.Minute, time.Minute, zerolog.Nop())

	w.sweepOnce(context.Background())

	janitor.mu.Lock()
	defer janitor.mu.Unlock()
	if len(janitor.dropped) != 1 || janitor.dropped[0] != expiredID {
		t.Errorf("dropped = %v, want [%s]", janitor.dropped, expiredID)
	}
}

func TestSweepWithNothingStaleDropsNothing(t *testing.T) {
	store := &fakeSweepStore{}
	janitor := &fakeJanitor{}
	w := NewCleanupWorker(janitor, store, nil, 5*time.Minute, time.Minute, zerolog.Nop())

	w.sweepOnce(context.Background())
	w.sweepOnce(context.Background())

	janitor.mu.Lock()
	defer janitor.mu.Unlock()
	if len(janitor.dropped) != 0 {
		t.Errorf("dropped = %v, want none", janitor.dropped)
	}
}
