package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/teachstack/livetest-backend/internal/config"
	"github.com/teachstack/livetest-backend/internal/model"
	ws "github.com/teachstack/livetest-backend/internal/websocket"
)

// ─── Fakes ──────────────────────────────────────────────────────────

type fakeStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*model.Session
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[uuid.UUID]*model.Session)}
}

func (s *fakeStore) Create(_ context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *session
	s.sessions[session.ID] = &clone
	return nil
}

func (s *fakeStore) Upsert(_ context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *session
	s.sessions[session.ID] = &clone
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, errors.New("no rows")
	}
	clone := *session
	return &clone, nil
}

func (s *fakeStore) FindActiveByTeacher(_ context.Context, teacherID int) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.TeacherID != nil && *session.TeacherID == teacherID &&
			session.Status == model.SessionStatusActive && session.EndedAt == nil {
			clone := *session
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FindJoinableByTest(_ context.Context, testID string, staleAfter time.Duration) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-staleAfter)
	for _, session := range s.sessions {
		if session.TestID == testID && session.Status == model.SessionStatusActive &&
			session.StartedAt == nil && session.EndedAt == nil &&
			session.LastActive.After(cutoff) {
			clone := *session
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) TouchLastActive(_ context.Context, id uuid.UUID, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok {
		session.LastActive = time.Now()
		session.CurrentUsers += delta
		if session.CurrentUsers < 0 {
			session.CurrentUsers = 0
		}
	}
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

type fakeCatalog struct {
	test      *model.Test
	questions []model.Question
}

func (c *fakeCatalog) GetTest(_ context.Context, testID string) (*model.Test, error) {
	if c.test == nil || c.test.TestID != testID {
		return nil, ErrTestNotFound
	}
	return c.test, nil
}

func (c *fakeCatalog) GetQuestions(_ context.Context, testID string) ([]model.Question, error) {
	if c.test == nil || c.test.TestID != testID {
		return nil, ErrTestNotFound
	}
	return c.questions, nil
}

type fakeSink struct {
	mu      sync.Mutex
	bundles []*model.Score
}

func (s *fakeSink) Enqueue(_ context.Context, score *model.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles = append(s.bundles, score)
	return nil
}

type fakeBroadcaster struct {
	mu           sync.Mutex
	broadcasts   []any
	direct       map[uuid.UUID][]any
	disconnected []uuid.UUID
	closed       []uuid.UUID
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{direct: make(map[uuid.UUID][]any)}
}

func (b *fakeBroadcaster) Broadcast(_ uuid.UUID, message any, _ uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcasts = append(b.broadcasts, message)
}

func (b *fakeBroadcaster) SendTo(clientID uuid.UUID, message any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.direct[clientID] = append(b.direct[clientID], message)
}

func (b *fakeBroadcaster) Disconnect(clientID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnected = append(b.disconnected, clientID)
}

func (b *fakeBroadcaster) CloseSession(sessionID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, sessionID)
}

func (b *fakeBroadcaster) countBroadcasts(match func(any) bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, m := range b.broadcasts {
		if match(m) {
			n++
		}
	}
	return n
}

func (b *fakeBroadcaster) lastFocusIndex() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.broadcasts) - 1; i >= 0; i-- {
		if f, ok := b.broadcasts[i].(ws.FocusQuestion); ok {
			return f.QuestionData.Index, true
		}
	}
	return 0, false
}

// ─── Fixture ────────────────────────────────────────────────────────

const testID = "bio-101"

func fixtureQuestions(t *testing.T) []model.Question {
	t.Helper()
	weighted, err := json.Marshal([]model.WeightedOption{
		{Text: "membrane", Points: 4, IsSelectable: true},
		{Text: "cytoplasm", Points: 4, IsSelectable: true},
		{Text: "phlogiston", Points: -3, IsSelectable: true},
	})
	if err != nil {
		t.Fatalf("marshal weighted options: %v", err)
	}
	return []model.Question{
		{QNumber: 1, TestID: testID, QuestionType: model.QuestionTypeMultipleChoice, PointValue: 5, CorrectAnswer: "B"},
		{QNumber: 2, TestID: testID, QuestionType: model.QuestionTypeWritten, PointValue: 10, CorrectAnswer: "osmosis"},
		{QNumber: 3, TestID: testID, QuestionType: model.QuestionTypeWeightedMultipleChoice, PointValue: 10, WeightedOptions: weighted},
	}
}

type fixture struct {
	coordinator *Coordinator
	store       *fakeStore
	sink        *fakeSink
	bcast       *fakeBroadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newFakeStore()
	sink := &fakeSink{}
	bcast := newFakeBroadcaster()
	catalog := &fakeCatalog{
		test:      &model.Test{TestID: testID, Name: "Biology Unit 1", DurationSeconds: 1800, QuestionCount: 3},
		questions: fixtureQuestions(t),
	}
	cfg := &config.Config{
		MaxSessionParticipants: 30,
		LobbyStaleAfter:        5 * time.Minute,
		BcryptCost:             6,
	}
	c := NewCoordinator(store, catalog, sink, bcast, cfg)
	c.noTicker = true
	return &fixture{coordinator: c, store: store, sink: sink, bcast: bcast}
}

func teacherIdentity(id int) model.Identity {
	return model.Identity{UserID: &id, Name: "Ms. Reed", IsTeacher: true}
}

func studentIdentity(externalID, name string) model.Identity {
	return model.Identity{Name: name, ExternalID: externalID}
}

// createAndAdmitTeacher sets up a session with its teacher connected.
func createAndAdmitTeacher(t *testing.T, f *fixture) (*model.Session, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	session, err := f.coordinator.CreateOrJoin(ctx, teacherIdentity(7), model.CreateOrJoinRequest{TestID: testID})
	if err != nil {
		t.Fatalf("CreateOrJoin() error = %v", err)
	}
	conn := uuid.New()
	role, err := f.coordinator.Admit(ctx, session.ID, conn, teacherIdentity(7))
	if err != nil {
		t.Fatalf("Admit(teacher) error = %v", err)
	}
	if role != model.RoleTeacher {
		t.Fatalf("teacher admitted as %q", role)
	}
	return session, conn
}

func admitStudent(t *testing.T, f *fixture, sessionID uuid.UUID, identity model.Identity) uuid.UUID {
	t.Helper()
	conn := uuid.New()
	role, err := f.coordinator.Admit(context.Background(), sessionID, conn, identity)
	if err != nil {
		t.Fatalf("Admit(student) error = %v", err)
	}
	if role != model.RoleStudent {
		t.Fatalf("student admitted as %q", role)
	}
	return conn
}

// ─── CreateOrJoin ───────────────────────────────────────────────────

func TestCreateOrJoinSameTestReturnsSameSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.coordinator.CreateOrJoin(ctx, teacherIdentity(7), model.CreateOrJoinRequest{TestID: testID})
	if err != nil {
		t.Fatalf("first CreateOrJoin() error = %v", err)
	}
	second, err := f.coordinator.CreateOrJoin(ctx, teacherIdentity(7), model.CreateOrJoinRequest{TestID: testID})
	if err != nil {
		t.Fatalf("second CreateOrJoin() error = %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("reclaiming same test created new session: %s vs %s", first.ID, second.ID)
	}
}

func TestCreateOrJoinDifferentTestEndsOldSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old, err := f.coordinator.CreateOrJoin(ctx, teacherIdentity(7), model.CreateOrJoinRequest{TestID: testID})
	if err != nil {
		t.Fatalf("CreateOrJoin() error = %v", err)
	}

	// Second test must exist in the catalog for the new session.
	f.coordinator.catalog.(*fakeCatalog).test = &model.Test{TestID: "chem-202", Name: "Chemistry", DurationSeconds: 900}

	replacement, err := f.coordinator.CreateOrJoin(ctx, teacherIdentity(7), model.CreateOrJoinRequest{TestID: "chem-202"})
	if err != nil {
		t.Fatalf("CreateOrJoin(new test) error = %v", err)
	}
	if replacement.ID == old.ID {
		t.Fatal("expected a fresh session for the new test")
	}

	stored, err := f.store.GetByID(ctx, old.ID)
	if err != nil {
		t.Fatalf("old session missing from store: %v", err)
	}
	if stored.EndedAt == nil {
		t.Error("old session not ended after cross-test takeover")
	}
}

func TestStudentJoinsExistingLobbyOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.coordinator.CreateOrJoin(ctx, studentIdentity("1001", "Ana"), model.CreateOrJoinRequest{TestID: testID}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("student join without lobby: error = %v, want ErrSessionNotFound", err)
	}

	session, err := f.coordinator.CreateOrJoin(ctx, teacherIdentity(7), model.CreateOrJoinRequest{TestID: testID})
	if err != nil {
		t.Fatalf("CreateOrJoin(teacher) error = %v", err)
	}

	joined, err := f.coordinator.CreateOrJoin(ctx, studentIdentity("1001", "Ana"), model.CreateOrJoinRequest{TestID: testID})
	if err != nil {
		t.Fatalf("CreateOrJoin(student) error = %v", err)
	}
	if joined.ID != session.ID {
		t.Errorf("student joined %s, want lobby %s", joined.ID, session.ID)
	}
}

// ─── Takeover ───────────────────────────────────────────────────────

func TestTeacherReconnectKeepsSingleRosterEntry(t *testing.T) {
	f := newFixture(t)
	session, oldConn := createAndAdmitTeacher(t, f)

	newConn := uuid.New()
	role, err := f.coordinator.Admit(context.Background(), session.ID, newConn, teacherIdentity(7))
	if err != nil {
		t.Fatalf("Admit(takeover) error = %v", err)
	}
	if role != model.RoleTeacher {
		t.Errorf("takeover role = %q, want teacher", role)
	}

	actor := f.coordinator.actor(session.ID)
	if got := len(actor.participants); got != 1 {
		t.Errorf("roster has %d entries after takeover, want 1", got)
	}

	f.bcast.mu.Lock()
	dropped := len(f.bcast.disconnected) == 1 && f.bcast.disconnected[0] == oldConn
	f.bcast.mu.Unlock()
	if !dropped {
		t.Error("old teacher connection was not dropped")
	}
}

// ─── Apply semantics ────────────────────────────────────────────────

func TestFocusFanOutEqualsLastAcceptedIndex(t *testing.T) {
	f := newFixture(t)
	session, teacherConn := createAndAdmitTeacher(t, f)
	ctx := context.Background()

	for _, index := range []int{2, 0, 1} {
		outcome, err := f.coordinator.Apply(ctx, session.ID, teacherConn, ws.QuestionFocus{Index: index})
		if err != nil || outcome != OutcomeApplied {
			t.Fatalf("Apply(focus %d) = %v, %v", index, outcome, err)
		}
	}

	outcome, _ := f.coordinator.Apply(ctx, session.ID, teacherConn, ws.QuestionFocus{Index: 99})
	if outcome != OutcomeInvalid {
		t.Errorf("out-of-range focus outcome = %v, want invalid", outcome)
	}

	if got, ok := f.bcast.lastFocusIndex(); !ok || got != 1 {
		t.Errorf("last broadcast focus index = %d (found=%v), want 1", got, ok)
	}
	if actor := f.coordinator.actor(session.ID); actor.questionIndex != 1 {
		t.Errorf("state index = %d after rejected focus, want 1", actor.questionIndex)
	}
}

func TestStudentCannotDriveTheSession(t *testing.T) {
	f := newFixture(t)
	session, _ := createAndAdmitTeacher(t, f)
	studentConn := admitStudent(t, f, session.ID, studentIdentity("1001", "Ana"))
	ctx := context.Background()

	for _, event := range []ws.Inbound{
		ws.StartTest{DurationSeconds: 60},
		ws.EndTest{},
		ws.QuestionFocus{Index: 1},
		ws.TeacherComment{QuestionID: 1, Comment: "nope"},
	} {
		outcome, _ := f.coordinator.Apply(ctx, session.ID, studentConn, event)
		if outcome != OutcomeForbidden {
			t.Errorf("student %s outcome = %v, want forbidden", event.EventType(), outcome)
		}
	}

	started := f.bcast.countBroadcasts(func(m any) bool { _, ok := m.(ws.TestStarted); return ok })
	if started != 0 {
		t.Errorf("forbidden start_test still broadcast %d times", started)
	}
}

func TestAnswerLastWriteWinsAndSurvivesDisconnect(t *testing.T) {
	f := newFixture(t)
	session, teacherConn := createAndAdmitTeacher(t, f)
	studentConn := admitStudent(t, f, session.ID, studentIdentity("1001", "Ana"))
	ctx := context.Background()

	if outcome, err := f.coordinator.Apply(ctx, session.ID, teacherConn, ws.StartTest{}); err != nil || outcome != OutcomeApplied {
		t.Fatalf("Apply(start_test) = %v, %v", outcome, err)
	}

	for _, answer := range []string{"A", "B"} {
		if outcome, _ := f.coordinator.Apply(ctx, session.ID, studentConn, ws.SubmitAnswer{QuestionID: 1, Answer: answer}); outcome != OutcomeApplied {
			t.Fatalf("Apply(submit %q) outcome = %v", answer, outcome)
		}
	}

	f.coordinator.Leave(ctx, session.ID, studentConn)

	count, err := f.coordinator.SubmitScores(ctx, session.ID, 7, "Ms. Reed")
	if err != nil {
		t.Fatalf("SubmitScores() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("SubmitScores() enqueued %d bundles, want 1", count)
	}

	bundle := f.sink.bundles[0]
	if bundle.StudentID != 1001 {
		t.Errorf("bundle student_id = %d, want 1001", bundle.StudentID)
	}
	// Question 1: last write "B" is correct, full 5 points.
	if bundle.TestScores[0] != 5 {
		t.Errorf("question 1 score = %d, want 5 (last write wins)", bundle.TestScores[0])
	}
}

func TestSubmitScoresRequiresOwner(t *testing.T) {
	f := newFixture(t)
	session, _ := createAndAdmitTeacher(t, f)

	if _, err := f.coordinator.SubmitScores(context.Background(), session.ID, 99, "impostor"); !errors.Is(err, ErrNotSessionOwner) {
		t.Errorf("error = %v, want ErrNotSessionOwner", err)
	}
}

// ─── Timer ──────────────────────────────────────────────────────────

func TestCountdownEndsTestExactlyOnce(t *testing.T) {
	f := newFixture(t)
	session, teacherConn := createAndAdmitTeacher(t, f)
	ctx := context.Background()

	if outcome, err := f.coordinator.Apply(ctx, session.ID, teacherConn, ws.StartTest{DurationSeconds: 60}); err != nil || outcome != OutcomeApplied {
		t.Fatalf("Apply(start_test) = %v, %v", outcome, err)
	}

	actor := f.coordinator.actor(session.ID)
	for i := 0; i < 60; i++ {
		actor.deliver(ctx, actorCmd{kind: cmdTick})
	}
	// Late ticks against the now-terminal session must be discarded.
	for i := 0; i < 5; i++ {
		res := actor.deliver(ctx, actorCmd{kind: cmdTick})
		if res.outcome != OutcomeIgnored {
			t.Errorf("late tick outcome = %v, want ignored", res.outcome)
		}
	}

	ended := f.bcast.countBroadcasts(func(m any) bool { _, ok := m.(ws.TestEnded); return ok })
	if ended != 1 {
		t.Errorf("test_ended broadcast %d times, want exactly 1", ended)
	}

	stored, err := f.store.GetByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.EndedAt == nil {
		t.Error("session not marked ended after countdown expiry")
	}
}

func TestManualEndCancelsCountdown(t *testing.T) {
	f := newFixture(t)
	session, teacherConn := createAndAdmitTeacher(t, f)
	ctx := context.Background()

	f.coordinator.Apply(ctx, session.ID, teacherConn, ws.StartTest{DurationSeconds: 600})
	if outcome, _ := f.coordinator.Apply(ctx, session.ID, teacherConn, ws.EndTest{}); outcome != OutcomeApplied {
		t.Fatalf("Apply(end_test) outcome = %v", outcome)
	}

	actor := f.coordinator.actor(session.ID)
	if res := actor.deliver(ctx, actorCmd{kind: cmdTick}); res.outcome != OutcomeIgnored {
		t.Errorf("tick after manual end outcome = %v, want ignored", res.outcome)
	}

	ended := f.bcast.countBroadcasts(func(m any) bool { _, ok := m.(ws.TestEnded); return ok })
	if ended != 1 {
		t.Errorf("test_ended broadcast %d times, want exactly 1", ended)
	}
}

// ─── Actor lifecycle ────────────────────────────────────────────────

func TestEndedSessionActorIsReclaimed(t *testing.T) {
	f := newFixture(t)
	session, teacherConn := createAndAdmitTeacher(t, f)
	ctx := context.Background()

	f.coordinator.Apply(ctx, session.ID, teacherConn, ws.StartTest{DurationSeconds: 600})
	if outcome, _ := f.coordinator.Apply(ctx, session.ID, teacherConn, ws.EndTest{}); outcome != OutcomeApplied {
		t.Fatalf("Apply(end_test) outcome = %v", outcome)
	}

	// The actor stays alive after the test ends so the teacher can still
	// grade; only the sweep's drop reclaims it.
	if f.coordinator.actor(session.ID) == nil {
		t.Fatal("actor reclaimed before the expiry sweep")
	}
	if _, err := f.coordinator.SubmitScores(ctx, session.ID, 7, "Ms. Reed"); err != nil {
		t.Fatalf("SubmitScores() after end error = %v", err)
	}

	f.coordinator.DropSessions([]uuid.UUID{session.ID})

	if f.coordinator.actor(session.ID) != nil {
		t.Error("actor still registered after drop")
	}
	if _, err := f.coordinator.Apply(ctx, session.ID, teacherConn, ws.Heartbeat{}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Apply() after drop error = %v, want ErrSessionNotFound", err)
	}
}

func TestDeliverToStoppedActorFailsFast(t *testing.T) {
	f := newFixture(t)
	session, _ := createAndAdmitTeacher(t, f)
	ctx := context.Background()

	actor := f.coordinator.actor(session.ID)
	f.coordinator.DropSessions([]uuid.UUID{session.ID})

	// A caller that raced the drop and still holds the actor must not block
	// forever waiting for a reply.
	results := make(chan cmdResult, 1)
	go func() {
		results <- actor.deliver(ctx, actorCmd{kind: cmdInbound, event: ws.Heartbeat{}})
	}()

	select {
	case res := <-results:
		if res.err == nil {
			t.Error("deliver to stopped actor returned no error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("deliver to stopped actor blocked")
	}
}

// ─── Cleanup ────────────────────────────────────────────────────────

func TestCleanupTeacherIsIdempotent(t *testing.T) {
	f := newFixture(t)
	session, _ := createAndAdmitTeacher(t, f)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := f.coordinator.CleanupTeacher(ctx, 7); err != nil {
			t.Fatalf("CleanupTeacher() round %d error = %v", i, err)
		}
	}

	stored, err := f.store.GetByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.EndedAt == nil {
		t.Error("session not ended by cleanup")
	}
	if err := f.coordinator.CleanupTeacher(ctx, 42); err != nil {
		t.Errorf("cleanup of teacher with no session: error = %v", err)
	}
}
