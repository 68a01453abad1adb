package service

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/teachstack/livetest-backend/internal/model"
	ws "github.com/teachstack/livetest-backend/internal/websocket"
)

// Outcome classifies what Apply did with an event.
type Outcome int

const (
	// OutcomeApplied means the event mutated session state or produced output.
	OutcomeApplied Outcome = iota
	// OutcomeIgnored means the event was a no-op (terminal session, stale tick).
	OutcomeIgnored
	// OutcomeForbidden means the sender's role does not permit the event.
	OutcomeForbidden
	// OutcomeInvalid means the event payload was rejected (bad index, unknown
	// question).
	OutcomeInvalid
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeForbidden:
		return "forbidden"
	case OutcomeInvalid:
		return "invalid"
	}
	return "unknown"
}

type cmdKind int

const (
	cmdJoin cmdKind = iota
	cmdLeave
	cmdInbound
	cmdTick
	cmdForceEnd
	cmdScoreBundles
	cmdStop
)

type actorCmd struct {
	kind      cmdKind
	conn      uuid.UUID
	identity  model.Identity
	event     ws.Inbound
	teacherID int
	evaluator string
	reply     chan cmdResult
}

type cmdResult struct {
	outcome Outcome
	role    model.Role
	scores  []*model.Score
	err     error
}

// sessionActor owns all mutable state of one live session. Every mutation
// flows through its command channel, so state transitions are serialized
// without any lock; independent sessions never contend with each other.
type sessionActor struct {
	session   *model.Session
	test      *model.Test
	questions []model.Question

	// roster and answers are keyed by identity key so a reconnecting
	// participant resumes their previous entry.
	participants map[string]*model.Participant
	connToKey    map[uuid.UUID]string
	answers      map[string]map[int]model.ResponseRecord
	comments     map[int]string

	questionIndex int
	remaining     int // seconds; -1 while no countdown runs
	terminal      bool

	cmds      chan actorCmd
	done      chan struct{}
	timerStop chan struct{}
	noTicker  bool

	store  SessionStore
	bcast  Broadcaster
	cfg    actorConfig
	logger zerolog.Logger
}

type actorConfig struct {
	scoreFloor      int
	maxParticipants int
}

func newSessionActor(session *model.Session, test *model.Test, questions []model.Question,
	store SessionStore, bcast Broadcaster, cfg actorConfig, logger zerolog.Logger) *sessionActor {
	return &sessionActor{
		session:      session,
		test:         test,
		questions:    questions,
		participants: make(map[string]*model.Participant),
		connToKey:    make(map[uuid.UUID]string),
		answers:      make(map[string]map[int]model.ResponseRecord),
		comments:     make(map[int]string),
		remaining:    -1,
		cmds:         make(chan actorCmd, 64),
		done:         make(chan struct{}),
		store:        store,
		bcast:        bcast,
		cfg:          cfg,
		logger: logger.With().
			Str("session_id", session.ID.String()).
			Str("test_id", session.TestID).Logger(),
	}
}

// run is the actor loop. It exits when a stop command arrives; terminal
// sessions keep draining commands so senders never block, but every event
// is discarded. Closing done unblocks any sender still waiting in deliver.
func (a *sessionActor) run() {
	defer close(a.done)
	for cmd := range a.cmds {
		if cmd.kind == cmdStop {
			a.stopTimer()
			if cmd.reply != nil {
				cmd.reply <- cmdResult{outcome: OutcomeApplied}
			}
			return
		}
		res := a.handle(cmd)
		if cmd.reply != nil {
			cmd.reply <- res
		}
	}
}

// deliver routes one command and waits for the actor's answer. Delivery to a
// stopped actor fails fast instead of blocking on a reply that will never
// come.
func (a *sessionActor) deliver(ctx context.Context, cmd actorCmd) cmdResult {
	cmd.reply = make(chan cmdResult, 1)
	select {
	case a.cmds <- cmd:
	case <-a.done:
		return cmdResult{outcome: OutcomeIgnored, err: ErrSessionEnded}
	case <-ctx.Done():
		return cmdResult{outcome: OutcomeIgnored, err: ctx.Err()}
	}
	select {
	case res := <-cmd.reply:
		return res
	case <-a.done:
		// The loop may have answered just before exiting; prefer that answer.
		select {
		case res := <-cmd.reply:
			return res
		default:
			return cmdResult{outcome: OutcomeIgnored, err: ErrSessionEnded}
		}
	case <-ctx.Done():
		return cmdResult{outcome: OutcomeIgnored, err: ctx.Err()}
	}
}

func (a *sessionActor) handle(cmd actorCmd) cmdResult {
	if a.terminal && cmd.kind != cmdScoreBundles {
		return cmdResult{outcome: OutcomeIgnored}
	}

	switch cmd.kind {
	case cmdJoin:
		return a.handleJoin(cmd.conn, cmd.identity)
	case cmdLeave:
		return a.handleLeave(cmd.conn)
	case cmdTick:
		return a.handleTick()
	case cmdForceEnd:
		return a.endTest("superseded")
	case cmdScoreBundles:
		return a.scoreBundles(cmd.teacherID, cmd.evaluator)
	case cmdInbound:
		return a.handleInbound(cmd.conn, cmd.event)
	}
	return cmdResult{outcome: OutcomeIgnored}
}

// ─── Roster ─────────────────────────────────────────────────────────

func (a *sessionActor) handleJoin(conn uuid.UUID, identity model.Identity) cmdResult {
	role := model.RoleStudent
	if identity.IsTeacher && identity.UserID != nil &&
		a.session.TeacherID != nil && *identity.UserID == *a.session.TeacherID {
		role = model.RoleTeacher
	}

	key := identity.Key()
	participant, returning := a.participants[key]
	if returning {
		// Reconnect, or a teacher takeover replacing an older connection.
		if old := participant.ConnectionID; old != conn && participant.Status == model.ParticipantConnected {
			a.bcast.Disconnect(old)
			delete(a.connToKey, old)
		}
		participant.ConnectionID = conn
		participant.Status = model.ParticipantConnected
		participant.Role = role
	} else {
		if a.cfg.maxParticipants > 0 && a.connectedCount() >= a.cfg.maxParticipants {
			return cmdResult{outcome: OutcomeInvalid, err: ErrSessionFull}
		}
		participant = &model.Participant{
			ConnectionID: conn,
			SessionID:    a.session.ID,
			Identity:     identity,
			Role:         role,
			Status:       model.ParticipantConnected,
			JoinedAt:     time.Now().UTC(),
		}
		a.participants[key] = participant
	}
	a.connToKey[conn] = key

	a.touch(1)

	info := participantInfo(participant)
	if !returning {
		eventType := "student_joined"
		if role == model.RoleTeacher {
			eventType = "user_joined"
		}
		a.bcast.Broadcast(a.session.ID, ws.NewUserEvent(eventType, info.ID, info, a.session.ID), conn)
	}

	a.bcast.SendTo(conn, ws.NewRoleAssigned(role, conn, a.session.ID, a.snapshot()))
	a.sendTestData(conn, role)

	a.logger.Info().
		Str("participant", key).
		Str("role", string(role)).
		Bool("returning", returning).
		Msg("participant admitted")

	return cmdResult{outcome: OutcomeApplied, role: role}
}

func (a *sessionActor) handleLeave(conn uuid.UUID) cmdResult {
	key, ok := a.connToKey[conn]
	if !ok {
		return cmdResult{outcome: OutcomeIgnored}
	}
	delete(a.connToKey, conn)

	participant := a.participants[key]
	if participant == nil || participant.ConnectionID != conn {
		// A newer connection already owns this identity.
		return cmdResult{outcome: OutcomeIgnored}
	}
	// Identity and recorded answers survive the disconnect so the student
	// can be scored and can resume.
	participant.Status = model.ParticipantDisconnected

	a.touch(-1)

	info := participantInfo(participant)
	eventType := "student_left"
	if participant.Role == model.RoleTeacher {
		eventType = "user_left"
	}
	a.bcast.Broadcast(a.session.ID, ws.NewUserEvent(eventType, info.ID, info, a.session.ID), conn)

	return cmdResult{outcome: OutcomeApplied}
}

// ─── Wire events ────────────────────────────────────────────────────

func (a *sessionActor) handleInbound(conn uuid.UUID, event ws.Inbound) cmdResult {
	key, ok := a.connToKey[conn]
	if !ok {
		return cmdResult{outcome: OutcomeForbidden}
	}
	participant := a.participants[key]

	switch e := event.(type) {
	case ws.StartTest:
		return a.requireTeacher(participant, func() cmdResult { return a.startTest(e) })
	case ws.EndTest:
		return a.requireTeacher(participant, func() cmdResult { return a.endTest("teacher") })
	case ws.QuestionFocus:
		return a.requireTeacher(participant, func() cmdResult { return a.focusQuestion(conn, e) })
	case ws.TeacherComment:
		return a.requireTeacher(participant, func() cmdResult { return a.teacherComment(conn, e) })
	case ws.SubmitAnswer:
		return a.submitAnswer(participant, key, e)
	case ws.Heartbeat:
		a.touch(0)
		return cmdResult{outcome: OutcomeApplied}
	case ws.RequestParticipants:
		a.bcast.SendTo(conn, ws.NewParticipantsList(a.session.ID, a.roster()))
		return cmdResult{outcome: OutcomeApplied}
	case ws.UserInfo:
		// Roles are assigned server-side at admit; a client's own claim
		// about its role carries no authority.
		return cmdResult{outcome: OutcomeIgnored}
	}
	return cmdResult{outcome: OutcomeInvalid}
}

func (a *sessionActor) requireTeacher(p *model.Participant, fn func() cmdResult) cmdResult {
	if p == nil || p.Role != model.RoleTeacher {
		return cmdResult{outcome: OutcomeForbidden}
	}
	return fn()
}

func (a *sessionActor) startTest(e ws.StartTest) cmdResult {
	if a.session.IsRunning() {
		return cmdResult{outcome: OutcomeIgnored}
	}

	duration := e.DurationSeconds
	if duration <= 0 && a.test != nil {
		duration = a.test.DurationSeconds
	}

	now := time.Now().UTC()
	a.session.StartedAt = &now
	a.session.LastActive = now
	a.persist()

	a.bcast.Broadcast(a.session.ID, ws.NewTestStarted(a.session.TestID), uuid.Nil)

	if duration > 0 {
		a.remaining = duration
		a.bcast.Broadcast(a.session.ID, ws.NewTimeUpdate(a.remaining), uuid.Nil)
		a.startTimer()
	}

	a.logger.Info().Int("duration_seconds", duration).Msg("test started")
	return cmdResult{outcome: OutcomeApplied}
}

func (a *sessionActor) endTest(reason string) cmdResult {
	if a.terminal {
		return cmdResult{outcome: OutcomeIgnored}
	}
	a.stopTimer()
	a.remaining = -1

	now := time.Now().UTC()
	a.session.EndedAt = &now
	a.session.Status = model.SessionStatusInactive
	a.session.LastActive = now
	a.persist()

	a.terminal = true
	a.bcast.Broadcast(a.session.ID, ws.NewTestEnded(), uuid.Nil)
	a.bcast.CloseSession(a.session.ID)

	a.logger.Info().Str("reason", reason).Msg("test ended")
	return cmdResult{outcome: OutcomeApplied}
}

func (a *sessionActor) focusQuestion(conn uuid.UUID, e ws.QuestionFocus) cmdResult {
	if e.Index < 0 || e.Index >= len(a.questions) {
		a.bcast.SendTo(conn, ws.NewError("question index out of range"))
		return cmdResult{outcome: OutcomeInvalid}
	}
	a.questionIndex = e.Index
	a.touch(0)
	a.bcast.Broadcast(a.session.ID, ws.NewFocusQuestion(e.Index), uuid.Nil)
	return cmdResult{outcome: OutcomeApplied}
}

// submitAnswer records a response. Teachers may record an evaluator answer
// while proctoring; those entries never enter score bundles.
func (a *sessionActor) submitAnswer(p *model.Participant, key string, e ws.SubmitAnswer) cmdResult {
	if p == nil {
		return cmdResult{outcome: OutcomeForbidden}
	}
	if a.questionByNumber(e.QuestionID) == nil {
		return cmdResult{outcome: OutcomeInvalid}
	}

	records, ok := a.answers[key]
	if !ok {
		records = make(map[int]model.ResponseRecord)
		a.answers[key] = records
	}
	rec := records[e.QuestionID]
	rec.Answer = e.Answer
	records[e.QuestionID] = rec

	a.touch(0)

	// Relay the answer to the teacher only; students never see each
	// other's submissions.
	if teacher := a.connectedTeacher(); teacher != nil && p.Role == model.RoleStudent {
		info := ws.StudentInfo{
			StudentID:   p.Identity.ExternalID,
			Name:        p.Identity.Name,
			IsAnonymous: p.Identity.Anonymous(),
		}
		if p.Identity.UserID != nil {
			info.StudentID = strconv.Itoa(*p.Identity.UserID)
		}
		a.bcast.SendTo(teacher.ConnectionID,
			ws.NewStudentAnswer(info, e.QuestionID, e.Answer, e.AnswerType))
	}
	return cmdResult{outcome: OutcomeApplied}
}

func (a *sessionActor) teacherComment(conn uuid.UUID, e ws.TeacherComment) cmdResult {
	if a.questionByNumber(e.QuestionID) == nil {
		return cmdResult{outcome: OutcomeInvalid}
	}
	a.comments[e.QuestionID] = e.Comment
	a.bcast.Broadcast(a.session.ID, ws.NewTeacherCommented(e.QuestionID, e.Comment), conn)
	return cmdResult{outcome: OutcomeApplied}
}

// ─── Timer ──────────────────────────────────────────────────────────

func (a *sessionActor) startTimer() {
	if a.noTicker {
		return
	}
	stop := make(chan struct{})
	a.timerStop = stop
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				select {
				case a.cmds <- actorCmd{kind: cmdTick}:
				case <-stop:
					return
				}
			}
		}
	}()
}

func (a *sessionActor) stopTimer() {
	if a.timerStop != nil {
		close(a.timerStop)
		a.timerStop = nil
	}
}

func (a *sessionActor) handleTick() cmdResult {
	if a.remaining < 0 {
		return cmdResult{outcome: OutcomeIgnored}
	}
	a.remaining--
	if a.remaining <= 0 {
		a.bcast.Broadcast(a.session.ID, ws.NewTimeUpdate(0), uuid.Nil)
		return a.endTest("time expired")
	}
	if a.remaining%60 == 0 {
		a.bcast.Broadcast(a.session.ID, ws.NewTimeUpdate(a.remaining), uuid.Nil)
	}
	return cmdResult{outcome: OutcomeApplied}
}

// ─── Scoring ────────────────────────────────────────────────────────

// scoreBundles grades every student who answered at least one question.
// Parallel score/comment arrays follow question order. The ownership check
// lives here so it reads session state on the serialized path.
func (a *sessionActor) scoreBundles(teacherID int, evaluator string) cmdResult {
	if a.session.TeacherID == nil || *a.session.TeacherID != teacherID {
		return cmdResult{outcome: OutcomeForbidden, err: ErrNotSessionOwner}
	}

	var bundles []*model.Score
	for key, participant := range a.participants {
		if participant.Role != model.RoleStudent {
			continue
		}
		records := a.answers[key]
		if len(records) == 0 {
			continue
		}

		studentID, ok := studentNumericID(participant.Identity)
		if !ok {
			a.logger.Warn().Str("participant", key).
				Msg("skipping score bundle for student without numeric id")
			continue
		}

		scores := make([]int, len(a.questions))
		comments := make([]string, len(a.questions))
		for i, q := range a.questions {
			scores[i] = ScoreAnswer(q, records[q.QNumber].Answer, a.cfg.scoreFloor)
			comments[i] = a.comments[q.QNumber]
		}
		bundles = append(bundles, &model.Score{
			StudentID:  studentID,
			TestID:     a.session.TestID,
			TestScores: scores,
			Comments:   comments,
			Evaluator:  evaluator,
		})
	}
	return cmdResult{outcome: OutcomeApplied, scores: bundles}
}

func studentNumericID(identity model.Identity) (int, bool) {
	if identity.UserID != nil {
		return *identity.UserID, true
	}
	id, err := strconv.Atoi(identity.ExternalID)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ─── Helpers ────────────────────────────────────────────────────────

func (a *sessionActor) snapshot() ws.Snapshot {
	snap := ws.Snapshot{
		QuestionIndex: a.questionIndex,
		IsActive:      a.session.IsRunning(),
		Participants:  a.roster(),
	}
	if a.remaining >= 0 {
		remaining := a.remaining
		snap.RemainingSeconds = &remaining
	}
	return snap
}

func (a *sessionActor) roster() []ws.ParticipantInfo {
	infos := make([]ws.ParticipantInfo, 0, len(a.participants))
	for _, p := range a.participants {
		infos = append(infos, participantInfo(p))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].JoinedAt.Before(infos[j].JoinedAt) })
	return infos
}

func participantInfo(p *model.Participant) ws.ParticipantInfo {
	return ws.ParticipantInfo{
		ID:          p.Identity.Key(),
		Name:        p.Identity.Name,
		Role:        string(p.Role),
		Status:      string(p.Status),
		IsAnonymous: p.Identity.Anonymous(),
		JoinedAt:    p.JoinedAt,
	}
}

func (a *sessionActor) sendTestData(conn uuid.UUID, role model.Role) {
	if len(a.questions) == 0 {
		return
	}
	questions := a.questions
	if role != model.RoleTeacher {
		questions = make([]model.Question, len(a.questions))
		for i, q := range a.questions {
			questions[i] = q.StudentView()
		}
	}
	a.bcast.SendTo(conn, ws.NewTestData(a.session.TestID, questions))
}

func (a *sessionActor) questionByNumber(qnumber int) *model.Question {
	for i := range a.questions {
		if a.questions[i].QNumber == qnumber {
			return &a.questions[i]
		}
	}
	return nil
}

func (a *sessionActor) connectedTeacher() *model.Participant {
	for _, p := range a.participants {
		if p.Role == model.RoleTeacher && p.Status == model.ParticipantConnected {
			return p
		}
	}
	return nil
}

func (a *sessionActor) connectedCount() int {
	n := 0
	for _, p := range a.participants {
		if p.Status == model.ParticipantConnected {
			n++
		}
	}
	return n
}

func (a *sessionActor) touch(delta int) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := a.store.TouchLastActive(ctx, a.session.ID, delta); err != nil {
		a.logger.Warn().Err(err).Msg("touch last_active failed")
	}
	a.session.LastActive = time.Now().UTC()
	a.session.CurrentUsers += delta
	if a.session.CurrentUsers < 0 {
		a.session.CurrentUsers = 0
	}
}

func (a *sessionActor) persist() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.store.Upsert(ctx, a.session); err != nil {
		a.logger.Error().Err(err).Msg("persist session failed")
	}
}
