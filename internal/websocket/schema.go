package websocket

import (
	"time"

	"github.com/google/uuid"
	"github.com/teachstack/livetest-backend/internal/model"
)

// ─── Events (Client → Server) ───────────────────────────────────────

// EventType tags every inbound frame.
type EventType string

const (
	EventStartTest           EventType = "start_test"
	EventEndTest             EventType = "end_test"
	EventQuestionFocus       EventType = "question_focus"
	EventSubmitAnswer        EventType = "submit_answer"
	EventTeacherComment      EventType = "teacher_comment"
	EventHeartbeat           EventType = "heartbeat"
	EventRequestParticipants EventType = "request_participants"
	EventAnonymousJoin       EventType = "anonymous_student_join"
	EventUserInfo            EventType = "user_info"

	// EventTimerTick is synthesized by the timer driver and never accepted
	// from the wire.
	EventTimerTick EventType = "timer_tick"
)

// Envelope is used to peek at the type before full parsing.
type Envelope struct {
	Type EventType `json:"type"`
}

// Inbound is the closed union of events a connection may deliver to a
// session. Decode is the only producer.
type Inbound interface {
	EventType() EventType
}

// StartTest begins the test and the countdown. Teacher only.
type StartTest struct {
	DurationSeconds int `json:"duration_seconds"`
}

// EndTest finishes the test early. Teacher only.
type EndTest struct{}

// QuestionFocus navigates every participant to a question index. Teacher only.
type QuestionFocus struct {
	Index int `json:"index"`
}

// SubmitAnswer records a student's answer for one question. For weighted
// multiple choice the answer is a JSON array of selected option texts and
// AnswerType is "weighted_multiple_choice".
type SubmitAnswer struct {
	QuestionID int    `json:"question_id"`
	Answer     string `json:"answer"`
	AnswerType string `json:"answer_type,omitempty"`
}

// TeacherComment attaches an evaluator note to one question. Teacher only.
type TeacherComment struct {
	QuestionID int    `json:"question_id"`
	Comment    string `json:"comment"`
}

// Heartbeat keeps the connection alive and bumps session activity.
type Heartbeat struct{}

// RequestParticipants asks for a fresh roster snapshot.
type RequestParticipants struct{}

// AnonymousJoin identifies an unauthenticated student after connect.
type AnonymousJoin struct {
	StudentName string `json:"student_name"`
	StudentID   string `json:"student_id"`
	TestID      string `json:"test_id"`
}

// UserInfo is a legacy self-description frame. Accepted for protocol
// compatibility but carries no authority: roles are assigned at admit.
type UserInfo struct {
	Role      string `json:"role"`
	IsTeacher bool   `json:"is_teacher"`
	IsAdmin   bool   `json:"is_admin"`
}

// TimerTick is the timer driver's 1 Hz event, applied through the same
// serialized path as wire events.
type TimerTick struct{}

func (StartTest) EventType() EventType           { return EventStartTest }
func (EndTest) EventType() EventType             { return EventEndTest }
func (QuestionFocus) EventType() EventType       { return EventQuestionFocus }
func (SubmitAnswer) EventType() EventType        { return EventSubmitAnswer }
func (TeacherComment) EventType() EventType      { return EventTeacherComment }
func (Heartbeat) EventType() EventType           { return EventHeartbeat }
func (RequestParticipants) EventType() EventType { return EventRequestParticipants }
func (AnonymousJoin) EventType() EventType       { return EventAnonymousJoin }
func (UserInfo) EventType() EventType            { return EventUserInfo }
func (TimerTick) EventType() EventType           { return EventTimerTick }

// ─── Messages (Server → Client) ─────────────────────────────────────

// Snapshot lets a late joiner resynchronize without replaying history.
type Snapshot struct {
	QuestionIndex    int               `json:"question_index"`
	IsActive         bool              `json:"is_active"`
	RemainingSeconds *int              `json:"remaining_seconds,omitempty"`
	Participants     []ParticipantInfo `json:"participants"`
}

// ParticipantInfo is the roster entry shape sent to clients.
type ParticipantInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	Status      string    `json:"status"`
	IsAnonymous bool      `json:"is_anonymous"`
	JoinedAt    time.Time `json:"joined_at"`
}

// RoleAssigned confirms admission, carrying the resync snapshot.
type RoleAssigned struct {
	Type      string     `json:"type"`
	Role      model.Role `json:"role"`
	UserID    string     `json:"user_id"`
	SessionID string     `json:"room_id"`
	Snapshot  Snapshot   `json:"snapshot"`
}

type TestStarted struct {
	Type   string `json:"type"`
	TestID string `json:"test_id"`
}

type TestEnded struct {
	Type string `json:"type"`
}

type questionData struct {
	Index int `json:"index"`
}

type FocusQuestion struct {
	Type         string       `json:"type"`
	QuestionData questionData `json:"question_data"`
}

type timeData struct {
	Remaining int `json:"remaining"`
}

type TimeUpdate struct {
	Type     string   `json:"type"`
	TimeData timeData `json:"time_data"`
}

type answerData struct {
	QuestionID int    `json:"question_id"`
	Answer     string `json:"answer"`
	AnswerType string `json:"answer_type,omitempty"`
}

// StudentInfo identifies the answering student to the teacher.
type StudentInfo struct {
	StudentID   string `json:"student_id"`
	Name        string `json:"name"`
	IsAnonymous bool   `json:"is_anonymous"`
}

type StudentAnswer struct {
	Type        string      `json:"type"`
	StudentID   string      `json:"student_id"`
	StudentInfo StudentInfo `json:"student_info"`
	AnswerData  answerData  `json:"answer_data"`
}

type commentData struct {
	QuestionID int    `json:"question_id"`
	Comment    string `json:"comment"`
}

type TeacherCommented struct {
	Type    string      `json:"type"`
	Comment commentData `json:"comment"`
}

// UserEvent announces a participant joining or leaving. Students produce
// student_joined/student_left, teachers user_joined/user_left.
type UserEvent struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	UserData  ParticipantInfo `json:"user_data"`
	SessionID string          `json:"room_id"`
	Timestamp time.Time       `json:"timestamp"`
}

type ParticipantsList struct {
	Type         string            `json:"type"`
	Participants []ParticipantInfo `json:"participants"`
	SessionID    string            `json:"room_id"`
	TotalCount   int               `json:"total_count"`
}

// TestData carries the question payload to a participant. Correct answers
// are stripped for students before sending.
type TestData struct {
	Type      string           `json:"type"`
	TestID    string           `json:"test_id"`
	Questions []model.Question `json:"questions"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// ─── Constructors ───────────────────────────────────────────────────

func NewRoleAssigned(role model.Role, userID, sessionID uuid.UUID, snap Snapshot) RoleAssigned {
	return RoleAssigned{
		Type:      "role_assigned",
		Role:      role,
		UserID:    userID.String(),
		SessionID: sessionID.String(),
		Snapshot:  snap,
	}
}

func NewTestStarted(testID string) TestStarted {
	return TestStarted{Type: "test_started", TestID: testID}
}

func NewTestEnded() TestEnded {
	return TestEnded{Type: "test_ended"}
}

func NewFocusQuestion(index int) FocusQuestion {
	return FocusQuestion{Type: "focus_question", QuestionData: questionData{Index: index}}
}

func NewTimeUpdate(remaining int) TimeUpdate {
	return TimeUpdate{Type: "time_update", TimeData: timeData{Remaining: remaining}}
}

func NewStudentAnswer(info StudentInfo, questionID int, answer, answerType string) StudentAnswer {
	return StudentAnswer{
		Type:        "student_answer",
		StudentID:   info.StudentID,
		StudentInfo: info,
		AnswerData:  answerData{QuestionID: questionID, Answer: answer, AnswerType: answerType},
	}
}

func NewTeacherCommented(questionID int, comment string) TeacherCommented {
	return TeacherCommented{Type: "teacher_comment", Comment: commentData{QuestionID: questionID, Comment: comment}}
}

func NewUserEvent(eventType string, id string, info ParticipantInfo, sessionID uuid.UUID) UserEvent {
	return UserEvent{
		Type:      eventType,
		ID:        id,
		UserData:  info,
		SessionID: sessionID.String(),
		Timestamp: time.Now().UTC(),
	}
}

func NewParticipantsList(sessionID uuid.UUID, participants []ParticipantInfo) ParticipantsList {
	return ParticipantsList{
		Type:         "participants_list",
		Participants: participants,
		SessionID:    sessionID.String(),
		TotalCount:   len(participants),
	}
}

func NewTestData(testID string, questions []model.Question) TestData {
	return TestData{Type: "test_data", TestID: testID, Questions: questions}
}

func NewError(msg string) ErrorMessage {
	return ErrorMessage{Type: "error", Error: msg}
}
