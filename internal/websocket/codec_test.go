package websocket

import (
	"errors"
	"testing"
)

func TestDecodeSubmitAnswer(t *testing.T) {
	frame := []byte(`{"type":"submit_answer","question_id":3,"answer":"B"}`)
	event, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	answer, ok := event.(SubmitAnswer)
	if !ok {
		t.Fatalf("Decode() = %T, want SubmitAnswer", event)
	}
	if answer.QuestionID != 3 || answer.Answer != "B" {
		t.Errorf("got question_id=%d answer=%q", answer.QuestionID, answer.Answer)
	}
}

func TestDecodeQuestionFocus(t *testing.T) {
	event, err := Decode([]byte(`{"type":"question_focus","index":7}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	focus, ok := event.(QuestionFocus)
	if !ok {
		t.Fatalf("Decode() = %T, want QuestionFocus", event)
	}
	if focus.Index != 7 {
		t.Errorf("index = %d, want 7", focus.Index)
	}
}

func TestDecodePayloadlessEvents(t *testing.T) {
	cases := []struct {
		frame string
		want  EventType
	}{
		{`{"type":"end_test"}`, EventEndTest},
		{`{"type":"heartbeat"}`, EventHeartbeat},
		{`{"type":"request_participants"}`, EventRequestParticipants},
	}
	for _, tc := range cases {
		event, err := Decode([]byte(tc.frame))
		if err != nil {
			t.Fatalf("Decode(%s) error = %v", tc.frame, err)
		}
		if event.EventType() != tc.want {
			t.Errorf("Decode(%s) type = %q, want %q", tc.frame, event.EventType(), tc.want)
		}
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"rm_rf"}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("error = %v, want ErrUnknownEvent", err)
	}
}

// The timer tick is synthesized internally; a client spelling out its type
// must be rejected like any unknown frame.
func TestDecodeRejectsTimerTick(t *testing.T) {
	_, err := Decode([]byte(`{"type":"timer_tick"}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("error = %v, want ErrUnknownEvent", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	if !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("error = %v, want ErrMalformedFrame", err)
	}
}
