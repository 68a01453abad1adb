package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownEvent is returned for frames whose type is not part of the
	// protocol.
	ErrUnknownEvent = errors.New("unknown event type")

	// ErrMalformedFrame is returned when the payload does not parse.
	ErrMalformedFrame = errors.New("malformed frame")
)

// Decode parses one wire frame into the closed inbound union. Every frame
// crosses this boundary exactly once; past it, handlers switch on concrete
// types and never touch raw JSON again. Synthetic event types such as the
// timer tick are rejected here so they cannot be injected from the wire.
func Decode(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var (
		event Inbound
		err   error
	)
	switch env.Type {
	case EventStartTest:
		var e StartTest
		err = json.Unmarshal(data, &e)
		event = e
	case EventEndTest:
		event = EndTest{}
	case EventQuestionFocus:
		var e QuestionFocus
		err = json.Unmarshal(data, &e)
		event = e
	case EventSubmitAnswer:
		var e SubmitAnswer
		err = json.Unmarshal(data, &e)
		event = e
	case EventTeacherComment:
		var e TeacherComment
		err = json.Unmarshal(data, &e)
		event = e
	case EventHeartbeat:
		event = Heartbeat{}
	case EventRequestParticipants:
		event = RequestParticipants{}
	case EventAnonymousJoin:
		var e AnonymousJoin
		err = json.Unmarshal(data, &e)
		event = e
	case EventUserInfo:
		var e UserInfo
		err = json.Unmarshal(data, &e)
		event = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return event, nil
}
