package model

import (
	"encoding/json"
)

// QuestionType enumerates supported question kinds.
type QuestionType string

const (
	QuestionTypeMultipleChoice         QuestionType = "multiple_choice"
	QuestionTypeWeightedMultipleChoice QuestionType = "weighted_multiple_choice"
	QuestionTypeWritten                QuestionType = "written"
	QuestionTypeSelection              QuestionType = "selection"
	QuestionTypeTrueFalse              QuestionType = "true_false"
)

// WeightedOption is one selectable option of a weighted multiple choice
// question. Points may be negative to penalize wrong selections.
type WeightedOption struct {
	Text         string `json:"text"`
	Points       int    `json:"points"`
	IsSelectable bool   `json:"is_selectable"`
}

// Question is one entry of a test's ordered question list.
type Question struct {
	QNumber       int          `json:"qnumber"`
	TestID        string       `json:"test_id"`
	Text          string       `json:"question_text"`
	PointValue    int          `json:"point_value"`
	QuestionType  QuestionType `json:"question_type"`
	Options       []string     `json:"options"`
	CorrectAnswer string       `json:"correct_answer"`
	// WeightedOptions is stored as a JSON document; only populated for
	// weighted multiple choice questions.
	WeightedOptions json.RawMessage `json:"weighted_options,omitempty"`
}

// DecodeWeightedOptions parses the weighted option document. Returns an
// empty slice for questions without one.
func (q *Question) DecodeWeightedOptions() []WeightedOption {
	if len(q.WeightedOptions) == 0 {
		return nil
	}
	var opts []WeightedOption
	if err := json.Unmarshal(q.WeightedOptions, &opts); err != nil {
		return nil
	}
	return opts
}

// StudentView returns a copy of the question safe to send to students:
// the correct answer is stripped, weighted option points are kept because
// the client needs them only after grading (teacher side).
func (q Question) StudentView() Question {
	q.CorrectAnswer = ""
	q.WeightedOptions = nil
	return q
}
