package service

import (
	"encoding/json"
	"testing"

	"github.com/teachstack/livetest-backend/internal/model"
)

func weightedQuestion(t *testing.T, pointValue int, opts []model.WeightedOption) model.Question {
	t.Helper()
	raw, err := json.Marshal(opts)
	if err != nil {
		t.Fatalf("marshal options: %v", err)
	}
	return model.Question{
		QNumber:         1,
		PointValue:      pointValue,
		QuestionType:    model.QuestionTypeWeightedMultipleChoice,
		WeightedOptions: raw,
	}
}

func selections(t *testing.T, texts ...string) string {
	t.Helper()
	raw, err := json.Marshal(texts)
	if err != nil {
		t.Fatalf("marshal selections: %v", err)
	}
	return string(raw)
}

func TestScoreSingleAnswer(t *testing.T) {
	q := model.Question{
		QuestionType:  model.QuestionTypeMultipleChoice,
		PointValue:    5,
		CorrectAnswer: "C",
	}

	if got := ScoreAnswer(q, "C", 0); got != 5 {
		t.Errorf("correct answer scored %d, want 5", got)
	}
	if got := ScoreAnswer(q, "A", 0); got != 0 {
		t.Errorf("wrong answer scored %d, want 0", got)
	}
	if got := ScoreAnswer(q, "", 0); got != 0 {
		t.Errorf("empty answer scored %d, want 0", got)
	}
}

func TestScoreSingleAnswerNoPartialCredit(t *testing.T) {
	q := model.Question{
		QuestionType:  model.QuestionTypeWritten,
		PointValue:    10,
		CorrectAnswer: "photosynthesis",
	}
	if got := ScoreAnswer(q, "photosynthesi", 0); got != 0 {
		t.Errorf("near-match scored %d, want 0", got)
	}
}

func TestScoreWeightedSumsSelectedOptions(t *testing.T) {
	q := weightedQuestion(t, 10, []model.WeightedOption{
		{Text: "mitochondria", Points: 4, IsSelectable: true},
		{Text: "ribosomes", Points: 3, IsSelectable: true},
		{Text: "chloroplast", Points: -2, IsSelectable: true},
	})

	got := ScoreAnswer(q, selections(t, "mitochondria", "ribosomes"), 0)
	if got != 7 {
		t.Errorf("score = %d, want 7", got)
	}
}

func TestScoreWeightedClampsToPointValue(t *testing.T) {
	q := weightedQuestion(t, 5, []model.WeightedOption{
		{Text: "a", Points: 4, IsSelectable: true},
		{Text: "b", Points: 4, IsSelectable: true},
	})

	got := ScoreAnswer(q, selections(t, "a", "b"), 0)
	if got != 5 {
		t.Errorf("score = %d, want clamp at 5", got)
	}
}

func TestScoreWeightedClampsToFloor(t *testing.T) {
	q := weightedQuestion(t, 10, []model.WeightedOption{
		{Text: "a", Points: -6, IsSelectable: true},
		{Text: "b", Points: -6, IsSelectable: true},
	})
	answer := selections(t, "a", "b")

	if got := ScoreAnswer(q, answer, 0); got != 0 {
		t.Errorf("floor 0: score = %d, want 0", got)
	}
	if got := ScoreAnswer(q, answer, -5); got != -5 {
		t.Errorf("floor -5: score = %d, want -5", got)
	}
}

func TestScoreWeightedIgnoresUnselectableOptions(t *testing.T) {
	q := weightedQuestion(t, 10, []model.WeightedOption{
		{Text: "header", Points: 9, IsSelectable: false},
		{Text: "real", Points: 3, IsSelectable: true},
	})

	got := ScoreAnswer(q, selections(t, "header", "real"), 0)
	if got != 3 {
		t.Errorf("score = %d, want 3", got)
	}
}

func TestScoreWeightedIgnoresUnknownSelections(t *testing.T) {
	q := weightedQuestion(t, 10, []model.WeightedOption{
		{Text: "a", Points: 5, IsSelectable: true},
	})

	got := ScoreAnswer(q, selections(t, "a", "made-up-option"), 0)
	if got != 5 {
		t.Errorf("score = %d, want 5", got)
	}
}

func TestScoreWeightedBadPayload(t *testing.T) {
	q := weightedQuestion(t, 10, []model.WeightedOption{
		{Text: "a", Points: 5, IsSelectable: true},
	})

	if got := ScoreAnswer(q, "", 0); got != 0 {
		t.Errorf("empty answer scored %d, want 0", got)
	}
	// A bare string is treated as a single selection.
	if got := ScoreAnswer(q, "a", 0); got != 5 {
		t.Errorf("bare string answer scored %d, want 5", got)
	}
}
