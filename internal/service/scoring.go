package service

import (
	"encoding/json"
	"strings"

	"github.com/teachstack/livetest-backend/internal/model"
)

// ScoreAnswer grades one recorded answer against its question.
//
// Single-answer question types award the full point value on an exact match
// with the stored correct answer and zero otherwise. Weighted multi-select
// questions sum the point contributions of every selected option that the
// question marks selectable, then clamp the total to [floor, point value].
// An unparseable or empty answer scores the floor-clamped zero.
func ScoreAnswer(q model.Question, answer string, floor int) int {
	if q.QuestionType == model.QuestionTypeWeightedMultipleChoice {
		return scoreWeighted(q, answer, floor)
	}
	if answer != "" && answer == q.CorrectAnswer {
		return q.PointValue
	}
	return 0
}

func scoreWeighted(q model.Question, answer string, floor int) int {
	options := q.DecodeWeightedOptions()
	if len(options) == 0 {
		return clamp(0, floor, q.PointValue)
	}

	selected := parseSelections(answer)
	if len(selected) == 0 {
		return clamp(0, floor, q.PointValue)
	}

	total := 0
	for _, opt := range options {
		if !opt.IsSelectable {
			continue
		}
		if selected[opt.Text] {
			total += opt.Points
		}
	}
	return clamp(total, floor, q.PointValue)
}

// parseSelections reads the selected option texts from a submitted answer.
// The canonical shape is a JSON string array; a bare string is accepted as a
// single selection for resilience against older clients.
func parseSelections(answer string) map[string]bool {
	selected := make(map[string]bool)
	trimmed := strings.TrimSpace(answer)
	if trimmed == "" {
		return selected
	}

	var texts []string
	if err := json.Unmarshal([]byte(trimmed), &texts); err == nil {
		for _, t := range texts {
			selected[t] = true
		}
		return selected
	}

	selected[trimmed] = true
	return selected
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
