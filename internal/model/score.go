package model

import "time"

// Score is a persisted grading record for one student's run of a test.
// TestScores and Comments are parallel arrays ordered by question number.
type Score struct {
	ID         int       `json:"id"`
	StudentID  int       `json:"student_id"`
	TestID     string    `json:"test_id"`
	TestScores []int     `json:"test_scores"`
	Comments   []string  `json:"comments"`
	Evaluator  string    `json:"evaluator"`
	CreatedAt  time.Time `json:"created_at"`
}

// ResponseRecord is a student's latest answer to one question, held in
// coordinator memory for the session's lifetime and only persisted at
// submission.
type ResponseRecord struct {
	Answer  string `json:"answer"`
	Comment string `json:"comment,omitempty"`
}
