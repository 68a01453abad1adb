package model

import "time"

// Test is a catalog entry describing one assessment.
type Test struct {
	TestID string `json:"test_id"`
	Name   string `json:"name"`
	// DurationSeconds is the countdown length applied when a session for
	// this test starts. 0 means untimed.
	DurationSeconds int       `json:"duration_seconds"`
	QuestionCount   int       `json:"question_count"`
	CreatedAt       time.Time `json:"created_at"`
}
