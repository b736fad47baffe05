package models

import "time"

// QuizResult tracks the outcome of one finished quiz
type QuizResult struct {
	ID         int64     `json:"id" db:"id"`
	LearnerID  int64     `json:"learner_id" db:"learner_id"`
	Deck       string    `json:"deck" db:"deck"`
	QuizType   string    `json:"quiz_type" db:"quiz_type"` // "text_input", "multiple_choice" or "ai_test"
	Total      int       `json:"total" db:"total"`
	Correct    int       `json:"correct" db:"correct"`
	StartedAt  time.Time `json:"started_at" db:"started_at"`
	FinishedAt time.Time `json:"finished_at" db:"finished_at"`
}

// Score returns the share of correct answers
func (r QuizResult) Score() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Correct) / float64(r.Total)
}
