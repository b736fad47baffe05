package models

import "time"

// Review is one self-reported outcome for a card
type Review struct {
	ID         int64     `json:"id" db:"id"`
	LearnerID  int64     `json:"learner_id" db:"learner_id"`
	Deck       string    `json:"deck" db:"deck"`
	Symbol     string    `json:"symbol" db:"symbol"`
	KnewIt     bool      `json:"knew_it" db:"knew_it"`
	Interval   int       `json:"interval" db:"interval_days"` // Interval after the outcome was applied
	ReviewedAt time.Time `json:"reviewed_at" db:"reviewed_at"`
}
