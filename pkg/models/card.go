package models

import "time"

// Card tracks the review schedule of one Item
type Card struct {
	Item
	Interval     int       `json:"interval" db:"interval_days"`        // Days until the next review, 0 when new or reset
	NextReviewAt time.Time `json:"next_review_at" db:"next_review_at"` // Card is due once this instant has passed
}

// IsDue reports whether the card may be presented at now
func (c Card) IsDue(now time.Time) bool {
	return !c.NextReviewAt.After(now)
}
