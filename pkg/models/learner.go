package models

import "time"

// Learner is a chat studying with the bot
type Learner struct {
	ID                   int64     `json:"id" db:"id"` // Telegram chat ID
	Deck                 string    `json:"deck" db:"deck"`
	Token                string    `json:"-" db:"token"`
	NotificationsEnabled bool      `json:"notifications_enabled" db:"notifications_enabled"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
}
