package bot

import (
	"time"
)

// BotConfig represents the configuration for the bot
type BotConfig struct {
	Token string
	Debug bool
	// Long polling timeout in seconds
	UpdateTimeout int
	// Upper bound on handling a single update, tutor calls included
	HandlerTimeout time.Duration
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() *BotConfig {
	return &BotConfig{
		UpdateTimeout:  60,
		HandlerTimeout: time.Minute,
	}
}
