package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is read when Load is called without explicit files
const DefaultEnvFile = ".env"

// Config holds all application configuration
type Config struct {
	Environment string `validate:"oneof=development production test"`

	// Telegram
	TelegramToken string

	// Database configuration
	DBType      string `validate:"oneof=sqlite postgres"`
	DBPath      string `validate:"required_if=DBType sqlite"`
	DatabaseURL string `validate:"required_if=DBType postgres"`

	// Study configuration
	DefaultDeck string   `validate:"required"`
	ProgressCap int      `validate:"min=0"`
	CustomDecks []string `validate:"dive,required"`
	QuizLength  int      `validate:"min=1,max=100"`
	Timezone    string   `validate:"required,timezone"`

	// Login gate, disabled while LoginPassword is empty
	LoginPassword string
	JWTSecret     string        `validate:"required_with=LoginPassword"`
	SessionTTL    time.Duration `validate:"gt=0"`

	// Tutor, disabled while OpenAIAPIKey is empty
	OpenAIAPIKey string
	OpenAIAPIURL string `validate:"required,url"`
	OpenAIModel  string `validate:"required"`

	// Reminders
	ReminderInterval      time.Duration `validate:"gte=1m"`
	NotificationStartHour int           `validate:"min=0,max=23"`
	NotificationEndHour   int           `validate:"min=0,max=24"`
}

var validate = validator.New()

// Load reads configuration from the environment. Values missing from the
// environment are taken from the given dotenv files, or from .env in the
// working directory when none are given and it exists.
func Load(files ...string) (*Config, error) {
	src, err := newSource(files)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment:   src.get("ENVIRONMENT", "development"),
		TelegramToken: src.get("TELEGRAM_BOT_TOKEN", ""),

		DBType:      src.get("DB_TYPE", "sqlite"),
		DBPath:      src.get("DB_PATH", "data/kanadeck.db"),
		DatabaseURL: src.get("DATABASE_URL", ""),

		DefaultDeck: src.get("DEFAULT_DECK", "hiragana"),
		ProgressCap: src.getInt("PROGRESS_CAP", 5),
		CustomDecks: splitList(src.get("CUSTOM_DECKS", "")),
		QuizLength:  src.getInt("QUIZ_LENGTH", 10),
		Timezone:    src.get("TIMEZONE", "UTC"),

		LoginPassword: src.get("LOGIN_PASSWORD", ""),
		JWTSecret:     src.get("JWT_SECRET", ""),
		SessionTTL:    src.getDuration("SESSION_TTL", 30*24*time.Hour),

		OpenAIAPIKey: src.get("OPENAI_API_KEY", ""),
		OpenAIAPIURL: src.get("OPENAI_API_URL", "https://api.openai.com/v1/chat/completions"),
		OpenAIModel:  src.get("OPENAI_MODEL", "gpt-4o-mini"),

		ReminderInterval:      src.getDuration("REMINDER_INTERVAL", time.Hour),
		NotificationStartHour: src.getInt("NOTIFICATION_START_HOUR", 8),
		NotificationEndHour:   src.getInt("NOTIFICATION_END_HOUR", 22),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for missing or malformed values
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Location returns the configured time zone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DSN returns the data source for the configured database type
func (c *Config) DSN() string {
	if c.DBType == "postgres" {
		return c.DatabaseURL
	}
	return c.DBPath
}

type source struct {
	file map[string]string
}

func newSource(files []string) (*source, error) {
	if len(files) == 0 {
		if _, err := os.Stat(DefaultEnvFile); errors.Is(err, fs.ErrNotExist) {
			return &source{file: map[string]string{}}, nil
		}
		files = []string{DefaultEnvFile}
	}

	values, err := godotenv.Read(files...)
	if err != nil {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}
	return &source{file: values}, nil
}

// get prefers the process environment over the env file
func (s *source) get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value := s.file[key]; value != "" {
		return value
	}
	return defaultValue
}

func (s *source) getInt(key string, defaultValue int) int {
	if value := s.get(key, ""); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func (s *source) getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := s.get(key, ""); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
