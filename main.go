package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/example/kanadeck/internal/ai"
	"github.com/example/kanadeck/internal/auth"
	"github.com/example/kanadeck/internal/bot"
	"github.com/example/kanadeck/internal/catalog"
	"github.com/example/kanadeck/internal/config"
	"github.com/example/kanadeck/internal/database"
	"github.com/example/kanadeck/internal/logger"
	"github.com/example/kanadeck/internal/scheduler"
	"github.com/example/kanadeck/internal/study"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	os.Exit(finish(lg, run(cfg, lg)))
}

// finish logs how run ended and returns the exit code. The logger is flushed
// before the caller exits.
func finish(lg *zap.Logger, err error) int {
	defer func() { _ = lg.Sync() }()

	if err != nil {
		lg.Error("Bot exited with error", zap.Error(err))
		return 1
	}
	lg.Info("Bot stopped successfully")
	return 0
}

func run(cfg *config.Config, lg *zap.Logger) error {
	// Listen for shutdown signals
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := database.Connect(cfg.DBType, cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	registry, err := catalog.NewRegistry()
	if err != nil {
		return err
	}
	for _, path := range cfg.CustomDecks {
		items, err := catalog.Load(path)
		if err != nil {
			return err
		}
		name := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
		if err := registry.Register(name, items); err != nil {
			return err
		}
		lg.Info("Registered custom deck", zap.String("deck", name), zap.Int("items", len(items)))
	}

	studySvc, err := study.NewService(study.Config{
		DefaultDeck: cfg.DefaultDeck,
		ProgressCap: cfg.ProgressCap,
		QuizLength:  cfg.QuizLength,
		Location:    cfg.Location(),
	}, registry, study.NewStores(db), lg)
	if err != nil {
		return err
	}

	gate, err := auth.NewGate(auth.Config{
		Password: cfg.LoginPassword,
		Secret:   cfg.JWTSecret,
		TTL:      cfg.SessionTTL,
	})
	if err != nil {
		return err
	}

	// The tutor is optional
	var tutor bot.Tutor
	client, err := ai.New(ai.Config{
		APIKey: cfg.OpenAIAPIKey,
		APIURL: cfg.OpenAIAPIURL,
		Model:  cfg.OpenAIModel,
	}, lg)
	switch {
	case errors.Is(err, ai.ErrNotConfigured):
		lg.Info("OPENAI_API_KEY is not set, tutor disabled")
	case err != nil:
		return err
	default:
		tutor = client
	}

	botConfig := bot.DefaultConfig()
	botConfig.Token = cfg.TelegramToken

	b, err := bot.New(botConfig, studySvc, gate, tutor, lg)
	if err != nil {
		return err
	}

	reminders := scheduler.New(scheduler.Config{
		Interval:  cfg.ReminderInterval,
		StartHour: cfg.NotificationStartHour,
		EndHour:   cfg.NotificationEndHour,
		Location:  cfg.Location(),
	}, database.NewCardRepository(db), studySvc, b, lg)
	b.SetReminders(reminders)

	if err := reminders.Start(ctx); err != nil {
		return err
	}
	defer reminders.Stop()

	lg.Info("Bot started. Press Ctrl+C to stop.",
		zap.String("environment", cfg.Environment),
		zap.String("db_type", cfg.DBType),
		zap.Strings("decks", registry.Names()),
		zap.Bool("login_required", gate.Enabled()),
	)
	if err := b.Start(ctx); err != nil {
		return err
	}

	// Give in-flight updates time to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return b.Stop(shutdownCtx)
}
