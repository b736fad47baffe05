package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/example/kanadeck/internal/spaced_repetition"
	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Default notification window, start inclusive and end exclusive
const (
	DefaultNotificationStartHour = 8
	DefaultNotificationEndHour   = 22
)

// Notifier delivers reminders to learners
type Notifier interface {
	SendReminder(ctx context.Context, learnerID int64, due int) error
}

// DueCounter reports due cards of every learner who wants reminders
type DueCounter interface {
	DueCounts(ctx context.Context, now time.Time) (map[int64]int, error)
}

// LearnerDueCounter reports due cards of a single learner
type LearnerDueCounter interface {
	DueCount(ctx context.Context, learnerID int64) (int, error)
}

// Config configures the reminder job
type Config struct {
	Interval  time.Duration
	StartHour int
	EndHour   int
	Location  *time.Location
	Clock     spaced_repetition.Clock
}

// Scheduler runs the periodic reminder job
type Scheduler struct {
	cron     *gocron.Scheduler
	cfg      Config
	counts   DueCounter
	learners LearnerDueCounter
	notifier Notifier
	logger   *zap.Logger
}

// New creates a new scheduler instance
func New(cfg Config, counts DueCounter, learners LearnerDueCounter, notifier Notifier, logger *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Clock == nil {
		cfg.Clock = spaced_repetition.SystemClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cron:     gocron.NewScheduler(cfg.Location),
		cfg:      cfg,
		counts:   counts,
		learners: learners,
		notifier: notifier,
		logger:   logger,
	}
}

// Start schedules the reminder job and runs it in the background.
// The first check runs immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.Every(s.cfg.Interval).Do(func() {
		if _, err := s.CheckAndSendReminders(ctx); err != nil {
			s.logger.Error("Reminder check failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reminders: %w", err)
	}

	s.cron.StartAsync()
	s.logger.Info("Reminder job started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("start_hour", s.cfg.StartHour),
		zap.Int("end_hour", s.cfg.EndHour))
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// InWindow reports whether reminders may be sent during the given hour.
// A window whose end precedes its start wraps past midnight; equal bounds allow every hour.
func (s *Scheduler) InWindow(hour int) bool {
	start, end := s.cfg.StartHour, s.cfg.EndHour
	switch {
	case start == end:
		return true
	case start < end:
		return hour >= start && hour < end
	default:
		return hour >= start || hour < end
	}
}

// CheckAndSendReminders notifies every learner with due cards and returns the
// number of reminders delivered. Outside the notification window it does nothing.
func (s *Scheduler) CheckAndSendReminders(ctx context.Context) (int, error) {
	now := s.cfg.Clock.Now()
	hour := now.In(s.cfg.Location).Hour()
	if !s.InWindow(hour) {
		s.logger.Debug("Outside notification hours, skipping reminders",
			zap.Int("hour", hour),
			zap.Int("start_hour", s.cfg.StartHour),
			zap.Int("end_hour", s.cfg.EndHour))
		return 0, nil
	}

	counts, err := s.counts.DueCounts(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to get due counts: %w", err)
	}

	ids := make([]int64, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	sent := 0
	for _, id := range ids {
		if counts[id] <= 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := s.notifier.SendReminder(ctx, id, counts[id]); err != nil {
			s.logger.Warn("Failed to send reminder", zap.Int64("learner_id", id), zap.Error(err))
			continue
		}
		sent++
	}

	s.logger.Info("Reminders sent", zap.Int("sent", sent), zap.Int("learners", len(ids)))
	return sent, nil
}

// RunManualCheck reminds one learner regardless of the notification window.
// It reports whether a reminder was sent.
func (s *Scheduler) RunManualCheck(ctx context.Context, learnerID int64) (bool, error) {
	due, err := s.learners.DueCount(ctx, learnerID)
	if err != nil {
		return false, err
	}
	if due == 0 {
		return false, nil
	}
	if err := s.notifier.SendReminder(ctx, learnerID, due); err != nil {
		return false, err
	}
	return true, nil
}
