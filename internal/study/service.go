package study

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/example/kanadeck/internal/catalog"
	"github.com/example/kanadeck/internal/database"
	"github.com/example/kanadeck/internal/quiz"
	"github.com/example/kanadeck/internal/spaced_repetition"
	"github.com/example/kanadeck/internal/stats"
	"github.com/example/kanadeck/pkg/models"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

var (
	// ErrNoDeck is returned when a learner has no deck to study
	ErrNoDeck = errors.New("study: no deck opened")
	// ErrNoQuiz is returned when answering without a running quiz
	ErrNoQuiz = errors.New("study: no quiz running")
	// ErrStaleAnswer is returned for an answer to a question that is no longer current
	ErrStaleAnswer = errors.New("study: question already answered")
)

// LearnerStore persists learner settings
type LearnerStore interface {
	GetByID(ctx context.Context, id int64) (*models.Learner, error)
	Upsert(ctx context.Context, learner *models.Learner) error
}

// CardStore persists per-deck card state
type CardStore interface {
	SaveDeck(ctx context.Context, learnerID int64, deck string, cards []models.Card) error
	LoadDeck(ctx context.Context, learnerID int64, deck string) ([]models.Card, error)
	SaveCard(ctx context.Context, learnerID int64, deck string, card models.Card) error
}

// ReviewStore appends to and reads the review log
type ReviewStore interface {
	Create(ctx context.Context, review *models.Review) error
	Since(ctx context.Context, learnerID int64, since time.Time) ([]models.Review, error)
}

// QuizResultStore persists finished quizzes
type QuizResultStore interface {
	Create(ctx context.Context, result *models.QuizResult) error
	Summary(ctx context.Context, learnerID int64) (database.QuizSummary, error)
	GetByLearner(ctx context.Context, learnerID int64, limit int) ([]models.QuizResult, error)
}

// Stores bundles the persistence the service depends on
type Stores struct {
	Learners    LearnerStore
	Cards       CardStore
	Reviews     ReviewStore
	QuizResults QuizResultStore
}

// NewStores wires the sqlx repositories
func NewStores(db *sqlx.DB) Stores {
	return Stores{
		Learners:    database.NewLearnerRepository(db),
		Cards:       database.NewCardRepository(db),
		Reviews:     database.NewReviewRepository(db),
		QuizResults: database.NewQuizResultRepository(db),
	}
}

// Config configures the study service
type Config struct {
	DefaultDeck string
	ProgressCap int
	QuizLength  int
	Location    *time.Location // Calendar used for activity days
	Clock       spaced_repetition.Clock
	Rand        *rand.Rand
}

// Service owns one scheduler per learner and serializes every operation on them
type Service struct {
	mu       sync.Mutex
	cfg      Config
	clock    spaced_repetition.Clock
	rnd      *rand.Rand
	registry *catalog.Registry
	stores   Stores
	logger   *zap.Logger
	sessions map[int64]*session
}

type session struct {
	learner   *models.Learner
	scheduler *spaced_repetition.Scheduler
	quiz      *quiz.Quiz
}

// NewService creates a study service
func NewService(cfg Config, registry *catalog.Registry, stores Stores, logger *zap.Logger) (*Service, error) {
	if !registry.Has(cfg.DefaultDeck) {
		return nil, fmt.Errorf("%w: default deck %q", catalog.ErrUnknownDeck, cfg.DefaultDeck)
	}
	if cfg.Clock == nil {
		cfg.Clock = spaced_repetition.SystemClock
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.QuizLength <= 0 {
		cfg.QuizLength = 10
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(cfg.Clock.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		cfg:      cfg,
		clock:    cfg.Clock,
		rnd:      rnd,
		registry: registry,
		stores:   stores,
		logger:   logger,
		sessions: make(map[int64]*session),
	}, nil
}

// Decks returns the names of the decks a learner can open
func (s *Service) Decks() []string {
	return s.registry.Names()
}

// Learner returns the learner's settings, registering unknown chats on the fly
func (s *Service) Learner(ctx context.Context, learnerID int64) (models.Learner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	learner, err := s.loadLearner(ctx, learnerID)
	if err != nil {
		return models.Learner{}, err
	}
	return *learner, nil
}

// Open switches the learner to a deck. Saved progress on that deck is kept for
// symbols the catalog still holds, new symbols start fresh, and symbols removed
// from the catalog are dropped.
func (s *Service) Open(ctx context.Context, learnerID int64, deck string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.open(ctx, learnerID, deck)
	return err
}

// Next returns the card to review now, or false when nothing is due
func (s *Service) Next(ctx context.Context, learnerID int64) (models.Card, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(ctx, learnerID)
	if err != nil {
		return models.Card{}, false, err
	}
	card, ok := sess.scheduler.NextDue()
	return card, ok, nil
}

// DueCount returns how many of the learner's cards are due
func (s *Service) DueCount(ctx context.Context, learnerID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(ctx, learnerID)
	if err != nil {
		return 0, err
	}
	return sess.scheduler.DueCount(), nil
}

// DueCards returns up to limit due cards in presentation order
func (s *Service) DueCards(ctx context.Context, learnerID int64, limit int) ([]models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	return sess.scheduler.DueCards(limit), nil
}

// Card looks up one card of the learner's current deck
func (s *Service) Card(ctx context.Context, learnerID int64, symbol string) (models.Card, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(ctx, learnerID)
	if err != nil {
		return models.Card{}, false, err
	}
	card, ok := sess.scheduler.Card(symbol)
	return card, ok, nil
}

// Answer records the learner's self assessment for a card, persists the new
// card state and appends it to the review log
func (s *Service) Answer(ctx context.Context, learnerID int64, symbol string, knewIt bool) (models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(ctx, learnerID)
	if err != nil {
		return models.Card{}, err
	}

	card, err := sess.scheduler.RecordOutcome(symbol, knewIt)
	if err != nil {
		return models.Card{}, err
	}

	deck := sess.learner.Deck
	if err := s.stores.Cards.SaveCard(ctx, learnerID, deck, card); err != nil {
		// Reload from storage next time so memory and database agree.
		delete(s.sessions, learnerID)
		return models.Card{}, fmt.Errorf("failed to save card: %w", err)
	}

	review := &models.Review{
		LearnerID:  learnerID,
		Deck:       deck,
		Symbol:     symbol,
		KnewIt:     knewIt,
		Interval:   card.Interval,
		ReviewedAt: s.clock.Now(),
	}
	if err := s.stores.Reviews.Create(ctx, review); err != nil {
		s.logger.Error("Failed to log review",
			zap.Int64("learner_id", learnerID),
			zap.String("symbol", symbol),
			zap.Error(err))
	}

	s.logger.Debug("Card reviewed",
		zap.Int64("learner_id", learnerID),
		zap.String("deck", deck),
		zap.String("symbol", symbol),
		zap.Bool("knew_it", knewIt),
		zap.Int("interval", card.Interval))
	return card, nil
}

// Progress returns the learner's progress on the current deck
func (s *Service) Progress(ctx context.Context, learnerID int64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(ctx, learnerID)
	if err != nil {
		return 0, err
	}
	return sess.scheduler.Progress(), nil
}

// Stats summarizes the learner's recent activity and deck progress
func (s *Service) Stats(ctx context.Context, learnerID int64) (models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(ctx, learnerID)
	if err != nil {
		return models.Activity{}, err
	}

	now := s.clock.Now()
	reviews, err := s.stores.Reviews.Since(ctx, learnerID, stats.WindowStart(now, s.cfg.Location))
	if err != nil {
		return models.Activity{}, err
	}

	activity := stats.Summarize(reviews, now, s.cfg.Location)
	activity.Progress = sess.scheduler.Progress()
	activity.Mastered = sess.scheduler.Mastered()
	activity.Cards = sess.scheduler.Len()

	summary, err := s.stores.QuizResults.Summary(ctx, learnerID)
	if err != nil {
		return models.Activity{}, err
	}
	activity.Quizzes = summary.Quizzes
	if summary.Questions > 0 {
		activity.QuizAccuracy = float64(summary.Correct) / float64(summary.Questions)
	}

	recent, err := s.stores.QuizResults.GetByLearner(ctx, learnerID, 1)
	if err != nil {
		return models.Activity{}, err
	}
	if len(recent) > 0 {
		activity.LastQuiz = &recent[0]
	}
	return activity, nil
}

// Reset discards all progress on the learner's current deck
func (s *Service) Reset(ctx context.Context, learnerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(ctx, learnerID)
	if err != nil {
		return err
	}

	items, err := s.registry.Items(sess.learner.Deck)
	if err != nil {
		return err
	}
	sess.scheduler.Initialize(items)
	if err := s.stores.Cards.SaveDeck(ctx, learnerID, sess.learner.Deck, sess.scheduler.Cards()); err != nil {
		// Reload the stored schedule on next use.
		delete(s.sessions, learnerID)
		return fmt.Errorf("failed to reset deck: %w", err)
	}

	s.logger.Info("Deck reset", zap.Int64("learner_id", learnerID), zap.String("deck", sess.learner.Deck))
	return nil
}

// SetNotifications turns reminders on or off for a learner
func (s *Service) SetNotifications(ctx context.Context, learnerID int64, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	learner, err := s.loadLearner(ctx, learnerID)
	if err != nil {
		return err
	}
	return s.updateLearner(ctx, learner, func(l *models.Learner) {
		l.NotificationsEnabled = enabled
	})
}

// SetToken stores the learner's session token; an empty token logs out
func (s *Service) SetToken(ctx context.Context, learnerID int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	learner, err := s.loadLearner(ctx, learnerID)
	if err != nil {
		return err
	}
	return s.updateLearner(ctx, learner, func(l *models.Learner) {
		l.Token = token
	})
}

// StartQuiz begins a quiz over the learner's current deck, replacing any running one
func (s *Service) StartQuiz(ctx context.Context, learnerID int64, kind quiz.Kind) (QuizStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(ctx, learnerID)
	if err != nil {
		return QuizStep{}, err
	}
	items, err := s.registry.Items(sess.learner.Deck)
	if err != nil {
		return QuizStep{}, err
	}

	q, err := quiz.New(items, quiz.Options{
		Deck:   sess.learner.Deck,
		Kind:   kind,
		Length: s.cfg.QuizLength,
		Rand:   s.rnd,
		Clock:  s.clock,
	})
	if err != nil {
		return QuizStep{}, err
	}
	sess.quiz = q

	question, _ := q.Current()
	return QuizStep{Next: &question, Total: q.Len()}, nil
}

// StartGeneratedQuiz begins a test over prepared questions, replacing any
// running quiz. label names the test in the saved result.
func (s *Service) StartGeneratedQuiz(ctx context.Context, learnerID int64, label string, questions []quiz.Question) (QuizStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(ctx, learnerID)
	if err != nil {
		return QuizStep{}, err
	}

	q, err := quiz.FromQuestions(questions, quiz.Options{Deck: label, Clock: s.clock})
	if err != nil {
		return QuizStep{}, err
	}
	sess.quiz = q

	question, _ := q.Current()
	return QuizStep{Next: &question, Total: q.Len()}, nil
}

// QuizRunning reports whether the learner is in the middle of a quiz
func (s *Service) QuizRunning(learnerID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[learnerID]
	return ok && sess.quiz != nil
}

// QuizStep is the state of a quiz after starting it or answering a question
type QuizStep struct {
	Verdict  quiz.Verdict       // Zero when the quiz just started
	Next     *quiz.Question     // nil once the quiz is over
	Result   *models.QuizResult // Set once the quiz is over
	Position int                // Questions answered so far
	Total    int
}

// AnswerQuiz grades an answer to the running quiz. The finished quiz is saved.
func (s *Service) AnswerQuiz(ctx context.Context, learnerID int64, input string) (QuizStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[learnerID]
	if !ok || sess.quiz == nil {
		return QuizStep{}, ErrNoQuiz
	}

	verdict, err := sess.quiz.Answer(input)
	if err != nil {
		return QuizStep{}, err
	}
	return s.advanceQuiz(ctx, learnerID, sess, verdict)
}

// AnswerQuizOption grades the option at index of the question at position.
// Answers to any other than the current question fail with ErrStaleAnswer.
func (s *Service) AnswerQuizOption(ctx context.Context, learnerID int64, position, option int) (QuizStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[learnerID]
	if !ok || sess.quiz == nil {
		return QuizStep{}, ErrNoQuiz
	}
	if position != sess.quiz.Position() {
		return QuizStep{}, ErrStaleAnswer
	}

	verdict, err := sess.quiz.AnswerOption(option)
	if err != nil {
		return QuizStep{}, err
	}
	return s.advanceQuiz(ctx, learnerID, sess, verdict)
}

// advanceQuiz reports the next question, or saves the result of a finished quiz
func (s *Service) advanceQuiz(ctx context.Context, learnerID int64, sess *session, verdict quiz.Verdict) (QuizStep, error) {
	q := sess.quiz
	step := QuizStep{Verdict: verdict, Position: q.Position(), Total: q.Len()}
	if next, ok := q.Current(); ok {
		step.Next = &next
		return step, nil
	}

	sess.quiz = nil
	result := q.Result()
	result.LearnerID = learnerID
	step.Result = &result
	if err := s.stores.QuizResults.Create(ctx, &result); err != nil {
		return step, fmt.Errorf("failed to save quiz result: %w", err)
	}
	return step, nil
}

// QuizHistory returns the learner's most recent quiz results, newest first
func (s *Service) QuizHistory(ctx context.Context, learnerID int64, limit int) ([]models.QuizResult, error) {
	return s.stores.QuizResults.GetByLearner(ctx, learnerID, limit)
}

// DeckItems returns the items of deck, or of the learner's current deck when
// deck is empty, together with the deck name
func (s *Service) DeckItems(ctx context.Context, learnerID int64, deck string) (string, []models.Item, error) {
	if deck == "" {
		s.mu.Lock()
		learner, err := s.loadLearner(ctx, learnerID)
		if err != nil {
			s.mu.Unlock()
			return "", nil, err
		}
		deck = learner.Deck
		s.mu.Unlock()
	}

	items, err := s.registry.Items(deck)
	if err != nil {
		return "", nil, err
	}
	return deck, items, nil
}

// StopQuiz abandons the running quiz without saving it
func (s *Service) StopQuiz(learnerID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[learnerID]
	if !ok || sess.quiz == nil {
		return false
	}
	sess.quiz = nil
	return true
}

// session returns the learner's open session, restoring the saved deck on first use
func (s *Service) session(ctx context.Context, learnerID int64) (*session, error) {
	if sess, ok := s.sessions[learnerID]; ok {
		return sess, nil
	}

	learner, err := s.loadLearner(ctx, learnerID)
	if err != nil {
		return nil, err
	}

	deck := learner.Deck
	if !s.registry.Has(deck) {
		s.logger.Warn("Saved deck no longer available, using default",
			zap.Int64("learner_id", learnerID),
			zap.String("deck", deck),
			zap.String("default", s.cfg.DefaultDeck))
		deck = s.cfg.DefaultDeck
	}
	return s.open(ctx, learnerID, deck)
}

func (s *Service) open(ctx context.Context, learnerID int64, deck string) (*session, error) {
	if deck == "" {
		return nil, ErrNoDeck
	}
	items, err := s.registry.Items(deck)
	if err != nil {
		return nil, err
	}

	learner, err := s.loadLearner(ctx, learnerID)
	if err != nil {
		return nil, err
	}

	saved, err := s.stores.Cards.LoadDeck(ctx, learnerID, deck)
	if err != nil {
		return nil, err
	}

	scheduler, err := spaced_repetition.NewScheduler(spaced_repetition.Config{
		Clock:       s.clock,
		ProgressCap: s.cfg.ProgressCap,
	})
	if err != nil {
		return nil, err
	}

	cards, changed := reconcile(items, saved, s.clock.Now())
	if err := scheduler.Restore(cards); err != nil {
		s.logger.Warn("Saved cards rejected, starting fresh",
			zap.Int64("learner_id", learnerID),
			zap.String("deck", deck),
			zap.Error(err))
		scheduler.Initialize(items)
		changed = true
	}
	if changed {
		if err := s.stores.Cards.SaveDeck(ctx, learnerID, deck, scheduler.Cards()); err != nil {
			return nil, fmt.Errorf("failed to save deck: %w", err)
		}
	}

	sess := &session{learner: learner, scheduler: scheduler}
	if prev, ok := s.sessions[learnerID]; ok && prev.learner.Deck == deck {
		sess.quiz = prev.quiz
	}

	if learner.Deck != deck {
		if err := s.updateLearner(ctx, learner, func(l *models.Learner) {
			l.Deck = deck
		}); err != nil {
			return nil, err
		}
	}
	s.sessions[learnerID] = sess

	s.logger.Info("Deck opened",
		zap.Int64("learner_id", learnerID),
		zap.String("deck", deck),
		zap.Int("cards", scheduler.Len()),
		zap.Int("due", scheduler.DueCount()))
	return sess, nil
}

// loadLearner returns the cached or stored learner, creating it when unknown
func (s *Service) loadLearner(ctx context.Context, learnerID int64) (*models.Learner, error) {
	if sess, ok := s.sessions[learnerID]; ok {
		return sess.learner, nil
	}

	learner, err := s.stores.Learners.GetByID(ctx, learnerID)
	if err == nil {
		return learner, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	now := s.clock.Now()
	learner = &models.Learner{
		ID:                   learnerID,
		Deck:                 s.cfg.DefaultDeck,
		NotificationsEnabled: true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.stores.Learners.Upsert(ctx, learner); err != nil {
		return nil, err
	}
	s.logger.Info("Learner registered", zap.Int64("learner_id", learnerID))
	return learner, nil
}

// updateLearner saves a changed copy of learner and applies it only once stored
func (s *Service) updateLearner(ctx context.Context, learner *models.Learner, update func(*models.Learner)) error {
	updated := *learner
	update(&updated)
	updated.UpdatedAt = s.clock.Now()
	if err := s.stores.Learners.Upsert(ctx, &updated); err != nil {
		return fmt.Errorf("failed to save learner: %w", err)
	}
	*learner = updated
	return nil
}

// reconcile lines saved cards up with the catalog. The catalog decides order
// and item text; saved cards only contribute their schedule.
func reconcile(items []models.Item, saved []models.Card, now time.Time) ([]models.Card, bool) {
	bySymbol := make(map[string]models.Card, len(saved))
	for _, card := range saved {
		bySymbol[card.Symbol] = card
	}

	changed := len(saved) != len(items)
	cards := make([]models.Card, 0, len(items))
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		if seen[item.Symbol] {
			continue
		}
		seen[item.Symbol] = true

		prev, ok := bySymbol[item.Symbol]
		if !ok {
			changed = true
			cards = append(cards, models.Card{Item: item, NextReviewAt: now})
			continue
		}
		if prev.Item != item || i >= len(saved) || saved[i].Symbol != item.Symbol {
			changed = true
		}
		cards = append(cards, models.Card{Item: item, Interval: prev.Interval, NextReviewAt: prev.NextReviewAt})
	}
	return cards, changed
}
