package spaced_repetition

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/example/kanadeck/pkg/models"
)

const (
	// DefaultProgressCap is the interval at which a card counts as fully learned
	DefaultProgressCap = 5
	// MaxInterval keeps interval doubling inside int range
	MaxInterval = math.MaxInt32
)

var (
	// ErrCardNotFound is returned when an outcome names a symbol outside the working set
	ErrCardNotFound = errors.New("spaced_repetition: card not found")
	// ErrInvalidCard is returned by Restore for malformed saved cards
	ErrInvalidCard = errors.New("spaced_repetition: invalid card")
)

// Config configures a Scheduler. Zero values select defaults.
type Config struct {
	Clock       Clock // nil → SystemClock
	ProgressCap int   // zero → DefaultProgressCap
}

// Scheduler keeps one card per catalog item and decides which card is due.
//
// Intervals double on every successful review (1, 2, 4, 8 ... days) and drop
// back to zero on a failed one. A Scheduler is not safe for concurrent use;
// callers serialize access.
type Scheduler struct {
	clock       Clock
	progressCap int
	cards       []models.Card  // Catalog order
	index       map[string]int // Symbol → position in cards
}

// NewScheduler creates a Scheduler with an empty working set
func NewScheduler(cfg Config) (*Scheduler, error) {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}

	progressCap := cfg.ProgressCap
	if progressCap == 0 {
		progressCap = DefaultProgressCap
	}
	if progressCap < 0 {
		return nil, fmt.Errorf("spaced_repetition: progress cap %d must be positive", progressCap)
	}

	return &Scheduler{
		clock:       clock,
		progressCap: progressCap,
		index:       make(map[string]int),
	}, nil
}

// Initialize replaces the working set with fresh cards that are due immediately.
// When a symbol occurs more than once only its first item is kept.
func (s *Scheduler) Initialize(items []models.Item) {
	now := s.clock.Now()

	cards := make([]models.Card, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if _, exists := index[item.Symbol]; exists {
			continue
		}
		index[item.Symbol] = len(cards)
		cards = append(cards, models.Card{
			Item:         item,
			Interval:     0,
			NextReviewAt: now,
		})
	}

	s.cards = cards
	s.index = index
}

// Restore replaces the working set with previously saved cards, keeping their order.
// The working set is left untouched when any card is invalid.
func (s *Scheduler) Restore(saved []models.Card) error {
	cards := make([]models.Card, 0, len(saved))
	index := make(map[string]int, len(saved))
	for i, card := range saved {
		switch {
		case card.Symbol == "":
			return fmt.Errorf("%w: card %d has no symbol", ErrInvalidCard, i)
		case card.Interval < 0:
			return fmt.Errorf("%w: card %q has negative interval %d", ErrInvalidCard, card.Symbol, card.Interval)
		}
		if _, exists := index[card.Symbol]; exists {
			return fmt.Errorf("%w: duplicate symbol %q", ErrInvalidCard, card.Symbol)
		}
		index[card.Symbol] = len(cards)
		cards = append(cards, card)
	}

	s.cards = cards
	s.index = index
	return nil
}

// NextDue returns the card to present now.
// Among due cards the one with the earliest NextReviewAt wins, then catalog order.
func (s *Scheduler) NextDue() (models.Card, bool) {
	now := s.clock.Now()

	best := -1
	for i := range s.cards {
		if !s.cards[i].IsDue(now) {
			continue
		}
		if best < 0 || s.cards[i].NextReviewAt.Before(s.cards[best].NextReviewAt) {
			best = i
		}
	}
	if best < 0 {
		return models.Card{}, false
	}
	return s.cards[best], true
}

// DueCards returns up to limit due cards in presentation order; limit <= 0 means all
func (s *Scheduler) DueCards(limit int) []models.Card {
	now := s.clock.Now()

	var due []models.Card
	for _, card := range s.cards {
		if card.IsDue(now) {
			due = append(due, card)
		}
	}

	// Stable sort keeps catalog order between equal timestamps
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].NextReviewAt.Before(due[j].NextReviewAt)
	})

	if limit > 0 && len(due) > limit {
		return due[:limit]
	}
	return due
}

// DueCount returns the number of cards due now
func (s *Scheduler) DueCount() int {
	now := s.clock.Now()
	count := 0
	for _, card := range s.cards {
		if card.IsDue(now) {
			count++
		}
	}
	return count
}

// RecordOutcome applies a review outcome to the card with the given symbol.
//
// A known card moves to interval 1 from 0, otherwise its interval doubles, and
// it is scheduled that many days ahead. An unknown card resets to interval 0
// and is due again at once.
func (s *Scheduler) RecordOutcome(symbol string, knewIt bool) (models.Card, error) {
	i, ok := s.index[symbol]
	if !ok {
		return models.Card{}, fmt.Errorf("%w: %q", ErrCardNotFound, symbol)
	}

	now := s.clock.Now()
	card := s.cards[i]

	if knewIt {
		card.Interval = nextInterval(card.Interval)
		card.NextReviewAt = now.AddDate(0, 0, card.Interval)
	} else {
		card.Interval = 0
		card.NextReviewAt = now
	}

	s.cards[i] = card
	return card, nil
}

// Progress returns the share of capped interval points earned across all cards, in [0,1]
func (s *Scheduler) Progress() float64 {
	if len(s.cards) == 0 {
		return 0
	}

	total := 0
	for _, card := range s.cards {
		total += min(card.Interval, s.progressCap)
	}
	return float64(total) / float64(len(s.cards)*s.progressCap)
}

// IsMastered reports whether the card's interval has reached the progress cap
func (s *Scheduler) IsMastered(card models.Card) bool {
	return card.Interval >= s.progressCap
}

// Mastered returns the number of mastered cards
func (s *Scheduler) Mastered() int {
	count := 0
	for _, card := range s.cards {
		if s.IsMastered(card) {
			count++
		}
	}
	return count
}

// Card returns the card for a symbol
func (s *Scheduler) Card(symbol string) (models.Card, bool) {
	i, ok := s.index[symbol]
	if !ok {
		return models.Card{}, false
	}
	return s.cards[i], true
}

// Cards returns a copy of the working set in catalog order
func (s *Scheduler) Cards() []models.Card {
	out := make([]models.Card, len(s.cards))
	copy(out, s.cards)
	return out
}

// Len returns the number of cards in the working set
func (s *Scheduler) Len() int {
	return len(s.cards)
}

// nextInterval doubles an interval, starting at one day and saturating at MaxInterval
func nextInterval(interval int) int {
	switch {
	case interval <= 0:
		return 1
	case interval > MaxInterval/2:
		return MaxInterval
	default:
		return interval * 2
	}
}
