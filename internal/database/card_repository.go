package database

import (
	"context"
	"fmt"
	"time"

	"github.com/example/kanadeck/pkg/models"
	"github.com/jmoiron/sqlx"
)

// CardRepository handles database operations for scheduled cards
type CardRepository struct {
	db *sqlx.DB
}

// NewCardRepository creates a new repository instance
func NewCardRepository(db *sqlx.DB) *CardRepository {
	return &CardRepository{db: db}
}

// SaveDeck replaces the saved cards of a learner's deck, keeping the given order
func (r *CardRepository) SaveDeck(ctx context.Context, learnerID int64, deck string, cards []models.Card) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM cards WHERE learner_id = ? AND deck = ?"), learnerID, deck); err != nil {
		return fmt.Errorf("failed to clear deck: %w", err)
	}

	insert := tx.Rebind(`
		INSERT INTO cards (
			learner_id, deck, position, symbol, transliteration,
			category, interval_days, next_review_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	for i, card := range cards {
		_, err := tx.ExecContext(ctx, insert,
			learnerID,
			deck,
			i,
			card.Symbol,
			card.Transliteration,
			card.Category,
			card.Interval,
			card.NextReviewAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to save card %q: %w", card.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deck: %w", err)
	}
	return nil
}

// LoadDeck returns the saved cards of a learner's deck in catalog order
func (r *CardRepository) LoadDeck(ctx context.Context, learnerID int64, deck string) ([]models.Card, error) {
	query := r.db.Rebind(`
		SELECT symbol, transliteration, category, interval_days, next_review_at
		FROM cards
		WHERE learner_id = ? AND deck = ?
		ORDER BY position ASC
	`)
	var cards []models.Card
	if err := r.db.SelectContext(ctx, &cards, query, learnerID, deck); err != nil {
		return nil, fmt.Errorf("failed to load deck: %w", err)
	}
	return cards, nil
}

// SaveCard updates the schedule of one saved card
func (r *CardRepository) SaveCard(ctx context.Context, learnerID int64, deck string, card models.Card) error {
	query := r.db.Rebind(`
		UPDATE cards SET
			interval_days = ?,
			next_review_at = ?
		WHERE learner_id = ? AND deck = ? AND symbol = ?
	`)
	result, err := r.db.ExecContext(ctx, query,
		card.Interval,
		card.NextReviewAt.UTC(),
		learnerID,
		deck,
		card.Symbol,
	)
	if err != nil {
		return fmt.Errorf("failed to update card: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: card %q in deck %s", ErrNotFound, card.Symbol, deck)
	}
	return nil
}

// DueCounts returns, per learner with notifications enabled, the number of
// cards in the active deck that are due at now
func (r *CardRepository) DueCounts(ctx context.Context, now time.Time) (map[int64]int, error) {
	query := r.db.Rebind(`
		SELECT c.learner_id AS learner_id, COUNT(*) AS due
		FROM cards c
		JOIN learners l ON l.id = c.learner_id AND l.deck = c.deck
		WHERE l.notifications_enabled = ? AND c.next_review_at <= ?
		GROUP BY c.learner_id
	`)
	var rows []struct {
		LearnerID int64 `db:"learner_id"`
		Due       int   `db:"due"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, true, now.UTC()); err != nil {
		return nil, fmt.Errorf("failed to count due cards: %w", err)
	}

	counts := make(map[int64]int, len(rows))
	for _, row := range rows {
		counts[row.LearnerID] = row.Due
	}
	return counts, nil
}
