package database

import (
	"context"
	"fmt"
	"time"

	"github.com/example/kanadeck/pkg/models"
	"github.com/jmoiron/sqlx"
)

// ReviewRepository handles database operations for the review log
type ReviewRepository struct {
	db *sqlx.DB
}

// NewReviewRepository creates a new repository instance
func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create appends a review to the log
func (r *ReviewRepository) Create(ctx context.Context, review *models.Review) error {
	id, err := insertReturningID(ctx, r.db, `
		INSERT INTO reviews (
			learner_id, deck, symbol, knew_it, interval_days, reviewed_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		review.LearnerID,
		review.Deck,
		review.Symbol,
		review.KnewIt,
		review.Interval,
		review.ReviewedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create review: %w", err)
	}
	review.ID = id
	return nil
}

// Since returns a learner's reviews at or after the given time, oldest first
func (r *ReviewRepository) Since(ctx context.Context, learnerID int64, since time.Time) ([]models.Review, error) {
	query := r.db.Rebind(`
		SELECT id, learner_id, deck, symbol, knew_it, interval_days, reviewed_at
		FROM reviews
		WHERE learner_id = ? AND reviewed_at >= ?
		ORDER BY reviewed_at ASC, id ASC
	`)
	var reviews []models.Review
	if err := r.db.SelectContext(ctx, &reviews, query, learnerID, since.UTC()); err != nil {
		return nil, fmt.Errorf("failed to get reviews: %w", err)
	}
	return reviews, nil
}
