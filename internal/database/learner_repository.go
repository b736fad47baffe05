package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/kanadeck/pkg/models"
	"github.com/jmoiron/sqlx"
)

// LearnerRepository handles database operations for learners
type LearnerRepository struct {
	db *sqlx.DB
}

// NewLearnerRepository creates a new repository instance
func NewLearnerRepository(db *sqlx.DB) *LearnerRepository {
	return &LearnerRepository{db: db}
}

// GetByID returns a learner by chat ID
func (r *LearnerRepository) GetByID(ctx context.Context, id int64) (*models.Learner, error) {
	query := r.db.Rebind(`
		SELECT id, deck, token, notifications_enabled, created_at, updated_at
		FROM learners
		WHERE id = ?
	`)
	var learner models.Learner
	err := r.db.GetContext(ctx, &learner, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: learner %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get learner: %w", err)
	}
	return &learner, nil
}

// Upsert creates the learner or updates its deck, token and notification flag
func (r *LearnerRepository) Upsert(ctx context.Context, learner *models.Learner) error {
	query := r.db.Rebind(`
		INSERT INTO learners (
			id, deck, token, notifications_enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			deck = excluded.deck,
			token = excluded.token,
			notifications_enabled = excluded.notifications_enabled,
			updated_at = excluded.updated_at
	`)
	_, err := r.db.ExecContext(ctx, query,
		learner.ID,
		learner.Deck,
		learner.Token,
		learner.NotificationsEnabled,
		learner.CreatedAt.UTC(),
		learner.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save learner: %w", err)
	}
	return nil
}
