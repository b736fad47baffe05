package database

import (
	"context"
	"fmt"

	"github.com/example/kanadeck/pkg/models"
	"github.com/jmoiron/sqlx"
)

// QuizResultRepository handles database operations for quiz results
type QuizResultRepository struct {
	db *sqlx.DB
}

// NewQuizResultRepository creates a new repository instance
func NewQuizResultRepository(db *sqlx.DB) *QuizResultRepository {
	return &QuizResultRepository{db: db}
}

// QuizSummary aggregates all quiz results of a learner
type QuizSummary struct {
	Quizzes   int `db:"quizzes"`
	Questions int `db:"questions"`
	Correct   int `db:"correct"`
}

// Create inserts a new quiz result
func (r *QuizResultRepository) Create(ctx context.Context, result *models.QuizResult) error {
	id, err := insertReturningID(ctx, r.db, `
		INSERT INTO quiz_results (
			learner_id, deck, quiz_type, total, correct, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.LearnerID,
		result.Deck,
		result.QuizType,
		result.Total,
		result.Correct,
		result.StartedAt.UTC(),
		result.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create quiz result: %w", err)
	}
	result.ID = id
	return nil
}

// GetByLearner returns a learner's most recent quiz results, newest first
func (r *QuizResultRepository) GetByLearner(ctx context.Context, learnerID int64, limit int) ([]models.QuizResult, error) {
	query := r.db.Rebind(`
		SELECT id, learner_id, deck, quiz_type, total, correct, started_at, finished_at
		FROM quiz_results
		WHERE learner_id = ?
		ORDER BY finished_at DESC, id DESC
		LIMIT ?
	`)
	var results []models.QuizResult
	if err := r.db.SelectContext(ctx, &results, query, learnerID, limit); err != nil {
		return nil, fmt.Errorf("failed to get quiz results: %w", err)
	}
	return results, nil
}

// Summary returns totals over all quiz results of a learner
func (r *QuizResultRepository) Summary(ctx context.Context, learnerID int64) (QuizSummary, error) {
	query := r.db.Rebind(`
		SELECT COUNT(*) AS quizzes,
		       COALESCE(SUM(total), 0) AS questions,
		       COALESCE(SUM(correct), 0) AS correct
		FROM quiz_results
		WHERE learner_id = ?
	`)
	var summary QuizSummary
	if err := r.db.GetContext(ctx, &summary, query, learnerID); err != nil {
		return QuizSummary{}, fmt.Errorf("failed to summarize quiz results: %w", err)
	}
	return summary, nil
}
