package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database types
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("database: not found")

// Connect opens a sqlite or postgres database and creates the schema
func Connect(dbType, dsn string) (*sqlx.DB, error) {
	var driver string
	switch dbType {
	case TypeSQLite:
		driver = "sqlite3"
		if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	case TypePostgres:
		driver = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dbType == TypeSQLite {
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		db.SetMaxOpenConns(1) // SQLite doesn't support multiple writers
		db.SetMaxIdleConns(1)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// initializeSchema creates necessary tables if they don't exist
func initializeSchema(db *sqlx.DB) error {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.DriverName() == "postgres" {
		idColumn = "BIGSERIAL PRIMARY KEY"
	}

	statements := []struct {
		name  string
		query string
	}{
		{"learners", `
			CREATE TABLE IF NOT EXISTS learners (
				id BIGINT PRIMARY KEY,
				deck TEXT NOT NULL,
				token TEXT NOT NULL DEFAULT '',
				notifications_enabled BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`},
		{"cards", `
			CREATE TABLE IF NOT EXISTS cards (
				learner_id BIGINT NOT NULL,
				deck TEXT NOT NULL,
				position INTEGER NOT NULL,
				symbol TEXT NOT NULL,
				transliteration TEXT NOT NULL,
				category TEXT NOT NULL DEFAULT '',
				interval_days INTEGER NOT NULL DEFAULT 0,
				next_review_at TIMESTAMP NOT NULL,
				PRIMARY KEY (learner_id, deck, symbol),
				FOREIGN KEY (learner_id) REFERENCES learners(id)
			)`},
		{"reviews", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS reviews (
				id %s,
				learner_id BIGINT NOT NULL,
				deck TEXT NOT NULL,
				symbol TEXT NOT NULL,
				knew_it BOOLEAN NOT NULL,
				interval_days INTEGER NOT NULL,
				reviewed_at TIMESTAMP NOT NULL,
				FOREIGN KEY (learner_id) REFERENCES learners(id)
			)`, idColumn)},
		{"reviews index", `CREATE INDEX IF NOT EXISTS idx_reviews_learner_time ON reviews (learner_id, reviewed_at)`},
		{"quiz_results", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS quiz_results (
				id %s,
				learner_id BIGINT NOT NULL,
				deck TEXT NOT NULL,
				quiz_type TEXT NOT NULL,
				total INTEGER NOT NULL,
				correct INTEGER NOT NULL,
				started_at TIMESTAMP NOT NULL,
				finished_at TIMESTAMP NOT NULL,
				FOREIGN KEY (learner_id) REFERENCES learners(id)
			)`, idColumn)},
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt.query); err != nil {
			return fmt.Errorf("failed to create %s table: %w", stmt.name, err)
		}
	}
	return nil
}

// insertReturningID runs an INSERT and returns the generated id.
// lib/pq has no LastInsertId, so postgres uses RETURNING instead.
func insertReturningID(ctx context.Context, db *sqlx.DB, query string, args ...interface{}) (int64, error) {
	if db.DriverName() == "postgres" {
		var id int64
		err := db.QueryRowxContext(ctx, db.Rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}

	result, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}
