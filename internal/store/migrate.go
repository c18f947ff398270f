package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schema = map[string][]string{
	"postgres": {
		`CREATE TABLE IF NOT EXISTS books (
			id          BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL,
			publisher   TEXT NOT NULL,
			isbn        TEXT NOT NULL,
			author_id   BIGINT NULL,
			borrower_id BIGINT NULL,
			status      VARCHAR(16) NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_books_author_id ON books (author_id)`,
		`CREATE INDEX IF NOT EXISTS idx_books_borrower_id ON books (borrower_id)`,
		`CREATE TABLE IF NOT EXISTS book_events (
			id         BIGSERIAL PRIMARY KEY,
			book_id    BIGINT NOT NULL,
			event_type VARCHAR(32) NOT NULL,
			event_data JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_book_events_book_id ON book_events (book_id, id)`,
	},
	"sqlite3": {
		`PRAGMA journal_mode=WAL`,
		`CREATE TABLE IF NOT EXISTS books (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			title       TEXT NOT NULL,
			description TEXT NOT NULL,
			publisher   TEXT NOT NULL,
			isbn        TEXT NOT NULL,
			author_id   INTEGER NULL,
			borrower_id INTEGER NULL,
			status      TEXT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_books_author_id ON books (author_id)`,
		`CREATE INDEX IF NOT EXISTS idx_books_borrower_id ON books (borrower_id)`,
		`CREATE TABLE IF NOT EXISTS book_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			book_id    INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			event_data TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_book_events_book_id ON book_events (book_id, id)`,
	},
	// MySQL lacks CREATE INDEX IF NOT EXISTS, so indexes are declared inline.
	"mysql": {
		`CREATE TABLE IF NOT EXISTS books (
			id          BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			title       VARCHAR(1024) NOT NULL,
			description TEXT NOT NULL,
			publisher   VARCHAR(1024) NOT NULL,
			isbn        VARCHAR(64) NOT NULL,
			author_id   BIGINT NULL,
			borrower_id BIGINT NULL,
			status      VARCHAR(16) NULL,
			INDEX idx_books_author_id (author_id),
			INDEX idx_books_borrower_id (borrower_id)
		)`,
		`CREATE TABLE IF NOT EXISTS book_events (
			id         BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			book_id    BIGINT NOT NULL,
			event_type VARCHAR(32) NOT NULL,
			event_data JSON NOT NULL,
			created_at DATETIME(6) NOT NULL,
			INDEX idx_book_events_book_id (book_id, id)
		)`,
	},
}

// Migrate creates the tables and indexes if they do not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	name, err := dialectName(db.DriverName())
	if err != nil {
		return err
	}

	for i, stmt := range schema[name] {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
