package store

import (
	"context"
	"fmt"
)

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = 1

const metadataKeySchemaVersion = "schema_version"

// migrate runs database migrations.
func (s *Store) migrate(ctx context.Context) error {
	if err := s.createPageViewsTable(ctx); err != nil {
		return err
	}
	if err := s.createUsersTable(ctx); err != nil {
		return err
	}
	if err := s.createMetadataTable(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)",
		metadataKeySchemaVersion, fmt.Sprint(CurrentSchemaVersion),
	)
	if err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

func (s *Store) createPageViewsTable(ctx context.Context) error {
	// created_at default yields the same fixed-width layout as TimeFormat.
	const schema = `
	CREATE TABLE IF NOT EXISTS page_views (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		path              TEXT NOT NULL,
		visitor_id        TEXT NOT NULL,
		user_agent        TEXT,
		referrer          TEXT,
		screen_resolution TEXT,
		time_on_page      INTEGER NOT NULL DEFAULT 0 CHECK (time_on_page >= 0),
		created_at        TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%f', 'now') || '000000Z')
	);

	CREATE INDEX IF NOT EXISTS idx_page_views_path ON page_views(path);
	CREATE INDEX IF NOT EXISTS idx_page_views_created_at ON page_views(created_at);
	CREATE INDEX IF NOT EXISTS idx_page_views_visitor_id ON page_views(visitor_id);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create page_views table: %w", err)
	}
	return nil
}

func (s *Store) createUsersTable(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		email         TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL DEFAULT '',
		role          TEXT NOT NULL DEFAULT 'customer',
		password_hash TEXT NOT NULL,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL,
		last_login_at TEXT
	);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

func (s *Store) createMetadataTable(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS metadata (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create metadata table: %w", err)
	}
	return nil
}
