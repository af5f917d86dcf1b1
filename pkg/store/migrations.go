package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one forward-only, named, idempotent schema step.
type migration struct {
	name string
	sql  string
}

// migrationManager applies migrations in order, tracking which have run in
// a `migrations` bookkeeping table so Open is safe to call repeatedly.
type migrationManager struct {
	db *sql.DB
}

func newMigrationManager(db *sql.DB) *migrationManager {
	return &migrationManager{db: db}
}

func (m *migrationManager) run(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			name       TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)
	`); err != nil {
		return fmt.Errorf("store: create migrations table: %w", err)
	}

	for _, mig := range migrationList {
		applied, err := m.hasRun(ctx, mig.name)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("store: begin migration %q: %w", mig.name, err)
		}
		if _, err := tx.ExecContext(ctx, mig.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: apply migration %q: %w", mig.name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO migrations (name) VALUES (?)`, mig.name); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: record migration %q: %w", mig.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("store: commit migration %q: %w", mig.name, err)
		}
	}

	return nil
}

func (m *migrationManager) hasRun(ctx context.Context, name string) (bool, error) {
	var count int
	err := m.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM migrations WHERE name = ?`, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("store: check migration %q: %w", name, err)
	}
	return count > 0, nil
}

var migrationList = []migration{
	{
		name: "0001_initial_schema",
		sql: `
			CREATE TABLE IF NOT EXISTS folders (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL,
				folder_type TEXT NOT NULL CHECK (folder_type IN ('session','file')),
				color       TEXT NOT NULL DEFAULT '',
				sort_order  INTEGER NOT NULL DEFAULT 0,
				created_at  TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS sessions (
				id           TEXT PRIMARY KEY,
				title        TEXT NOT NULL,
				model_config TEXT NOT NULL,
				folder_id    TEXT REFERENCES folders(id) ON DELETE SET NULL,
				is_favorite  INTEGER NOT NULL DEFAULT 0,
				sort_order   INTEGER,
				created_at   TEXT NOT NULL,
				updated_at   TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS messages (
				id         TEXT PRIMARY KEY,
				session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				role       TEXT NOT NULL CHECK (role IN ('user','assistant','system')),
				content    TEXT NOT NULL,
				tokens     INTEGER,
				created_at TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);

			CREATE TABLE IF NOT EXISTS library_files (
				id          TEXT PRIMARY KEY,
				folder_id   TEXT REFERENCES folders(id) ON DELETE SET NULL,
				name        TEXT NOT NULL,
				file_type   TEXT NOT NULL,
				size_bytes  INTEGER NOT NULL DEFAULT 0,
				is_indexed  INTEGER NOT NULL DEFAULT 0,
				created_at  TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS session_files (
				session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				file_id    TEXT NOT NULL REFERENCES library_files(id) ON DELETE CASCADE,
				added_at   TEXT NOT NULL,
				PRIMARY KEY (session_id, file_id)
			);
		`,
	},
}
