package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/storage"
	_ "modernc.org/sqlite"
)

// Store implements the storage.Store interface using SQLite.
type Store struct {
	db *sql.DB
}

// Open opens a SQLite-backed store and runs migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := storage.EnsureDir(dir); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Rules returns the site rule store.
func (s *Store) Rules() storage.RuleStore { return &ruleStore{db: s.db} }

// Usage returns the usage ledger store.
func (s *Store) Usage() storage.UsageStore { return &usageStore{db: s.db} }

// Notes returns the note store.
func (s *Store) Notes() storage.NoteStore { return &noteStore{db: s.db} }

// Blocks returns the block event store.
func (s *Store) Blocks() storage.BlockStore { return &blockStore{db: s.db} }

// AdminUsers returns the admin user store.
func (s *Store) AdminUsers() storage.AdminUserStore { return &adminUserStore{db: s.db} }

// runMigrations applies all database migrations in version order.
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("get current migration version: %w", err)
	}

	for version := currentVersion + 1; version <= len(migrations); version++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(migrations[version-1]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", version, err)
		}
	}

	return nil
}

// migrations holds the schema in version order. Entries are append-only.
var migrations = []string{
	migration001SiteRules,
	migration002DailyUsage,
	migration003Notes,
	migration004BlockEvents,
	migration005AdminUsers,
}

const migration001SiteRules = `
CREATE TABLE IF NOT EXISTS site_rules (
	id TEXT PRIMARY KEY,
	pattern TEXT NOT NULL,
	daily_time_limit_seconds INTEGER NOT NULL DEFAULT 0,
	daily_open_limit INTEGER NOT NULL DEFAULT 0,
	enabled INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX idx_site_rules_enabled ON site_rules(enabled);
`

const migration002DailyUsage = `
CREATE TABLE IF NOT EXISTS daily_usage (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL,
	site_id TEXT NOT NULL,
	time_spent_seconds INTEGER NOT NULL DEFAULT 0,
	opens INTEGER NOT NULL DEFAULT 0,
	UNIQUE(date, site_id)
);

CREATE INDEX idx_daily_usage_date ON daily_usage(date);
`

const migration003Notes = `
CREATE TABLE IF NOT EXISTS notes (
	id TEXT PRIMARY KEY,
	text TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

const migration004BlockEvents = `
CREATE TABLE IF NOT EXISTS block_events (
	id TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	site_id TEXT NOT NULL,
	url TEXT NOT NULL,
	limit_type TEXT NOT NULL,
	reason TEXT NOT NULL
);

CREATE INDEX idx_block_events_timestamp ON block_events(timestamp);
CREATE INDEX idx_block_events_site ON block_events(site_id, timestamp);
`

const migration005AdminUsers = `
CREATE TABLE IF NOT EXISTS admin_users (
	username TEXT PRIMARY KEY,
	id TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	last_login TEXT
);
`

// timeFormat keeps a fixed-width fraction so TEXT comparisons order correctly.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}
