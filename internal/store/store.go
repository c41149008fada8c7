// Package store persists turma state in SQLite: games, group membership
// snapshots, command toggles and usage, the message log and chat history.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/alekspetrov/turma/internal/clock"
	"github.com/alekspetrov/turma/internal/logging"
)

// Drivers.
const (
	DriverSQLite = "sqlite"  // modernc.org/sqlite, pure Go
	DriverCGO    = "sqlite3" // github.com/mattn/go-sqlite3
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Config holds persistence settings.
type Config struct {
	Driver  string        `yaml:"driver"`
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"` // per operation
}

// DefaultConfig returns the persistence defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Driver:  DriverSQLite,
		Path:    filepath.Join(home, ".turma", "turma.db"),
		Timeout: 5 * time.Second,
	}
}

// Validate checks the persistence settings.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverSQLite, DriverCGO:
	default:
		return fmt.Errorf("unknown store driver %q (want %s or %s)", c.Driver, DriverSQLite, DriverCGO)
	}
	if c.Path == "" {
		return fmt.Errorf("store path is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("store timeout must be positive")
	}
	return nil
}

// Store is the SQLite-backed persistence layer.
type Store struct {
	db      *sql.DB
	timeout time.Duration
	clock   clock.Clock
	log     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for bookkeeping timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = clock.Or(c) }
}

// Open opens the database described by cfg and runs migrations.
func Open(cfg *Config, opts ...Option) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps an
	// in-memory database alive across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout=5000; PRAGMA foreign_keys=ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set database pragmas: %w", err)
	}

	s := &Store{
		db:      db,
		timeout: cfg.Timeout,
		clock:   clock.Real{},
		log:     logging.WithComponent("store"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// OpenMemory opens an in-memory database with the pure Go driver.
func OpenMemory(opts ...Option) (*Store, error) {
	return Open(&Config{Driver: DriverSQLite, Path: MemoryPath, Timeout: 5 * time.Second}, opts...)
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS games (
			id TEXT PRIMARY KEY,
			group_id TEXT NOT NULL,
			variant TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			activator_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_games_active ON games(group_id, variant) WHERE active = 1`,
		`CREATE INDEX IF NOT EXISTS idx_games_group ON games(group_id, variant, created_at)`,
		`CREATE TABLE IF NOT EXISTS game_items (
			id TEXT PRIMARY KEY,
			game_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			media_kind TEXT NOT NULL DEFAULT '',
			media BLOB,
			caption TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			submitted_at INTEGER NOT NULL,
			revealed INTEGER NOT NULL DEFAULT 0,
			reveal_order INTEGER NOT NULL DEFAULT 0,
			message_ref TEXT NOT NULL DEFAULT '',
			revealed_at INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (game_id) REFERENCES games(id) ON DELETE CASCADE
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_items_pending ON game_items(game_id, sender_id) WHERE revealed = 0`,
		`CREATE INDEX IF NOT EXISTS idx_items_game ON game_items(game_id)`,
		`CREATE TABLE IF NOT EXISTS game_reactions (
			id TEXT PRIMARY KEY,
			game_id TEXT NOT NULL,
			item_id TEXT NOT NULL DEFAULT '',
			reactor_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			reacted_at INTEGER NOT NULL,
			FOREIGN KEY (game_id) REFERENCES games(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reactions_game ON game_reactions(game_id, reacted_at)`,
		`CREATE TABLE IF NOT EXISTS group_snapshots (
			group_id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			members TEXT NOT NULL DEFAULT '[]',
			admins TEXT NOT NULL DEFAULT '[]',
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS disabled_commands (
			group_id TEXT NOT NULL,
			command TEXT NOT NULL,
			disabled_at INTEGER NOT NULL,
			PRIMARY KEY (group_id, command)
		)`,
		`CREATE TABLE IF NOT EXISTS command_usage (
			chat_id TEXT NOT NULL,
			command TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			last_used INTEGER NOT NULL,
			PRIMARY KEY (chat_id, command)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			group_id TEXT NOT NULL DEFAULT '',
			route TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			media_kind TEXT NOT NULL DEFAULT '',
			at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, at)`,
		`CREATE TABLE IF NOT EXISTS chat_history (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT NOT NULL,
			role TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_chat ON chat_history(chat_id, seq)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// inTx runs fn in a transaction, committing when it returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Timestamps are stored as Unix milliseconds; zero means unset.
func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
