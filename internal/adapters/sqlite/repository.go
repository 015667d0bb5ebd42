package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gridBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.BotRepository and ports.JournalRepository using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/grid_bot.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL for concurrent readers, foreign keys for cascade deletes of bot children.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// One writer at a time; engines queue on the pool instead of on SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := NewWithDB(db, cfg.Logger)
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// NewWithDB wraps an already opened database. The schema is not touched.
func NewWithDB(db *sql.DB, logger ports.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS bots (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		symbol TEXT NOT NULL,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		capital REAL NOT NULL,
		buy_percentage REAL NOT NULL,
		buy_drop_percent REAL NOT NULL,
		sell_profit_percent REAL NOT NULL,
		stop_loss_percent REAL NOT NULL DEFAULT 0,
		take_profit_percent REAL NOT NULL DEFAULT 0,
		trailing_stop_percent REAL NOT NULL DEFAULT 0,
		max_positions INTEGER NOT NULL DEFAULT 0,
		max_daily_loss REAL NOT NULL DEFAULT 0,
		highest_price_seen REAL NOT NULL DEFAULT 0,
		last_price REAL NOT NULL DEFAULT 0,
		total_profit REAL NOT NULL DEFAULT 0,
		total_buys INTEGER NOT NULL DEFAULT 0,
		total_sells INTEGER NOT NULL DEFAULT 0,
		total_runtime_seconds INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMP NULL,
		last_activity_at TIMESTAMP NULL,
		credentials TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		bot_id TEXT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
		symbol TEXT NOT NULL,
		amount REAL NOT NULL CHECK (amount > 0),
		entry_price REAL NOT NULL,
		status TEXT NOT NULL,
		current_price REAL NULL,
		pnl REAL NULL,
		created_at TIMESTAMP NOT NULL,
		close_requested INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		bot_id TEXT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		amount REAL NOT NULL,
		price REAL NOT NULL,
		total REAL NOT NULL,
		profit REAL NULL,
		order_id TEXT NULL,
		timestamp TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bot_logs (
		id TEXT PRIMARY KEY,
		bot_id TEXT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		bot_id TEXT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		message TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL
	);
	-- Add indexes for common lookups
	CREATE INDEX IF NOT EXISTS idx_bots_status ON bots (status);
	CREATE INDEX IF NOT EXISTS idx_positions_bot_status ON positions (bot_id, status, created_at);
	CREATE INDEX IF NOT EXISTS idx_trades_bot_timestamp ON trades (bot_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_bot_logs_bot_timestamp ON bot_logs (bot_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_alerts_bot_timestamp ON alerts (bot_id, timestamp);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}

	// Databases created before manual close requests existed lack the column.
	_, err = r.db.ExecContext(ctx, `ALTER TABLE positions ADD COLUMN close_requested INTEGER NOT NULL DEFAULT 0`)
	if err != nil && !strings.Contains(err.Error(), "duplicate column name") {
		return fmt.Errorf("failed to add close_requested column: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
