package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"safepaw/internal/domain"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

const memoryPath = ":memory:"

// DB is the SQLite implementation of the booking store and caregiver directory.
type DB struct {
	*sql.DB
	path     string
	watchers *watchHub
	logger   *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	dsn := path
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == memoryPath {
		// every connection to :memory: is a separate database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, path: path, watchers: newWatchHub(), logger: logger}
	if err := db.createTables(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return db, nil
}

// Path is the file the database lives in.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			caregiver_id TEXT NOT NULL,
			status TEXT NOT NULL,
			service TEXT NOT NULL,
			start_date TEXT NOT NULL,
			start_time TEXT NOT NULL DEFAULT '',
			end_date TEXT NOT NULL,
			end_time TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			pet_type TEXT NOT NULL DEFAULT '',
			pet_name TEXT NOT NULL DEFAULT '',
			pet_age TEXT NOT NULL DEFAULT '',
			pet_weight TEXT NOT NULL DEFAULT '',
			friendly INTEGER NOT NULL DEFAULT 0,
			meds TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			photo_url TEXT NOT NULL DEFAULT '',
			price_in_cents INTEGER NOT NULL DEFAULT 0,
			payment_reference TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			accepted_at INTEGER,
			rejected_at INTEGER,
			cancelled_at INTEGER,
			pending_payment_at INTEGER,
			paid_at INTEGER,
			version INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_caregiver ON bookings(caregiver_id, created_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_owner ON bookings(owner_id, created_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,

		`CREATE TABLE IF NOT EXISTS caregivers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			city TEXT NOT NULL,
			city_key TEXT NOT NULL DEFAULT '',
			bio TEXT NOT NULL DEFAULT '',
			services TEXT NOT NULL DEFAULT '[]',
			service_prices TEXT NOT NULL DEFAULT '{}',
			min_price INTEGER NOT NULL DEFAULT 0,
			rating_avg REAL NOT NULL DEFAULT 0,
			rating_count INTEGER NOT NULL DEFAULT 0,
			photo_url TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", firstLine(query), err)
		}
	}

	if err := db.addColumn("caregivers", "city_key", `TEXT NOT NULL DEFAULT ''`); err != nil {
		return err
	}
	if err := db.backfillCityKeys(); err != nil {
		return fmt.Errorf("backfill city keys: %w", err)
	}
	if _, err := db.Exec(`DROP INDEX IF EXISTS idx_caregivers_city`); err != nil {
		return fmt.Errorf("drop city index: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_caregivers_city_key ON caregivers(city_key)`); err != nil {
		return fmt.Errorf("create city key index: %w", err)
	}
	return nil
}

// addColumn adds a column to tables created by an older schema.
func (db *DB) addColumn(table, column, definition string) error {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition)); err != nil {
		return fmt.Errorf("add %s.%s: %w", table, column, err)
	}
	return nil
}

// Ping reports whether the store can serve requests.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.PingContext(ctx); err != nil {
		return domain.Unavailable("sqlite", err)
	}
	return nil
}

// storeError maps driver failures to domain errors.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return domain.Unavailable("sqlite", fmt.Errorf("%s: %w", op, err))
	}
}

func firstLine(q string) string {
	q = strings.TrimSpace(q)
	if i := strings.IndexByte(q, '\n'); i >= 0 {
		return q[:i]
	}
	return q
}
