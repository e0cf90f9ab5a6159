package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nvandessel/selfcorrect/internal/logging"
	"github.com/nvandessel/selfcorrect/internal/models"
)

// Document names in the documents table.
const (
	docPatterns = "patterns"
	docErrors   = "errors"
)

// SQLiteStore keeps the JSON documents in a documents table and the
// correction log in its own table.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the database at path and migrates it.
// The path ":memory:" opens a private in-memory database.
func NewSQLiteStore(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: in-memory databases are per connection, and the core
	// has a single writer anyway.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: logging.OrNop(logger)}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := s.runMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migration represents a single database migration.
type migration struct {
	version int
	name    string
	up      func(ctx context.Context) error
}

func (s *SQLiteStore) runMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	migrations := []migration{
		{version: 1, name: "initial_schema", up: s.migration001InitialSchema},
	}
	for _, m := range migrations {
		if version >= m.version {
			continue
		}
		s.logger.Debug("running migration", zap.Int("version", m.version), zap.String("name", m.name))
		if err := m.up(ctx); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLiteStore) migration001InitialSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			name TEXT PRIMARY KEY,
			body TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS correction_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			action TEXT NOT NULL,
			confidence REAL NOT NULL,
			detail TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create correction_log table: %w", err)
	}
	return nil
}

// LoadPatterns implements Store.
func (s *SQLiteStore) LoadPatterns(ctx context.Context) (models.PatternsDB, error) {
	db := models.NewPatternsDB()
	found, err := s.readDoc(ctx, docPatterns, &db)
	if err != nil || !found {
		return models.NewPatternsDB(), err
	}
	db.Normalize()
	return db, nil
}

// SavePatterns implements Store.
func (s *SQLiteStore) SavePatterns(ctx context.Context, db models.PatternsDB) error {
	return s.writeDoc(ctx, docPatterns, db)
}

// LoadErrors implements Store.
func (s *SQLiteStore) LoadErrors(ctx context.Context) (*models.ErrorsDB, error) {
	db := models.NewErrorsDB()
	found, err := s.readDoc(ctx, docErrors, db)
	if err != nil || !found {
		return models.NewErrorsDB(), err
	}
	db.Normalize()
	return db, nil
}

// SaveErrors implements Store.
func (s *SQLiteStore) SaveErrors(ctx context.Context, db *models.ErrorsDB) error {
	return s.writeDoc(ctx, docErrors, db)
}

// AppendLog implements Store.
func (s *SQLiteStore) AppendLog(ctx context.Context, entry models.LogEntry) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO correction_log (timestamp, action, confidence, detail) VALUES (?, ?, ?, ?)",
		entry.Timestamp.UTC().Format(time.RFC3339Nano), entry.Action, entry.Confidence, entry.Detail)
	if err != nil {
		return fmt.Errorf("append correction log: %w", err)
	}
	return nil
}

// LogEntries implements Store.
func (s *SQLiteStore) LogEntries(ctx context.Context) ([]models.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT timestamp, action, confidence, detail FROM correction_log ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query correction log: %w", err)
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		var (
			ts string
			e  models.LogEntry
		)
		if err := rows.Scan(&ts, &e.Action, &e.Confidence, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan correction log: %w", err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			s.logger.Warn("skipping log row with bad timestamp", zap.String("timestamp", ts))
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) readDoc(ctx context.Context, name string, v any) (bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx, "SELECT body FROM documents WHERE name = ?", name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read document %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	return true, nil
}

func (s *SQLiteStore) writeDoc(ctx context.Context, name string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (name, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, name, string(body), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("write document %s: %w", name, err)
	}
	return nil
}
