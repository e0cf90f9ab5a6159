// Package store persists the learning core's documents: the patterns store,
// the errors store and the append-only correction log. Backends implement
// Store; the Ledger owns the loaded documents for one process.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nvandessel/selfcorrect/internal/config"
	"github.com/nvandessel/selfcorrect/internal/models"
)

// ErrCorrupt is returned alongside empty default documents when a stored
// document cannot be decoded.
var ErrCorrupt = errors.New("corrupt document")

// Store defines load/save access to the persisted learning documents.
// Documents are loaded whole and rewritten whole.
type Store interface {
	// LoadPatterns returns the patterns store. A missing document yields an
	// empty store; a corrupt one yields an empty store and ErrCorrupt.
	LoadPatterns(ctx context.Context) (models.PatternsDB, error)
	SavePatterns(ctx context.Context, db models.PatternsDB) error

	// LoadErrors returns the errors store with the same fallback rules.
	LoadErrors(ctx context.Context) (*models.ErrorsDB, error)
	SaveErrors(ctx context.Context, db *models.ErrorsDB) error

	// Correction log
	AppendLog(ctx context.Context, entry models.LogEntry) error
	LogEntries(ctx context.Context) ([]models.LogEntry, error)

	Close() error
}

// Open returns the backend selected by backend for the project root.
func Open(ctx context.Context, root, backend string, logger *zap.Logger) (Store, error) {
	switch backend {
	case "", config.BackendJSON:
		return NewFileStore(DataDir(root))
	case config.BackendSQLite:
		return NewSQLiteStore(ctx, SQLitePath(root), logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// LogHeader starts every correction log file.
const LogHeader = "# Self-Correction Learning Log\n\n"

// FormatLogLine renders one correction log line, without a trailing newline.
func FormatLogLine(e models.LogEntry) string {
	return fmt.Sprintf("%s | %s | Confidence: %.1f%% | %s",
		e.Timestamp.UTC().Format(time.RFC3339), e.Action, e.Confidence*100, e.Detail)
}

// ParseLogLine parses a line written by FormatLogLine.
func ParseLogLine(line string) (models.LogEntry, error) {
	parts := strings.SplitN(line, " | ", 4)
	if len(parts) != 4 {
		return models.LogEntry{}, fmt.Errorf("malformed log line %q", line)
	}
	ts, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return models.LogEntry{}, fmt.Errorf("parse log timestamp: %w", err)
	}
	pct := strings.TrimSuffix(strings.TrimPrefix(parts[2], "Confidence: "), "%")
	conf, err := strconv.ParseFloat(pct, 64)
	if err != nil {
		return models.LogEntry{}, fmt.Errorf("parse log confidence: %w", err)
	}
	return models.LogEntry{
		Timestamp:  ts,
		Action:     parts[1],
		Confidence: conf / 100,
		Detail:     parts[3],
	}, nil
}
