package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nvandessel/selfcorrect/internal/config"
	"github.com/nvandessel/selfcorrect/internal/logging"
	"github.com/nvandessel/selfcorrect/internal/models"
	"github.com/nvandessel/selfcorrect/internal/sanitize"
)

// Ledger is the single in-process owner of the loaded learning documents.
// Every mutation runs under one mutex and is followed by a full rewrite of
// the affected document. Callbacks passed to View and Update methods must not
// call back into the Ledger.
type Ledger struct {
	mu       sync.Mutex
	store    Store
	caps     config.HistoryConfig
	logger   *zap.Logger
	patterns models.PatternsDB
	errs     *models.ErrorsDB
	now      func() time.Time
}

// NewLedger loads both documents from s. Corrupt documents are replaced by
// empty defaults and logged.
func NewLedger(ctx context.Context, s Store, caps config.HistoryConfig, logger *zap.Logger) (*Ledger, error) {
	l := &Ledger{
		store:  s,
		caps:   caps,
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
	if err := l.Reload(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// SetClock replaces the clock used to timestamp log entries.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Store returns the backing store.
func (l *Ledger) Store() Store { return l.store }

// Reload replaces the in-memory documents with the stored ones.
func (l *Ledger) Reload(ctx context.Context) error {
	patterns, err := l.store.LoadPatterns(ctx)
	if err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return fmt.Errorf("load patterns: %w", err)
		}
		l.logger.Warn("patterns store is corrupt, starting from empty defaults", zap.Error(err))
	}
	errs, err := l.store.LoadErrors(ctx)
	if err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return fmt.Errorf("load errors: %w", err)
		}
		l.logger.Warn("errors store is corrupt, starting from empty defaults", zap.Error(err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.patterns = patterns
	l.errs = errs
	return nil
}

// ViewPatterns runs fn with the patterns store under the lock.
func (l *Ledger) ViewPatterns(fn func(models.PatternsDB)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.patterns)
}

// UpdatePatterns runs fn under the lock and rewrites the patterns store.
// Nothing is saved when fn returns an error.
func (l *Ledger) UpdatePatterns(ctx context.Context, fn func(models.PatternsDB) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := fn(l.patterns); err != nil {
		return err
	}
	if err := l.store.SavePatterns(ctx, l.patterns); err != nil {
		return fmt.Errorf("save patterns: %w", err)
	}
	return nil
}

// ViewErrors runs fn with the errors store under the lock.
func (l *Ledger) ViewErrors(fn func(*models.ErrorsDB)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.errs)
}

// UpdateErrors runs fn under the lock, enforces the history caps and
// rewrites the errors store. Nothing is saved when fn returns an error.
func (l *Ledger) UpdateErrors(ctx context.Context, fn func(*models.ErrorsDB) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := fn(l.errs); err != nil {
		return err
	}
	l.applyCaps()
	if err := l.store.SaveErrors(ctx, l.errs); err != nil {
		return fmt.Errorf("save errors: %w", err)
	}
	return nil
}

// Flush rewrites both documents as they are held in memory. `selfcorrect
// init` uses it to materialize empty stores.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.SavePatterns(ctx, l.patterns); err != nil {
		return fmt.Errorf("save patterns: %w", err)
	}
	if err := l.store.SaveErrors(ctx, l.errs); err != nil {
		return fmt.Errorf("save errors: %w", err)
	}
	return nil
}

// Log appends one line to the correction log. A zero timestamp is replaced
// by the ledger clock.
func (l *Ledger) Log(ctx context.Context, entry models.LogEntry) error {
	l.mu.Lock()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}
	l.mu.Unlock()
	entry.Detail = sanitize.LogDetail(entry.Detail)
	if err := l.store.AppendLog(ctx, entry); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// LogEntries returns the correction log in append order.
func (l *Ledger) LogEntries(ctx context.Context) ([]models.LogEntry, error) {
	return l.store.LogEntries(ctx)
}

// applyCaps trims history and success patterns to their newest entries once
// they exceed their maximums. Caller must hold mu.
func (l *Ledger) applyCaps() {
	if max := l.caps.MaxActivities; max > 0 && len(l.errs.History) > max {
		keep := l.caps.TrimActivitiesTo
		l.errs.History = append([]models.Activity(nil), l.errs.History[len(l.errs.History)-keep:]...)
	}
	if max := l.caps.MaxSuccessPatterns; max > 0 && len(l.errs.SuccessPatterns) > max {
		keep := l.caps.TrimSuccessPatterns
		l.errs.SuccessPatterns = append([]models.SuccessPattern(nil), l.errs.SuccessPatterns[len(l.errs.SuccessPatterns)-keep:]...)
	}
}
