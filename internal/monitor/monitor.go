// Package monitor runs the scheduled-correction sweep. A ticker sweeps at a
// fixed interval and, for file-backed stores, a filesystem watcher triggers
// an early reload and sweep when another process rewrites the stores.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/selfcorrect/internal/correction"
	"github.com/nvandessel/selfcorrect/internal/logging"
	"github.com/nvandessel/selfcorrect/internal/store"
)

// Reloader re-reads persisted state.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Sweeper executes due corrections.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (correction.SweepReport, error)
}

// Config controls the monitor loops.
type Config struct {
	// Interval between sweeps
	Interval time.Duration

	// WatchDir is watched for store rewrites; empty disables the watcher
	WatchDir string

	// Debounce coalesces bursts of store events into one sweep
	Debounce time.Duration
}

// DefaultConfig returns a one minute sweep with no watcher.
func DefaultConfig() Config {
	return Config{
		Interval: time.Minute,
		Debounce: 500 * time.Millisecond,
	}
}

// Monitor runs reload-and-sweep cycles until its context ends.
type Monitor struct {
	reloader Reloader
	sweeper  Sweeper
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time

	// mu serializes cycles from the ticker and the watcher
	mu     sync.Mutex
	cycles int
}

// New returns a monitor. Non-positive durations fall back to DefaultConfig.
func New(reloader Reloader, sweeper Sweeper, cfg Config, logger *zap.Logger) *Monitor {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	return &Monitor{
		reloader: reloader,
		sweeper:  sweeper,
		cfg:      cfg,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
}

// Cycles returns the number of completed reload-and-sweep cycles.
func (m *Monitor) Cycles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cycles
}

// Run blocks until ctx is cancelled or a loop fails to start.
func (m *Monitor) Run(ctx context.Context) error {
	var watcher *fsnotify.Watcher
	if m.cfg.WatchDir != "" {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		if err := w.Add(m.cfg.WatchDir); err != nil {
			w.Close()
			return fmt.Errorf("watch %s: %w", m.cfg.WatchDir, err)
		}
		watcher = w
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.tickLoop(ctx) })
	if watcher != nil {
		g.Go(func() error { return m.watchLoop(ctx, watcher) })
	}

	m.logger.Info("monitor started",
		zap.Duration("interval", m.cfg.Interval),
		zap.String("watch", m.cfg.WatchDir))
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	m.logger.Info("monitor stopped")
	return err
}

// Cycle reloads the stores and runs one sweep. Failures are logged; the
// loops keep running.
func (m *Monitor) Cycle(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.reloader.Reload(ctx); err != nil {
		m.logger.Warn("reload failed", zap.Error(err))
	}
	report, err := m.sweeper.Sweep(ctx, m.now())
	if err != nil {
		m.logger.Warn("sweep failed", zap.Error(err))
	} else if report.Executed > 0 {
		m.logger.Info("scheduled corrections executed",
			zap.Int("executed", report.Executed),
			zap.Int("applied", report.Applied),
			zap.Int("failed", report.Failed),
			zap.Int("skipped", report.Skipped))
	}
	m.cycles++
}

func (m *Monitor) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Cycle(ctx)
		}
	}
}

func (m *Monitor) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) error {
	defer watcher.Close()

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isStoreEvent(event) {
				continue
			}
			m.logger.Debug("store changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			if debounce == nil {
				debounce = time.After(m.cfg.Debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("watcher error", zap.Error(err))

		case <-debounce:
			debounce = nil
			m.Cycle(ctx)
		}
	}
}

// isStoreEvent reports whether event rewrote one of the JSON stores. The
// correction log and atomic-write temp files are ignored.
func isStoreEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	switch filepath.Base(event.Name) {
	case store.PatternsFile, store.ErrorsFile:
		return true
	default:
		return false
	}
}
