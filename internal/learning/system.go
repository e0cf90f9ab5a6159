// Package learning wires the analysis, correction and prevention engines
// around one persistence ledger. System is what hosts and the CLI talk to.
package learning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nvandessel/selfcorrect/internal/analysis"
	"github.com/nvandessel/selfcorrect/internal/backup"
	"github.com/nvandessel/selfcorrect/internal/config"
	"github.com/nvandessel/selfcorrect/internal/correction"
	"github.com/nvandessel/selfcorrect/internal/hooks"
	"github.com/nvandessel/selfcorrect/internal/logging"
	"github.com/nvandessel/selfcorrect/internal/models"
	"github.com/nvandessel/selfcorrect/internal/prevention"
	"github.com/nvandessel/selfcorrect/internal/store"
)

// ObserveResult describes what happened to one observed activity.
type ObserveResult struct {
	// Activity is the recorded activity
	Activity models.Activity `json:"activity"`

	// Diagnosis is the analysis outcome
	Diagnosis models.Diagnosis `json:"diagnosis"`

	// Outcome is set when the diagnosis reported an issue
	Outcome *correction.Outcome `json:"outcome,omitempty"`

	// Skipped is true when monitoring is off for the activity type
	Skipped bool `json:"skipped,omitempty"`
}

// Options configures NewSystem. Zero values select defaults.
type Options struct {
	Config    *config.Config
	BackupDir string
	Enforcer  prevention.Enforcer
	Logger    *zap.Logger
}

// System is the self-correction learning core.
type System struct {
	cfg        *config.Config
	store      store.Store
	ledger     *store.Ledger
	backups    *backup.Manager
	analyzer   *analysis.Engine
	corrector  *correction.Engine
	prevention *prevention.Generator
	hooks      *hooks.Collector
	logger     *zap.Logger
	now        func() time.Time
}

// Open opens the system for a project root: it creates the data
// directories, opens the configured backend and rolls back corrections a
// previous crash left half applied.
func Open(ctx context.Context, root string, cfg *config.Config, logger *zap.Logger) (*System, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger = logging.OrNop(logger)
	if err := store.EnsureDirs(root); err != nil {
		return nil, err
	}
	s, err := store.Open(ctx, root, cfg.Storage.Backend, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	sys, err := NewSystem(ctx, s, Options{Config: cfg, BackupDir: store.BackupDir(root), Logger: logger})
	if err != nil {
		s.Close()
		return nil, err
	}
	if ids, err := sys.corrector.RecoverInterrupted(ctx); err != nil {
		logger.Warn("interrupted correction scan failed", zap.Error(err))
	} else if len(ids) > 0 {
		logger.Warn("rolled back interrupted corrections", zap.Strings("ids", ids))
	}
	return sys, nil
}

// NewSystem assembles a system on an already opened store.
func NewSystem(ctx context.Context, s store.Store, opts Options) (*System, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := logging.OrNop(opts.Logger)
	if opts.BackupDir == "" {
		return nil, fmt.Errorf("backup directory is required")
	}

	ledger, err := store.NewLedger(ctx, s, cfg.History, logger)
	if err != nil {
		return nil, err
	}
	backups, err := backup.NewManager(opts.BackupDir, cfg.Backup, logger)
	if err != nil {
		return nil, err
	}
	rules := prevention.NewGenerator(ledger, opts.Enforcer, nil, logger)

	sys := &System{
		cfg:        cfg,
		store:      s,
		ledger:     ledger,
		backups:    backups,
		analyzer:   analysis.NewEngine(ledger, cfg.Analysis, logger),
		corrector:  correction.NewEngine(ledger, backups, nil, rules, cfg.Correction, logger),
		prevention: rules,
		logger:     logger,
		now:        time.Now,
	}
	sys.hooks = hooks.NewCollector(sys, logger)
	return sys, nil
}

// Close releases the store.
func (s *System) Close() error {
	return s.store.Close()
}

// SetClock replaces the time source of the system and its correction engine.
func (s *System) SetClock(now func() time.Time) {
	s.now = now
	s.corrector.SetClock(now)
	s.ledger.SetClock(now)
}

// Hooks returns the host-facing collector feeding this system.
func (s *System) Hooks() *hooks.Collector { return s.hooks }

// Ledger returns the persistence ledger.
func (s *System) Ledger() *store.Ledger { return s.ledger }

// Corrections returns the correction engine.
func (s *System) Corrections() *correction.Engine { return s.corrector }

// Backups returns the backup manager.
func (s *System) Backups() *backup.Manager { return s.backups }

// Prevention returns the prevention rule generator.
func (s *System) Prevention() *prevention.Generator { return s.prevention }

// Config returns the active configuration.
func (s *System) Config() *config.Config { return s.cfg }

// monitored reports whether activities of type t are learned from.
func (s *System) monitored(t models.ActivityType) bool {
	m := s.cfg.Monitoring
	if !m.Enabled {
		return false
	}
	switch t {
	case models.ActivityCommand:
		return m.Commands
	case models.ActivityTemplate:
		return m.Templates
	case models.ActivityMechanism:
		return m.Mechanisms
	case models.ActivityFeedback:
		return m.Feedback
	case models.ActivityPerformance:
		return m.Metrics
	default:
		return false
	}
}

// Observe implements hooks.Sink.
func (s *System) Observe(ctx context.Context, t models.ActivityType, data models.ActivityData) error {
	_, err := s.Learn(ctx, t, data)
	return err
}

// Learn records one activity: it is analyzed, any issue is handed to the
// correction engine, successful activities feed success learning, and the
// activity is appended to history. Learning-path failures are logged; only
// an unknown activity type or a failed history write is returned.
func (s *System) Learn(ctx context.Context, t models.ActivityType, data models.ActivityData) (*ObserveResult, error) {
	if _, err := models.ParseActivityType(string(t)); err != nil {
		return nil, err
	}
	if !s.monitored(t) {
		return &ObserveResult{Skipped: true}, nil
	}

	a := models.Activity{
		Type:      t,
		Timestamp: s.now().UTC(),
		SessionID: uuid.New().String(),
		Success:   data.Succeeded(),
		Data:      data,
	}
	result := &ObserveResult{Activity: a}

	// Step 1: Diagnose and record the pattern
	d, analyzeErr := s.analyzer.Analyze(ctx, a)
	result.Diagnosis = d

	// Step 2: Correct, schedule or log the issue
	if result.Diagnosis.HasIssue {
		s.logger.Info("issue detected",
			zap.String("type", string(t)),
			zap.String("description", result.Diagnosis.Description),
			zap.String("severity", string(result.Diagnosis.Severity)))
		out := s.corrector.Handle(ctx, a, result.Diagnosis)
		result.Outcome = &out
	}

	// Step 3: Learn from clean successes
	if a.Success && !result.Diagnosis.HasIssue && analyzeErr == nil {
		if err := s.analyzer.LearnFromSuccess(ctx, a); err != nil {
			s.logger.Warn("success learning failed", zap.Error(err))
		}
	}

	// Step 4: Append to history
	err := s.ledger.UpdateErrors(ctx, func(db *models.ErrorsDB) error {
		db.History = append(db.History, a)
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("record activity: %w", err)
	}
	return result, nil
}

// Summary is the analysis report shown by `selfcorrect analyze`.
type Summary struct {
	TotalActivities int                      `json:"total_activities"`
	CategoryCounts  map[models.Category]int  `json:"category_counts"`
	TopPatterns     []analysis.RankedPattern `json:"top_patterns"`
	IssuesHandled   int                      `json:"issues_handled"`
	PreventionRules int                      `json:"prevention_rules"`
	PendingTasks    int                      `json:"pending_tasks"`
}

// Summary reports what the system has learned so far.
func (s *System) Summary() Summary {
	sum := Summary{
		CategoryCounts: analysis.CategoryCounts(s.ledger),
		TopPatterns:    analysis.TopPatterns(s.ledger, 5),
	}
	s.ledger.ViewErrors(func(db *models.ErrorsDB) {
		sum.TotalActivities = len(db.History)
		sum.IssuesHandled = len(db.Corrections.Issues)
		sum.PreventionRules = len(db.PreventionRules)
		for _, task := range db.Corrections.Scheduled {
			if task.Status == models.TaskPending {
				sum.PendingTasks++
			}
		}
	})
	return sum
}
