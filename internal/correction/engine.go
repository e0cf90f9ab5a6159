// Package correction decides what to do about a diagnosed issue and carries
// it out: immediate corrections are applied behind a backup, medium-severity
// ones are scheduled for a later sweep, and every issue is logged and turned
// into a prevention rule.
package correction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nvandessel/selfcorrect/internal/backup"
	"github.com/nvandessel/selfcorrect/internal/config"
	"github.com/nvandessel/selfcorrect/internal/logging"
	"github.com/nvandessel/selfcorrect/internal/models"
	"github.com/nvandessel/selfcorrect/internal/prevention"
	"github.com/nvandessel/selfcorrect/internal/store"
)

// ErrTaskNotFound is returned by CancelTask for unknown task ids.
var ErrTaskNotFound = errors.New("correction task not found")

// Confidence logged for successfully applied corrections.
const appliedConfidence = 0.9

// Task type recorded on scheduled corrections.
const scheduledTaskType = "scheduled_correction"

// Decision is what the policy chose for an issue.
type Decision string

const (
	DecisionImmediate Decision = "immediate"
	DecisionScheduled Decision = "scheduled"
	DecisionLogOnly   Decision = "logged"
)

// Outcome reports what Handle did.
type Outcome struct {
	Decision Decision `json:"decision"`
	Applied  bool     `json:"applied"`          // immediate correction succeeded
	TaskID   string   `json:"taskId,omitempty"` // set when a task was scheduled
	RuleID   string   `json:"ruleId,omitempty"` // prevention rule generated or merged
}

// Engine applies the correction policy.
type Engine struct {
	ledger   *store.Ledger
	backups  *backup.Manager
	registry *Registry
	rules    *prevention.Generator
	cfg      config.CorrectionConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine wires an engine. A nil registry uses DefaultRegistry.
func NewEngine(ledger *store.Ledger, backups *backup.Manager, registry *Registry, rules *prevention.Generator, cfg config.CorrectionConfig, logger *zap.Logger) *Engine {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Engine{
		ledger:   ledger,
		backups:  backups,
		registry: registry,
		rules:    rules,
		cfg:      cfg,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
}

// SetClock replaces the engine's time source.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Decide returns the policy decision for a diagnosis.
func (e *Engine) Decide(d models.Diagnosis) Decision {
	if d.Confidence < e.cfg.ConfidenceThreshold {
		return DecisionLogOnly
	}
	switch d.Severity {
	case models.SeverityHigh:
		return DecisionImmediate
	case models.SeverityMedium:
		return DecisionScheduled
	default:
		return DecisionLogOnly
	}
}

// Handle logs the issue, corrects it now or later according to the
// policy, generates a prevention rule and updates the learning pattern.
// Failures are logged; Handle never returns an error.
func (e *Engine) Handle(ctx context.Context, a models.Activity, d models.Diagnosis) Outcome {
	out := Outcome{Decision: e.Decide(d)}

	if err := e.logIssue(ctx, a, d, out.Decision); err != nil {
		e.logger.Warn("issue log failed", zap.Error(err))
	}

	switch out.Decision {
	case DecisionImmediate:
		out.Applied = e.applyImmediate(ctx, a, d)
	case DecisionScheduled:
		task, err := e.Schedule(ctx, a, d)
		if err != nil {
			e.logger.Warn("scheduling correction failed", zap.Error(err))
		} else {
			out.TaskID = task.ID
		}
	}

	if e.rules != nil {
		rule, err := e.rules.Generate(ctx, a, d)
		if err != nil {
			e.logger.Warn("prevention rule failed", zap.Error(err))
		} else {
			out.RuleID = rule.ID
		}
	}

	if err := e.updateLearningPattern(ctx, a, d); err != nil {
		e.logger.Warn("learning pattern update failed", zap.Error(err))
	}
	return out
}

func (e *Engine) logIssue(ctx context.Context, a models.Activity, d models.Diagnosis, decision Decision) error {
	return e.ledger.UpdateErrors(ctx, func(db *models.ErrorsDB) error {
		db.Corrections.Issues = append(db.Corrections.Issues, models.IssueLog{
			Timestamp: e.now(),
			Activity:  a,
			Diagnosis: d,
			Status:    string(decision),
		})
		return nil
	})
}

// LearningKey is the errors store key for an (activity type, root cause) pair.
func LearningKey(t models.ActivityType, rootCause string) string {
	return string(t) + "_" + strings.Join(strings.Fields(rootCause), "_")
}

func (e *Engine) updateLearningPattern(ctx context.Context, a models.Activity, d models.Diagnosis) error {
	key := LearningKey(a.Type, d.RootCause)
	now := e.now()
	return e.ledger.UpdateErrors(ctx, func(db *models.ErrorsDB) error {
		p, ok := db.Patterns[key]
		if !ok {
			p = &models.LearningPattern{
				Confidence: d.Confidence,
				Fixes:      append([]string{}, d.SuggestedFixes...),
			}
			db.Patterns[key] = p
		}
		p.Occurrences++
		p.LastUpdated = now
		return nil
	})
}

// applyImmediate corrects the issue now. Activities without a correction
// target are logged as skipped.
func (e *Engine) applyImmediate(ctx context.Context, a models.Activity, d models.Diagnosis) bool {
	desc, ok := Describe(a, d)
	if !ok {
		e.log(ctx, models.ActionCorrectionSkip, d.Confidence, "No correction target for "+d.Description)
		return false
	}
	applied, err := e.ApplyCorrection(ctx, desc)
	if err != nil {
		e.logger.Info("immediate correction failed", zap.String("kind", string(desc.Kind)), zap.Error(err))
	}
	if applied {
		e.log(ctx, models.ActionImmediateFix, d.Confidence, "Applied correction for "+d.Description)
	}
	return applied
}

// ApplyCorrection backs up the descriptor's files, applies it and, on any
// failure, rolls the files back and logs the failure with the dampened
// failure confidence. The boolean reports success.
func (e *Engine) ApplyCorrection(ctx context.Context, desc models.CorrectionDescriptor) (bool, error) {
	c, ok := e.registry.Lookup(desc.Kind)
	if !ok {
		err := fmt.Errorf("%w: unknown correction kind %q", ErrInvalid, desc.Kind)
		e.logFailure(ctx, desc, err)
		return false, err
	}
	if err := c.Validate(desc); err != nil {
		e.logFailure(ctx, desc, err)
		return false, err
	}

	id := e.backups.NewID(desc.Kind)
	if _, err := e.backups.Backup(id, desc); err != nil {
		err = fmt.Errorf("backup before %s: %w", desc.Kind, err)
		e.logFailure(ctx, desc, err)
		return false, err
	}
	if err := e.backups.MarkApplying(id); err != nil {
		err = fmt.Errorf("mark backup applying: %w", err)
		e.logFailure(ctx, desc, err)
		return false, err
	}

	res, err := c.Apply(ctx, desc)
	if err != nil {
		if _, rbErr := e.backups.Rollback(id); rbErr != nil {
			e.logger.Warn("rollback failed", zap.String("backup", id), zap.Error(rbErr))
		}
		e.logFailure(ctx, desc, err)
		return false, err
	}
	if err := e.backups.MarkApplied(id); err != nil {
		e.logger.Warn("mark backup applied failed", zap.String("backup", id), zap.Error(err))
	}

	detail := fmt.Sprintf("Successfully applied %s correction", desc.Kind)
	if !res.Changed {
		detail += " (already in place)"
	} else if len(res.Files) > 0 {
		detail += " to " + strings.Join(res.Files, ", ")
	}
	e.log(ctx, models.ActionAppliedFix, appliedConfidence, detail)
	return true, nil
}

func (e *Engine) logFailure(ctx context.Context, desc models.CorrectionDescriptor, err error) {
	e.log(ctx, models.ActionCorrectionFailed, e.cfg.FailureConfidence,
		fmt.Sprintf("Failed to apply %s: %v", desc.Kind, err))
}

func (e *Engine) log(ctx context.Context, action string, confidence float64, detail string) {
	err := e.ledger.Log(ctx, models.LogEntry{
		Timestamp:  e.now(),
		Action:     action,
		Confidence: confidence,
		Detail:     detail,
	})
	if err != nil {
		e.logger.Warn("correction log append failed", zap.String("action", action), zap.Error(err))
	}
}

// Schedule persists a pending task due after the configured delay.
func (e *Engine) Schedule(ctx context.Context, a models.Activity, d models.Diagnosis) (models.CorrectionTask, error) {
	task := models.CorrectionTask{
		ID:           uuid.New().String(),
		Type:         scheduledTaskType,
		Activity:     a,
		Diagnosis:    d,
		ScheduledFor: e.now().Add(e.cfg.ScheduleDelay),
		Status:       models.TaskPending,
	}
	err := e.ledger.UpdateErrors(ctx, func(db *models.ErrorsDB) error {
		db.Corrections.Scheduled = append(db.Corrections.Scheduled, task)
		return nil
	})
	if err != nil {
		return task, fmt.Errorf("persist scheduled correction: %w", err)
	}
	e.log(ctx, models.ActionScheduledFix, d.Confidence, "Scheduled correction for "+d.Description)
	return task, nil
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Executed int `json:"executed"`
	Applied  int `json:"applied"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// Task results recorded by Sweep.
const (
	ResultApplied = "applied"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Sweep executes every pending task due at now. Tasks are marked executed
// and saved before they run, so a repeated or concurrent sweep over the same
// store never runs a task twice.
func (e *Engine) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	var report SweepReport
	if !e.anyDue(now) {
		return report, nil
	}

	var due []models.CorrectionTask
	err := e.ledger.UpdateErrors(ctx, func(db *models.ErrorsDB) error {
		for i := range db.Corrections.Scheduled {
			t := &db.Corrections.Scheduled[i]
			if !t.Due(now) {
				continue
			}
			executed := now
			t.Status = models.TaskExecuted
			t.ExecutedAt = &executed
			due = append(due, *t)
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("claim due tasks: %w", err)
	}
	if len(due) == 0 {
		return report, nil
	}

	results := make(map[string]string, len(due))
	for _, t := range due {
		report.Executed++
		result := e.runTask(ctx, t)
		results[t.ID] = result
		switch result {
		case ResultApplied:
			report.Applied++
		case ResultFailed:
			report.Failed++
		default:
			report.Skipped++
		}
	}

	err = e.ledger.UpdateErrors(ctx, func(db *models.ErrorsDB) error {
		for i := range db.Corrections.Scheduled {
			if r, ok := results[db.Corrections.Scheduled[i].ID]; ok {
				db.Corrections.Scheduled[i].Result = r
			}
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("record task results: %w", err)
	}
	return report, nil
}

// anyDue checks for due tasks without writing, so an idle sweep leaves the
// store untouched.
func (e *Engine) anyDue(now time.Time) bool {
	found := false
	e.ledger.ViewErrors(func(db *models.ErrorsDB) {
		for _, t := range db.Corrections.Scheduled {
			if t.Due(now) {
				found = true
				return
			}
		}
	})
	return found
}

func (e *Engine) runTask(ctx context.Context, t models.CorrectionTask) string {
	desc, ok := Describe(t.Activity, t.Diagnosis)
	if !ok {
		e.log(ctx, models.ActionCorrectionSkip, t.Diagnosis.Confidence, "No correction target for "+t.Diagnosis.Description)
		return ResultSkipped
	}
	applied, err := e.ApplyCorrection(ctx, desc)
	if err != nil {
		e.logger.Info("scheduled correction failed", zap.String("task", t.ID), zap.Error(err))
	}
	if !applied {
		return ResultFailed
	}
	e.log(ctx, models.ActionScheduledRun, t.Diagnosis.Confidence, "Executed scheduled correction for "+t.Diagnosis.Description)
	return ResultApplied
}

// CancelTask cancels a pending task.
func (e *Engine) CancelTask(ctx context.Context, id string) error {
	err := e.ledger.UpdateErrors(ctx, func(db *models.ErrorsDB) error {
		for i := range db.Corrections.Scheduled {
			t := &db.Corrections.Scheduled[i]
			if t.ID != id {
				continue
			}
			if t.Status != models.TaskPending {
				return fmt.Errorf("task %s is %s, not pending", id, t.Status)
			}
			t.Status = models.TaskCancelled
			return nil
		}
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	})
	if err != nil {
		return err
	}
	e.log(ctx, models.ActionTaskCancelled, 1, "Cancelled scheduled correction "+id)
	return nil
}

// Rollback restores the files of backup id and logs the rollback.
func (e *Engine) Rollback(ctx context.Context, id string) (backup.RollbackReport, error) {
	report, err := e.backups.Rollback(id)
	if err != nil {
		return report, err
	}
	e.log(ctx, models.ActionRollback, 1, fmt.Sprintf("Rolled back %s (%d restored, %d missing)", id, len(report.Restored), len(report.Missing)))
	return report, nil
}

// RecoverInterrupted rolls back corrections a crash left mid-application.
func (e *Engine) RecoverInterrupted(ctx context.Context) ([]string, error) {
	ids, err := e.backups.RecoverInterrupted()
	for _, id := range ids {
		e.log(ctx, models.ActionRollback, 1, "Recovered interrupted correction "+id)
	}
	return ids, err
}

// Tasks returns all scheduled tasks ordered by due time.
func Tasks(ledger *store.Ledger) []models.CorrectionTask {
	var tasks []models.CorrectionTask
	ledger.ViewErrors(func(db *models.ErrorsDB) {
		tasks = append(tasks, db.Corrections.Scheduled...)
	})
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].ScheduledFor.Before(tasks[j].ScheduledFor)
	})
	return tasks
}
