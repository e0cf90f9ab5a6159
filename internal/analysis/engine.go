// Package analysis diagnoses activities. Each activity type has an ordered
// table of string and field checks; a diagnosis with an issue is folded into
// the patterns store, and successful activities feed the success patterns.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nvandessel/selfcorrect/internal/config"
	"github.com/nvandessel/selfcorrect/internal/logging"
	"github.com/nvandessel/selfcorrect/internal/models"
	"github.com/nvandessel/selfcorrect/internal/sanitize"
	"github.com/nvandessel/selfcorrect/internal/store"
)

// ErrMalformed reports an activity missing a field its diagnoser needs.
var ErrMalformed = errors.New("malformed activity")

// Engine diagnoses activities and records the resulting patterns.
type Engine struct {
	ledger *store.Ledger
	cfg    config.AnalysisConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine returns an engine that records patterns in ledger.
func NewEngine(ledger *store.Ledger, cfg config.AnalysisConfig, logger *zap.Logger) *Engine {
	return &Engine{
		ledger: ledger,
		cfg:    cfg,
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
}

// Analyze diagnoses a and, when it has an issue, merges it into the
// patterns store. A malformed activity yields a no-issue diagnosis and an
// ErrMalformed error; persistence failures are only logged.
func (e *Engine) Analyze(ctx context.Context, a models.Activity) (models.Diagnosis, error) {
	d, err := Diagnose(a, e.cfg)
	if err != nil {
		e.logger.Warn("activity not analyzed", zap.String("type", string(a.Type)), zap.Error(err))
		return models.NoIssue(), err
	}
	if !d.HasIssue {
		return d, nil
	}

	seen := a.Timestamp
	if seen.IsZero() {
		seen = e.now()
	}
	err = e.ledger.UpdatePatterns(ctx, func(db models.PatternsDB) error {
		db.Entry(d.Category, d.Key).Merge(d, seen)
		return nil
	})
	if err != nil {
		e.logger.Warn("pattern update failed", zap.String("key", d.Key), zap.Error(err))
	}
	return d, nil
}

// LearnFromSuccess records the success factors of a.
func (e *Engine) LearnFromSuccess(ctx context.Context, a models.Activity) error {
	p := models.SuccessPattern{
		Type:      a.Type,
		Command:   sanitize.Key(a.Data.Command),
		Duration:  a.Data.Duration,
		Timestamp: a.Timestamp,
		Factors:   SuccessFactors(a),
	}
	return e.ledger.UpdateErrors(ctx, func(db *models.ErrorsDB) error {
		db.SuccessPatterns = append(db.SuccessPatterns, p)
		return nil
	})
}

// SuccessFactors names the heuristics that held for a successful activity.
func SuccessFactors(a models.Activity) []string {
	factors := []string{}
	cmd := a.Data.Command
	if cmd != "" {
		if strings.Contains(cmd, "cd") && strings.Contains(cmd, ".") {
			factors = append(factors, "used_relative_paths")
		}
		if strings.Contains(cmd, "&&") {
			factors = append(factors, "bash_chaining_worked")
		}
	}
	if a.Data.Duration > 0 && a.Data.Duration < 1000 {
		factors = append(factors, "fast_execution")
	}
	if a.Type == models.ActivityCommand && a.Data.ExitCode == 0 && a.Data.Error == "" {
		factors = append(factors, "clean_exit")
	}
	return factors
}

// Diagnose applies the rule tables for a's type. It has no side effects.
func Diagnose(a models.Activity, cfg config.AnalysisConfig) (models.Diagnosis, error) {
	switch a.Type {
	case models.ActivityCommand:
		return diagnoseCommand(a.Data)
	case models.ActivityTemplate:
		return diagnoseTemplate(a.Data, cfg)
	case models.ActivityMechanism:
		return diagnoseMechanism(a.Data, cfg)
	case models.ActivityFeedback:
		return diagnoseFeedback(a.Data)
	case models.ActivityPerformance:
		return diagnoseMetric(a.Data)
	default:
		return models.NoIssue(), fmt.Errorf("%w: unknown type %q", ErrMalformed, a.Type)
	}
}

func diagnoseCommand(data models.ActivityData) (models.Diagnosis, error) {
	d := models.NoIssue()
	if data.Command == "" {
		return d, fmt.Errorf("%w: command is required", ErrMalformed)
	}
	if data.ExitCode == 0 && data.Error == "" {
		return d, nil
	}

	errText := string(data.Error)
	f := genericCommandFailure
	for _, r := range commandRules {
		if r.match(data.Command, errText) {
			f = r.finding
			break
		}
	}
	d.Record(f)
	d.Category = models.CategoryCommandErrors
	d.Key = sanitize.Key(data.Command)
	return d, nil
}

func diagnoseTemplate(data models.ActivityData, cfg config.AnalysisConfig) (models.Diagnosis, error) {
	d := models.NoIssue()
	if data.TemplateID == "" {
		return d, fmt.Errorf("%w: templateId is required", ErrMalformed)
	}
	if len(data.Errors) > 0 {
		d.Record(matchErrorRules(templateErrorRules, strings.Join(data.Errors, " "), genericTemplateFailure))
	}
	if data.Duration > cfg.TemplateSlowMS {
		d.Record(slowTemplate)
	}
	if d.HasIssue {
		d.Category = models.CategoryTemplateFailures
		d.Key = sanitize.Key(data.TemplateID)
	}
	return d, nil
}

func diagnoseMechanism(data models.ActivityData, cfg config.AnalysisConfig) (models.Diagnosis, error) {
	d := models.NoIssue()
	if data.MechanismID == "" {
		return d, fmt.Errorf("%w: mechanismId is required", ErrMalformed)
	}
	if len(data.Errors) > 0 {
		d.Record(matchErrorRules(mechanismErrorRules, strings.Join(data.Errors, " "), genericMechanismFailure))
	}
	if data.Duration > cfg.MechanismSlowMS {
		d.Record(slowMechanism)
	}
	if !data.HasOutput() {
		d.Record(emptyMechanismOutput)
	}
	if d.HasIssue {
		d.Category = models.CategoryMechanismIssues
		if d.RootCause == models.CauseInvalidStructuredData {
			d.Category = models.CategoryConfigurationErrors
		}
		d.Key = sanitize.Key(data.MechanismID)
	}
	return d, nil
}

func diagnoseFeedback(data models.ActivityData) (models.Diagnosis, error) {
	d := models.NoIssue()
	if data.FeedbackType == "" {
		return d, fmt.Errorf("%w: feedbackType is required", ErrMalformed)
	}
	if !negativeFeedback[strings.ToLower(data.FeedbackType)] {
		return d, nil
	}
	d.Record(models.Finding{
		Description:    "Negative user feedback: " + sanitize.LogDetail(data.Feedback),
		Severity:       models.SeverityLow,
		RootCause:      models.CauseNegativeFeedback,
		SuggestedFixes: []string{"Review the reported behavior"},
		Confidence:     0.6,
	})
	d.Category = models.CategoryUserFeedback
	key := data.Operation
	if key == "" {
		key = strings.ToLower(data.FeedbackType)
	}
	d.Key = sanitize.Key(key)
	return d, nil
}

func diagnoseMetric(data models.ActivityData) (models.Diagnosis, error) {
	d := models.NoIssue()
	if data.MetricType == "" {
		return d, fmt.Errorf("%w: metricType is required", ErrMalformed)
	}
	exceeded := data.Exceeded
	if data.Threshold > 0 {
		exceeded = data.MetricValue > data.Threshold
	}
	if !exceeded {
		return d, nil
	}

	severity := models.SeverityLow
	if data.Threshold > 0 && data.MetricValue > 1.5*data.Threshold {
		severity = models.SeverityMedium
	}
	d.Record(models.Finding{
		Description:    fmt.Sprintf("%s exceeded threshold (%g > %g)", data.MetricType, data.MetricValue, data.Threshold),
		Severity:       severity,
		RootCause:      models.CauseThresholdExceeded,
		SuggestedFixes: []string{"Profile the operation behind " + data.MetricType},
		Confidence:     0.7,
	})
	d.Category = models.CategoryPerformanceRegressions
	d.Key = sanitize.Key(data.MetricType)
	return d, nil
}

// RankedPattern is one patterns store entry with its location.
type RankedPattern struct {
	Category models.Category     `json:"category"`
	Key      string              `json:"key"`
	Entry    models.PatternEntry `json:"entry"`
}

// TopPatterns returns the n entries with the highest counts, ties broken by
// category then key.
func TopPatterns(ledger *store.Ledger, n int) []RankedPattern {
	var all []RankedPattern
	ledger.ViewPatterns(func(db models.PatternsDB) {
		for cat, entries := range db {
			for key, e := range entries {
				all = append(all, RankedPattern{Category: cat, Key: key, Entry: *e})
			}
		}
	})
	sort.Slice(all, func(i, j int) bool {
		if all[i].Entry.Count != all[j].Entry.Count {
			return all[i].Entry.Count > all[j].Entry.Count
		}
		if all[i].Category != all[j].Category {
			return all[i].Category < all[j].Category
		}
		return all[i].Key < all[j].Key
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// CategoryCounts returns the summed pattern counts per category.
func CategoryCounts(ledger *store.Ledger) map[models.Category]int {
	counts := make(map[models.Category]int, len(models.Categories))
	ledger.ViewPatterns(func(db models.PatternsDB) {
		for _, cat := range models.Categories {
			total := 0
			for _, e := range db[cat] {
				total += e.Count
			}
			counts[cat] = total
		}
	})
	return counts
}
