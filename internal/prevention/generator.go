// Package prevention turns diagnoses into standing prevention rules, hands
// new rules to a host enforcer once and scores rules by reported outcomes.
package prevention

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nvandessel/selfcorrect/internal/logging"
	"github.com/nvandessel/selfcorrect/internal/models"
	"github.com/nvandessel/selfcorrect/internal/store"
)

// ErrNotFound is returned for unknown rule ids.
var ErrNotFound = errors.New("prevention rule not found")

// ActionPrevent is the action recorded on generated rules.
const ActionPrevent = "prevent"

// Config configures a Generator.
type Config struct {
	Effectiveness EffectivenessConfig

	// Credits limits how often one rule is credited; nil disables the limit
	Credits *CreditLimiter
}

// DefaultConfig returns the default generator configuration.
func DefaultConfig() *Config {
	return &Config{
		Effectiveness: DefaultEffectivenessConfig(),
		Credits:       DefaultCreditLimiter(),
	}
}

// Generator creates and merges prevention rules in the errors store.
type Generator struct {
	ledger   *store.Ledger
	enforcer Enforcer
	cfg      *Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewGenerator returns a generator. A nil enforcer logs rules; a nil cfg
// uses DefaultConfig.
func NewGenerator(ledger *store.Ledger, enforcer Enforcer, cfg *Config, logger *zap.Logger) *Generator {
	logger = logging.OrNop(logger)
	if enforcer == nil {
		enforcer = LogEnforcer{Logger: logger}
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Generator{
		ledger:   ledger,
		enforcer: enforcer,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Generate records a rule for (activity type, root cause). An existing rule
// with the same trigger and condition is merged: its occurrence count grows
// and its confidence becomes the higher of the two. Rules not yet handed to
// the enforcer are applied once.
func (g *Generator) Generate(ctx context.Context, a models.Activity, d models.Diagnosis) (models.PreventionRule, error) {
	now := g.now()
	key := models.RuleKey(a.Type, d.RootCause)

	var rule models.PreventionRule
	err := g.ledger.UpdateErrors(ctx, func(db *models.ErrorsDB) error {
		existing := findByKey(db.PreventionRules, key)
		if existing == nil {
			existing = &models.PreventionRule{
				ID:        uuid.New().String(),
				Trigger:   a.Type,
				Condition: d.RootCause,
				Action:    ActionPrevent,
				Created:   now,
			}
			db.PreventionRules[existing.ID] = existing
		}
		existing.Occurrences++
		existing.LastSeen = now
		if d.Confidence > existing.Confidence {
			existing.Confidence = d.Confidence
		}
		rule = *existing
		return nil
	})
	if err != nil {
		return rule, fmt.Errorf("save prevention rule: %w", err)
	}

	if !rule.Applied {
		if err := g.apply(ctx, rule); err != nil {
			g.logger.Warn("prevention rule not applied", zap.String("id", rule.ID), zap.Error(err))
		} else {
			rule.Applied = true
		}
	}

	if err := g.ledger.Log(ctx, models.LogEntry{
		Action:     models.ActionPreventionRule,
		Confidence: d.Confidence,
		Detail:     "Generated prevention rule for " + d.Description,
	}); err != nil {
		g.logger.Warn("correction log append failed", zap.Error(err))
	}
	return rule, nil
}

// apply hands rule to the enforcer and marks it applied.
func (g *Generator) apply(ctx context.Context, rule models.PreventionRule) error {
	if err := g.enforcer.ApplyPreventionRule(ctx, rule); err != nil {
		return err
	}
	return g.ledger.UpdateErrors(ctx, func(db *models.ErrorsDB) error {
		if r, ok := db.PreventionRules[rule.ID]; ok {
			r.Applied = true
		}
		return nil
	})
}

// RecordOutcome adjusts a rule's effectiveness after the host reports
// whether the rule prevented a recurrence.
func (g *Generator) RecordOutcome(ctx context.Context, ruleID string, prevented bool) (models.PreventionRule, error) {
	var rule models.PreventionRule
	err := g.ledger.UpdateErrors(ctx, func(db *models.ErrorsDB) error {
		r, ok := db.PreventionRules[ruleID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, ruleID)
		}
		if prevented && !g.cfg.Credits.Allow(ruleID, g.now()) {
			rule = *r
			return nil
		}
		r.Effectiveness = Adjust(r.Effectiveness, prevented, g.cfg.Effectiveness)
		rule = *r
		return nil
	})
	return rule, err
}

// Rules returns all prevention rules, highest occurrence count first.
func Rules(ledger *store.Ledger) []models.PreventionRule {
	var rules []models.PreventionRule
	ledger.ViewErrors(func(db *models.ErrorsDB) {
		for _, r := range db.PreventionRules {
			rules = append(rules, *r)
		}
	})
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Occurrences != rules[j].Occurrences {
			return rules[i].Occurrences > rules[j].Occurrences
		}
		return rules[i].ID < rules[j].ID
	})
	return rules
}

// findByKey returns the rule guarding key. Stores written before rules were
// merged can hold several; the oldest one absorbs new occurrences.
func findByKey(rules map[string]*models.PreventionRule, key string) *models.PreventionRule {
	var found *models.PreventionRule
	for _, r := range rules {
		if r.Key() != key {
			continue
		}
		if found == nil || r.Created.Before(found.Created) || (r.Created.Equal(found.Created) && r.ID < found.ID) {
			found = r
		}
	}
	return found
}
