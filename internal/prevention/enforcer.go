package prevention

import (
	"context"

	"go.uber.org/zap"

	"github.com/nvandessel/selfcorrect/internal/logging"
	"github.com/nvandessel/selfcorrect/internal/models"
)

// Enforcer is the host's hook for acting on a new prevention rule. The core
// records intent only; concrete enforcement belongs to the host.
type Enforcer interface {
	ApplyPreventionRule(ctx context.Context, rule models.PreventionRule) error
}

// EnforcerFunc adapts a function to the Enforcer interface.
type EnforcerFunc func(ctx context.Context, rule models.PreventionRule) error

// ApplyPreventionRule implements Enforcer.
func (f EnforcerFunc) ApplyPreventionRule(ctx context.Context, rule models.PreventionRule) error {
	return f(ctx, rule)
}

// LogEnforcer is the default Enforcer: it logs the rule and does nothing else.
type LogEnforcer struct {
	Logger *zap.Logger
}

// ApplyPreventionRule implements Enforcer.
func (e LogEnforcer) ApplyPreventionRule(ctx context.Context, rule models.PreventionRule) error {
	logging.OrNop(e.Logger).Info("prevention rule registered",
		zap.String("id", rule.ID),
		zap.String("trigger", string(rule.Trigger)),
		zap.String("condition", rule.Condition),
		zap.String("action", rule.Action),
		zap.Float64("confidence", rule.Confidence))
	return nil
}
