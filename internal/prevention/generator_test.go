package prevention

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/nvandessel/selfcorrect/internal/config"
	"github.com/nvandessel/selfcorrect/internal/models"
	"github.com/nvandessel/selfcorrect/internal/store"
)

const floatEpsilon = 1e-9

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatEpsilon
}

// recordingEnforcer counts rules handed to it.
type recordingEnforcer struct {
	applied []string
	err     error
}

func (r *recordingEnforcer) ApplyPreventionRule(_ context.Context, rule models.PreventionRule) error {
	if r.err != nil {
		return r.err
	}
	r.applied = append(r.applied, rule.ID)
	return nil
}

func newTestGenerator(t *testing.T, enf Enforcer, cfg *Config) (*Generator, *store.Ledger) {
	t.Helper()
	ledger, err := store.NewLedger(context.Background(), store.NewMemoryStore(), config.Default().History, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	return NewGenerator(ledger, enf, cfg, zaptest.NewLogger(t)), ledger
}

func chainingIssue(conf float64) (models.Activity, models.Diagnosis) {
	a := models.Activity{Type: models.ActivityCommand, Data: models.ActivityData{Command: "a && b"}}
	d := models.Diagnosis{
		HasIssue:    true,
		Description: "Shell chaining syntax error detected",
		Severity:    models.SeverityMedium,
		RootCause:   models.CauseChainingSyntax,
		Confidence:  conf,
	}
	return a, d
}

func TestGenerate_NewRule(t *testing.T) {
	ctx := context.Background()
	enf := &recordingEnforcer{}
	g, ledger := newTestGenerator(t, enf, nil)

	a, d := chainingIssue(0.95)
	rule, err := g.Generate(ctx, a, d)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if rule.ID == "" || rule.Trigger != models.ActivityCommand || rule.Condition != models.CauseChainingSyntax {
		t.Errorf("Generate() = %+v", rule)
	}
	if rule.Action != ActionPrevent || rule.Occurrences != 1 || !rule.Applied {
		t.Errorf("Generate() = %+v, want prevent action, 1 occurrence, applied", rule)
	}
	if len(enf.applied) != 1 || enf.applied[0] != rule.ID {
		t.Errorf("enforcer applied %v, want [%s]", enf.applied, rule.ID)
	}

	entries, err := ledger.LogEntries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Action != models.ActionPreventionRule {
		t.Errorf("log = %+v, want one prevention_rule entry", entries)
	}
}

func TestGenerate_MergesSameTriggerAndCondition(t *testing.T) {
	ctx := context.Background()
	enf := &recordingEnforcer{}
	g, ledger := newTestGenerator(t, enf, nil)

	a, d := chainingIssue(0.85)
	first, err := g.Generate(ctx, a, d)
	if err != nil {
		t.Fatal(err)
	}
	d.Confidence = 0.95
	second, err := g.Generate(ctx, a, d)
	if err != nil {
		t.Fatal(err)
	}
	d.Confidence = 0.5
	third, err := g.Generate(ctx, a, d)
	if err != nil {
		t.Fatal(err)
	}

	if first.ID != second.ID || second.ID != third.ID {
		t.Errorf("ids %s, %s, %s should match", first.ID, second.ID, third.ID)
	}
	if third.Occurrences != 3 {
		t.Errorf("Occurrences = %d, want 3", third.Occurrences)
	}
	if third.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", third.Confidence)
	}
	if len(enf.applied) != 1 {
		t.Errorf("enforcer called %d times, want 1", len(enf.applied))
	}
	if n := len(Rules(ledger)); n != 1 {
		t.Errorf("Rules() = %d, want 1", n)
	}

	other := models.Activity{Type: models.ActivityTemplate}
	if _, err := g.Generate(ctx, other, d); err != nil {
		t.Fatal(err)
	}
	if n := len(Rules(ledger)); n != 2 {
		t.Errorf("Rules() = %d after a new trigger, want 2", n)
	}
}

func TestGenerate_EnforcerFailureRetriesLater(t *testing.T) {
	ctx := context.Background()
	enf := &recordingEnforcer{err: errors.New("host unavailable")}
	g, _ := newTestGenerator(t, enf, nil)

	a, d := chainingIssue(0.9)
	rule, err := g.Generate(ctx, a, d)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if rule.Applied {
		t.Error("rule should not be marked applied when the enforcer fails")
	}

	enf.err = nil
	rule, err = g.Generate(ctx, a, d)
	if err != nil {
		t.Fatal(err)
	}
	if !rule.Applied || len(enf.applied) != 1 {
		t.Errorf("rule.Applied = %v, enforcer calls = %d; want applied once", rule.Applied, len(enf.applied))
	}
}

func TestRecordOutcome(t *testing.T) {
	ctx := context.Background()
	cfg := &Config{Effectiveness: DefaultEffectivenessConfig()}
	g, _ := newTestGenerator(t, &recordingEnforcer{}, cfg)

	a, d := chainingIssue(0.9)
	rule, err := g.Generate(ctx, a, d)
	if err != nil {
		t.Fatal(err)
	}

	rule, err = g.RecordOutcome(ctx, rule.ID, true)
	if err != nil {
		t.Fatalf("RecordOutcome() error = %v", err)
	}
	rule, err = g.RecordOutcome(ctx, rule.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if !floatEquals(rule.Effectiveness, 0.2) {
		t.Errorf("Effectiveness = %v, want 0.2", rule.Effectiveness)
	}

	rule, err = g.RecordOutcome(ctx, rule.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if !floatEquals(rule.Effectiveness, 0.15) {
		t.Errorf("Effectiveness = %v, want 0.15", rule.Effectiveness)
	}

	if _, err := g.RecordOutcome(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("RecordOutcome(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRecordOutcome_CreditsLimited(t *testing.T) {
	ctx := context.Background()
	cfg := &Config{Effectiveness: DefaultEffectivenessConfig(), Credits: NewCreditLimiter(1, time.Hour)}
	g, _ := newTestGenerator(t, &recordingEnforcer{}, cfg)

	a, d := chainingIssue(0.9)
	rule, err := g.Generate(ctx, a, d)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if rule, err = g.RecordOutcome(ctx, rule.ID, true); err != nil {
			t.Fatal(err)
		}
	}
	if !floatEquals(rule.Effectiveness, 0.1) {
		t.Errorf("Effectiveness = %v, want 0.1 after rate limiting", rule.Effectiveness)
	}
}
