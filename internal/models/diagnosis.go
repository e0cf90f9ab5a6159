package models

// Severity grades how urgently an issue should be corrected.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Category groups PatternEntry records in the patterns store.
type Category string

const (
	CategoryCommandErrors          Category = "command_errors"
	CategoryTemplateFailures       Category = "template_failures"
	CategoryMechanismIssues        Category = "mechanism_issues"
	CategoryConfigurationErrors    Category = "configuration_errors"
	CategoryUserFeedback           Category = "user_feedback"
	CategoryPerformanceRegressions Category = "performance_regressions"
)

// Categories lists every pattern category in the order they are reported.
var Categories = []Category{
	CategoryCommandErrors,
	CategoryTemplateFailures,
	CategoryMechanismIssues,
	CategoryConfigurationErrors,
	CategoryUserFeedback,
	CategoryPerformanceRegressions,
}

// Normalized root cause tags produced by the diagnosers.
const (
	CauseChainingSyntax        = "chaining-syntax misuse"
	CausePathNotFound          = "path-not-found"
	CausePermissionDenied      = "permission-denied"
	CauseDestructiveCommand    = "destructive-command"
	CauseCommandFailure        = "command-failure"
	CauseMissingDependency     = "missing-dependency"
	CauseTypeCompilation       = "type-compilation-error"
	CauseTemplateFailure       = "template-failure"
	CauseSlowTemplate          = "slow-template"
	CauseFileNotFound          = "file-not-found"
	CauseInvalidStructuredData = "invalid-structured-data"
	CauseMechanismFailure      = "mechanism-failure"
	CauseSlowMechanism         = "slow-mechanism"
	CauseEmptyOutput           = "empty-output"
	CauseThresholdExceeded     = "threshold-exceeded"
	CauseNegativeFeedback      = "negative-feedback"
)

// Finding is one check that fired while analyzing an activity.
type Finding struct {
	Description    string   `json:"description"`
	Severity       Severity `json:"severity"`
	RootCause      string   `json:"rootCause"`
	SuggestedFixes []string `json:"suggestedFixes"`
	Confidence     float64  `json:"confidence"`
}

// Diagnosis is the result of analyzing one Activity.
//
// When several independent checks fire for the same activity, the top-level
// fields hold the last one evaluated and Findings holds all of them in
// evaluation order.
type Diagnosis struct {
	HasIssue       bool      `json:"hasIssue"`
	Description    string    `json:"description"`
	Severity       Severity  `json:"severity"`
	RootCause      string    `json:"rootCause"`
	SuggestedFixes []string  `json:"suggestedFixes"`
	Confidence     float64   `json:"confidence"`
	Category       Category  `json:"category,omitempty"`
	Key            string    `json:"key,omitempty"`
	Findings       []Finding `json:"findings,omitempty"`
}

// NoIssue returns the diagnosis used for activities without problems.
func NoIssue() Diagnosis {
	return Diagnosis{
		Severity:       SeverityLow,
		SuggestedFixes: []string{},
		Confidence:     0.5,
	}
}

// Record sets f as the current result and appends it to Findings.
func (d *Diagnosis) Record(f Finding) {
	f.SuggestedFixes = append([]string(nil), f.SuggestedFixes...)
	d.HasIssue = true
	d.Description = f.Description
	d.Severity = f.Severity
	d.RootCause = f.RootCause
	d.SuggestedFixes = append([]string(nil), f.SuggestedFixes...)
	d.Confidence = f.Confidence
	d.Findings = append(d.Findings, f)
}
