package models

import (
	"time"
)

// CorrectionKind names one entry in the catalog of automated corrections.
type CorrectionKind string

const (
	KindSyntaxRewrite        CorrectionKind = "syntax-rewrite"
	KindAddValidationSnippet CorrectionKind = "add-validation-snippet"
	KindFixImport            CorrectionKind = "fix-import"
	KindFixConfigValue       CorrectionKind = "fix-config-value"
	KindAddTypeValidation    CorrectionKind = "add-type-validation"
)

// Insert locations understood by the add-type-validation kind.
const (
	InsertTop          = "top"
	InsertBeforeExport = "before_export"
)

// CorrectionDescriptor describes exactly what a correction will change.
type CorrectionDescriptor struct {
	// Kind selects the corrector; empty means "derive from the diagnosis"
	Kind CorrectionKind `json:"kind,omitempty" yaml:"kind,omitempty"`

	// FilePath is the primary file the correction edits
	FilePath string `json:"filePath,omitempty" yaml:"filePath,omitempty"`

	// FilesToModify lists every file the correction may touch; it always
	// includes FilePath once Files() has been called
	FilesToModify []string `json:"filesToModify,omitempty" yaml:"filesToModify,omitempty"`

	// Line restricts syntax rewrites to one 1-based line; 0 means the whole file
	Line int `json:"line,omitempty" yaml:"line,omitempty"`

	// Find and Replace drive the text-replacement kinds
	Find    string `json:"find,omitempty" yaml:"find,omitempty"`
	Replace string `json:"replace,omitempty" yaml:"replace,omitempty"`

	// FunctionName anchors add-validation-snippet
	FunctionName string `json:"functionName,omitempty" yaml:"functionName,omitempty"`

	// Snippet is inserted by the validation kinds
	Snippet string `json:"snippet,omitempty" yaml:"snippet,omitempty"`

	// InsertLocation is "top" or "before_export" for add-type-validation
	InsertLocation string `json:"insertLocation,omitempty" yaml:"insertLocation,omitempty"`

	// ConfigKey is a dotted key path and Value its new value for fix-config-value
	ConfigKey string `json:"configKey,omitempty" yaml:"configKey,omitempty"`
	Value     any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// Files returns FilePath followed by FilesToModify, without duplicates.
func (d CorrectionDescriptor) Files() []string {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		files = append(files, p)
	}
	add(d.FilePath)
	for _, p := range d.FilesToModify {
		add(p)
	}
	return files
}

// TaskStatus is the lifecycle state of a CorrectionTask.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskExecuted  TaskStatus = "executed"
	TaskCancelled TaskStatus = "cancelled"
)

// CorrectionTask is a correction deferred to a later scheduler sweep.
type CorrectionTask struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	Activity     Activity   `json:"activity"`
	Diagnosis    Diagnosis  `json:"analysis"`
	ScheduledFor time.Time  `json:"scheduledFor"`
	Status       TaskStatus `json:"status"`
	ExecutedAt   *time.Time `json:"executedAt,omitempty"`

	// Result is "applied", "failed" or "skipped" once executed
	Result string `json:"result,omitempty"`
}

// Due reports whether a pending task should run at now.
func (t CorrectionTask) Due(now time.Time) bool {
	return t.Status == TaskPending && !t.ScheduledFor.After(now)
}

// IssueLog records one issue handed to the correction engine.
type IssueLog struct {
	Timestamp time.Time `json:"timestamp"`
	Activity  Activity  `json:"activity"`
	Diagnosis Diagnosis `json:"analysis"`
	Status    string    `json:"status"`
}

// LogEntry is one line of the human-readable correction log.
type LogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Action     string    `json:"action"`
	Confidence float64   `json:"confidence"`
	Detail     string    `json:"detail"`
}

// Correction log actions.
const (
	ActionImmediateFix     = "immediate_fix"
	ActionScheduledFix     = "scheduled_fix"
	ActionScheduledRun     = "scheduled_fix_executed"
	ActionAppliedFix       = "applied_fix"
	ActionCorrectionFailed = "correction_failed"
	ActionCorrectionSkip   = "correction_skipped"
	ActionPreventionRule   = "prevention_rule"
	ActionRollback         = "rollback"
	ActionTaskCancelled    = "task_cancelled"
)
