// Package models defines the records that flow through the self-correction
// core: activities observed by hooks, diagnoses, learned patterns, scheduled
// corrections, prevention rules and backup metadata.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActivityType identifies what kind of external operation an Activity describes.
type ActivityType string

const (
	ActivityCommand     ActivityType = "command_execution"
	ActivityTemplate    ActivityType = "template_instantiation"
	ActivityMechanism   ActivityType = "mechanism_execution"
	ActivityFeedback    ActivityType = "user_feedback"
	ActivityPerformance ActivityType = "performance_metric"
)

// ActivityTypes lists every known activity type in declaration order.
var ActivityTypes = []ActivityType{
	ActivityCommand,
	ActivityTemplate,
	ActivityMechanism,
	ActivityFeedback,
	ActivityPerformance,
}

// ParseActivityType validates a user supplied activity type.
func ParseActivityType(s string) (ActivityType, error) {
	for _, t := range ActivityTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown activity type %q", s)
}

// Activity is one observed event. It is never modified after creation.
type Activity struct {
	// Type selects the diagnoser that analyzes this activity
	Type ActivityType `json:"type" yaml:"type"`

	// When the activity was recorded
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	// Correlates activities from one run
	SessionID string `json:"session_id" yaml:"session_id"`

	// Success is true unless the caller declared otherwise
	Success bool `json:"success" yaml:"success"`

	// Type-specific payload
	Data ActivityData `json:"data" yaml:"data"`
}

// ActivityData is the type-specific payload of an Activity. Field names follow
// the camelCase keys hosts send to `selfcorrect learn`.
type ActivityData struct {
	// Command executions
	Command  string    `json:"command,omitempty" yaml:"command,omitempty"`
	ExitCode int       `json:"exitCode,omitempty" yaml:"exitCode,omitempty"`
	Error    ErrorText `json:"error,omitempty" yaml:"error,omitempty"`

	// Templates and mechanisms
	TemplateID  string   `json:"templateId,omitempty" yaml:"templateId,omitempty"`
	MechanismID string   `json:"mechanismId,omitempty" yaml:"mechanismId,omitempty"`
	Operation   string   `json:"operation,omitempty" yaml:"operation,omitempty"`
	Errors      []string `json:"errors,omitempty" yaml:"errors,omitempty"`

	// Shared by executions
	Output     any            `json:"output,omitempty" yaml:"output,omitempty"`
	Duration   int64          `json:"duration,omitempty" yaml:"duration,omitempty"` // milliseconds
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Context    map[string]any `json:"context,omitempty" yaml:"context,omitempty"`

	// User feedback
	FeedbackType string `json:"feedbackType,omitempty" yaml:"feedbackType,omitempty"`
	Feedback     string `json:"feedback,omitempty" yaml:"feedback,omitempty"`

	// Performance metrics
	MetricType  string  `json:"metricType,omitempty" yaml:"metricType,omitempty"`
	MetricValue float64 `json:"metricValue,omitempty" yaml:"metricValue,omitempty"`
	Threshold   float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Exceeded    bool    `json:"exceeded,omitempty" yaml:"exceeded,omitempty"`

	// Success as declared by the caller; nil means success
	Success *bool `json:"success,omitempty" yaml:"success,omitempty"`

	// Emergency marks activities raised through TriggerEmergencyCorrection
	Emergency bool `json:"emergency,omitempty" yaml:"emergency,omitempty"`

	// Correction optionally tells the correction engine which files to fix
	Correction *CorrectionDescriptor `json:"correction,omitempty" yaml:"correction,omitempty"`
}

// Succeeded reports the caller-declared outcome, defaulting to true.
func (d ActivityData) Succeeded() bool {
	return d.Success == nil || *d.Success
}

// HasOutput reports whether the payload carries a non-empty output.
func (d ActivityData) HasOutput() bool {
	switch v := d.Output.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case []string:
		return len(v) > 0
	case map[string]any:
		// An empty object is still an output; only arrays and strings can be empty.
		return true
	default:
		return true
	}
}

// Bool returns a pointer to b, for building ActivityData literals.
func Bool(b bool) *bool {
	return &b
}

// ErrorText is a free-text error message. When decoded from JSON it accepts
// either a string or an object with a "message" field.
type ErrorText string

// UnmarshalJSON implements json.Unmarshaler.
func (e *ErrorText) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*e = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = ErrorText(s)
		return nil
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("error must be a string or an object with a message: %w", err)
	}
	*e = ErrorText(obj.Message)
	return nil
}
