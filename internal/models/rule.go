package models

import "time"

// PreventionRule is a standing guard derived from a diagnosis.
type PreventionRule struct {
	ID        string       `json:"id"`
	Trigger   ActivityType `json:"trigger"`
	Condition string       `json:"condition"`
	Action    string       `json:"action"`

	// Confidence is the highest diagnosis confidence merged into the rule
	Confidence float64 `json:"confidence"`

	// Effectiveness is a running score adjusted by outcome feedback (0.0-1.0)
	Effectiveness float64 `json:"effectiveness"`

	// Occurrences counts diagnoses merged into this rule
	Occurrences int `json:"occurrences"`

	// Applied is set once the rule was handed to the enforcer
	Applied bool `json:"applied"`

	Created  time.Time `json:"created"`
	LastSeen time.Time `json:"lastSeen"`
}

// RuleKey identifies rules that guard the same trigger and condition.
func RuleKey(trigger ActivityType, condition string) string {
	return string(trigger) + "|" + condition
}

// Key returns the rule's merge key.
func (r PreventionRule) Key() string {
	return RuleKey(r.Trigger, r.Condition)
}
