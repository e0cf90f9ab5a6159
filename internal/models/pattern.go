package models

import (
	"slices"
	"time"
)

// PatternEntry aggregates how often and why a (category, key) pair failed.
// Entries are merged, never deleted.
type PatternEntry struct {
	Count      int       `json:"count"`
	FirstSeen  time.Time `json:"firstSeen"`
	LastSeen   time.Time `json:"lastSeen"`
	RootCauses []string  `json:"rootCauses"`
	Fixes      []string  `json:"fixes"`
}

// Merge folds one diagnosis observed at now into the entry.
func (p *PatternEntry) Merge(d Diagnosis, now time.Time) {
	if p.Count == 0 {
		p.FirstSeen = now
	}
	p.Count++
	p.LastSeen = now
	p.RootCauses = appendUnique(p.RootCauses, d.RootCause)
	for _, fix := range d.SuggestedFixes {
		p.Fixes = appendUnique(p.Fixes, fix)
	}
}

// PrimaryCause returns the first recorded root cause.
func (p PatternEntry) PrimaryCause() string {
	if len(p.RootCauses) == 0 {
		return ""
	}
	return p.RootCauses[0]
}

func appendUnique(list []string, v string) []string {
	if v == "" || slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}

// PatternsDB is the patterns store: category -> key -> entry.
type PatternsDB map[Category]map[string]*PatternEntry

// NewPatternsDB returns a store with every category present.
func NewPatternsDB() PatternsDB {
	db := make(PatternsDB, len(Categories))
	for _, c := range Categories {
		db[c] = make(map[string]*PatternEntry)
	}
	return db
}

// Normalize fills in categories missing from a loaded document.
func (db PatternsDB) Normalize() {
	for _, c := range Categories {
		if db[c] == nil {
			db[c] = make(map[string]*PatternEntry)
		}
	}
}

// Entry returns the entry for (category, key), creating it when absent.
func (db PatternsDB) Entry(c Category, key string) *PatternEntry {
	if db[c] == nil {
		db[c] = make(map[string]*PatternEntry)
	}
	e, ok := db[c][key]
	if !ok {
		e = &PatternEntry{RootCauses: []string{}, Fixes: []string{}}
		db[c][key] = e
	}
	return e
}

// LearningPattern tracks how often an (activity type, root cause) pair was handled.
type LearningPattern struct {
	Occurrences int       `json:"occurrences"`
	Confidence  float64   `json:"confidence"`
	Fixes       []string  `json:"fixes"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// SuccessPattern records the heuristics observed on a successful activity.
type SuccessPattern struct {
	Type      ActivityType `json:"type"`
	Command   string       `json:"command,omitempty"`
	Duration  int64        `json:"duration,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Factors   []string     `json:"factors"`
}

// Corrections holds the issue history and deferred corrections.
type Corrections struct {
	Issues    []IssueLog       `json:"issues"`
	Scheduled []CorrectionTask `json:"scheduled"`
}

// ErrorsDB is the errors store document.
type ErrorsDB struct {
	History         []Activity                  `json:"history"`
	Patterns        map[string]*LearningPattern `json:"patterns"`
	SuccessPatterns []SuccessPattern            `json:"success_patterns"`
	Corrections     Corrections                 `json:"corrections"`
	PreventionRules map[string]*PreventionRule  `json:"prevention_rules"`
}

// NewErrorsDB returns an empty errors store.
func NewErrorsDB() *ErrorsDB {
	db := &ErrorsDB{}
	db.Normalize()
	return db
}

// Normalize replaces nil collections so callers never need nil checks.
func (db *ErrorsDB) Normalize() {
	if db.History == nil {
		db.History = []Activity{}
	}
	if db.Patterns == nil {
		db.Patterns = make(map[string]*LearningPattern)
	}
	if db.SuccessPatterns == nil {
		db.SuccessPatterns = []SuccessPattern{}
	}
	if db.Corrections.Issues == nil {
		db.Corrections.Issues = []IssueLog{}
	}
	if db.Corrections.Scheduled == nil {
		db.Corrections.Scheduled = []CorrectionTask{}
	}
	if db.PreventionRules == nil {
		db.PreventionRules = make(map[string]*PreventionRule)
	}
}
