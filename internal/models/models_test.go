package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestActivityData_ErrorTextDecoding(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    ErrorText
		wantErr bool
	}{
		{"string", `{"error":"boom"}`, "boom", false},
		{"object with message", `{"error":{"message":"Permission denied"}}`, "Permission denied", false},
		{"null", `{"error":null}`, "", false},
		{"absent", `{}`, "", false},
		{"number", `{"error":42}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d ActivityData
			err := json.Unmarshal([]byte(tt.payload), &d)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && d.Error != tt.want {
				t.Errorf("Error = %q, want %q", d.Error, tt.want)
			}
		})
	}
}

func TestActivityData_Succeeded(t *testing.T) {
	if !(ActivityData{}).Succeeded() {
		t.Error("absent success should default to true")
	}
	if (ActivityData{Success: Bool(false)}).Succeeded() {
		t.Error("explicit false should be reported")
	}
}

func TestActivityData_HasOutput(t *testing.T) {
	tests := []struct {
		name   string
		output any
		want   bool
	}{
		{"nil", nil, false},
		{"empty string", "", false},
		{"text", "done", true},
		{"empty array", []any{}, false},
		{"array", []any{"a"}, true},
		{"empty object", map[string]any{}, true},
		{"number", 3.0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ActivityData{Output: tt.output}
			if got := d.HasOutput(); got != tt.want {
				t.Errorf("HasOutput() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseActivityType(t *testing.T) {
	got, err := ParseActivityType("mechanism_execution")
	if err != nil {
		t.Fatalf("ParseActivityType() error = %v", err)
	}
	if got != ActivityMechanism {
		t.Errorf("ParseActivityType() = %q, want %q", got, ActivityMechanism)
	}
	if _, err := ParseActivityType("shell"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestPatternEntry_Merge(t *testing.T) {
	db := NewPatternsDB()
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := Diagnosis{RootCause: CausePathNotFound, SuggestedFixes: []string{"a", "b"}}

	for i := 0; i < 3; i++ {
		db.Entry(CategoryCommandErrors, "ls missing").Merge(d, first.Add(time.Duration(i)*time.Hour))
	}

	e := db[CategoryCommandErrors]["ls missing"]
	if e.Count != 3 {
		t.Errorf("Count = %d, want 3", e.Count)
	}
	if !e.FirstSeen.Equal(first) {
		t.Errorf("FirstSeen = %v, want %v", e.FirstSeen, first)
	}
	if !e.LastSeen.Equal(first.Add(2 * time.Hour)) {
		t.Errorf("LastSeen = %v, want %v", e.LastSeen, first.Add(2*time.Hour))
	}
	if len(e.RootCauses) != 1 || len(e.Fixes) != 2 {
		t.Errorf("RootCauses = %v, Fixes = %v, want one cause and two fixes", e.RootCauses, e.Fixes)
	}
	if e.PrimaryCause() != CausePathNotFound {
		t.Errorf("PrimaryCause() = %q, want %q", e.PrimaryCause(), CausePathNotFound)
	}
}

func TestCorrectionDescriptor_Files(t *testing.T) {
	d := CorrectionDescriptor{FilePath: "a.js", FilesToModify: []string{"b.js", "a.js", ""}}
	got := d.Files()
	if len(got) != 2 || got[0] != "a.js" || got[1] != "b.js" {
		t.Errorf("Files() = %v, want [a.js b.js]", got)
	}
}

func TestCorrectionTask_Due(t *testing.T) {
	now := time.Now()
	task := CorrectionTask{Status: TaskPending, ScheduledFor: now}
	if !task.Due(now) {
		t.Error("task scheduled for now should be due")
	}
	task.ScheduledFor = now.Add(time.Minute)
	if task.Due(now) {
		t.Error("future task should not be due")
	}
	task.ScheduledFor = now.Add(-time.Minute)
	task.Status = TaskExecuted
	if task.Due(now) {
		t.Error("executed task should never be due")
	}
}
