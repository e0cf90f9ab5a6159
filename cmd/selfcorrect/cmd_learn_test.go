package main

import (
	"encoding/json"
	"strings"
	"testing"
)

const chainingPayload = `{"command":"build && deploy","exitCode":1,"error":"&& is not a valid statement separator"}`

func TestLearnCmd_SchedulesChainingFix(t *testing.T) {
	root := initProject(t)

	out, err := runCLI(t, "learn", "command_execution", chainingPayload, "--root", root, "--json")
	if err != nil {
		t.Fatalf("learn error = %v", err)
	}
	var res struct {
		Diagnosis struct {
			HasIssue  bool   `json:"hasIssue"`
			RootCause string `json:"rootCause"`
		} `json:"diagnosis"`
		Outcome struct {
			Decision string `json:"decision"`
			TaskID   string `json:"taskId"`
		} `json:"outcome"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if res.Outcome.Decision != "scheduled" {
		t.Errorf("decision = %q, want scheduled", res.Outcome.Decision)
	}
	if res.Outcome.TaskID == "" {
		t.Fatal("expected a scheduled task id")
	}

	out, err = runCLI(t, "tasks", "list", "--root", root, "--json")
	if err != nil {
		t.Fatalf("tasks list error = %v", err)
	}
	if !strings.Contains(out, res.Outcome.TaskID) {
		t.Errorf("tasks list does not include %s:\n%s", res.Outcome.TaskID, out)
	}

	if _, err := runCLI(t, "tasks", "cancel", res.Outcome.TaskID, "--root", root); err != nil {
		t.Fatalf("tasks cancel error = %v", err)
	}
	if _, err := runCLI(t, "tasks", "cancel", res.Outcome.TaskID, "--root", root); err == nil {
		t.Error("cancelling twice should fail")
	}

	out, err = runCLI(t, "analyze", "--root", root, "--json")
	if err != nil {
		t.Fatalf("analyze error = %v", err)
	}
	var sum struct {
		TotalActivities int `json:"total_activities"`
		IssuesHandled   int `json:"issues_handled"`
		PreventionRules int `json:"prevention_rules"`
		PendingTasks    int `json:"pending_tasks"`
	}
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("analyze output is not JSON: %v\n%s", err, out)
	}
	if sum.TotalActivities != 1 || sum.IssuesHandled != 1 || sum.PreventionRules != 1 || sum.PendingTasks != 0 {
		t.Errorf("summary = %+v, want 1 activity, 1 issue, 1 rule, 0 pending", sum)
	}
}

func TestLearnCmd_RuleFeedback(t *testing.T) {
	root := initProject(t)
	if _, err := runCLI(t, "learn", "command_execution", chainingPayload, "--root", root); err != nil {
		t.Fatalf("learn error = %v", err)
	}

	out, err := runCLI(t, "rules", "list", "--root", root, "--json")
	if err != nil {
		t.Fatalf("rules list error = %v", err)
	}
	var list struct {
		Rules []struct {
			ID string `json:"id"`
		} `json:"rules"`
	}
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(list.Rules) != 1 {
		t.Fatalf("rules = %d, want 1", len(list.Rules))
	}

	if _, err := runCLI(t, "rules", "feedback", list.Rules[0].ID, "--prevented", "--root", root); err != nil {
		t.Errorf("rules feedback error = %v", err)
	}
	if _, err := runCLI(t, "rules", "feedback", "missing", "--root", root); err == nil {
		t.Error("feedback for an unknown rule should fail")
	}
}

func TestLearnCmd_InvalidInput(t *testing.T) {
	root := initProject(t)
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown type", []string{"learn", "shell_command"}, "activity type"},
		{"malformed payload", []string{"learn", "command_execution", "{not json"}, "invalid activity payload"},
		{"no args", []string{"learn"}, "arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, append(tt.args, "--root", root)...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestTasksSweepCmd_NothingDue(t *testing.T) {
	root := initProject(t)
	if _, err := runCLI(t, "learn", "command_execution", chainingPayload, "--root", root); err != nil {
		t.Fatalf("learn error = %v", err)
	}
	out, err := runCLI(t, "tasks", "sweep", "--root", root)
	if err != nil {
		t.Fatalf("sweep error = %v", err)
	}
	if !strings.Contains(out, "Executed 0") {
		t.Errorf("task scheduled a day out should not run:\n%s", out)
	}
}
