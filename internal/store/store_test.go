package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/nvandessel/selfcorrect/internal/models"
)

// backends returns a fresh instance of every Store implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	sq, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "test.db"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { sq.Close() })

	return map[string]Store{
		"file":   fs,
		"sqlite": sq,
		"memory": NewMemoryStore(),
	}
}

func TestStore_EmptyLoadsDefaults(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			patterns, err := s.LoadPatterns(ctx)
			if err != nil {
				t.Fatalf("LoadPatterns() error = %v", err)
			}
			if len(patterns) != len(models.Categories) {
				t.Errorf("LoadPatterns() has %d categories, want %d", len(patterns), len(models.Categories))
			}

			errs, err := s.LoadErrors(ctx)
			if err != nil {
				t.Fatalf("LoadErrors() error = %v", err)
			}
			if errs.History == nil || errs.PreventionRules == nil || errs.Corrections.Scheduled == nil {
				t.Error("LoadErrors() returned nil collections")
			}

			entries, err := s.LogEntries(ctx)
			if err != nil {
				t.Fatalf("LogEntries() error = %v", err)
			}
			if len(entries) != 0 {
				t.Errorf("LogEntries() = %d entries, want 0", len(entries))
			}
		})
	}
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	patterns := models.NewPatternsDB()
	patterns.Entry(models.CategoryCommandErrors, "cd missing").Merge(models.Diagnosis{
		RootCause:      models.CausePathNotFound,
		SuggestedFixes: []string{"Verify the path exists"},
	}, ts)

	errs := models.NewErrorsDB()
	errs.History = append(errs.History, models.Activity{
		Type:      models.ActivityCommand,
		Timestamp: ts,
		SessionID: "s1",
		Data:      models.ActivityData{Command: "cd missing", ExitCode: 1},
	})
	errs.Corrections.Scheduled = append(errs.Corrections.Scheduled, models.CorrectionTask{
		ID:           "task-1",
		ScheduledFor: ts.Add(24 * time.Hour),
		Status:       models.TaskPending,
	})
	errs.PreventionRules["r1"] = &models.PreventionRule{ID: "r1", Trigger: models.ActivityCommand, Condition: "chaining", Occurrences: 2}

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.SavePatterns(ctx, patterns); err != nil {
				t.Fatalf("SavePatterns() error = %v", err)
			}
			if err := s.SaveErrors(ctx, errs); err != nil {
				t.Fatalf("SaveErrors() error = %v", err)
			}

			gotPatterns, err := s.LoadPatterns(ctx)
			if err != nil {
				t.Fatalf("LoadPatterns() error = %v", err)
			}
			if diff := cmp.Diff(patterns, gotPatterns); diff != "" {
				t.Errorf("patterns mismatch (-want +got):\n%s", diff)
			}

			gotErrs, err := s.LoadErrors(ctx)
			if err != nil {
				t.Fatalf("LoadErrors() error = %v", err)
			}
			if diff := cmp.Diff(errs, gotErrs); diff != "" {
				t.Errorf("errors mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStore_AppendLog(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	want := []models.LogEntry{
		{Timestamp: ts, Action: models.ActionImmediateFix, Confidence: 0.95, Detail: "chaining-syntax misuse"},
		{Timestamp: ts.Add(time.Second), Action: models.ActionCorrectionFailed, Confidence: 0.1, Detail: "anchor missing"},
	}

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, e := range want {
				if err := s.AppendLog(ctx, e); err != nil {
					t.Fatalf("AppendLog() error = %v", err)
				}
			}
			got, err := s.LogEntries(ctx)
			if err != nil {
				t.Fatalf("LogEntries() error = %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("log mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFileStore_LogFormat(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	entry := models.LogEntry{
		Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Action:     models.ActionScheduledFix,
		Confidence: 0.85,
		Detail:     "path-not-found",
	}
	if err := s.AppendLog(ctx, entry); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendLog(ctx, entry); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, LogFile))
	if err != nil {
		t.Fatal(err)
	}
	line := "2026-03-01T12:00:00Z | scheduled_fix | Confidence: 85.0% | path-not-found\n"
	want := LogHeader + line + line
	if string(data) != want {
		t.Errorf("log file = %q, want %q", string(data), want)
	}
}

func TestFileStore_CorruptDocuments(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{PatternsFile, ErrorsFile} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{\"history\": [tru"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	patterns, err := s.LoadPatterns(ctx)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("LoadPatterns() error = %v, want ErrCorrupt", err)
	}
	if len(patterns) != len(models.Categories) {
		t.Error("corrupt patterns should load as empty defaults")
	}

	errs, err := s.LoadErrors(ctx)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("LoadErrors() error = %v, want ErrCorrupt", err)
	}
	if errs == nil || len(errs.History) != 0 {
		t.Error("corrupt errors store should load as empty defaults")
	}
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveErrors(context.Background(), models.NewErrorsDB()); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestParseLogLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    models.LogEntry
		wantErr bool
	}{
		{
			name: "valid",
			line: "2026-03-01T12:00:00Z | rollback | Confidence: 100.0% | a | b",
			want: models.LogEntry{
				Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
				Action:     "rollback",
				Confidence: 1,
				Detail:     "a | b",
			},
		},
		{name: "too few fields", line: "2026-03-01T12:00:00Z | rollback", wantErr: true},
		{name: "bad timestamp", line: "yesterday | rollback | Confidence: 1.0% | x", wantErr: true},
		{name: "bad confidence", line: "2026-03-01T12:00:00Z | rollback | Confidence: high | x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLogLine(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLine() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseLogLine() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	s, err := Open(ctx, root, "json", nil)
	if err != nil {
		t.Fatalf("Open(json) error = %v", err)
	}
	if _, ok := s.(*FileStore); !ok {
		t.Errorf("Open(json) = %T, want *FileStore", s)
	}

	s, err = Open(ctx, root, "sqlite", nil)
	if err != nil {
		t.Fatalf("Open(sqlite) error = %v", err)
	}
	defer s.Close()
	if _, err := os.Stat(SQLitePath(root)); err != nil {
		t.Errorf("database file not created: %v", err)
	}

	if _, err := Open(ctx, root, "redis", nil); err == nil {
		t.Error("Open(redis) should fail")
	}
}

func TestEnsureGitignore(t *testing.T) {
	dir := t.TempDir()
	if err := EnsureGitignore(dir); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, ".gitignore")
	if err := os.WriteFile(path, []byte("custom\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := EnsureGitignore(dir); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "custom\n" {
		t.Error("EnsureGitignore overwrote an existing file")
	}
}
