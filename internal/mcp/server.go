// Package mcp exposes the learning core over the Model Context Protocol so
// agent hosts can report activities and read what was learned.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/nvandessel/selfcorrect/internal/config"
	"github.com/nvandessel/selfcorrect/internal/correction"
	"github.com/nvandessel/selfcorrect/internal/learning"
	"github.com/nvandessel/selfcorrect/internal/logging"
	"github.com/nvandessel/selfcorrect/internal/models"
)

// Config configures the MCP server.
type Config struct {
	Name    string
	Version string
	Root    string
	Logger  *zap.Logger
}

// Server serves the selfcorrect tools over stdio.
type Server struct {
	server *sdk.Server
	system *learning.System
	root   string
	logger *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewServer opens the learning system under cfg.Root and registers the tools.
func NewServer(cfg *Config) (*Server, error) {
	logger := logging.OrNop(cfg.Logger)

	appCfg, err := config.Load(cfg.Root)
	if err != nil {
		logger.Warn("using default config", zap.Error(err))
	}
	sys, err := learning.Open(context.Background(), cfg.Root, appCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open learning system: %w", err)
	}

	s := &Server{
		server: sdk.NewServer(&sdk.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		system: sys,
		root:   cfg.Root,
		logger: logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &sdk.StdioTransport{})
}

// Close releases the learning system. It is safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.system.Close()
	})
	return s.closeErr
}

func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "selfcorrect_learn",
		Description: "Report an activity (command_execution, template_instantiation, mechanism_execution, user_feedback, performance_metric) and get its diagnosis",
	}, s.handleLearn)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "selfcorrect_analyze",
		Description: "Summarize learned error patterns, handled issues and prevention rules",
	}, s.handleAnalyze)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "selfcorrect_tasks",
		Description: "List scheduled corrections",
	}, s.handleTasks)
}

// LearnInput is the selfcorrect_learn request.
type LearnInput struct {
	Type string         `json:"type" jsonschema:"activity type"`
	Data map[string]any `json:"data,omitempty" jsonschema:"activity payload with camelCase keys such as command, exitCode, error, errors, output, duration"`
}

// LearnOutput is the selfcorrect_learn response.
type LearnOutput struct {
	Skipped     bool     `json:"skipped"`
	HasIssue    bool     `json:"has_issue"`
	Description string   `json:"description,omitempty"`
	Severity    string   `json:"severity,omitempty"`
	RootCause   string   `json:"root_cause,omitempty"`
	Confidence  float64  `json:"confidence,omitempty"`
	Fixes       []string `json:"suggested_fixes,omitempty"`
	Decision    string   `json:"decision,omitempty"`
	Applied     bool     `json:"applied,omitempty"`
	TaskID      string   `json:"task_id,omitempty"`
	RuleID      string   `json:"rule_id,omitempty"`
}

func (s *Server) handleLearn(ctx context.Context, _ *sdk.CallToolRequest, in LearnInput) (*sdk.CallToolResult, LearnOutput, error) {
	var out LearnOutput
	t, err := models.ParseActivityType(in.Type)
	if err != nil {
		return nil, out, err
	}
	data, err := decodeActivityData(in.Data)
	if err != nil {
		return nil, out, err
	}

	res, err := s.system.Learn(ctx, t, data)
	if err != nil {
		return nil, out, fmt.Errorf("learn: %w", err)
	}
	out.Skipped = res.Skipped
	d := res.Diagnosis
	out.HasIssue = d.HasIssue
	if d.HasIssue {
		out.Description = d.Description
		out.Severity = string(d.Severity)
		out.RootCause = d.RootCause
		out.Confidence = d.Confidence
		out.Fixes = d.SuggestedFixes
	}
	if res.Outcome != nil {
		out.Decision = string(res.Outcome.Decision)
		out.Applied = res.Outcome.Applied
		out.TaskID = res.Outcome.TaskID
		out.RuleID = res.Outcome.RuleID
	}
	return nil, out, nil
}

// decodeActivityData converts a generic payload into ActivityData using
// the same JSON decoding as `selfcorrect learn`.
func decodeActivityData(raw map[string]any) (models.ActivityData, error) {
	var data models.ActivityData
	if len(raw) == 0 {
		return data, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return data, fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(b, &data); err != nil {
		return data, fmt.Errorf("invalid activity payload: %w", err)
	}
	return data, nil
}

// AnalyzeInput is the empty selfcorrect_analyze request.
type AnalyzeInput struct{}

// PatternSummary is one top pattern in AnalyzeOutput.
type PatternSummary struct {
	Category     string `json:"category"`
	Key          string `json:"key"`
	Count        int    `json:"count"`
	PrimaryCause string `json:"primary_cause,omitempty"`
}

// AnalyzeOutput is the selfcorrect_analyze response.
type AnalyzeOutput struct {
	TotalActivities int              `json:"total_activities"`
	CategoryCounts  map[string]int   `json:"category_counts"`
	TopPatterns     []PatternSummary `json:"top_patterns"`
	IssuesHandled   int              `json:"issues_handled"`
	PreventionRules int              `json:"prevention_rules"`
	PendingTasks    int              `json:"pending_tasks"`
}

func (s *Server) handleAnalyze(ctx context.Context, _ *sdk.CallToolRequest, _ AnalyzeInput) (*sdk.CallToolResult, AnalyzeOutput, error) {
	sum := s.system.Summary()
	out := AnalyzeOutput{
		TotalActivities: sum.TotalActivities,
		CategoryCounts:  make(map[string]int, len(sum.CategoryCounts)),
		TopPatterns:     make([]PatternSummary, 0, len(sum.TopPatterns)),
		IssuesHandled:   sum.IssuesHandled,
		PreventionRules: sum.PreventionRules,
		PendingTasks:    sum.PendingTasks,
	}
	for cat, n := range sum.CategoryCounts {
		out.CategoryCounts[string(cat)] = n
	}
	for _, p := range sum.TopPatterns {
		out.TopPatterns = append(out.TopPatterns, PatternSummary{
			Category:     string(p.Category),
			Key:          p.Key,
			Count:        p.Entry.Count,
			PrimaryCause: p.Entry.PrimaryCause(),
		})
	}
	return nil, out, nil
}

// TasksInput filters selfcorrect_tasks.
type TasksInput struct {
	Status string `json:"status,omitempty" jsonschema:"only tasks with this status: pending, executed or cancelled"`
}

// TaskSummary is one scheduled correction.
type TaskSummary struct {
	ID           string `json:"id"`
	Description  string `json:"description"`
	Status       string `json:"status"`
	ScheduledFor string `json:"scheduled_for"`
	Result       string `json:"result,omitempty"`
}

// TasksOutput is the selfcorrect_tasks response.
type TasksOutput struct {
	Tasks []TaskSummary `json:"tasks"`
}

func (s *Server) handleTasks(ctx context.Context, _ *sdk.CallToolRequest, in TasksInput) (*sdk.CallToolResult, TasksOutput, error) {
	out := TasksOutput{Tasks: []TaskSummary{}}
	for _, t := range correction.Tasks(s.system.Ledger()) {
		if in.Status != "" && string(t.Status) != in.Status {
			continue
		}
		out.Tasks = append(out.Tasks, TaskSummary{
			ID:           t.ID,
			Description:  t.Diagnosis.Description,
			Status:       string(t.Status),
			ScheduledFor: t.ScheduledFor.UTC().Format(time.RFC3339),
			Result:       t.Result,
		})
	}
	return nil, out, nil
}
