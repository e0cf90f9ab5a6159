package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nvandessel/selfcorrect/internal/config"
	"github.com/nvandessel/selfcorrect/internal/learning"
	"github.com/nvandessel/selfcorrect/internal/logging"
	"github.com/nvandessel/selfcorrect/internal/models"
	"github.com/nvandessel/selfcorrect/internal/monitor"
	"github.com/nvandessel/selfcorrect/internal/store"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "selfcorrect",
		Short: "Self-correction learning for automated tooling",
		Long: `selfcorrect observes commands, template instantiations and mechanism runs,
diagnoses failures from a fixed rule table, and corrects or schedules
corrections for the files involved. Every correction is backed up first
and rolled back when it fails.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newAnalyzeCmd(),
		newLearnCmd(),
		newMonitorCmd(),
		newBackupCmd(),
		newTasksCmd(),
		newRulesCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

// loadConfig reads the project config, falling back to defaults.
func loadConfig(cmd *cobra.Command) (string, *config.Config, *zap.Logger, error) {
	root, _ := cmd.Flags().GetString("root")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, cfgErr := config.Load(root)
	logger, err := logging.New(cfg.Logging, verbose)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if cfgErr != nil {
		logger.Warn("invalid config, using defaults", zap.Error(cfgErr))
	}
	return root, cfg, logger, nil
}

// openSystem opens the learning system for the --root project.
func openSystem(cmd *cobra.Command) (*learning.System, *zap.Logger, error) {
	root, cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if _, err := os.Stat(config.Dir(root)); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf(".selfcorrect not initialized. Run 'selfcorrect init' first")
	}
	sys, err := learning.Open(cmd.Context(), root, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open learning system: %w", err)
	}
	return sys, logger, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd, map[string]string{"version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "selfcorrect version %s\n", version)
			return nil
		},
	}
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize self-correction learning in the project root",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := store.EnsureDirs(root); err != nil {
				return err
			}
			if err := store.EnsureGitignore(config.Dir(root)); err != nil {
				return err
			}

			// Write config.yaml only when missing
			if _, err := os.Stat(config.Path(root)); os.IsNotExist(err) {
				if err := cfg.Save(root); err != nil {
					return fmt.Errorf("failed to write config: %w", err)
				}
			}

			sys, err := learning.Open(cmd.Context(), root, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to open learning system: %w", err)
			}
			defer sys.Close()
			if err := sys.Ledger().Flush(cmd.Context()); err != nil {
				return fmt.Errorf("failed to create stores: %w", err)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd, map[string]string{
					"status": "initialized",
					"path":   config.Dir(root),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized .selfcorrect/ in %s\n", root)
			return nil
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Show what has been learned so far",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, _, err := openSystem(cmd)
			if err != nil {
				return err
			}
			defer sys.Close()

			sum := sys.Summary()
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd, sum)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Self-Correction Learning Analysis")
			fmt.Fprintf(out, "Total activities tracked: %d\n", sum.TotalActivities)
			for _, cat := range models.Categories {
				fmt.Fprintf(out, "  %-24s %d\n", cat, sum.CategoryCounts[cat])
			}

			fmt.Fprintln(out, "\nTop error patterns:")
			if len(sum.TopPatterns) == 0 {
				fmt.Fprintln(out, "  (none)")
			}
			for i, p := range sum.TopPatterns {
				fmt.Fprintf(out, "%d. %s: %d occurrences\n", i+1, p.Key, p.Entry.Count)
				if cause := p.Entry.PrimaryCause(); cause != "" {
					fmt.Fprintf(out, "   Primary cause: %s\n", cause)
				}
			}

			fmt.Fprintln(out, "\nCorrections:")
			fmt.Fprintf(out, "  Total issues handled: %d\n", sum.IssuesHandled)
			fmt.Fprintf(out, "  Pending scheduled corrections: %d\n", sum.PendingTasks)
			fmt.Fprintf(out, "  Prevention rules created: %d\n", sum.PreventionRules)
			return nil
		},
	}
}

func newLearnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "learn <activityType> [jsonPayload]",
		Short: "Learn from one activity",
		Long: `Feed one activity through analysis and correction.

Activity types: command_execution, template_instantiation,
mechanism_execution, user_feedback, performance_metric.

Example:
  selfcorrect learn command_execution '{"command":"ls","exitCode":0,"success":true}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := models.ParseActivityType(args[0])
			if err != nil {
				return err
			}
			var data models.ActivityData
			if len(args) == 2 && args[1] != "" {
				if err := json.Unmarshal([]byte(args[1]), &data); err != nil {
					return fmt.Errorf("invalid activity payload: %w", err)
				}
			}

			sys, _, err := openSystem(cmd)
			if err != nil {
				return err
			}
			defer sys.Close()

			res, err := sys.Learn(cmd.Context(), t, data)
			if err != nil {
				return fmt.Errorf("learning failed: %w", err)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd, res)
			}
			out := cmd.OutOrStdout()
			switch {
			case res.Skipped:
				fmt.Fprintf(out, "Monitoring is off for %s; nothing learned\n", t)
			case res.Diagnosis.HasIssue:
				d := res.Diagnosis
				fmt.Fprintf(out, "Issue detected: %s (%s, confidence %.2f)\n", d.Description, d.Severity, d.Confidence)
				if res.Outcome != nil {
					fmt.Fprintf(out, "  Decision: %s\n", res.Outcome.Decision)
					if res.Outcome.TaskID != "" {
						fmt.Fprintf(out, "  Scheduled task: %s\n", res.Outcome.TaskID)
					}
				}
			default:
				fmt.Fprintln(out, "Activity monitored and learned from")
			}
			return nil
		},
	}
}

func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Run scheduled corrections until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, logger, err := openSystem(cmd)
			if err != nil {
				return err
			}
			defer sys.Close()

			root, _ := cmd.Flags().GetString("root")
			mcfg := monitor.DefaultConfig()
			mcfg.Interval = sys.Config().Correction.SweepInterval
			if sys.Config().Storage.Backend != config.BackendSQLite {
				mcfg.WatchDir = store.DataDir(root)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.ErrOrStderr(), "Self-correction monitoring started in %s (Ctrl+C to stop)\n", filepath.Clean(root))
			return monitor.New(sys.Ledger(), sys.Corrections(), mcfg, logger).Run(ctx)
		},
	}
}
