package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/selfcorrect/internal/correction"
)

func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage scheduled corrections",
	}
	cmd.AddCommand(
		newTasksListCmd(),
		newTasksCancelCmd(),
		newTasksSweepCmd(),
	)
	return cmd
}

func newTasksListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled corrections by due time",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, _, err := openSystem(cmd)
			if err != nil {
				return err
			}
			defer sys.Close()

			status, _ := cmd.Flags().GetString("status")
			tasks := correction.Tasks(sys.Ledger())
			filtered := tasks[:0]
			for _, t := range tasks {
				if status == "" || string(t.Status) == status {
					filtered = append(filtered, t)
				}
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd, map[string]interface{}{
					"tasks": filtered,
					"count": len(filtered),
				})
			}
			out := cmd.OutOrStdout()
			if len(filtered) == 0 {
				fmt.Fprintln(out, "No scheduled corrections.")
				return nil
			}
			for _, t := range filtered {
				fmt.Fprintf(out, "%s  %-9s  due %s  %s\n",
					t.ID, t.Status, t.ScheduledFor.Local().Format(time.RFC3339), t.Diagnosis.Description)
			}
			return nil
		},
	}
	cmd.Flags().String("status", "", "Only show tasks with this status (pending, executed, cancelled)")
	return cmd
}

func newTasksCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a pending correction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, _, err := openSystem(cmd)
			if err != nil {
				return err
			}
			defer sys.Close()

			if err := sys.Corrections().CancelTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd, map[string]string{"status": "cancelled", "id": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s\n", args[0])
			return nil
		},
	}
}

func newTasksSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run every correction that is due now",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, _, err := openSystem(cmd)
			if err != nil {
				return err
			}
			defer sys.Close()

			report, err := sys.Corrections().Sweep(cmd.Context(), time.Now())
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd, report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Executed %d (applied %d, failed %d, skipped %d)\n",
				report.Executed, report.Applied, report.Failed, report.Skipped)
			return nil
		},
	}
}
