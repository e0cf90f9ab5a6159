package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Inspect and restore pre-correction file backups",
		Long: `Every automated correction snapshots the files it touches before
changing them. Backups live in .selfcorrect/backups/<backup-id>/.

Examples:
  selfcorrect backup list
  selfcorrect backup rollback correction-20260314T090000.000000000Z-syntax-rewrite
  selfcorrect backup cleanup --keep 20
  selfcorrect backup recover`,
	}
	cmd.AddCommand(
		newBackupListCmd(),
		newBackupRollbackCmd(),
		newBackupCleanupCmd(),
		newBackupRecoverCmd(),
	)
	return cmd
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, _, err := openSystem(cmd)
			if err != nil {
				return err
			}
			defer sys.Close()

			records, err := sys.Backups().List()
			if err != nil {
				return fmt.Errorf("failed to list backups: %w", err)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd, map[string]interface{}{
					"backups": records,
					"count":   len(records),
				})
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No backups.")
				return nil
			}
			for _, rec := range records {
				fmt.Fprintf(out, "%s  %-11s  %d file(s)\n", rec.BackupID, rec.Status, len(rec.Snapshots))
			}
			return nil
		},
	}
}

func newBackupRollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <backup-id>",
		Short: "Restore the files of a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, _, err := openSystem(cmd)
			if err != nil {
				return err
			}
			defer sys.Close()

			report, err := sys.Corrections().Rollback(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd, map[string]interface{}{
					"backup_id": args[0],
					"restored":  report.Restored,
					"missing":   report.Missing,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rolled back %s\n", args[0])
			for _, p := range report.Restored {
				fmt.Fprintf(out, "  restored %s\n", p)
			}
			for _, p := range report.Missing {
				fmt.Fprintf(out, "  no snapshot for %s\n", p)
			}
			return nil
		},
	}
}

func newBackupCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete the oldest backups beyond the retention limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, _, err := openSystem(cmd)
			if err != nil {
				return err
			}
			defer sys.Close()

			keep, _ := cmd.Flags().GetInt("keep")
			removed, err := sys.Backups().Cleanup(keep)
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd, map[string]int{"removed": removed})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d backup(s)\n", removed)
			return nil
		},
	}
	cmd.Flags().Int("keep", 0, "Backups to keep (default: backup.keep from config)")
	return cmd
}

func newBackupRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Roll back corrections interrupted mid-application",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, _, err := openSystem(cmd)
			if err != nil {
				return err
			}
			defer sys.Close()

			// Opening the system already runs the scan; run it again so the
			// result can be reported.
			ids, err := sys.Corrections().RecoverInterrupted(cmd.Context())
			if err != nil {
				return fmt.Errorf("recovery failed: %w", err)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd, map[string]interface{}{"recovered": ids})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recovered %d interrupted correction(s)\n", len(ids))
			return nil
		},
	}
}
