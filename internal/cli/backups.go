package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/physio-scribe/internal/persist"
)

var restorePlain bool

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "Inspect and restore local note backups",
	Long: `Notes that could not be saved to the database stay in the local backup
file until a later save succeeds. Use these commands to list and retry them.`,
	Annotations: map[string]string{needsKey: needsBackups},
}

var backupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending backups, oldest first",
	Long: `List pending backups, oldest first.

Examples:
  scribe backups list
  scribe backups list --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := scribe.Manager.GetPendingBackups(cmd.Context())
		if err != nil {
			return fmt.Errorf("list backups: %w", err)
		}

		w := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(w, records)
		}
		if len(records) == 0 {
			fmt.Fprintln(w, "No pending backups.")
			return nil
		}
		fmt.Fprintf(w, "%-42s %-12s %-12s %-20s %s\n", "KEY", "PATIENT", "SESSION", "CREATED", "CHARS")
		for _, r := range records {
			fmt.Fprintf(w, "%-42s %-12s %-12s %-20s %d\n",
				truncate(r.Key, 42), truncate(r.PatientID, 12), truncate(r.SessionID, 12),
				r.Timestamp.Local().Format("2006-01-02 15:04:05"), r.SOAPData.TotalCharacters())
		}
		fmt.Fprintf(w, "\n%d pending\n", len(records))
		return nil
	},
}

var backupsRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Retry saving every pending backup",
	Long: `Retry saving every pending backup once. Backups that save are deleted;
the rest stay for the next attempt.

Examples:
  scribe backups restore
  scribe backups restore --plain`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{needsKey: needsDB},
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			summary, err := scribe.Manager.RestoreAllBackups(cmd.Context(), nil)
			if err != nil {
				return fmt.Errorf("restore backups: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), summary)
		}
		if restorePlain {
			return runRestorePlain(cmd)
		}
		return RunRestoreProgress(cmd.Context(), scribe.Manager)
	},
}

func init() {
	backupsRestoreCmd.Flags().BoolVar(&restorePlain, "plain", false, "print one line per backup instead of a progress bar")

	backupsCmd.AddCommand(backupsListCmd)
	backupsCmd.AddCommand(backupsRestoreCmd)
}

func runRestorePlain(cmd *cobra.Command) error {
	w := cmd.OutOrStdout()
	summary, err := scribe.Manager.RestoreAllBackups(cmd.Context(), func(done, total int, rec persist.RestoreRecord) {
		status := "restored " + rec.Result.NoteID
		if !rec.Result.Success {
			status = "failed: " + rec.Result.Error
		}
		fmt.Fprintf(w, "[%d/%d] %s %s\n", done, total, rec.Key, status)
	})
	if err != nil {
		return fmt.Errorf("restore backups: %w", err)
	}
	fmt.Fprintf(w, "%d restored, %d failed, %d total\n", summary.Restored, summary.Failed, summary.Total)
	if summary.Failed > 0 {
		return fmt.Errorf("%d backups could not be restored", summary.Failed)
	}
	return nil
}
