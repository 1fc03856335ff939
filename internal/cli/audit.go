package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check persisted notes for integrity problems",
	Long: `Check every persisted note for missing identifiers, empty mandatory
sections, missing payloads and missing timestamps. Nothing is modified.

Examples:
  scribe audit
  scribe audit --json`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{needsKey: needsDB},
	RunE: func(cmd *cobra.Command, args []string) error {
		issues, err := scribe.Manager.AuditIntegrity(cmd.Context())
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}

		w := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(w, issues)
		}
		if len(issues) == 0 {
			fmt.Fprintln(w, "No integrity issues found.")
			return nil
		}
		fmt.Fprintf(w, "%-40s %s\n", "NOTE", "ISSUE")
		for _, is := range issues {
			fmt.Fprintf(w, "%-40s %s\n", truncate(is.NoteID, 40), is.Issue)
		}
		fmt.Fprintf(w, "\n%d issues\n", len(issues))
		return nil
	},
}
