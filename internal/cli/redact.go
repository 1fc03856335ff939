package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var redactAudit bool

var redactCmd = &cobra.Command{
	Use:   "redact [file|-]",
	Short: "Print a de-identified copy of a transcript",
	Long: `Print a de-identified copy of a transcript.

The mapping from placeholders back to identifiers is never printed.
With --audit, the de-identified text is scanned again and any identifier
that survived redaction is reported.

Examples:
  scribe redact session.txt
  scribe redact --audit session.txt
  pbpaste | scribe redact`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRedact,
}

func init() {
	redactCmd.Flags().BoolVar(&redactAudit, "audit", false, "report identifiers that survived redaction")
}

// redactOutput is the --json form of the redact command.
type redactOutput struct {
	DeidentifiedText string   `json:"deidentified_text"`
	RemovedCount     int      `json:"removed_count"`
	Remaining        []string `json:"remaining_categories,omitempty"`
}

func runRedact(cmd *cobra.Command, args []string) error {
	text, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	res := scribe.Redactor.Redact(text)
	out := redactOutput{DeidentifiedText: res.DeidentifiedText, RemovedCount: res.RemovedCount}
	if redactAudit {
		// Only categories are reported; the values are identifiers.
		for _, f := range scribe.Redactor.FindRemainingIdentifiers(res.DeidentifiedText) {
			out.Remaining = append(out.Remaining, f.Category)
		}
	}

	w := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(w, out)
	}

	fmt.Fprintln(w, res.DeidentifiedText)
	fmt.Fprintf(cmd.ErrOrStderr(), "%d identifiers redacted\n", res.RemovedCount)
	if redactAudit {
		if len(out.Remaining) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "audit: no remaining identifiers")
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "audit: %d remaining identifiers %v\n", len(out.Remaining), out.Remaining)
		}
	}
	return nil
}
