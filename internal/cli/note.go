package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/physio-scribe/internal/models"
	"github.com/raphaelgruber/physio-scribe/internal/pipeline"
)

var (
	notePatient     string
	noteSession     string
	noteSpecialty   string
	noteVisit       string
	notePriorFile   string
	noteSessionType string
	noteTested      []string
	noteOptimize    bool
	notePersist     bool
)

var noteCmd = &cobra.Command{
	Use:   "note [file|-]",
	Short: "Generate a SOAP note from a transcript",
	Long: `Generate a structured SOAP note from a session transcript.

The transcript is read from the file argument or from stdin. Identifiers
are redacted before the completion service sees the text and restored in
the printed note.

Examples:
  scribe note session.txt
  scribe note --visit follow-up --prior-file last.txt --optimize session.txt
  scribe note --tested lumbar,hip --persist --patient p-12 --session s-3 session.txt
  cat session.txt | scribe note --json`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{needsKey: needsCompletion + "," + needsBackups},
	RunE:        runNote,
}

func init() {
	noteCmd.Flags().StringVar(&notePatient, "patient", "", "patient identifier used when persisting")
	noteCmd.Flags().StringVar(&noteSession, "session", "", "session identifier used when persisting")
	noteCmd.Flags().StringVar(&noteSpecialty, "specialty", "", "vocabulary specialty (default from config)")
	noteCmd.Flags().StringVar(&noteVisit, "visit", "initial", "visit type: initial or follow-up")
	noteCmd.Flags().StringVar(&notePriorFile, "prior-file", "", "file with the previous session summary")
	noteCmd.Flags().StringVar(&noteSessionType, "session-type", "", "session type hint, e.g. telehealth")
	noteCmd.Flags().StringSliceVar(&noteTested, "tested", nil, "regions physically examined (comma-separated)")
	noteCmd.Flags().BoolVar(&noteOptimize, "optimize", false, "use the token-optimized follow-up prompt")
	noteCmd.Flags().BoolVar(&notePersist, "persist", false, "save the note to the database")
}

func runNote(cmd *cobra.Command, args []string) error {
	transcript, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(transcript) == "" {
		return fmt.Errorf("transcript is empty")
	}
	if notePersist && (notePatient == "" || noteSession == "") {
		return fmt.Errorf("--patient and --session are required with --persist")
	}

	var prior string
	if notePriorFile != "" {
		data, err := os.ReadFile(notePriorFile)
		if err != nil {
			return fmt.Errorf("read prior session: %w", err)
		}
		prior = string(data)
	}

	res, err := scribe.Pipeline.Run(cmd.Context(), pipeline.Input{
		Transcript:    transcript,
		PatientID:     notePatient,
		SessionID:     noteSession,
		Specialty:     noteSpecialty,
		VisitType:     models.ParseVisitType(noteVisit),
		PriorSession:  prior,
		SessionType:   noteSessionType,
		TestedRegions: noteTested,
		Optimize:      noteOptimize,
		Persist:       notePersist,
	})
	if err != nil {
		return fmt.Errorf("generate note: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, res)
	}

	printNote(out, res.Note)
	fmt.Fprintf(out, "---\ntrace %s · tier %s · %d chars · %d identifiers redacted\n",
		res.TraceID, res.Selection.ModelTier, res.Note.TotalCharacters(), res.Redactions)
	if res.Generation != nil && res.Generation.TokenComparison != nil {
		tc := res.Generation.TokenComparison
		fmt.Fprintf(out, "prompt tokens %d (standard %d, saved %.0f%%)\n", tc.OptimizedTokens, tc.StandardTokens, tc.SavedPercent)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	for _, e := range res.Validation.Errors {
		fmt.Fprintf(out, "error: %s\n", e)
	}
	if p := res.Persistence; p != nil {
		if p.Success {
			fmt.Fprintf(out, "saved as %s (%d retries)\n", p.NoteID, p.Retries)
		} else {
			fmt.Fprintf(out, "save failed: %s (backup kept: %t)\n", p.Error, p.UsedBackup)
		}
	}
	if res.Degraded {
		return fmt.Errorf("note generation degraded; review before use")
	}
	return nil
}
