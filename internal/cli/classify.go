package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/physio-scribe/internal/models"
	"github.com/raphaelgruber/physio-scribe/internal/router"
)

var classifySpecialty string

var classifyCmd = &cobra.Command{
	Use:   "classify [file|-]",
	Short: "Classify transcript complexity and pick a model tier",
	Long: `Classify a transcript without generating a note.

Prints the complexity, red flags, urgency and the model tier the router
would use. The transcript is redacted first, as in note generation.

Examples:
  scribe classify session.txt
  scribe classify --specialty physiotherapy --json session.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&classifySpecialty, "specialty", "", "vocabulary specialty (default from config)")
}

// classifyOutput is the --json form of the classify command.
type classifyOutput struct {
	Analysis        models.ComplexityAnalysis `json:"analysis"`
	Selection       models.ModelSelection     `json:"selection"`
	EstimatedTokens int                       `json:"estimated_tokens"`
}

func runClassify(cmd *cobra.Command, args []string) error {
	text, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("transcript is empty")
	}

	redacted := scribe.Redactor.Redact(text).DeidentifiedText
	analysis := scribe.Classifier.Classify(redacted, classifySpecialty)
	tokens := router.EstimateTokens(redacted)
	out := classifyOutput{
		Analysis:        analysis,
		Selection:       scribe.Classifier.SelectModel(analysis, tokens),
		EstimatedTokens: tokens,
	}

	w := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(w, out)
	}

	fmt.Fprintf(w, "Complexity:  %s\n", analysis.Complexity)
	fmt.Fprintf(w, "Urgency:     %s\n", analysis.Urgency)
	fmt.Fprintf(w, "Specialty:   %s\n", analysis.Specialty)
	fmt.Fprintf(w, "Confidence:  %.2f\n", analysis.Confidence)
	if len(analysis.RedFlags) > 0 {
		fmt.Fprintf(w, "Red flags:   %s\n", strings.Join(analysis.RedFlags, ", "))
	}
	fmt.Fprintf(w, "Model tier:  %s (%s)\n", out.Selection.ModelTier, out.Selection.Reason)
	fmt.Fprintf(w, "Est. tokens: %d, est. cost $%.4f\n", tokens, out.Selection.EstimatedCost)
	return nil
}
