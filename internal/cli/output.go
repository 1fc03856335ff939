package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/raphaelgruber/physio-scribe/internal/models"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// sectionTitles maps section names to display headings.
var sectionTitles = map[string]string{
	"subjective":       "Subjective",
	"objective":        "Objective",
	"assessment":       "Assessment",
	"plan":             "Plan",
	"follow_up":        "Follow-up",
	"precautions":      "Precautions",
	"referrals":        "Referrals",
	"additional_notes": "Additional notes",
}

// printNote renders the non-empty sections of a note in display order.
func printNote(w io.Writer, note models.StructuredNote) {
	for _, s := range note.Sections() {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		fmt.Fprintf(w, "## %s\n%s\n\n", sectionTitles[s.Name], s.Text)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
