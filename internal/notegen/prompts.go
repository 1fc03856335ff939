package notegen

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/physio-scribe/internal/models"
)

// Template identifies the prompt family used for a request.
type Template string

const (
	TemplateInitial           Template = "initial"
	TemplateFollowUp          Template = "follow_up"
	TemplateFollowUpOptimized Template = "follow_up_optimized"
)

const systemPrompt = `You are a clinical documentation assistant for physiotherapists.
Write a SOAP note from the consultation transcript.

Respond with a single JSON object and nothing else, using these keys:
subjective, objective, assessment, plan, followUp, precautions, referrals, additionalNotes

Rules:
- Use only information present in the transcript and the structured data provided
- Keep placeholder tokens such as [NAME_1] or [PHONE_2] exactly as written
- Write "Not documented." for a mandatory section with no supporting information
- Leave optional sections as empty strings when nothing applies
- Be concise; the whole note should stay under 2500 characters`

// selectTemplate picks the template for a visit.
func selectTemplate(visit models.VisitType, optimize bool) Template {
	if visit != models.VisitFollowUp {
		return TemplateInitial
	}
	if optimize {
		return TemplateFollowUpOptimized
	}
	return TemplateFollowUp
}

// buildPrompt renders the user prompt for a template.
func buildPrompt(tmpl Template, cc models.ClinicalContext) string {
	var b strings.Builder

	switch tmpl {
	case TemplateInitial:
		b.WriteString("Initial physiotherapy assessment.\n")
		b.WriteString("Document the history of the presenting complaint, relevant past history, ")
		b.WriteString("physical examination findings, working diagnosis and an initial treatment plan with goals.\n")
	case TemplateFollowUp:
		b.WriteString("Follow-up physiotherapy session.\n")
		b.WriteString("Document progress since the last session, response to treatment, ")
		b.WriteString("re-assessment findings, an updated assessment and the plan for the next sessions.\n")
		b.WriteString("Highlight changes in pain, function and adherence to the home exercise program.\n")
	case TemplateFollowUpOptimized:
		b.WriteString("Follow-up session. Note changes since last visit only. Terse clinical style.\n")
	}

	if cc.SessionType != "" {
		fmt.Fprintf(&b, "\nSession type: %s\n", cc.SessionType)
	}
	if cc.PriorSession != "" {
		prior := cc.PriorSession
		if tmpl == TemplateFollowUpOptimized {
			prior = lastRunes(prior, 600)
		}
		fmt.Fprintf(&b, "\nPrevious session summary:\n%s\n", prior)
	}

	if len(cc.ExamResults) > 0 {
		b.WriteString("\nStructured examination results:\n")
		for _, r := range cc.ExamResults {
			fmt.Fprintf(&b, "- %s: %s = %s\n", r.Region, r.Test, r.Result)
		}
	}

	if len(cc.TestedRegions) > 0 {
		fmt.Fprintf(&b, "\nRegions physically examined: %s\n", strings.Join(cc.TestedRegions, ", "))
		b.WriteString("The objective section must only report findings for these regions.\n")
	}

	fmt.Fprintf(&b, "\nTranscript:\n%s\n", cc.Transcript)
	return b.String()
}

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "..." + string(r[len(r)-n:])
}
