// Package models defines the data structures shared by the transcript-to-note pipeline.
package models

import "strings"

// NotDocumented replaces a mandatory section the model left empty.
const NotDocumented = "Not documented."

// VisitType selects the prompt family used for a consultation.
type VisitType string

const (
	VisitInitial  VisitType = "initial"
	VisitFollowUp VisitType = "follow-up"
)

// ParseVisitType maps user input to a VisitType, defaulting to initial.
func ParseVisitType(s string) VisitType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "follow-up", "followup", "follow_up", "seguimiento":
		return VisitFollowUp
	default:
		return VisitInitial
	}
}

// ExamResult is one structured physical test performed during the session.
type ExamResult struct {
	Region string `json:"region" yaml:"region"`
	Test   string `json:"test" yaml:"test"`
	Result string `json:"result" yaml:"result"`
}

// ClinicalContext is the caller-supplied input to the note generator.
// Transcript must already be de-identified.
type ClinicalContext struct {
	Transcript    string       `json:"transcript"`
	VisitType     VisitType    `json:"visit_type"`
	PriorSession  string       `json:"prior_session,omitempty"`
	SessionType   string       `json:"session_type,omitempty"`
	ExamResults   []ExamResult `json:"exam_results,omitempty"`
	TestedRegions []string     `json:"tested_regions,omitempty"`
}

// StructuredNote is a SOAP note with optional trailing sections.
type StructuredNote struct {
	Subjective      string `json:"subjective"`
	Objective       string `json:"objective"`
	Assessment      string `json:"assessment"`
	Plan            string `json:"plan"`
	FollowUp        string `json:"follow_up,omitempty"`
	Precautions     string `json:"precautions,omitempty"`
	Referrals       string `json:"referrals,omitempty"`
	AdditionalNotes string `json:"additional_notes,omitempty"`
}

// Section is a named view of one note field.
type Section struct {
	Name      string
	Mandatory bool
	Text      string
}

// Sections returns every section in display order.
func (n StructuredNote) Sections() []Section {
	return []Section{
		{Name: "subjective", Mandatory: true, Text: n.Subjective},
		{Name: "objective", Mandatory: true, Text: n.Objective},
		{Name: "assessment", Mandatory: true, Text: n.Assessment},
		{Name: "plan", Mandatory: true, Text: n.Plan},
		{Name: "follow_up", Text: n.FollowUp},
		{Name: "precautions", Text: n.Precautions},
		{Name: "referrals", Text: n.Referrals},
		{Name: "additional_notes", Text: n.AdditionalNotes},
	}
}

// WithSection returns a copy of the note with the named section replaced.
// Unknown names leave the note unchanged.
func (n StructuredNote) WithSection(name, text string) StructuredNote {
	switch name {
	case "subjective":
		n.Subjective = text
	case "objective":
		n.Objective = text
	case "assessment":
		n.Assessment = text
	case "plan":
		n.Plan = text
	case "follow_up":
		n.FollowUp = text
	case "precautions":
		n.Precautions = text
	case "referrals":
		n.Referrals = text
	case "additional_notes":
		n.AdditionalNotes = text
	}
	return n
}

// MapSections applies fn to every section and returns the result.
func (n StructuredNote) MapSections(fn func(string) string) StructuredNote {
	out := n
	for _, s := range n.Sections() {
		out = out.WithSection(s.Name, fn(s.Text))
	}
	return out
}

// TotalCharacters counts characters (runes) across all sections.
func (n StructuredNote) TotalCharacters() int {
	total := 0
	for _, s := range n.Sections() {
		total += len([]rune(s.Text))
	}
	return total
}

// MissingMandatory lists mandatory sections that are blank after trimming.
func (n StructuredNote) MissingMandatory() []string {
	var missing []string
	for _, s := range n.Sections() {
		if s.Mandatory && strings.TrimSpace(s.Text) == "" {
			missing = append(missing, s.Name)
		}
	}
	return missing
}
