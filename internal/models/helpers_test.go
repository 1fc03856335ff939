package models

import (
	"testing"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

func TestRecordIDString(t *testing.T) {
	tests := []struct {
		name    string
		id      surrealmodels.RecordID
		want    string
		wantErr bool
	}{
		{"string id", surrealmodels.RecordID{Table: "clinical_note", ID: "abc123"}, "abc123", false},
		{"numeric id", surrealmodels.RecordID{Table: "clinical_note", ID: 42}, "", true},
		{"nil id", surrealmodels.RecordID{Table: "clinical_note"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RecordIDString(tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RecordIDString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("RecordIDString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseVisitType(t *testing.T) {
	tests := []struct {
		in   string
		want VisitType
	}{
		{"initial", VisitInitial},
		{"", VisitInitial},
		{"Follow-Up", VisitFollowUp},
		{"followup", VisitFollowUp},
		{"seguimiento", VisitFollowUp},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseVisitType(tt.in); got != tt.want {
				t.Errorf("ParseVisitType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStructuredNoteSections(t *testing.T) {
	note := StructuredNote{
		Subjective: "Low back pain for two weeks.",
		Objective:  "  ",
		Assessment: "Mechanical LBP.",
		Plan:       "",
		Referrals:  "None.",
	}

	missing := note.MissingMandatory()
	if len(missing) != 2 || missing[0] != "objective" || missing[1] != "plan" {
		t.Errorf("MissingMandatory() = %v, want [objective plan]", missing)
	}

	updated := note.WithSection("plan", "Core stability program.")
	if updated.Plan != "Core stability program." {
		t.Errorf("WithSection did not set plan: %q", updated.Plan)
	}
	if note.Plan != "" {
		t.Error("WithSection must not mutate the receiver")
	}

	want := len([]rune(note.Subjective)) + 2 + len([]rune(note.Assessment)) + len([]rune(note.Referrals))
	if got := note.TotalCharacters(); got != want {
		t.Errorf("TotalCharacters() = %d, want %d", got, want)
	}
}
