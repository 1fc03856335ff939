package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/physio-scribe/internal/models"
	"github.com/raphaelgruber/physio-scribe/internal/vocab"
)

func newTestValidator() *Validator {
	return New(vocab.MustDefault())
}

func sentence(i int) string {
	return "Patient completed exercise block number " + strings.Repeat("x", i%7+1) + " with good form."
}

func longText(chars int) string {
	var b strings.Builder
	for i := 0; b.Len() < chars; i++ {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(sentence(i))
	}
	return b.String()
}

func validNote() models.StructuredNote {
	return models.StructuredNote{
		Subjective: "Low back pain for two weeks after lifting.",
		Objective:  "Lumbar flexion limited to 50 percent. SLR negative bilaterally.",
		Assessment: "Mechanical low back pain.",
		Plan:       "Core stability program and walking.",
	}
}

func TestValidateCleanNote(t *testing.T) {
	res := newTestValidator().Validate(validNote())

	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
	assert.False(t, res.RepetitionCheck.HasRepetition)
	assert.Equal(t, validNote().TotalCharacters(), res.TotalCharacters)
}

func TestValidateLength(t *testing.T) {
	v := newTestValidator()

	t.Run("above guideline is a warning", func(t *testing.T) {
		note := validNote()
		note.AdditionalNotes = strings.Repeat("a", 2600)
		res := v.Validate(note)
		assert.True(t, res.IsValid)
		require.Len(t, res.Warnings, 1)
		assert.Contains(t, res.Warnings[0], "guideline")
	})

	t.Run("above excessive is an error", func(t *testing.T) {
		note := validNote()
		note.AdditionalNotes = strings.Repeat("a", 4100)
		res := v.Validate(note)
		assert.False(t, res.IsValid)
		require.Len(t, res.Errors, 1)
		assert.Contains(t, res.Errors[0], "exceeding the maximum")
		assert.True(t, v.Excessive(note))
	})
}

func TestValidateMissingMandatory(t *testing.T) {
	note := validNote()
	note.Plan = "   "

	res := newTestValidator().Validate(note)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Errors, "mandatory section plan is empty")
}

func TestValidateRepetitionIsWarning(t *testing.T) {
	note := validNote()
	note.Plan = "Continue the home program. Continue the home program daily. Continue the home program as before."

	res := newTestValidator().Validate(note)
	assert.True(t, res.IsValid)
	assert.True(t, res.RepetitionCheck.HasRepetition)
	assert.Contains(t, res.RepetitionCheck.RepeatedPhrases, "continue the home program")
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[len(res.Warnings)-1], "repeated phrases")
}

func TestValidateTwiceIsNotRepetition(t *testing.T) {
	note := validNote()
	note.Plan = "Continue the home program. Continue the home program daily."

	res := newTestValidator().Validate(note)
	assert.False(t, res.RepetitionCheck.HasRepetition)
}

func TestValidateObjectiveContent(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name      string
		objective string
		tested    []string
		valid     bool
		regions   []string
	}{
		{
			name:      "untested wrist rejected",
			objective: "Wrist range of motion full and pain free.",
			tested:    []string{"lumbar"},
			valid:     false,
			regions:   []string{"wrist"},
		},
		{
			name:      "only tested region accepted",
			objective: "Lumbar flexion 50%, extension painful. Low back tender at L4-L5.",
			tested:    []string{"lumbar"},
			valid:     true,
		},
		{
			name:      "spanish terms detected",
			objective: "Movilidad de muñeca y rodilla conservada.",
			tested:    []string{"lumbar"},
			valid:     false,
			regions:   []string{"knee", "wrist"},
		},
		{
			name:      "tested region given in spanish",
			objective: "Knee flexion 120 degrees.",
			tested:    []string{"Rodilla"},
			valid:     true,
		},
		{
			name:      "plural form",
			objective: "Both knees stable.",
			tested:    []string{"ankle"},
			valid:     false,
			regions:   []string{"knee"},
		},
		{
			name:      "substring inside another word ignored",
			objective: "Patient handled weights well, lumbar strength good.",
			tested:    []string{"lumbar"},
			valid:     true,
		},
		{
			name:      "idiom with hand is not a region",
			objective: "Lumbar extension limited; on the other hand, flexion is full.",
			tested:    []string{"lumbar"},
			valid:     true,
		},
		{
			name:      "plantar flexion in an ankle exam",
			objective: "Ankle plantar flexion 40 degrees, dorsiflexion 15 degrees.",
			tested:    []string{"ankle"},
			valid:     true,
		},
		{
			name:      "narrow hand term still detected",
			objective: "Lumbar flexion full. Hand grip strength reduced on the left.",
			tested:    []string{"lumbar"},
			valid:     false,
			regions:   []string{"hand"},
		},
		{
			name:      "plantar fascia still detected",
			objective: "Ankle stable. Plantar fascia tender at the heel.",
			tested:    []string{"ankle"},
			valid:     false,
			regions:   []string{"foot"},
		},
		{
			name:      "no tested regions disables check",
			objective: "Wrist and shoulder normal.",
			tested:    nil,
			valid:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := v.ValidateObjectiveContent(tt.objective, tt.tested)
			assert.Equal(t, tt.valid, check.IsValid)

			var regions []string
			for _, viol := range check.Violations {
				regions = append(regions, viol.Region)
			}
			assert.Equal(t, tt.regions, regions)
		})
	}
}

func TestValidateWithRegions(t *testing.T) {
	note := validNote()
	note.Objective = "Shoulder abduction 160 degrees."

	res, check := newTestValidator().ValidateWithRegions(note, []string{"lumbar"})
	assert.False(t, res.IsValid)
	assert.False(t, check.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "shoulder")
}

func TestTruncate(t *testing.T) {
	v := newTestValidator()

	t.Run("within guideline unchanged", func(t *testing.T) {
		assert.Equal(t, validNote(), v.Truncate(validNote()))
	})

	t.Run("optional sections cut first", func(t *testing.T) {
		note := validNote()
		note.AdditionalNotes = longText(4500)
		out := v.Truncate(note)

		assert.Equal(t, note.Subjective, out.Subjective)
		assert.Equal(t, note.Plan, out.Plan)
		assert.LessOrEqual(t, out.TotalCharacters(), v.Limits().GuidelineCharacters)
		assert.True(t, strings.HasSuffix(out.AdditionalNotes, "."))
		assert.True(t, strings.HasPrefix(note.AdditionalNotes, out.AdditionalNotes))
	})

	t.Run("mandatory sections shortened but never emptied", func(t *testing.T) {
		note := models.StructuredNote{
			Subjective: longText(2000),
			Objective:  longText(2000),
			Assessment: strings.Repeat("word ", 400),
			Plan:       longText(300),
			Referrals:  longText(500),
		}
		out := v.Truncate(note)

		assert.Empty(t, out.MissingMandatory())
		assert.Equal(t, "", out.Referrals)
		assert.Less(t, out.TotalCharacters(), note.TotalCharacters())
		assert.False(t, v.Excessive(out))
		assert.True(t, strings.HasSuffix(out.Assessment, "..."))
	})

	t.Run("deterministic", func(t *testing.T) {
		note := validNote()
		note.Precautions = longText(3000)
		note.FollowUp = longText(1500)
		assert.Equal(t, v.Truncate(note), v.Truncate(note))
	})
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Pain 3/10. ROM 4.5 cm improved!\nHome program: bridges")
	assert.Equal(t, []string{"Pain 3/10.", "ROM 4.5 cm improved!", "Home program: bridges"}, got)
}
