// Package validate checks generated notes for length, repetition and
// region consistency, and shortens notes that grossly exceed bounds.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/raphaelgruber/physio-scribe/internal/models"
	"github.com/raphaelgruber/physio-scribe/internal/vocab"
)

// RegionViolation is one untested region mentioned in the objective section.
type RegionViolation struct {
	Region string `json:"region"`
	Term   string `json:"term"`
}

// RegionCheck is the result of ValidateObjectiveContent.
type RegionCheck struct {
	IsValid    bool              `json:"is_valid"`
	Violations []RegionViolation `json:"violations"`
}

type regionMatcher struct {
	region string
	terms  []string
	res    []*regexp.Regexp
}

// Validator is immutable after New and safe for concurrent use.
type Validator struct {
	limits  vocab.Limits
	vocab   *vocab.Vocabulary
	regions []regionMatcher
}

// New compiles region matchers from the vocabulary.
func New(v *vocab.Vocabulary) *Validator {
	val := &Validator{limits: v.Limits, vocab: v}
	for _, region := range v.Regions() {
		m := regionMatcher{region: region}
		for _, term := range v.RegionTerms(region) {
			m.terms = append(m.terms, term)
			m.res = append(m.res, termPattern(term))
		}
		val.regions = append(val.regions, m)
	}
	return val
}

// termPattern matches a term as whole words, allowing a plural suffix.
func termPattern(term string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])` + regexp.QuoteMeta(term) + `(?:s|es)?(?:$|[^\p{L}\p{N}])`)
}

// Limits returns the thresholds in use.
func (v *Validator) Limits() vocab.Limits { return v.limits }

// Excessive reports whether the note is over the hard length limit.
func (v *Validator) Excessive(note models.StructuredNote) bool {
	return note.TotalCharacters() > v.limits.ExcessiveCharacters
}

// Validate checks length, mandatory sections and repetition. It never
// fails; problems surface as errors and warnings.
func (v *Validator) Validate(note models.StructuredNote) models.ValidationResult {
	res := models.ValidationResult{
		Errors:          []string{},
		Warnings:        []string{},
		TotalCharacters: note.TotalCharacters(),
	}

	for _, name := range note.MissingMandatory() {
		res.Errors = append(res.Errors, fmt.Sprintf("mandatory section %s is empty", name))
	}

	switch {
	case res.TotalCharacters > v.limits.ExcessiveCharacters:
		res.Errors = append(res.Errors, fmt.Sprintf("note has %d characters, exceeding the maximum of %d",
			res.TotalCharacters, v.limits.ExcessiveCharacters))
	case res.TotalCharacters > v.limits.GuidelineCharacters:
		res.Warnings = append(res.Warnings, fmt.Sprintf("note has %d characters, above the guideline of %d",
			res.TotalCharacters, v.limits.GuidelineCharacters))
	}

	res.RepetitionCheck = v.checkRepetition(note)
	if res.RepetitionCheck.HasRepetition {
		res.Warnings = append(res.Warnings, "repeated phrases: "+strings.Join(res.RepetitionCheck.RepeatedPhrases, "; "))
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

// ValidateWithRegions runs Validate and folds region violations into errors.
func (v *Validator) ValidateWithRegions(note models.StructuredNote, tested []string) (models.ValidationResult, RegionCheck) {
	res := v.Validate(note)
	check := v.ValidateObjectiveContent(note.Objective, tested)
	for _, viol := range check.Violations {
		res.Errors = append(res.Errors, fmt.Sprintf("objective references untested region %s (%q)", viol.Region, viol.Term))
	}
	res.IsValid = len(res.Errors) == 0
	return res, check
}

// ValidateObjectiveContent flags regions mentioned in objective that are
// not in tested. Matching is case-insensitive across all languages in the
// vocabulary. An empty tested list disables the check.
func (v *Validator) ValidateObjectiveContent(objective string, tested []string) RegionCheck {
	check := RegionCheck{IsValid: true, Violations: []RegionViolation{}}
	if len(tested) == 0 || strings.TrimSpace(objective) == "" {
		return check
	}

	allowed := make(map[string]bool, len(tested))
	for _, t := range tested {
		if region := v.vocab.CanonicalRegion(t); region != "" {
			allowed[region] = true
		} else {
			allowed[strings.ToLower(strings.TrimSpace(t))] = true
		}
	}

	for _, m := range v.regions {
		if allowed[m.region] {
			continue
		}
		for i, re := range m.res {
			if re.MatchString(objective) {
				check.Violations = append(check.Violations, RegionViolation{Region: m.region, Term: m.terms[i]})
				break
			}
		}
	}

	check.IsValid = len(check.Violations) == 0
	return check
}

// checkRepetition counts n-word phrases within each section and reports
// those seen more often than the limit allows, in first-seen order.
func (v *Validator) checkRepetition(note models.StructuredNote) models.RepetitionCheck {
	n := v.limits.RepetitionPhraseWords
	counts := map[string]int{}
	var order []string

	for _, s := range note.Sections() {
		words := tokenize(s.Text)
		for i := 0; i+n <= len(words); i++ {
			phrase := strings.Join(words[i:i+n], " ")
			if counts[phrase] == 0 {
				order = append(order, phrase)
			}
			counts[phrase]++
		}
	}

	check := models.RepetitionCheck{RepeatedPhrases: []string{}}
	for _, phrase := range order {
		if counts[phrase] > v.limits.RepetitionMaxOccurrences {
			check.RepeatedPhrases = append(check.RepeatedPhrases, phrase)
		}
	}
	check.HasRepetition = len(check.RepeatedPhrases) > 0
	return check
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '/' && r != '\''
	})
}
