// Package redact replaces personal identifiers in free text with reversible
// placeholders of the form [CATEGORY_n].
package redact

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Category names, in the order they are applied.
const (
	CategoryEmail       = "EMAIL"
	CategoryHealthCard  = "HEALTH_CARD"
	CategorySIN         = "SIN"
	CategoryPhone       = "PHONE"
	CategoryPostalCode  = "POSTAL_CODE"
	CategoryDateOfBirth = "DATE_OF_BIRTH"
	CategoryName        = "NAME"
)

// placeholderRE matches tokens produced by any Redactor.
var placeholderRE = regexp.MustCompile(`\[[A-Z][A-Z_]*_\d+\]`)

// Category is a named detection pattern. When the pattern has a capture
// group, only the first group is redacted and the rest of the match
// (a label such as "DOB:") stays in the text.
type Category struct {
	Name    string
	Pattern *regexp.Regexp
}

const capitalWord = `[A-ZÁÉÍÓÚÑ][a-záéíóúñü'\-]+`

// DefaultCategories returns the built-in ordered category list. Patterns
// anchor on structure or an explicit label so clinical vocabulary
// (L4-L5, C5C6, 90/60, 3x10) never matches.
func DefaultCategories() []Category {
	return []Category{
		{CategoryEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)},
		{CategoryHealthCard, regexp.MustCompile(`\b\d{4}[- ]\d{3}[- ]\d{3}(?:[- ]?[A-Z]{2})?\b`)},
		{CategoryHealthCard, regexp.MustCompile(`(?i:health\s*card|ohip|tarjeta\s+sanitaria)\s*(?:#|no\.?|number|n[uú]mero)?\s*:?\s*([A-Z0-9]{8,12})\b`)},
		{CategorySIN, regexp.MustCompile(`\b\d{3}[- ]\d{3}[- ]\d{3}\b`)},
		{CategorySIN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
		{CategoryPhone, regexp.MustCompile(`(?:\+?1[-.\s]?)?(?:\(\d{3}\)\s?|\b\d{3}[-.\s]?)\d{3}[-.\s]\d{4}\b`)},
		{CategoryPostalCode, regexp.MustCompile(`\b[ABCEGHJ-NPRSTVXY]\d[ABCEGHJ-NPRSTV-Z][ -]?\d[ABCEGHJ-NPRSTV-Z]\d\b`)},
		{CategoryPostalCode, regexp.MustCompile(`\b\d{5}-\d{4}\b`)},
		{CategoryDateOfBirth, regexp.MustCompile(`(?i:\bDOB|\bdate\s+of\s+birth|\bborn(?:\s+on)?|\bfecha\s+de\s+nacimiento|\bnacid[oa]\s+el)\s*:?\s*(\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4}|(?i:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4})`)},
		{CategoryName, regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Miss|Dr|Sr|Sra|Srta)\.?\s+(` + capitalWord + `(?:\s+` + capitalWord + `)?)`)},
		{CategoryName, regexp.MustCompile(`(?i:\bmy\s+name\s+is|\bpatient\s+name|\bname|\bme\s+llamo|\bmi\s+nombre\s+es|\bnombre)\s*:?\s+(` + capitalWord + `(?:\s+` + capitalWord + `)?)`)},
	}
}

// Result is the outcome of one redaction pass.
type Result struct {
	DeidentifiedText string            `json:"deidentified_text"`
	IdentifiersMap   map[string]string `json:"-"`
	RemovedCount     int               `json:"removed_count"`
}

// Finding is an identifier detected in text that should already be redacted.
type Finding struct {
	Category string `json:"category"`
	Value    string `json:"value"`
}

// Redactor holds an immutable ordered category list and is safe for
// concurrent use.
type Redactor struct {
	categories []Category
}

// Option configures a Redactor.
type Option func(*Redactor)

// WithCategories replaces the built-in category list.
func WithCategories(cats ...Category) Option {
	return func(r *Redactor) { r.categories = cats }
}

// WithExtraCategory appends a category after the built-in ones.
func WithExtraCategory(c Category) Option {
	return func(r *Redactor) { r.categories = append(r.categories, c) }
}

// New returns a Redactor using DefaultCategories unless overridden.
func New(opts ...Option) *Redactor {
	r := &Redactor{categories: DefaultCategories()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRedactor = New()

// Default returns the shared Redactor with built-in categories.
func Default() *Redactor { return defaultRedactor }

// Categories returns the ordered category names (duplicates collapsed).
func (r *Redactor) Categories() []string {
	var names []string
	seen := map[string]bool{}
	for _, c := range r.categories {
		if !seen[c.Name] {
			seen[c.Name] = true
			names = append(names, c.Name)
		}
	}
	return names
}

// Redact replaces every detected identifier with a placeholder. Identical
// originals in one call share a placeholder. Existing placeholders are
// never redacted, and new counters skip numbers already present in text.
func (r *Redactor) Redact(text string) Result {
	res := Result{IdentifiersMap: map[string]string{}}
	if text == "" {
		return res
	}

	counters := existingCounters(text)
	byOriginal := map[string]string{}

	for _, cat := range r.categories {
		spans := matchSpans(cat.Pattern, text)
		if len(spans) == 0 {
			continue
		}

		var b strings.Builder
		last := 0
		for _, sp := range spans {
			original := text[sp[0]:sp[1]]
			key := cat.Name + "\x00" + original
			token, ok := byOriginal[key]
			if !ok {
				token = nextToken(cat.Name, counters)
				byOriginal[key] = token
				res.IdentifiersMap[token] = original
			}
			b.WriteString(text[last:sp[0]])
			b.WriteString(token)
			last = sp[1]
			res.RemovedCount++
		}
		b.WriteString(text[last:])
		text = b.String()
	}

	res.DeidentifiedText = text
	return res
}

// FindRemainingIdentifiers re-runs detection over already-redacted text.
// Placeholder tokens are never reported.
func (r *Redactor) FindRemainingIdentifiers(text string) []Finding {
	var findings []Finding
	if text == "" {
		return findings
	}
	for _, cat := range r.categories {
		for _, sp := range matchSpans(cat.Pattern, text) {
			findings = append(findings, Finding{Category: cat.Name, Value: text[sp[0]:sp[1]]})
		}
	}
	return findings
}

// Restore replaces each placeholder with its original. Longer keys are
// substituted first, and unknown placeholders are left untouched.
func Restore(text string, ids map[string]string) string {
	if text == "" || len(ids) == 0 {
		return text
	}
	keys := make([]string, 0, len(ids))
	for k := range ids {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, ids[k])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// matchSpans returns the redactable spans of pattern in text, excluding
// any span that overlaps an existing placeholder.
func matchSpans(pattern *regexp.Regexp, text string) [][2]int {
	placeholders := placeholderRE.FindAllStringIndex(text, -1)

	var spans [][2]int
	for _, m := range pattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		if len(m) >= 4 && m[2] >= 0 {
			start, end = m[2], m[3]
		}
		if start == end || overlaps(start, end, placeholders) {
			continue
		}
		spans = append(spans, [2]int{start, end})
	}
	return spans
}

func overlaps(start, end int, ranges [][]int) bool {
	for _, rg := range ranges {
		if start < rg[1] && rg[0] < end {
			return true
		}
	}
	return false
}

// existingCounters records the highest placeholder number per category
// already present in text.
func existingCounters(text string) map[string]int {
	counters := map[string]int{}
	for _, tok := range placeholderRE.FindAllString(text, -1) {
		inner := tok[1 : len(tok)-1]
		idx := strings.LastIndexByte(inner, '_')
		n, err := strconv.Atoi(inner[idx+1:])
		if err != nil {
			continue
		}
		if cat := inner[:idx]; n > counters[cat] {
			counters[cat] = n
		}
	}
	return counters
}

func nextToken(category string, counters map[string]int) string {
	counters[category]++
	return fmt.Sprintf("[%s_%d]", category, counters[category])
}
