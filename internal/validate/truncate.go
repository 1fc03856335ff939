package validate

import (
	"strings"

	"github.com/raphaelgruber/physio-scribe/internal/models"
)

const ellipsis = "..."

// Truncate shortens a note toward the guideline length without
// regenerating it. Optional sections give way first; mandatory sections
// are cut at sentence boundaries in proportion to their size and are
// never emptied. Notes already within the guideline are returned as is.
func (v *Validator) Truncate(note models.StructuredNote) models.StructuredNote {
	budget := v.limits.GuidelineCharacters
	if note.TotalCharacters() <= budget {
		return note
	}

	var mandatory, optional []models.Section
	mandatoryTotal, optionalTotal := 0, 0
	for _, s := range note.Sections() {
		n := runeLen(s.Text)
		if s.Mandatory {
			mandatory = append(mandatory, s)
			mandatoryTotal += n
		} else if n > 0 {
			optional = append(optional, s)
			optionalTotal += n
		}
	}

	out := note
	optionalBudget := budget - mandatoryTotal
	if optionalBudget >= optionalTotal {
		return out
	}

	if optionalBudget > 0 {
		for _, s := range optional {
			share := optionalBudget * runeLen(s.Text) / optionalTotal
			out = out.WithSection(s.Name, trimSentences(s.Text, share, false))
		}
		return out
	}

	for _, s := range optional {
		out = out.WithSection(s.Name, "")
	}
	if mandatoryTotal <= budget {
		return out
	}
	for _, s := range mandatory {
		share := budget * runeLen(s.Text) / mandatoryTotal
		out = out.WithSection(s.Name, trimSentences(s.Text, share, true))
	}
	return out
}

// trimSentences keeps whole leading sentences that fit in limit runes.
// When keep is set and not even one sentence fits, the first sentence is
// cut at a word boundary so the result is never empty.
func trimSentences(text string, limit int, keep bool) string {
	text = strings.TrimSpace(text)
	if runeLen(text) <= limit {
		return text
	}

	var b strings.Builder
	for _, sentence := range splitSentences(text) {
		next := sentence
		if b.Len() > 0 {
			next = " " + sentence
		}
		if runeLen(b.String())+runeLen(next) > limit {
			break
		}
		b.WriteString(next)
	}
	if b.Len() > 0 || !keep {
		return b.String()
	}
	return cutWords(text, limit)
}

func cutWords(text string, limit int) string {
	limit -= len(ellipsis)
	if limit < 1 {
		limit = 1
	}
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	cut := string(r[:limit])
	if i := strings.LastIndexAny(cut, " \n\t"); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:") + ellipsis
}

// splitSentences splits on ., ! or ? followed by whitespace, and on newlines.
func splitSentences(text string) []string {
	var out []string
	r := []rune(text)
	start := 0
	for i := 0; i < len(r); i++ {
		end := -1
		switch {
		case r[i] == '\n':
			end = i
		case (r[i] == '.' || r[i] == '!' || r[i] == '?') && (i+1 == len(r) || r[i+1] == ' ' || r[i+1] == '\n'):
			end = i + 1
		}
		if end < 0 {
			continue
		}
		if s := strings.TrimSpace(string(r[start:end])); s != "" {
			out = append(out, s)
		}
		start = end
	}
	if s := strings.TrimSpace(string(r[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func runeLen(s string) int { return len([]rune(s)) }
