package notegen

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/raphaelgruber/physio-scribe/internal/llm"
	"github.com/raphaelgruber/physio-scribe/internal/models"
)

// ParseSource records which branch of the parse chain produced a note.
type ParseSource string

const (
	// SourceDirect means the service returned an already structured note.
	SourceDirect ParseSource = "direct"
	// SourceEmbeddedJSON means a JSON object was found inside free text.
	SourceEmbeddedJSON ParseSource = "embedded_json"
	// SourceFallback means nothing usable was found.
	SourceFallback ParseSource = "fallback"
)

// FallbackMessage is the subjective text of a note that could not be generated.
const FallbackMessage = "Unable to generate a clinical note from this transcript. Please document this session manually."

// FallbackNote is the terminal result of the parse chain.
func FallbackNote() models.StructuredNote {
	return models.StructuredNote{Subjective: FallbackMessage}
}

// sectionKeys maps normalized response keys to note sections. Earlier
// keys win when two map to the same section.
var sectionKeys = []struct{ key, section string }{
	{"subjective", "subjective"},
	{"objective", "objective"},
	{"assessment", "assessment"},
	{"plan", "plan"},
	{"followup", "follow_up"},
	{"precautions", "precautions"},
	{"referrals", "referrals"},
	{"additionalnotes", "additional_notes"},
	{"notes", "additional_notes"},
}

// wrapperKeys may hold the note one level down.
var wrapperKeys = []string{"soap", "note", "soapnote", "data", "result", "response", "output", "content"}

// parseResponse runs the parse chain: direct note, structured payload,
// embedded JSON in text, fallback.
func parseResponse(resp *llm.Response) (models.StructuredNote, ParseSource) {
	if resp == nil {
		return FallbackNote(), SourceFallback
	}
	if resp.Note != nil {
		return normalize(*resp.Note), SourceDirect
	}
	if len(resp.Payload) > 0 {
		if note, ok := decodeNote(resp.Payload); ok {
			return normalize(note), SourceDirect
		}
	}

	text := stripCodeFence(resp.Text)
	for _, candidate := range jsonObjects(text) {
		if note, ok := decodeNote([]byte(candidate)); ok {
			return normalize(note), SourceEmbeddedJSON
		}
	}
	return FallbackNote(), SourceFallback
}

// decodeNote reads a note from a JSON object with camelCase or snake_case
// keys, optionally nested under a wrapper key. ok is false when no known
// section key is present.
func decodeNote(raw []byte) (models.StructuredNote, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return models.StructuredNote{}, false
	}

	fields := make(map[string]json.RawMessage, len(obj))
	for k, v := range obj {
		fields[normalizeKey(k)] = v
	}

	for _, w := range wrapperKeys {
		if inner, ok := fields[w]; ok {
			if note, ok := decodeNote(inner); ok {
				return note, true
			}
		}
	}

	var note models.StructuredNote
	seen := map[string]bool{}
	for _, sk := range sectionKeys {
		v, ok := fields[sk.key]
		if !ok || seen[sk.section] {
			continue
		}
		seen[sk.section] = true
		note = note.WithSection(sk.section, coerceString(v))
	}
	return note, len(seen) > 0
}

func normalizeKey(k string) string {
	k = strings.ToLower(k)
	k = strings.ReplaceAll(k, "_", "")
	k = strings.ReplaceAll(k, "-", "")
	return strings.ReplaceAll(k, " ", "")
}

// coerceString renders any JSON value as section text.
func coerceString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if p := strings.TrimSpace(coerceString(item)); p != "" {
				parts = append(parts, "- "+p)
			}
		}
		return strings.Join(parts, "\n")
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if p := strings.TrimSpace(coerceString(obj[k])); p != "" {
				parts = append(parts, fmt.Sprintf("%s: %s", k, p))
			}
		}
		return strings.Join(parts, "\n")
	}

	var v any
	if err := json.Unmarshal(raw, &v); err == nil && v != nil {
		if b, ok := v.(bool); ok && !b {
			return ""
		}
		return fmt.Sprint(v)
	}
	return ""
}

// normalize trims every section and fills blank mandatory sections.
func normalize(note models.StructuredNote) models.StructuredNote {
	note = note.MapSections(strings.TrimSpace)
	for _, name := range note.MissingMandatory() {
		note = note.WithSection(name, models.NotDocumented)
	}
	return note
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{}") {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// jsonObjects returns every top-level balanced {...} span in text, in order.
// Braces inside JSON strings are ignored. An opening brace that never
// closes is skipped and the scan resumes just after it.
func jsonObjects(text string) []string {
	var out []string
	for from := 0; from < len(text); {
		objs, unclosed := scanObjects(text, from)
		out = append(out, objs...)
		if unclosed < 0 {
			break
		}
		from = unclosed + 1
	}
	return out
}

// scanObjects collects balanced spans starting at from. unclosed is the
// offset of an opening brace still open at the end of text, or -1.
func scanObjects(text string, from int) (objs []string, unclosed int) {
	depth, start := 0, -1
	inString, escaped := false, false

	for i := from; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				objs = append(objs, text[start:i+1])
				start = -1
			}
		}
	}
	return objs, start
}
