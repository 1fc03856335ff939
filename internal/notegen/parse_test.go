package notegen

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raphaelgruber/physio-scribe/internal/llm"
	"github.com/raphaelgruber/physio-scribe/internal/models"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name       string
		resp       *llm.Response
		source     ParseSource
		subjective string
		plan       string
	}{
		{
			name:       "payload nested under soap with snake case",
			resp:       &llm.Response{Payload: json.RawMessage(`{"soap":{"subjective":"S","objective":"O","assessment":"A","plan":"P","follow_up":"F"}}`)},
			source:     SourceDirect,
			subjective: "S",
			plan:       "P",
		},
		{
			name:       "payload without section keys falls through to text",
			resp:       &llm.Response{Payload: json.RawMessage(`{"status":"ok"}`), Text: `{"Subjective":"from text","Plan":"rest"}`},
			source:     SourceEmbeddedJSON,
			subjective: "from text",
			plan:       "rest",
		},
		{
			name:       "first object without sections is skipped",
			resp:       &llm.Response{Text: `meta {"confidence": 0.9} then {"note":{"subjective":"second","plan":"go"}}`},
			source:     SourceEmbeddedJSON,
			subjective: "second",
			plan:       "go",
		},
		{
			name:       "braces inside strings",
			resp:       &llm.Response{Text: `{"subjective":"uses {brackets} and \"quotes\"","plan":"x"}`},
			source:     SourceEmbeddedJSON,
			subjective: `uses {brackets} and "quotes"`,
			plan:       "x",
		},
		{
			name:       "list values become bullets",
			resp:       &llm.Response{Text: `{"subjective":"s","plan":["bridges 3x10","walk daily"]}`},
			source:     SourceEmbeddedJSON,
			subjective: "s",
			plan:       "- bridges 3x10\n- walk daily",
		},
		{
			name:       "unmatched brace in prose before the note",
			resp:       &llm.Response{Text: `Note for {patient: here it is {"subjective":"S","objective":"O","assessment":"A","plan":"P"}`},
			source:     SourceEmbeddedJSON,
			subjective: "S",
			plan:       "P",
		},
		{
			name:       "payload nested under result",
			resp:       &llm.Response{Payload: json.RawMessage(`{"result":{"subjective":"S","plan":"P"},"model":"m"}`)},
			source:     SourceDirect,
			subjective: "S",
			plan:       "P",
		},
		{
			name:       "embedded object nested under output",
			resp:       &llm.Response{Text: `{"output":{"Subjective":"from output","Plan":"walk"}}`},
			source:     SourceEmbeddedJSON,
			subjective: "from output",
			plan:       "walk",
		},
		{
			name:       "malformed json",
			resp:       &llm.Response{Text: `{"subjective": "unterminated`},
			source:     SourceFallback,
			subjective: FallbackMessage,
		},
		{
			name:       "nil response",
			resp:       nil,
			source:     SourceFallback,
			subjective: FallbackMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			note, source := parseResponse(tt.resp)
			assert.Equal(t, tt.source, source)
			assert.Equal(t, tt.subjective, note.Subjective)
			assert.Equal(t, tt.plan, note.Plan)
		})
	}
}

func TestParseFillsMissingMandatorySections(t *testing.T) {
	note, source := parseResponse(&llm.Response{Text: `{"subjective":"Only this","precautions":""}`})
	assert.Equal(t, SourceEmbeddedJSON, source)
	assert.Equal(t, models.NotDocumented, note.Objective)
	assert.Equal(t, models.NotDocumented, note.Assessment)
	assert.Equal(t, models.NotDocumented, note.Plan)
	assert.Equal(t, "", note.Precautions)
	assert.Empty(t, note.MissingMandatory())
}

func TestCoerceString(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`"text"`, "text"},
		{`null`, ""},
		{`false`, ""},
		{`12`, "12"},
		{`{"pain":"3/10","rom":"full"}`, "pain: 3/10\nrom: full"},
		{`["a", "", "b"]`, "- a\n- b"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, coerceString(json.RawMessage(tt.raw)))
		})
	}
}

func TestJSONObjects(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "nested and quoted braces",
			text: `a {"x":{"y":1}} b } {"z":"}"} {unclosed`,
			want: []string{`{"x":{"y":1}}`, `{"z":"}"}`},
		},
		{
			name: "unclosed brace before object",
			text: `see {draft {"a":1} and {"b":2}`,
			want: []string{`{"a":1}`, `{"b":2}`},
		},
		{
			name: "two unclosed braces",
			text: `{ { {"a":1}`,
			want: []string{`{"a":1}`},
		},
		{
			name: "only unclosed",
			text: `{"a": {`,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, jsonObjects(tt.text))
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}```"))
	assert.Equal(t, "plain", stripCodeFence("  plain "))
}
