// Package vocab holds the clinical vocabulary used for classification and
// validation. A Vocabulary is loaded once at start and never mutated.
package vocab

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// ErrUnknownSpecialty is returned by Specialty when no entry exists.
var ErrUnknownSpecialty = errors.New("unknown specialty")

// Limits are the note length and repetition thresholds.
type Limits struct {
	GuidelineCharacters      int `yaml:"guideline_characters"`
	ExcessiveCharacters      int `yaml:"excessive_characters"`
	RepetitionPhraseWords    int `yaml:"repetition_phrase_words"`
	RepetitionMaxOccurrences int `yaml:"repetition_max_occurrences"`
}

// Specialty is the per-specialty risk vocabulary.
type Specialty struct {
	Name               string
	SeverityIndicators []string
	RedFlags           []*regexp.Regexp
}

type rawSpecialty struct {
	SeverityIndicators []string `yaml:"severity_indicators"`
	RedFlags           []string `yaml:"red_flags"`
}

type rawVocabulary struct {
	Version          string                  `yaml:"version"`
	DefaultSpecialty string                  `yaml:"default_specialty"`
	Limits           Limits                  `yaml:"limits"`
	Specialties      map[string]rawSpecialty `yaml:"specialties"`
	Regions          map[string][]string     `yaml:"regions"`
}

// Vocabulary is the compiled, immutable form of the YAML document.
type Vocabulary struct {
	Version          string
	DefaultSpecialty string
	Limits           Limits

	specialties map[string]*Specialty
	regions     map[string][]string
}

// Option adjusts a vocabulary while it is compiled.
type Option func(*parseOptions)

type parseOptions struct {
	defaultSpecialty string
}

// WithDefaultSpecialty overrides the document's default_specialty. An
// empty name keeps the document's value.
func WithDefaultSpecialty(name string) Option {
	return func(o *parseOptions) { o.defaultSpecialty = name }
}

// Default returns the embedded vocabulary.
func Default(opts ...Option) (*Vocabulary, error) {
	return Parse(defaultYAML, opts...)
}

// MustDefault is Default for tests and package initialization.
func MustDefault() *Vocabulary {
	v, err := Default()
	if err != nil {
		panic(err)
	}
	return v
}

// Load reads a vocabulary override file. An empty path yields the embedded default.
func Load(path string, opts ...Option) (*Vocabulary, error) {
	if path == "" {
		return Default(opts...)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary %s: %w", path, err)
	}
	return Parse(data, opts...)
}

// Parse compiles a YAML vocabulary document. Malformed red-flag patterns
// fail here rather than during classification.
func Parse(data []byte, opts ...Option) (*Vocabulary, error) {
	var o parseOptions
	for _, opt := range opts {
		opt(&o)
	}

	var raw rawVocabulary
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	if name := strings.TrimSpace(o.defaultSpecialty); name != "" {
		raw.DefaultSpecialty = name
	}
	if len(raw.Specialties) == 0 {
		return nil, errors.New("vocabulary defines no specialties")
	}

	v := &Vocabulary{
		Version:          raw.Version,
		DefaultSpecialty: strings.ToLower(strings.TrimSpace(raw.DefaultSpecialty)),
		Limits:           raw.Limits,
		specialties:      make(map[string]*Specialty, len(raw.Specialties)),
		regions:          make(map[string][]string, len(raw.Regions)),
	}
	v.applyLimitDefaults()

	for name, rs := range raw.Specialties {
		key := strings.ToLower(strings.TrimSpace(name))
		sp := &Specialty{Name: key}
		for _, ind := range rs.SeverityIndicators {
			if ind = strings.ToLower(strings.TrimSpace(ind)); ind != "" {
				sp.SeverityIndicators = append(sp.SeverityIndicators, ind)
			}
		}
		for _, pattern := range rs.RedFlags {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("specialty %s: red flag %q: %w", key, pattern, err)
			}
			sp.RedFlags = append(sp.RedFlags, re)
		}
		v.specialties[key] = sp
	}

	if v.DefaultSpecialty == "" {
		v.DefaultSpecialty = v.SpecialtyNames()[0]
	}
	if _, ok := v.specialties[v.DefaultSpecialty]; !ok {
		return nil, fmt.Errorf("default specialty %q: %w", v.DefaultSpecialty, ErrUnknownSpecialty)
	}

	for region, terms := range raw.Regions {
		key := strings.ToLower(strings.TrimSpace(region))
		for _, term := range terms {
			if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
				v.regions[key] = append(v.regions[key], term)
			}
		}
	}

	return v, nil
}

func (v *Vocabulary) applyLimitDefaults() {
	if v.Limits.GuidelineCharacters <= 0 {
		v.Limits.GuidelineCharacters = 2500
	}
	if v.Limits.ExcessiveCharacters <= 0 {
		v.Limits.ExcessiveCharacters = 4000
	}
	if v.Limits.RepetitionPhraseWords <= 0 {
		v.Limits.RepetitionPhraseWords = 4
	}
	if v.Limits.RepetitionMaxOccurrences <= 0 {
		v.Limits.RepetitionMaxOccurrences = 2
	}
}

// Specialty looks up a specialty by name, case-insensitively.
func (v *Vocabulary) Specialty(name string) (*Specialty, error) {
	sp, ok := v.specialties[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownSpecialty)
	}
	return sp, nil
}

// SpecialtyOrDefault falls back to the default specialty for unknown names.
func (v *Vocabulary) SpecialtyOrDefault(name string) *Specialty {
	if sp, err := v.Specialty(name); err == nil {
		return sp
	}
	return v.specialties[v.DefaultSpecialty]
}

// SpecialtyNames returns all specialty names sorted.
func (v *Vocabulary) SpecialtyNames() []string {
	names := make([]string, 0, len(v.specialties))
	for name := range v.specialties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Regions returns all region names sorted.
func (v *Vocabulary) Regions() []string {
	names := make([]string, 0, len(v.regions))
	for name := range v.regions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegionTerms returns the lowercase terms (all languages) for a region.
func (v *Vocabulary) RegionTerms(region string) []string {
	return v.regions[strings.ToLower(strings.TrimSpace(region))]
}

// CanonicalRegion resolves a region name or any of its terms to the region name.
// Returns "" when nothing matches.
func (v *Vocabulary) CanonicalRegion(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if _, ok := v.regions[s]; ok {
		return s
	}
	for _, region := range v.Regions() {
		for _, term := range v.regions[region] {
			if term == s {
				return region
			}
		}
	}
	return ""
}
