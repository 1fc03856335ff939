// Package pipeline runs one transcript through redaction, routing, note
// generation, validation, re-identification and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/physio-scribe/internal/config"
	"github.com/raphaelgruber/physio-scribe/internal/metrics"
	"github.com/raphaelgruber/physio-scribe/internal/models"
	"github.com/raphaelgruber/physio-scribe/internal/notegen"
	"github.com/raphaelgruber/physio-scribe/internal/persist"
	"github.com/raphaelgruber/physio-scribe/internal/redact"
	"github.com/raphaelgruber/physio-scribe/internal/router"
	"github.com/raphaelgruber/physio-scribe/internal/validate"
)

// DefaultMaxTranscriptChars applies when Deps.MaxTranscriptChars is zero.
const DefaultMaxTranscriptChars = 12000

// ErrMissingDependency is returned by Run when a required dependency is nil.
var ErrMissingDependency = errors.New("pipeline dependency missing")

// priorSeparator joins transcript and prior session so both are redacted
// in one pass and share placeholders. It contains nothing the identifier
// patterns can match.
const priorSeparator = "\n\n\x1e\n\n"

// NoteGenerator produces a note from a de-identified context.
type NoteGenerator interface {
	Generate(ctx context.Context, cc models.ClinicalContext, tier models.ModelTier, opts notegen.Options) (*notegen.Generation, error)
}

// Persister saves finished notes.
type Persister interface {
	Save(ctx context.Context, note models.StructuredNote, patientID, sessionID string, opts ...persist.SaveOption) models.PersistenceResult
}

// Deps are the components a Pipeline drives. Persister may be nil when
// notes are never persisted.
type Deps struct {
	Redactor           *redact.Redactor
	Classifier         *router.Classifier
	Generator          NoteGenerator
	Validator          *validate.Validator
	Persister          Persister
	Collector          *metrics.Collector
	Logger             *slog.Logger
	MaxTranscriptChars int
}

// Input is one note request.
type Input struct {
	Transcript    string
	PatientID     string
	SessionID     string
	Specialty     string
	VisitType     models.VisitType
	PriorSession  string
	SessionType   string
	ExamResults   []models.ExamResult
	TestedRegions []string
	Optimize      bool
	Persist       bool
	TraceID       string
	SaveOptions   []persist.SaveOption
}

// Result is everything Run produced. Note is re-identified; the
// identifier map itself is never returned.
type Result struct {
	TraceID     string                    `json:"trace_id"`
	Note        models.StructuredNote     `json:"note"`
	Analysis    models.ComplexityAnalysis `json:"analysis"`
	Selection   models.ModelSelection     `json:"selection"`
	Validation  models.ValidationResult   `json:"validation"`
	RegionCheck validate.RegionCheck      `json:"region_check"`
	Persistence *models.PersistenceResult `json:"persistence,omitempty"`
	Generation  *notegen.Generation       `json:"generation,omitempty"`
	Redactions  int                       `json:"redactions"`
	Truncated   bool                      `json:"transcript_truncated"`
	Shortened   bool                      `json:"note_shortened"`
	Degraded    bool                      `json:"degraded"`
	Warnings    []string                  `json:"warnings"`
	Duration    time.Duration             `json:"duration"`
}

// Pipeline is safe for concurrent use; runs share no mutable state.
type Pipeline struct {
	deps   Deps
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates a Pipeline.
func New(deps Deps) *Pipeline {
	if deps.MaxTranscriptChars <= 0 {
		deps.MaxTranscriptChars = DefaultMaxTranscriptChars
	}
	return &Pipeline{
		deps:   deps,
		logger: config.Component(deps.Logger, "pipeline"),
		tracer: otel.Tracer("github.com/raphaelgruber/physio-scribe/pipeline"),
	}
}

func (p *Pipeline) checkDeps() error {
	var missing []string
	if p.deps.Redactor == nil {
		missing = append(missing, "redactor")
	}
	if p.deps.Classifier == nil {
		missing = append(missing, "classifier")
	}
	if p.deps.Generator == nil {
		missing = append(missing, "generator")
	}
	if p.deps.Validator == nil {
		missing = append(missing, "validator")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingDependency, strings.Join(missing, ", "))
	}
	return nil
}

// Run processes one transcript. It returns an error only for missing
// dependencies or when ctx is done before generation starts; every other
// fault degrades into the Result.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	if err := p.checkDeps(); err != nil {
		return nil, err
	}

	start := time.Now()
	res := &Result{TraceID: in.TraceID, Warnings: []string{}}
	if res.TraceID == "" {
		res.TraceID = uuid.NewString()
	}
	log := p.logger.With("trace_id", res.TraceID, "session_id", in.SessionID)

	ctx, span := p.tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("scribe.trace_id", res.TraceID),
		attribute.String("scribe.visit_type", string(in.VisitType)),
	))
	defer span.End()

	transcript, truncated := TruncateTail(in.Transcript, p.deps.MaxTranscriptChars)
	if truncated {
		res.Truncated = true
		res.Warnings = append(res.Warnings, fmt.Sprintf("transcript truncated to last %d characters", p.deps.MaxTranscriptChars))
		p.deps.Collector.Inc(metrics.CounterTruncations)
		log.Warn("transcript truncated", "original_chars", len([]rune(in.Transcript)), "kept_chars", p.deps.MaxTranscriptChars)
	}

	// Redaction and classification are independent local work.
	var red redact.Result
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer p.deps.Collector.Timer(metrics.OpRedact)()
		text := transcript
		if in.PriorSession != "" {
			text += priorSeparator + in.PriorSession
		}
		red = p.deps.Redactor.Redact(text)
		return nil
	})
	g.Go(func() error {
		defer p.deps.Collector.Timer(metrics.OpClassify)()
		res.Analysis = p.deps.Classifier.Classify(transcript, in.Specialty)
		return nil
	})
	_ = g.Wait()

	deidentified, priorSession, _ := strings.Cut(red.DeidentifiedText, priorSeparator)
	res.Redactions = red.RemovedCount
	res.Selection = p.deps.Classifier.SelectModel(res.Analysis, router.EstimateTokens(deidentified))
	log.Info("transcript prepared",
		"redactions", red.RemovedCount,
		"complexity", res.Analysis.Complexity,
		"urgency", res.Analysis.Urgency,
		"red_flags", len(res.Analysis.RedFlags),
		"tier", res.Selection.ModelTier,
		"reason", res.Selection.Reason)
	span.SetAttributes(
		attribute.String("scribe.tier", string(res.Selection.ModelTier)),
		attribute.Int("scribe.red_flags", len(res.Analysis.RedFlags)),
		attribute.Int("scribe.redactions", red.RemovedCount),
	)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("before generation: %w", err)
	}

	cc := models.ClinicalContext{
		Transcript:    deidentified,
		VisitType:     in.VisitType,
		PriorSession:  priorSession,
		SessionType:   in.SessionType,
		ExamResults:   in.ExamResults,
		TestedRegions: in.TestedRegions,
	}
	gen, err := p.deps.Generator.Generate(ctx, cc, res.Selection.ModelTier, notegen.Options{
		Optimize: in.Optimize,
		TraceID:  res.TraceID,
	})
	var note models.StructuredNote
	switch {
	case err != nil:
		res.Degraded = true
		note = notegen.FallbackNote()
		res.Warnings = append(res.Warnings, "note generation failed: "+err.Error())
		log.Error("generation failed, returning fallback note", "error", err)
	case gen.Fallback():
		res.Degraded = true
		res.Generation = gen
		note = gen.Note
		res.Warnings = append(res.Warnings, "completion response could not be parsed")
	default:
		res.Generation = gen
		note = gen.Note
	}
	if res.Degraded {
		p.deps.Collector.Inc(metrics.CounterDegraded)
	}

	note = p.validate(res, note, in.TestedRegions, log)

	// Identifiers come back only after structural validation.
	res.Note = note.MapSections(func(s string) string { return redact.Restore(s, red.IdentifiersMap) })

	switch {
	case !in.Persist:
	case res.Degraded:
		res.Warnings = append(res.Warnings, "degraded note was not persisted")
	case p.deps.Persister == nil:
		res.Warnings = append(res.Warnings, "no persister configured, note was not persisted")
	default:
		pr := p.deps.Persister.Save(ctx, res.Note, in.PatientID, in.SessionID, in.SaveOptions...)
		res.Persistence = &pr
		if !pr.Success {
			res.Warnings = append(res.Warnings, "note was not persisted: "+pr.Error)
		}
	}

	res.Duration = time.Since(start)
	p.deps.Collector.Inc(metrics.CounterNotes)
	log.Info("pipeline finished",
		"degraded", res.Degraded,
		"valid", res.Validation.IsValid,
		"warnings", len(res.Warnings),
		"duration_ms", res.Duration.Milliseconds())
	return res, nil
}

// validate checks the de-identified note and shortens it once when it is
// over the hard length limit.
func (p *Pipeline) validate(res *Result, note models.StructuredNote, tested []string, log *slog.Logger) models.StructuredNote {
	defer p.deps.Collector.Timer(metrics.OpValidate)()
	v := p.deps.Validator

	res.Validation, res.RegionCheck = v.ValidateWithRegions(note, tested)
	if v.Excessive(note) {
		note = v.Truncate(note)
		res.Shortened = true
		p.deps.Collector.Inc(metrics.CounterTruncations)
		res.Validation, res.RegionCheck = v.ValidateWithRegions(note, tested)
		if v.Excessive(note) {
			log.Warn("note still exceeds maximum length after truncation", "characters", note.TotalCharacters())
		}
	}

	if !res.Degraded {
		for _, e := range res.Validation.Errors {
			log.Warn("note validation error", "error", e)
		}
		for _, w := range res.Validation.Warnings {
			log.Warn("note validation warning", "warning", w)
		}
	}
	res.Warnings = append(res.Warnings, res.Validation.Warnings...)
	return note
}

// TruncateTail keeps the last max runes of text, preferring to start at a
// word boundary. It reports whether anything was cut.
func TruncateTail(text string, max int) (string, bool) {
	r := []rune(text)
	if max <= 0 || len(r) <= max {
		return text, false
	}
	cut := len(r) - max
	tail := r[cut:]
	if !unicode.IsSpace(r[cut-1]) {
		// Drop the partial leading word unless that discards most of the tail.
		for i, c := range tail {
			if unicode.IsSpace(c) {
				if i < len(tail)/4 {
					tail = tail[i+1:]
				}
				break
			}
		}
	}
	return string(tail), true
}
