// Package notegen turns a de-identified clinical context into a SOAP note
// with one call to the completion service.
package notegen

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/raphaelgruber/physio-scribe/internal/config"
	"github.com/raphaelgruber/physio-scribe/internal/llm"
	"github.com/raphaelgruber/physio-scribe/internal/metrics"
	"github.com/raphaelgruber/physio-scribe/internal/models"
)

// TierSource resolves a model tier to a completer.
type TierSource interface {
	For(tier models.ModelTier) (llm.Completer, error)
}

// Options tune one generation.
type Options struct {
	// Optimize selects the token-optimized template for follow-up visits.
	Optimize  bool
	TraceID   string
	ModelHint string
}

// TokenComparison compares the optimized follow-up prompt with the
// standard one. It is informational and never changes the output.
type TokenComparison struct {
	StandardTokens  int     `json:"standard_tokens"`
	OptimizedTokens int     `json:"optimized_tokens"`
	SavedTokens     int     `json:"saved_tokens"`
	SavedPercent    float64 `json:"saved_percent"`
}

// Generation is a generated note plus metadata.
type Generation struct {
	Note            models.StructuredNote `json:"note"`
	Tier            models.ModelTier      `json:"tier"`
	Model           string                `json:"model"`
	Template        Template              `json:"template"`
	InputTokens     int                   `json:"input_tokens"`
	OutputTokens    int                   `json:"output_tokens"`
	Duration        time.Duration         `json:"duration"`
	Source          ParseSource           `json:"source"`
	TokenComparison *TokenComparison      `json:"token_comparison,omitempty"`
}

// Fallback reports whether the note is the terminal fallback note.
func (g *Generation) Fallback() bool { return g.Source == SourceFallback }

// Generator builds prompts and parses completion responses.
type Generator struct {
	tiers       TierSource
	logger      *slog.Logger
	collector   *metrics.Collector
	tracer      trace.Tracer
	countTokens func(model, text string) int
}

// New creates a Generator. collector may be nil.
func New(tiers TierSource, logger *slog.Logger, collector *metrics.Collector) *Generator {
	return &Generator{
		tiers:       tiers,
		logger:      config.Component(logger, "notegen"),
		collector:   collector,
		tracer:      otel.Tracer("github.com/raphaelgruber/physio-scribe/notegen"),
		countTokens: llms.CountTokens,
	}
}

// Generate calls the completion service once. Transport errors are
// returned; unparseable responses yield the fallback note with a nil error.
func (g *Generator) Generate(ctx context.Context, cc models.ClinicalContext, tier models.ModelTier, opts Options) (*Generation, error) {
	completer, err := g.tiers.For(tier)
	if err != nil {
		return nil, err
	}

	tmpl := selectTemplate(cc.VisitType, opts.Optimize)
	prompt := buildPrompt(tmpl, cc)

	ctx, span := g.tracer.Start(ctx, "notegen.Generate", trace.WithAttributes(
		attribute.String("scribe.tier", string(tier)),
		attribute.String("scribe.template", string(tmpl)),
		attribute.String("scribe.trace_id", opts.TraceID),
	))
	defer span.End()

	var comparison *TokenComparison
	if tmpl == TemplateFollowUpOptimized {
		comparison = g.compareTokens(opts.ModelHint, buildPrompt(TemplateFollowUp, cc), prompt)
		g.logger.Info("optimized follow-up prompt",
			"trace_id", opts.TraceID,
			"standard_tokens", comparison.StandardTokens,
			"optimized_tokens", comparison.OptimizedTokens,
			"saved_percent", comparison.SavedPercent)
	}

	start := time.Now()
	resp, err := completer.Complete(ctx, llm.Request{
		Prompt:    prompt,
		System:    systemPrompt,
		Action:    llm.ActionGenerateSOAP,
		TraceID:   opts.TraceID,
		ModelHint: opts.ModelHint,
	})
	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		g.logger.Error("completion failed", "trace_id", opts.TraceID, "tier", tier, "error", err)
		return nil, fmt.Errorf("complete: %w", err)
	}

	note, source := parseResponse(resp)

	gen := &Generation{
		Note:            note,
		Tier:            tier,
		Model:           resp.Model,
		Template:        tmpl,
		InputTokens:     resp.InputTokens,
		OutputTokens:    resp.OutputTokens,
		Duration:        duration,
		Source:          source,
		TokenComparison: comparison,
	}
	if gen.InputTokens == 0 {
		gen.InputTokens = g.countTokens(resp.Model, systemPrompt+prompt)
	}

	g.collector.RecordTierUsage(string(tier), duration, int64(gen.InputTokens), int64(gen.OutputTokens))
	span.SetAttributes(
		attribute.String("scribe.parse_source", string(source)),
		attribute.Int("scribe.input_tokens", gen.InputTokens),
		attribute.Int("scribe.output_tokens", gen.OutputTokens),
	)

	if source == SourceFallback {
		g.collector.Inc(metrics.CounterFallbackParses)
		g.logger.Warn("completion response had no usable note, using fallback",
			"trace_id", opts.TraceID, "tier", tier, "response_chars", len(resp.Text))
	} else {
		g.logger.Info("note generated",
			"trace_id", opts.TraceID,
			"tier", tier,
			"model", gen.Model,
			"source", source,
			"duration_ms", duration.Milliseconds(),
			"input_tokens", gen.InputTokens,
			"output_tokens", gen.OutputTokens)
	}

	return gen, nil
}

func (g *Generator) compareTokens(model, standard, optimized string) *TokenComparison {
	std := g.countTokens(model, systemPrompt+standard)
	opt := g.countTokens(model, systemPrompt+optimized)
	c := &TokenComparison{StandardTokens: std, OptimizedTokens: opt, SavedTokens: std - opt}
	if std > 0 {
		c.SavedPercent = float64(c.SavedTokens) * 100 / float64(std)
	}
	return c
}
