// Package router estimates transcript complexity and picks the completion tier.
package router

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/raphaelgruber/physio-scribe/internal/config"
	"github.com/raphaelgruber/physio-scribe/internal/models"
	"github.com/raphaelgruber/physio-scribe/internal/vocab"
)

const (
	criticalWordCount = 500
	moderateWordCount = 200

	baseConfidence     = 0.7
	advancedConfidence = 0.95
	standardConfidence = 0.85
	fallbackConfidence = 0.5

	charsPerToken = 4
)

// Tier describes one level of the completion service.
type Tier struct {
	Model     string  `json:"model"`
	CostPer1K float64 `json:"cost_per_1k"`
}

// TierTable maps each tier to its model and price. Built once at start.
type TierTable map[models.ModelTier]Tier

// TierTableFromConfig builds the tier table from environment configuration.
func TierTableFromConfig(cfg config.Config) TierTable {
	return TierTable{
		models.TierStandard: {Model: cfg.StandardModel, CostPer1K: cfg.StandardCostPer1K},
		models.TierAdvanced: {Model: cfg.AdvancedModel, CostPer1K: cfg.AdvancedCostPer1K},
	}
}

// Classifier runs the complexity estimate and red-flag detection.
type Classifier struct {
	vocab  *vocab.Vocabulary
	tiers  TierTable
	logger *slog.Logger
}

// New creates a Classifier.
func New(v *vocab.Vocabulary, tiers TierTable, logger *slog.Logger) *Classifier {
	return &Classifier{
		vocab:  v,
		tiers:  tiers,
		logger: config.Component(logger, "router"),
	}
}

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}

// Classify analyses text for the given specialty. It never fails: any
// internal fault produces a critical, high-urgency, advanced-tier result.
func (c *Classifier) Classify(text, specialty string) (analysis models.ComplexityAnalysis) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("classification failed, escalating", "specialty", specialty, "panic", r)
			analysis = c.failSafe(text, specialty, fmt.Errorf("%v", r))
		}
	}()

	sp := c.vocab.SpecialtyOrDefault(specialty)
	lower := strings.ToLower(text)

	indicators := 0
	for _, ind := range sp.SeverityIndicators {
		if strings.Contains(lower, ind) {
			indicators++
		}
	}

	redFlags := []string{}
	for _, re := range sp.RedFlags {
		if m := re.FindString(text); m != "" {
			redFlags = append(redFlags, m)
		}
	}

	words := len(strings.Fields(text))
	complexity := complexityFor(indicators, words)
	urgency := urgencyFor(complexity, len(redFlags))

	analysis = models.ComplexityAnalysis{
		Complexity:       complexity,
		RedFlags:         redFlags,
		Urgency:          urgency,
		Specialty:        sp.Name,
		Confidence:       confidenceFor(complexity, len(redFlags)),
		IndicatorMatches: indicators,
		WordCount:        words,
	}
	analysis.ModelRecommendation = c.SelectModel(analysis, EstimateTokens(text))

	c.logger.Debug("transcript classified",
		"specialty", sp.Name,
		"complexity", complexity,
		"urgency", urgency,
		"red_flags", len(redFlags),
		"indicators", indicators,
		"words", words,
		"tier", analysis.ModelRecommendation.ModelTier)

	return analysis
}

// SelectModel maps an analysis to a tier deterministically.
func (c *Classifier) SelectModel(a models.ComplexityAnalysis, estimatedTokens int) models.ModelSelection {
	flags := len(a.RedFlags)
	counts := fmt.Sprintf("complexity=%s, red_flags=%d, indicators=%d, words=%d, urgency=%s",
		a.Complexity, flags, a.IndicatorMatches, a.WordCount, a.Urgency)

	if a.Complexity == models.ComplexityCritical || flags >= 2 || a.Urgency == models.UrgencyHigh {
		return models.ModelSelection{
			ModelTier:     models.TierAdvanced,
			Reason:        "escalated to advanced tier (" + counts + ")",
			EstimatedCost: c.cost(models.TierAdvanced, estimatedTokens),
			Confidence:    advancedConfidence,
		}
	}
	return models.ModelSelection{
		ModelTier:     models.TierStandard,
		Reason:        "standard tier sufficient (" + counts + ")",
		EstimatedCost: c.cost(models.TierStandard, estimatedTokens),
		Confidence:    standardConfidence,
	}
}

// Tier returns the configured model for a tier.
func (c *Classifier) Tier(t models.ModelTier) (Tier, bool) {
	tier, ok := c.tiers[t]
	return tier, ok
}

func (c *Classifier) cost(t models.ModelTier, tokens int) float64 {
	return c.tiers[t].CostPer1K * float64(tokens) / 1000
}

func (c *Classifier) failSafe(text, specialty string, cause error) models.ComplexityAnalysis {
	a := models.ComplexityAnalysis{
		Complexity: models.ComplexityCritical,
		RedFlags:   []string{"classification failed: " + cause.Error()},
		Urgency:    models.UrgencyHigh,
		Specialty:  specialty,
		Confidence: fallbackConfidence,
		WordCount:  len(strings.Fields(text)),
		Fallback:   true,
	}
	a.ModelRecommendation = models.ModelSelection{
		ModelTier:     models.TierAdvanced,
		Reason:        "analysis failure; forcing advanced tier for review",
		EstimatedCost: c.cost(models.TierAdvanced, EstimateTokens(text)),
		Confidence:    fallbackConfidence,
	}
	return a
}

func complexityFor(indicators, words int) models.Complexity {
	switch {
	case indicators >= 2 || words > criticalWordCount:
		return models.ComplexityCritical
	case indicators >= 1 || words > moderateWordCount:
		return models.ComplexityModerate
	default:
		return models.ComplexitySimple
	}
}

func urgencyFor(complexity models.Complexity, redFlags int) models.Urgency {
	switch {
	case redFlags >= 2 || complexity == models.ComplexityCritical:
		return models.UrgencyHigh
	case redFlags >= 1 || complexity == models.ComplexityModerate:
		return models.UrgencyMedium
	default:
		return models.UrgencyLow
	}
}

func confidenceFor(complexity models.Complexity, redFlags int) float64 {
	conf := baseConfidence
	switch complexity {
	case models.ComplexityCritical:
		conf += 0.2
	case models.ComplexitySimple:
		conf += 0.1
	}
	if redFlags > 0 {
		conf += 0.1
	}
	if redFlags >= 2 {
		conf += 0.1
	}
	return math.Round(math.Min(conf, 1.0)*100) / 100
}
