package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/physio-scribe/internal/config"
	"github.com/raphaelgruber/physio-scribe/internal/models"
)

// ErrUnknownTier is returned when no completer is registered for a tier.
var ErrUnknownTier = errors.New("no completer for model tier")

// Tiers maps each model tier to its completer.
type Tiers map[models.ModelTier]Completer

// NewTiers builds the standard and advanced completers from configuration.
func NewTiers(ctx context.Context, cfg config.Config, logger *slog.Logger) (Tiers, error) {
	build := func(modelName string) (Completer, error) {
		if cfg.LLMProvider == ProviderHTTP {
			return NewHTTPClient(cfg.CompletionURL, cfg.CompletionToken, modelName, cfg.CompletionTimeout, logger)
		}
		return NewModel(ctx, cfg, modelName, logger)
	}

	standard, err := build(cfg.StandardModel)
	if err != nil {
		return nil, fmt.Errorf("standard tier: %w", err)
	}
	advanced, err := build(cfg.AdvancedModel)
	if err != nil {
		return nil, fmt.Errorf("advanced tier: %w", err)
	}

	return Tiers{
		models.TierStandard: standard,
		models.TierAdvanced: advanced,
	}, nil
}

// For returns the completer registered for tier.
func (t Tiers) For(tier models.ModelTier) (Completer, error) {
	c, ok := t[tier]
	if !ok || c == nil {
		return nil, fmt.Errorf("%s: %w", tier, ErrUnknownTier)
	}
	return c, nil
}
