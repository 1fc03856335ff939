package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/physio-scribe/internal/config"
)

// Supported providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderBedrock   = "bedrock"
	ProviderHTTP      = "http"
)

const defaultMaxTokens = 2048

// Model wraps a langchaingo LLM for one tier.
type Model struct {
	llm       llms.Model
	provider  string
	modelName string
	logger    *slog.Logger
}

var _ Completer = (*Model)(nil)

// NewModel creates a langchaingo-backed model for the configured provider.
func NewModel(ctx context.Context, cfg config.Config, modelName string, logger *slog.Logger) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(modelName),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case ProviderBedrock:
		awsCfg, awsErr := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if awsErr != nil {
			return nil, fmt.Errorf("load aws config: %w", awsErr)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return NewModelFrom(model, cfg.LLMProvider, modelName, logger), nil
}

// NewModelFrom wraps an existing langchaingo model.
func NewModelFrom(model llms.Model, provider, modelName string, logger *slog.Logger) *Model {
	return &Model{
		llm:       model,
		provider:  provider,
		modelName: modelName,
		logger:    config.Component(logger, "llm"),
	}
}

// Complete sends the system and user prompts as one chat turn.
func (m *Model) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	start := time.Now()
	response, err := m.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(0.2),
		llms.WithMaxTokens(defaultMaxTokens),
	)
	duration := time.Since(start)
	recordCompletionMetric(ctx, m.provider, m.modelName, req.Action, 0, duration, err)

	if err != nil {
		m.logger.Warn("completion failed",
			"model", m.modelName, "action", req.Action, "trace_id", req.TraceID,
			"duration_ms", duration.Milliseconds(), "error", err)
		return nil, fmt.Errorf("generate: %w", wrapFatalError(err))
	}
	if len(response.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choice := response.Choices[0]
	in, out := tokenUsage(choice.GenerationInfo)
	m.logger.Debug("completion done",
		"model", m.modelName, "action", req.Action, "trace_id", req.TraceID,
		"duration_ms", duration.Milliseconds(), "input_tokens", in, "output_tokens", out)

	return &Response{
		Text:         choice.Content,
		InputTokens:  in,
		OutputTokens: out,
		Model:        m.modelName,
	}, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// tokenUsage reads provider-specific usage keys from GenerationInfo.
func tokenUsage(info map[string]any) (input, output int) {
	input = firstInt(info, "InputTokens", "PromptTokens", "input_tokens", "prompt_tokens")
	output = firstInt(info, "OutputTokens", "CompletionTokens", "output_tokens", "completion_tokens")
	return input, output
}

func firstInt(info map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
