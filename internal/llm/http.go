package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/raphaelgruber/physio-scribe/internal/config"
)

const maxResponseBytes = 4 << 20

// HTTPClient calls a hosted completion endpoint that accepts
// {prompt, action, traceId, model} and answers with either a structured
// note object or a text envelope.
type HTTPClient struct {
	url        string
	token      string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Completer = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the completion endpoint.
func NewHTTPClient(url, token, model string, timeout time.Duration, logger *slog.Logger) (*HTTPClient, error) {
	if url == "" {
		return nil, fmt.Errorf("completion URL required")
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPClient{
		url:        url,
		token:      token,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     config.Component(logger, "llm"),
	}, nil
}

type httpPayload struct {
	Prompt  string `json:"prompt"`
	System  string `json:"system,omitempty"`
	Action  string `json:"action"`
	TraceID string `json:"traceId"`
	Model   string `json:"model,omitempty"`
}

// Complete POSTs the request. Non-2xx answers return a *StatusError.
func (c *HTTPClient) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.ModelHint
	if model == "" {
		model = c.model
	}

	body, err := json.Marshal(httpPayload{
		Prompt:  req.Prompt,
		System:  req.System,
		Action:  req.Action,
		TraceID: req.TraceID,
		Model:   model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	if req.TraceID != "" {
		httpReq.Header.Set("X-Trace-Id", req.TraceID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		recordCompletionMetric(ctx, ProviderHTTP, model, req.Action, 0, time.Since(start), err)
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		recordCompletionMetric(ctx, ProviderHTTP, model, req.Action, resp.StatusCode, time.Since(start), err)
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		recordCompletionMetric(ctx, ProviderHTTP, model, req.Action, resp.StatusCode, time.Since(start), statusErr)
		c.logger.Warn("completion service error",
			"status", resp.StatusCode, "action", req.Action, "trace_id", req.TraceID)
		return nil, wrapFatalError(statusErr)
	}

	recordCompletionMetric(ctx, ProviderHTTP, model, req.Action, resp.StatusCode, time.Since(start), nil)
	out := decodeHTTPResponse(raw)
	if out.Model == "" {
		out.Model = model
	}
	return out, nil
}

// textKeys are envelope fields that carry free text rather than a note.
// When one of them holds an object instead, the whole body is a payload
// and the note parser unwraps it.
var textKeys = []string{"text", "content", "result", "response", "output"}

type usageEnvelope struct {
	Model string `json:"model"`
	Usage struct {
		InputTokens      int `json:"input_tokens"`
		OutputTokens     int `json:"output_tokens"`
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// decodeHTTPResponse sorts a body into Text or Payload. A JSON object with
// a string text field is a text envelope; any other object is a payload;
// non-JSON bodies are text.
func decodeHTTPResponse(raw []byte) *Response {
	trimmed := bytes.TrimSpace(raw)
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return &Response{Text: string(trimmed)}
	}

	var usage usageEnvelope
	_ = json.Unmarshal(trimmed, &usage)
	out := &Response{
		Model:        usage.Model,
		InputTokens:  usage.Usage.InputTokens + usage.Usage.PromptTokens,
		OutputTokens: usage.Usage.OutputTokens + usage.Usage.CompletionTokens,
	}

	for _, key := range textKeys {
		field, ok := obj[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(field, &s); err == nil {
			out.Text = s
			return out
		}
	}

	out.Payload = json.RawMessage(trimmed)
	return out
}
