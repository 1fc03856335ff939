// Package llm is the boundary to the external completion service.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/physio-scribe/internal/models"
)

// Actions understood by the completion service.
const (
	ActionAnalyze      = "analyze"
	ActionGenerateSOAP = "generate_soap"
)

var (
	// ErrFatalAPI marks failures that retrying cannot fix (auth, quota, billing).
	ErrFatalAPI = errors.New("fatal completion API error")
	// ErrStatus marks a non-2xx response from the completion service.
	ErrStatus = errors.New("completion service returned non-2xx status")
	// ErrEmptyResponse is returned when the provider produced no choices.
	ErrEmptyResponse = errors.New("no response choices")
)

// Request is one completion call.
type Request struct {
	Prompt    string `json:"prompt"`
	System    string `json:"system,omitempty"`
	Action    string `json:"action"`
	TraceID   string `json:"traceId"`
	ModelHint string `json:"model,omitempty"`
}

// Response is the completion result. Exactly one of Note, Payload or Text
// usually carries the content; the note generator decides how to parse it.
type Response struct {
	Text         string
	Note         *models.StructuredNote
	Payload      json.RawMessage
	InputTokens  int
	OutputTokens int
	Model        string
}

// Completer calls the completion service once per request.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// StatusError carries the HTTP status of a failed completion call.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, body)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

var fatalMarkers = []string{
	"credit balance",
	"rate limit",
	"quota",
	"billing",
	"invalid api key",
	"authentication",
	"unauthorized",
	"401",
	"403",
}

func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) && (se.Code == 401 || se.Code == 403 || se.Code == 429) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range fatalMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func wrapFatalError(err error) error {
	if !isFatalAPIError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatalAPI, err)
}
