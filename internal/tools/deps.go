// Package tools provides MCP tool handlers and registration.
package tools

import (
	"log/slog"

	"github.com/raphaelgruber/physio-scribe/internal/metrics"
	"github.com/raphaelgruber/physio-scribe/internal/persist"
	"github.com/raphaelgruber/physio-scribe/internal/pipeline"
	"github.com/raphaelgruber/physio-scribe/internal/router"
)

// Dependencies holds shared services for tool handlers.
// Passed to handler factories via closure capture.
type Dependencies struct {
	Pipeline   *pipeline.Pipeline
	Classifier *router.Classifier
	Manager    *persist.Manager
	Collector  *metrics.Collector
	Logger     *slog.Logger
}
