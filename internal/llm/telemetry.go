package llm

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type completionMetrics struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	requestErrors   metric.Int64Counter
}

var (
	completionMetricsOnce sync.Once
	completionMetricsOK   bool
	completionInstruments completionMetrics
)

// ensureCompletionMetrics registers instruments on the global meter. They
// are no-ops until the host installs a MeterProvider.
func ensureCompletionMetrics() {
	completionMetricsOnce.Do(func() {
		meter := otel.Meter("github.com/raphaelgruber/physio-scribe/llm")

		requestCount, err := meter.Int64Counter(
			"scribe.completion.request.count",
			metric.WithDescription("Number of completion requests"),
		)
		if err != nil {
			return
		}
		requestDuration, err := meter.Float64Histogram(
			"scribe.completion.request.duration",
			metric.WithDescription("Completion request duration in milliseconds"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			return
		}
		requestErrors, err := meter.Int64Counter(
			"scribe.completion.request.errors",
			metric.WithDescription("Number of failed completion requests"),
		)
		if err != nil {
			return
		}

		completionInstruments = completionMetrics{
			requestCount:    requestCount,
			requestDuration: requestDuration,
			requestErrors:   requestErrors,
		}
		completionMetricsOK = true
	})
}

func recordCompletionMetric(ctx context.Context, provider, model, action string, statusCode int, duration time.Duration, err error) {
	ensureCompletionMetrics()
	if !completionMetricsOK {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("ai.provider", provider),
		attribute.String("ai.model", model),
		attribute.String("ai.action", action),
	}
	if statusCode > 0 {
		attrs = append(attrs, attribute.Int("http.status_code", statusCode))
	}

	completionInstruments.requestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	completionInstruments.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		completionInstruments.requestErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
