package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// slowRequestThreshold is the duration above which requests are logged at
// WARN level. Note generation is dominated by the completion call.
const slowRequestThreshold = 30 * time.Second

// LoggingMiddleware logs every request with its timing. Tool arguments
// carry transcripts, so only the tool name and argument size are logged.
func LoggingMiddleware(logger *slog.Logger) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			start := time.Now()
			result, err := next(ctx, method, req)
			duration := time.Since(start)

			attrs := append([]any{
				"method", method,
				"duration_ms", duration.Milliseconds(),
			}, paramAttrs(req)...)

			if err != nil {
				attrs = append(attrs, "error", err.Error())
				logger.Error("request failed", attrs...)
			} else if duration > slowRequestThreshold {
				logger.Warn("slow request", attrs...)
			} else {
				logger.Debug("request completed", attrs...)
			}

			return result, err
		}
	}
}

// paramAttrs describes request parameters without their values.
func paramAttrs(req mcp.Request) []any {
	if req == nil {
		return nil
	}
	switch p := req.GetParams().(type) {
	case *mcp.CallToolParamsRaw:
		return []any{"tool", p.Name, "argument_bytes", len(p.Arguments)}
	case *mcp.CallToolParams:
		return []any{"tool", p.Name}
	default:
		return nil
	}
}
