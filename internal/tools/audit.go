package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/physio-scribe/internal/persist"
)

// AuditInput defines the input schema for the audit_notes tool.
type AuditInput struct{}

// AuditOutput is the audit_notes result.
type AuditOutput struct {
	Issues []persist.IntegrityIssue `json:"issues"`
	Count  int                      `json:"count"`
}

// NewAuditHandler runs the read-only integrity audit.
func NewAuditHandler(deps *Dependencies) mcp.ToolHandlerFor[AuditInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AuditInput) (
		*mcp.CallToolResult, any, error,
	) {
		issues, err := deps.Manager.AuditIntegrity(ctx)
		if err != nil {
			deps.Logger.Error("audit failed", "error", err)
			return ErrorResult("Audit failed", "Primary store may be unavailable"), nil, nil
		}
		return JSONResult(AuditOutput{Issues: issues, Count: len(issues)}), nil, nil
	}
}

// StatsInput defines the input schema for the stats tool.
type StatsInput struct{}

// NewStatsHandler returns the metrics snapshot.
func NewStatsHandler(deps *Dependencies) mcp.ToolHandlerFor[StatsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatsInput) (
		*mcp.CallToolResult, any, error,
	) {
		if deps.Collector == nil {
			return ErrorResult("Metrics are disabled", ""), nil, nil
		}
		return JSONResult(deps.Collector.Snapshot()), nil, nil
	}
}
