package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Count is the number of tools RegisterAll adds.
const Count = 6

// RegisterAll registers all tools with the MCP server.
// This is called from main after server creation but before Run().
func RegisterAll(server *mcp.Server, deps *Dependencies) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_note",
		Description: "Generate a SOAP note from a session transcript. Identifiers are redacted before the transcript leaves the process and restored in the returned note.",
	}, NewGenerateNoteHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "classify_transcript",
		Description: "Estimate complexity, detect red flags and pick the model tier for a transcript",
	}, NewClassifyHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_backups",
		Description: "List local note backups awaiting a successful save, oldest first",
	}, NewListBackupsHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "restore_backups",
		Description: "Retry saving every pending backup once and delete the ones that succeed",
	}, NewRestoreBackupsHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "audit_notes",
		Description: "Read-only integrity audit of every persisted note",
	}, NewAuditHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "stats",
		Description: "Per-stage timings, token usage and pipeline counters since start",
	}, NewStatsHandler(deps))
}
