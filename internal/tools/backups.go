package tools

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/physio-scribe/internal/models"
)

// ListBackupsInput defines the input schema for the list_backups tool.
type ListBackupsInput struct {
	IncludeNote bool `json:"include_note,omitempty" jsonschema:"Include the full note snapshot for each backup"`
}

// BackupSummary is one pending backup as reported by list_backups.
type BackupSummary struct {
	Key        string                 `json:"key"`
	PatientID  string                 `json:"patient_id"`
	SessionID  string                 `json:"session_id"`
	Timestamp  time.Time              `json:"timestamp"`
	Characters int                    `json:"characters"`
	Note       *models.StructuredNote `json:"note,omitempty"`
}

// ListBackupsOutput is the list_backups result.
type ListBackupsOutput struct {
	Backups []BackupSummary `json:"backups"`
	Count   int             `json:"count"`
}

// NewListBackupsHandler lists pending backups.
func NewListBackupsHandler(deps *Dependencies) mcp.ToolHandlerFor[ListBackupsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListBackupsInput) (
		*mcp.CallToolResult, any, error,
	) {
		records, err := deps.Manager.GetPendingBackups(ctx)
		if err != nil {
			deps.Logger.Error("list backups failed", "error", err)
			return ErrorResult("Failed to read backups", "Check the backup file path and encryption key"), nil, nil
		}

		out := ListBackupsOutput{Backups: make([]BackupSummary, 0, len(records)), Count: len(records)}
		for _, rec := range records {
			s := BackupSummary{
				Key:        rec.Key,
				PatientID:  rec.PatientID,
				SessionID:  rec.SessionID,
				Timestamp:  rec.Timestamp,
				Characters: rec.SOAPData.TotalCharacters(),
			}
			if input.IncludeNote {
				note := rec.SOAPData
				s.Note = &note
			}
			out.Backups = append(out.Backups, s)
		}
		return JSONResult(out), nil, nil
	}
}

// RestoreBackupsInput defines the input schema for the restore_backups tool.
type RestoreBackupsInput struct{}

// NewRestoreBackupsHandler retries every pending backup once.
func NewRestoreBackupsHandler(deps *Dependencies) mcp.ToolHandlerFor[RestoreBackupsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input RestoreBackupsInput) (
		*mcp.CallToolResult, any, error,
	) {
		summary, err := deps.Manager.RestoreAllBackups(ctx, nil)
		if err != nil {
			deps.Logger.Error("restore backups failed", "error", err)
			return ErrorResult("Failed to restore backups", "Backups are unchanged"), nil, nil
		}
		return JSONResult(summary), nil, nil
	}
}
