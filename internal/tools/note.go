package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/physio-scribe/internal/models"
	"github.com/raphaelgruber/physio-scribe/internal/pipeline"
	"github.com/raphaelgruber/physio-scribe/internal/router"
)

// ExamResultInput is one structured exam finding.
type ExamResultInput struct {
	Region string `json:"region" jsonschema:"Body region, e.g. lumbar"`
	Test   string `json:"test" jsonschema:"Test name, e.g. SLR"`
	Result string `json:"result" jsonschema:"Finding, e.g. negative"`
}

// GenerateNoteInput defines the input schema for the generate_note tool.
type GenerateNoteInput struct {
	Transcript    string            `json:"transcript" jsonschema:"required,Session transcript or dictation"`
	PatientID     string            `json:"patient_id,omitempty" jsonschema:"Patient identifier used when persisting"`
	SessionID     string            `json:"session_id,omitempty" jsonschema:"Session identifier used when persisting"`
	Specialty     string            `json:"specialty,omitempty" jsonschema:"Vocabulary specialty, default physiotherapy"`
	VisitType     string            `json:"visit_type,omitempty" jsonschema:"initial or follow-up"`
	PriorSession  string            `json:"prior_session,omitempty" jsonschema:"Summary of the previous session for follow-ups"`
	SessionType   string            `json:"session_type,omitempty" jsonschema:"Session type hint, e.g. telehealth"`
	ExamResults   []ExamResultInput `json:"exam_results,omitempty" jsonschema:"Structured exam results"`
	TestedRegions []string          `json:"tested_regions,omitempty" jsonschema:"Regions physically examined; the objective may only mention these"`
	Optimize      bool              `json:"optimize,omitempty" jsonschema:"Use the token-optimized follow-up prompt"`
	Persist       bool              `json:"persist,omitempty" jsonschema:"Save the note to the primary store"`
}

// NewGenerateNoteHandler runs the full pipeline for one transcript.
func NewGenerateNoteHandler(deps *Dependencies) mcp.ToolHandlerFor[GenerateNoteInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GenerateNoteInput) (
		*mcp.CallToolResult, any, error,
	) {
		if strings.TrimSpace(input.Transcript) == "" {
			return ErrorResult("Transcript cannot be empty", "Provide the session transcript"), nil, nil
		}
		if input.Persist && (input.PatientID == "" || input.SessionID == "") {
			return ErrorResult("patient_id and session_id are required to persist", "Provide both or set persist=false"), nil, nil
		}

		exams := make([]models.ExamResult, 0, len(input.ExamResults))
		for _, e := range input.ExamResults {
			exams = append(exams, models.ExamResult{Region: e.Region, Test: e.Test, Result: e.Result})
		}

		res, err := deps.Pipeline.Run(ctx, pipeline.Input{
			Transcript:    input.Transcript,
			PatientID:     input.PatientID,
			SessionID:     input.SessionID,
			Specialty:     input.Specialty,
			VisitType:     models.ParseVisitType(input.VisitType),
			PriorSession:  input.PriorSession,
			SessionType:   input.SessionType,
			ExamResults:   exams,
			TestedRegions: input.TestedRegions,
			Optimize:      input.Optimize,
			Persist:       input.Persist,
		})
		if err != nil {
			deps.Logger.Error("generate_note failed", "error", err)
			if errors.Is(err, pipeline.ErrMissingDependency) {
				return ErrorResult("Note pipeline is not configured", "Check server configuration"), nil, nil
			}
			return ErrorResult("Note generation was cancelled", ""), nil, nil
		}

		deps.Logger.Info("generate_note completed", "trace_id", res.TraceID, "degraded", res.Degraded,
			"tier", res.Selection.ModelTier)
		return JSONResult(res), nil, nil
	}
}

// ClassifyInput defines the input schema for the classify_transcript tool.
type ClassifyInput struct {
	Transcript string `json:"transcript" jsonschema:"required,Transcript text to classify"`
	Specialty  string `json:"specialty,omitempty" jsonschema:"Vocabulary specialty, default physiotherapy"`
}

// ClassifyOutput is the classify_transcript result.
type ClassifyOutput struct {
	Analysis        models.ComplexityAnalysis `json:"analysis"`
	Selection       models.ModelSelection     `json:"selection"`
	EstimatedTokens int                       `json:"estimated_tokens"`
}

// NewClassifyHandler classifies a transcript without generating a note.
func NewClassifyHandler(deps *Dependencies) mcp.ToolHandlerFor[ClassifyInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ClassifyInput) (
		*mcp.CallToolResult, any, error,
	) {
		if strings.TrimSpace(input.Transcript) == "" {
			return ErrorResult("Transcript cannot be empty", "Provide the text to classify"), nil, nil
		}

		analysis := deps.Classifier.Classify(input.Transcript, input.Specialty)
		tokens := router.EstimateTokens(input.Transcript)
		out := ClassifyOutput{
			Analysis:        analysis,
			Selection:       deps.Classifier.SelectModel(analysis, tokens),
			EstimatedTokens: tokens,
		}
		return JSONResult(out), nil, nil
	}
}
