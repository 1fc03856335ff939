// Package server wraps the MCP server that exposes the note pipeline.
package server

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Name is the MCP implementation name reported to clients.
const Name = "physio-scribe"

// instructions is sent to clients during initialization.
const instructions = `Generates physiotherapy SOAP notes from session transcripts.
Call generate_note with the full transcript; identifiers are redacted before
the completion service sees it and restored in the returned note. Pass
tested_regions so the objective section only covers examined regions.
A degraded result carries a placeholder note that must be reviewed by hand.
When a save fails the note is kept in a local backup; list_backups and
restore_backups manage those.`

// Server owns the MCP server and its logger.
type Server struct {
	mcp    *mcp.Server
	logger *slog.Logger
}

// New creates the MCP server. Tools are registered separately on
// MCPServer so tests can register their own.
func New(version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	impl := &mcp.Implementation{
		Name:    Name,
		Title:   "Physiotherapy note scribe",
		Version: version,
	}

	return &Server{
		mcp:    mcp.NewServer(impl, &mcp.ServerOptions{Instructions: instructions}),
		logger: logger,
	}
}

// Run serves over stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, &mcp.StdioTransport{})
}

// Serve runs the server on an arbitrary transport.
func (s *Server) Serve(ctx context.Context, t mcp.Transport) error {
	s.logger.Info("starting MCP server", "transport", transportName(t))
	err := s.mcp.Run(ctx, t)
	s.logger.Info("MCP server stopped", "cancelled", ctx.Err() != nil)
	return err
}

// MCPServer returns the underlying MCP server for tool registration.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Setup installs the PHI-safe request logging middleware.
func (s *Server) Setup() {
	s.mcp.AddReceivingMiddleware(LoggingMiddleware(s.logger))
}

func transportName(t mcp.Transport) string {
	switch t.(type) {
	case *mcp.StdioTransport:
		return "stdio"
	case *mcp.InMemoryTransport:
		return "memory"
	default:
		return "custom"
	}
}
