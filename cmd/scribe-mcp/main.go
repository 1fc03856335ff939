// Package main provides the entry point for the scribe MCP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/physio-scribe/internal/app"
	"github.com/raphaelgruber/physio-scribe/internal/config"
	"github.com/raphaelgruber/physio-scribe/internal/server"
	"github.com/raphaelgruber/physio-scribe/internal/tools"
)

const version = "0.1.0"

func main() {
	cfg := config.Load()

	// Dual output: stderr text + file JSON. Stdout carries the MCP stream.
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()

	logger.Info("scribe-mcp starting",
		"version", version,
		"surrealdb_url", cfg.SurrealDBURL,
		"llm_provider", cfg.LLMProvider,
		"standard_model", cfg.StandardModel,
		"advanced_model", cfg.AdvancedModel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	a, err := app.New(ctx, cfg, logger, app.Options{ConnectDB: true, Completion: true, Backups: true})
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer func() {
		logger.Info("closing database connection and backup store")
		_ = a.Close(context.Background())
	}()

	if pending, err := a.Manager.GetPendingBackups(ctx); err == nil && len(pending) > 0 {
		logger.Warn("pending note backups found, run restore_backups to retry them", "count", len(pending))
	}

	srv := server.New(version, logger)
	srv.Setup()

	deps := &tools.Dependencies{
		Pipeline:   a.Pipeline,
		Classifier: a.Classifier,
		Manager:    a.Manager,
		Collector:  a.Collector,
		Logger:     logger,
	}
	tools.RegisterAll(srv.MCPServer(), deps)
	logger.Info("tools registered", "count", tools.Count)

	logger.Info("server ready, awaiting connections")

	// Blocks until disconnect or context cancelled.
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
