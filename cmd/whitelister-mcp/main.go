package main

import (
	"log"

	"github.com/mark3labs/mcp-go/server"

	"ngxwhitelist/internal/app"
	"ngxwhitelist/internal/config"
	"ngxwhitelist/internal/logging"
	mcptools "ngxwhitelist/internal/mcp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// stdout carries the MCP protocol; logs must not go there.
	if cfg.LogOutput == "stdout" {
		cfg.LogOutput = "stderr"
	}
	logger, closer, err := logging.New(cfg.LogLevel, cfg.LogOutput, cfg.LogPath)
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	deps, err := app.Build(cfg, logger)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}
	defer deps.Close()

	s := server.NewMCPServer(
		"whitelister",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	mcptools.RegisterTools(s, mcptools.Deps{
		Pipeline:      deps.Pipeline,
		History:       deps.History,
		Defaults:      deps.Options,
		DefaultSource: app.SourceReader(cfg),
		AllowInstall:  cfg.AllowInstall,
	})

	if err := server.ServeStdio(s); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
