package main

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/celerix-dev/celerix-market/internal/config"
	"github.com/celerix-dev/celerix-market/internal/logger"
	"github.com/celerix-dev/celerix-market/internal/mcptools"
	"github.com/celerix-dev/celerix-market/pkg/sdk"
)

const serverVersion = "0.1.0"

func main() {
	level := os.Getenv("CELERIX_LOG_LEVEL")
	if level == "" {
		level = zerolog.LevelWarnValue
	}
	// stdout carries the protocol
	log := logger.NewWithWriter(config.LogConfig{Level: level, Service: "celerix-market-mcp"}, os.Stderr)

	ledger, err := sdk.New(context.Background(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open ledger")
	}
	defer ledger.Close()

	s := mcptools.NewServer("celerix-market", serverVersion, ledger, log)
	log.Info().Msg("serving MCP over stdio")
	if err := server.ServeStdio(s); err != nil {
		log.Error().Err(err).Msg("stdio server error")
	}
}
