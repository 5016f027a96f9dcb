package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/scale-ticket-service/internal/adapters/mcp"
	"github.com/kirillkom/scale-ticket-service/internal/bootstrap"
	"github.com/kirillkom/scale-ticket-service/internal/config"
	"github.com/kirillkom/scale-ticket-service/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	// stdout carries the MCP protocol; logs must stay on stderr.
	logger := logging.New("mcp", cfg.LogLevel, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("mcp_bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	tools := mcpadapter.NewTools(app.QueryUC, app.ReviewUC, logger)
	logger.Info("mcp_serving_stdio")
	if err := server.ServeStdio(tools.Server()); err != nil {
		logger.Error("mcp_exit", "error", err)
	}
}
