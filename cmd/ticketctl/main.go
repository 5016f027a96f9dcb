package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kirillkom/scale-ticket-service/internal/adapters/cli"
	"github.com/kirillkom/scale-ticket-service/internal/bootstrap"
	"github.com/kirillkom/scale-ticket-service/internal/config"
	"github.com/kirillkom/scale-ticket-service/internal/observability/logging"
)

func main() {
	root := cli.NewRootCommand(func(ctx context.Context) (cli.Services, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return cli.Services{}, nil, err
		}
		// Logs go to stderr in text form so they never mix with exported data on stdout.
		logger := logging.New("ticketctl", cfg.LogLevel, "text")
		app, err := bootstrap.New(ctx, cfg, logger)
		if err != nil {
			return cli.Services{}, nil, err
		}
		return cli.Services{
			Reader:   app.QueryUC,
			Reviewer: app.ReviewUC,
			Exporter: app.ExportUC,
		}, app.Close, nil
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ticketctl: %v\n", err)
		os.Exit(1)
	}
}
