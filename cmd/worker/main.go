package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/scale-ticket-service/internal/bootstrap"
	"github.com/kirillkom/scale-ticket-service/internal/config"
	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
	"github.com/kirillkom/scale-ticket-service/internal/observability/logging"
	"github.com/kirillkom/scale-ticket-service/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New("worker", cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if cfg.QueueBackend != "nats" {
		logger.Error("worker_requires_nats", "queue_backend", cfg.QueueBackend)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("worker_exit", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.WithExtractionObserver(workerMetrics))
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	timeout := time.Duration(cfg.ProcessTimeoutSeconds) * time.Second
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "process_timeout", timeout.String())
		return app.Queue.SubscribeExtractionJobs(gctx, func(handlerCtx context.Context, job domain.ExtractionJob) error {
			processCtx, cancel := context.WithTimeout(handlerCtx, timeout)
			defer cancel()
			return app.ProcessUC.HandleJob(processCtx, job)
		})
	})
	g.Go(func() error {
		return serveMetrics(gctx, cfg.WorkerMetricsPort, workerMetrics.Handler(), logger)
	})
	return g.Wait()
}

func serveMetrics(ctx context.Context, port string, handler http.Handler, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", handler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics_listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
