package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/kirillkom/scale-ticket-service/internal/adapters/http"
	"github.com/kirillkom/scale-ticket-service/internal/bootstrap"
	"github.com/kirillkom/scale-ticket-service/internal/config"
	"github.com/kirillkom/scale-ticket-service/internal/observability/logging"
	"github.com/kirillkom/scale-ticket-service/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New("api", cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("api_exit", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	opts := []bootstrap.Option{bootstrap.WithVerificationRecorder(httpMetrics)}
	var workerMetrics *metrics.WorkerMetrics
	if cfg.QueueBackend == "inproc" {
		workerMetrics = metrics.NewWorkerMetrics("api")
		opts = append(opts, bootstrap.WithExtractionObserver(workerMetrics))
	}

	app, err := bootstrap.New(ctx, cfg, logger, opts...)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	contract, err := httpadapter.LoadContract(ctx)
	if err != nil {
		return err
	}

	router := httpadapter.NewRouter(cfg, httpadapter.Services{
		Intake:    app.IntakeUC,
		Processor: app.ProcessUC,
		Reviewer:  app.ReviewUC,
		Reader:    app.QueryUC,
		Exporter:  app.ExportUC,
	}).WithMetrics(httpMetrics).WithLogger(logger).WithContract(contract)

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", server.Addr, err)
	}
	if cfg.APIMaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConnections)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api_listening", "addr", server.Addr, "max_connections", cfg.APIMaxConnections)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("api_shutdown_failed", "error", err)
		}
		return nil
	})

	if app.InprocQueue != nil {
		queue := app.InprocQueue
		// Workers outlive the signal so buffered jobs drain after Shutdown.
		workerCtx := context.WithoutCancel(ctx)
		g.Go(func() error {
			logger.Info("extraction_workers_started", "workers", cfg.InprocWorkers)
			return queue.SubscribeExtractionJobs(workerCtx, app.ProcessUC.HandleJob)
		})
		g.Go(func() error {
			<-gctx.Done()
			queue.Shutdown()
			return nil
		})
		g.Go(func() error {
			return serveMetrics(gctx, cfg.WorkerMetricsPort, workerMetrics.Handler(), logger)
		})
	}

	return g.Wait()
}

func serveMetrics(ctx context.Context, port string, handler http.Handler, logger *slog.Logger) error {
	if port == "" {
		return nil
	}
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
