package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/scale-ticket-service/internal/config"
	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
	"github.com/kirillkom/scale-ticket-service/internal/core/ports"
	"github.com/kirillkom/scale-ticket-service/internal/core/usecase"
	"github.com/kirillkom/scale-ticket-service/internal/infrastructure/events"
	"github.com/kirillkom/scale-ticket-service/internal/infrastructure/lock/memlock"
	"github.com/kirillkom/scale-ticket-service/internal/infrastructure/lock/redislock"
	"github.com/kirillkom/scale-ticket-service/internal/infrastructure/ocr/httpocr"
	"github.com/kirillkom/scale-ticket-service/internal/infrastructure/ocr/pdftext"
	"github.com/kirillkom/scale-ticket-service/internal/infrastructure/queue/inproc"
	"github.com/kirillkom/scale-ticket-service/internal/infrastructure/queue/nats"
	"github.com/kirillkom/scale-ticket-service/internal/infrastructure/repository/memory"
	"github.com/kirillkom/scale-ticket-service/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/scale-ticket-service/internal/infrastructure/resilience"
	"github.com/kirillkom/scale-ticket-service/internal/infrastructure/storage/gcs"
	"github.com/kirillkom/scale-ticket-service/internal/infrastructure/storage/localfs"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue ports.MessageQueue
	Repo  ports.TicketRepository

	IntakeUC  *usecase.IntakeTicketUseCase
	ProcessUC *usecase.ProcessTicketUseCase
	ReviewUC  *usecase.ReviewTicketUseCase
	QueryUC   *usecase.QueryTicketsUseCase
	ExportUC  *usecase.ExportTicketsUseCase

	// InprocQueue is set when QUEUE_BACKEND=inproc; the API process runs its workers.
	InprocQueue *inproc.Queue

	closers []func()
}

type options struct {
	observer ports.ExtractionObserver
	recorder usecase.VerificationRecorder
}

type Option func(*options)

// WithExtractionObserver attaches worker metrics to the process use case.
func WithExtractionObserver(o ports.ExtractionObserver) Option {
	return func(opts *options) { opts.observer = o }
}

// WithVerificationRecorder attaches verification metrics to the review use case.
func WithVerificationRecorder(r usecase.VerificationRecorder) Option {
	return func(opts *options) { opts.recorder = r }
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	repo, err := app.openRepository(ctx)
	if err != nil {
		return nil, err
	}
	app.Repo = repo

	storage, err := app.openStorage(ctx)
	if err != nil {
		return nil, err
	}

	locker := app.openLocker()

	publishers := events.Fanout{events.NewLogPublisher(logger)}
	switch cfg.QueueBackend {
	case "nats":
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			EventPrefix:        cfg.NATSEventsPrefix,
			ResilienceExecutor: resilience.NewExecutor(resilience.QueueConfig()).WithLogger(logger),
			Logger:             logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.closers = append(app.closers, queue.Close)
		app.Queue = queue
		publishers = append(publishers, queue)
	default:
		queue := inproc.New(logger,
			inproc.WithWorkers(cfg.InprocWorkers),
			inproc.WithQueueSize(cfg.InprocQueueSize),
			inproc.WithProcessTimeout(time.Duration(cfg.ProcessTimeoutSeconds)*time.Second),
		)
		app.closers = append(app.closers, queue.Shutdown)
		app.Queue = queue
		app.InprocQueue = queue
	}

	ocr, err := newOCR(cfg, storage, logger)
	if err != nil {
		return nil, err
	}

	policy := domain.FixedScorePolicy{Mismatch: cfg.DriverScoreMismatch, Clean: cfg.DriverScoreClean}

	app.IntakeUC = usecase.NewIntakeTicketUseCase(repo, storage, app.Queue, locker, publishers, logger, cfg.AutoSubmitUploads)
	app.ProcessUC = usecase.NewProcessTicketUseCase(repo, ocr, locker, publishers, logger)
	if o.observer != nil {
		app.ProcessUC.WithObserver(o.observer)
	}
	app.ReviewUC = usecase.NewReviewTicketUseCase(repo, locker, publishers, logger)
	if o.recorder != nil {
		app.ReviewUC.WithRecorder(o.recorder)
	}
	app.QueryUC = usecase.NewQueryTicketsUseCase(repo, policy)
	app.ExportUC = usecase.NewExportTicketsUseCase(app.QueryUC, cfg.ExportMaxRows, logger)

	logger.Info("bootstrap_ready",
		"store", cfg.StoreBackend,
		"queue", cfg.QueueBackend,
		"storage", cfg.StorageBackend,
		"distributed_lock", cfg.RedisAddr != "",
	)
	ok = true
	return app, nil
}

func (a *App) openRepository(ctx context.Context) (ports.TicketRepository, error) {
	if a.Config.StoreBackend != "postgres" {
		return memory.NewTicketRepository(), nil
	}
	db, err := postgres.OpenDB(a.Config.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	a.closers = append(a.closers, closeDB(db))
	repo := postgres.NewTicketRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, nil
}

func (a *App) openStorage(ctx context.Context) (ports.ObjectStorage, error) {
	if a.Config.StorageBackend == "gcs" {
		storage, err := gcs.New(ctx, a.Config.GCSBucket, a.Config.GCSPrefix, a.Config.GCSCredentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		a.closers = append(a.closers, func() { _ = storage.Close() })
		return storage, nil
	}
	storage, err := localfs.New(a.Config.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	return storage, nil
}

// openLocker returns a Redis lock when REDIS_ADDR is set so API and worker processes
// serialize on the same ticket. A single process gets by with in-memory locks.
func (a *App) openLocker() ports.TicketLocker {
	if a.Config.RedisAddr == "" {
		return memlock.New()
	}
	client := redislock.NewClient(a.Config.RedisAddr, a.Config.RedisPassword, a.Config.RedisDB)
	a.closers = append(a.closers, func() { _ = client.Close() })
	return redislock.New(client, redislock.Options{
		TTL:    time.Duration(a.Config.LockTTLSeconds) * time.Second,
		Logger: a.Logger,
	})
}

func newOCR(cfg config.Config, storage ports.ObjectStorage, logger *slog.Logger) (ports.OCRExtractor, error) {
	policy := resilience.OCRConfig()
	policy.RetryMaxAttempts = cfg.OCRRetryMaxAttempts
	policy.BreakerEnabled = cfg.OCRBreakerEnabled

	client, err := httpocr.New(cfg.OCRServiceURL, storage, httpocr.Options{
		Timeout:            time.Duration(cfg.OCRTimeoutSeconds) * time.Second,
		ResilienceExecutor: resilience.NewExecutor(policy).WithLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("init ocr client: %w", err)
	}
	return pdftext.NewExtractor(storage, client, logger), nil
}

func closeDB(db *sql.DB) func() {
	return func() { _ = db.Close() }
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
