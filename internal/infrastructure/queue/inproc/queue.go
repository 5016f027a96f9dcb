package inproc

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
)

var errShuttingDown = errors.New("extraction queue is shutting down")

// Queue is a buffered in-process job queue drained by a fixed pool of workers.
type Queue struct {
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch       chan domain.ExtractionJob
	done     chan struct{}
	stopOnce sync.Once
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan domain.ExtractionJob, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func New(logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan domain.ExtractionJob, 256),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// PublishExtractionJob blocks while the buffer is full until ctx ends.
func (q *Queue) PublishExtractionJob(ctx context.Context, job domain.ExtractionJob) error {
	select {
	case <-q.done:
		return domain.WrapError(domain.ErrTemporary, "enqueue extraction job", errShuttingDown)
	default:
	}

	select {
	case q.ch <- job:
		return nil
	default:
		q.logger.Warn("extraction_queue_full", "ticket_id", job.TicketID, "capacity", cap(q.ch))
	}

	select {
	case q.ch <- job:
		return nil
	case <-q.done:
		return domain.WrapError(domain.ErrTemporary, "enqueue extraction job", errShuttingDown)
	case <-ctx.Done():
		return domain.WrapError(domain.ErrTemporary, "enqueue extraction job", ctx.Err())
	}
}

// SubscribeExtractionJobs runs the worker pool until ctx ends or Shutdown drains the buffer.
func (q *Queue) SubscribeExtractionJobs(ctx context.Context, handler func(context.Context, domain.ExtractionJob) error) error {
	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			q.logger.Debug("extraction_worker_started", "worker_id", workerID)
			q.work(ctx, workerID, handler)
			q.logger.Debug("extraction_worker_stopped", "worker_id", workerID)
		}(i + 1)
	}
	wg.Wait()
	return nil
}

func (q *Queue) work(ctx context.Context, workerID int, handler func(context.Context, domain.ExtractionJob) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.ch:
			q.handle(ctx, workerID, job, handler)
		case <-q.done:
			for {
				select {
				case job := <-q.ch:
					q.handle(ctx, workerID, job, handler)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) handle(ctx context.Context, workerID int, job domain.ExtractionJob, handler func(context.Context, domain.ExtractionJob) error) {
	jobCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	if err := handler(jobCtx, job); err != nil {
		q.logger.Error("extraction_job_failed", "worker_id", workerID, "ticket_id", job.TicketID, "error", err)
	}
}

// Shutdown stops accepting jobs and lets running workers drain what is buffered.
func (q *Queue) Shutdown() {
	q.stopOnce.Do(func() { close(q.done) })
}

func (q *Queue) Pending() int {
	return len(q.ch)
}
