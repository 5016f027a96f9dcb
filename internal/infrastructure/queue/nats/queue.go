package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
	"github.com/kirillkom/scale-ticket-service/internal/infrastructure/resilience"
)

const workerGroup = "extraction-workers"

// Queue carries extraction jobs over a NATS queue group and publishes ticket events.
type Queue struct {
	conn        *nats.Conn
	subject     string
	eventPrefix string
	executor    *resilience.Executor
	logger      *slog.Logger
}

type Options struct {
	EventPrefix          string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("scale-ticket-service"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:        conn,
		subject:     subject,
		eventPrefix: strings.TrimSuffix(options.EventPrefix, "."),
		executor:    options.ResilienceExecutor,
		logger:      logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishExtractionJob(ctx context.Context, job domain.ExtractionJob) error {
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}
	return q.publish(ctx, "nats.publish_job", q.subject, payload)
}

// Publish sends a ticket event to <prefix>.<event name>. Without a prefix events are not sent.
func (q *Queue) Publish(ctx context.Context, event domain.TicketEvent) error {
	if q.eventPrefix == "" {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode ticket event: %w", err)
	}
	return q.publish(ctx, "nats.publish_event", eventSubject(q.eventPrefix, event.Type), payload)
}

func (q *Queue) publish(ctx context.Context, operation, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, operation, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

func (q *Queue) SubscribeExtractionJobs(ctx context.Context, handler func(context.Context, domain.ExtractionJob) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		job, err := decodeJob(msg.Data)
		if err != nil {
			q.logger.Error("extraction_job_malformed", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, job); err != nil {
			q.logger.Error("extraction_job_failed", "ticket_id", job.TicketID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeJob(job domain.ExtractionJob) ([]byte, error) {
	if strings.TrimSpace(job.TicketID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode extraction job", errors.New("ticket id is empty"))
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode extraction job: %w", err)
	}
	return payload, nil
}

// decodeJob also accepts a bare ticket id so jobs queued by older publishers still drain.
func decodeJob(data []byte) (domain.ExtractionJob, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return domain.ExtractionJob{}, errors.New("empty payload")
	}
	if !strings.HasPrefix(trimmed, "{") {
		return domain.ExtractionJob{TicketID: trimmed}, nil
	}
	var job domain.ExtractionJob
	if err := json.Unmarshal(data, &job); err != nil {
		return domain.ExtractionJob{}, fmt.Errorf("decode extraction job: %w", err)
	}
	if job.TicketID == "" {
		return domain.ExtractionJob{}, errors.New("extraction job without ticket_id")
	}
	return job, nil
}

func eventSubject(prefix string, eventType domain.TicketEventType) string {
	name := strings.TrimPrefix(string(eventType), "ticket.")
	return prefix + "." + name
}
