package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
	"github.com/kirillkom/scale-ticket-service/internal/core/ports"
)

const (
	progressExtracting  = 10
	progressReconciling = 60

	outcomeOCRComplete = "ocr_complete"
	outcomeMismatch    = "mismatch_alert"
	outcomeFailed      = "failed"
	outcomeDiscarded   = "discarded"

	persistTimeout = 10 * time.Second
)

var errNoLongerProcessing = errors.New("ticket is no longer processing")

type ProcessTicketUseCase struct {
	store    ticketStore
	repo     ports.TicketRepository
	ocr      ports.OCRExtractor
	events   ports.EventPublisher
	observer ports.ExtractionObserver
	logger   *slog.Logger

	mu       sync.Mutex
	inFlight map[string]context.CancelFunc
}

func NewProcessTicketUseCase(
	repo ports.TicketRepository,
	ocr ports.OCRExtractor,
	locker ports.TicketLocker,
	events ports.EventPublisher,
	logger *slog.Logger,
) *ProcessTicketUseCase {
	return &ProcessTicketUseCase{
		store:    ticketStore{repo: repo, locker: locker},
		repo:     repo,
		ocr:      ocr,
		events:   events,
		logger:   loggerOrDefault(logger),
		inFlight: make(map[string]context.CancelFunc),
	}
}

// WithObserver attaches extraction metrics.
func (uc *ProcessTicketUseCase) WithObserver(observer ports.ExtractionObserver) *ProcessTicketUseCase {
	uc.observer = observer
	return uc
}

// HandleJob is the queue handler for extraction jobs.
func (uc *ProcessTicketUseCase) HandleJob(ctx context.Context, job domain.ExtractionJob) error {
	if uc.observer != nil && !job.SubmittedAt.IsZero() {
		uc.observer.ObserveQueueLag(time.Since(job.SubmittedAt))
	}
	return uc.ProcessByID(ctx, job.TicketID)
}

// ProcessByID runs OCR for a processing ticket, reconciles the extracted weights and records the
// outcome. Jobs for tickets that are no longer processing are discarded.
func (uc *ProcessTicketUseCase) ProcessByID(ctx context.Context, ticketID string) error {
	ticket, err := uc.repo.GetByID(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("fetch ticket by id: %w", err)
	}
	if ticket.Status() != domain.StatusProcessing {
		uc.logger.Info("ticket_extraction_skipped", "ticket_id", ticketID, "status", ticket.Status().String())
		return nil
	}

	start := time.Now()
	if uc.observer != nil {
		uc.observer.StartExtraction()
	}
	outcome, err := uc.run(ctx, ticket)
	if uc.observer != nil {
		uc.observer.FinishExtraction(outcome, time.Since(start))
	}
	return err
}

func (uc *ProcessTicketUseCase) run(ctx context.Context, ticket *domain.Ticket) (string, error) {
	ticketID := ticket.ID()
	runCtx, cancel := context.WithCancel(ctx)
	uc.track(ticketID, cancel)
	defer func() {
		uc.untrack(ticketID)
		cancel()
	}()

	uc.reportProgress(runCtx, ticketID, progressExtracting)
	data, extractErr := uc.extract(runCtx, ticket.Image())
	if runCtx.Err() != nil && ctx.Err() == nil {
		uc.logger.Info("ticket_extraction_discarded", "ticket_id", ticketID, "reason", "cancelled")
		return outcomeDiscarded, nil
	}
	if extractErr != nil {
		return outcomeFailed, uc.failExtraction(ctx, ticketID, extractErr)
	}

	uc.reportProgress(ctx, ticketID, progressReconciling)

	var rec domain.Reconciliation
	updated, err := uc.store.mutate(ctx, ticketID, "complete extraction", func(t *domain.Ticket, now time.Time) error {
		if t.Status() != domain.StatusProcessing {
			return errNoLongerProcessing
		}
		var completeErr error
		rec, completeErr = t.CompleteExtraction(data, now)
		return completeErr
	})
	switch {
	case errors.Is(err, errNoLongerProcessing):
		uc.logger.Info("ticket_extraction_discarded", "ticket_id", ticketID, "reason", "status changed")
		return outcomeDiscarded, nil
	case domain.IsKind(err, domain.ErrInvalidInput):
		return outcomeFailed, uc.failExtraction(ctx, ticketID, domain.WrapError(domain.ErrExtractionFailed, "reconcile weights", err))
	case err != nil:
		return outcomeFailed, err
	}

	if rec.HasMismatch {
		uc.logger.Warn("ticket_weight_mismatch",
			"ticket_id", ticketID,
			"calculated_net_weight", rec.CalculatedNetWeight,
			"reported_net_weight", rec.ReportedNetWeight,
			"details", rec.Details,
		)
		publishEvent(ctx, uc.logger, uc.events, domain.NewTicketEvent(domain.EventMismatchDetected, updated, rec.Details, updated.UpdatedAt()))
		return outcomeMismatch, nil
	}
	uc.logger.Info("ticket_extraction_completed", "ticket_id", ticketID, "confidence", updated.Confidence())
	publishEvent(ctx, uc.logger, uc.events, domain.NewTicketEvent(domain.EventExtractionCompleted, updated, "", updated.UpdatedAt()))
	return outcomeOCRComplete, nil
}

func (uc *ProcessTicketUseCase) extract(ctx context.Context, image domain.ImageRef) (domain.OCRData, error) {
	raw, err := uc.ocr.Extract(ctx, image)
	if err != nil {
		return domain.OCRData{}, fmt.Errorf("extract ticket fields: %w", err)
	}
	data, err := domain.ParseExtraction(raw)
	if err != nil {
		return domain.OCRData{}, fmt.Errorf("parse extraction: %w", err)
	}
	return data, nil
}

// failExtraction moves the ticket to failed. It writes with a detached context so a job timeout
// still records the failure.
func (uc *ProcessTicketUseCase) failExtraction(ctx context.Context, ticketID string, cause error) error {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	reason := failureReason(cause)
	updated, err := uc.store.mutate(persistCtx, ticketID, "fail extraction", func(t *domain.Ticket, now time.Time) error {
		if t.Status() != domain.StatusProcessing {
			return errNoLongerProcessing
		}
		return t.Fail(reason, now)
	})
	if errors.Is(err, errNoLongerProcessing) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w; mark failed status: %v", cause, err)
	}

	uc.logger.Warn("ticket_extraction_failed", "ticket_id", ticketID, "reason", reason)
	publishEvent(persistCtx, uc.logger, uc.events, domain.NewTicketEvent(domain.EventExtractionFailed, updated, reason, updated.UpdatedAt()))
	return cause
}

// Cancel fails a processing ticket and stops its in-flight OCR call when it runs in this process.
func (uc *ProcessTicketUseCase) Cancel(ctx context.Context, ticketID, reason string) (*domain.Ticket, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "cancelled"
	}
	updated, err := uc.store.mutate(ctx, ticketID, "cancel ticket", func(t *domain.Ticket, now time.Time) error {
		if t.Status() != domain.StatusProcessing {
			return &domain.TransitionError{TicketID: ticketID, From: t.Status(), Action: "cancel"}
		}
		return t.Fail(reason, now)
	})
	if err != nil {
		return nil, err
	}

	uc.mu.Lock()
	cancel, ok := uc.inFlight[ticketID]
	uc.mu.Unlock()
	if ok {
		cancel()
	}

	uc.logger.Info("ticket_cancelled", "ticket_id", ticketID, "reason", reason, "in_flight", ok)
	publishEvent(ctx, uc.logger, uc.events, domain.NewTicketEvent(domain.EventTicketCancelled, updated, reason, updated.UpdatedAt()))
	return updated, nil
}

func (uc *ProcessTicketUseCase) reportProgress(ctx context.Context, ticketID string, progress int) {
	if err := uc.repo.UpdateProgress(ctx, ticketID, progress); err != nil {
		uc.logger.Debug("ticket_progress_not_recorded", "ticket_id", ticketID, "progress", progress, "error", err)
	}
}

func (uc *ProcessTicketUseCase) track(ticketID string, cancel context.CancelFunc) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.inFlight[ticketID] = cancel
}

func (uc *ProcessTicketUseCase) untrack(ticketID string) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	delete(uc.inFlight, ticketID)
}

func failureReason(err error) string {
	var extractionErr *domain.ExtractionError
	switch {
	case errors.As(err, &extractionErr):
		return extractionErr.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "extraction timed out"
	default:
		return err.Error()
	}
}
