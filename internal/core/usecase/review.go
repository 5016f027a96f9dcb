package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
	"github.com/kirillkom/scale-ticket-service/internal/core/ports"
)

// VerificationRecorder counts clean and override verifications.
type VerificationRecorder interface {
	RecordVerification(override bool)
}

type ReviewTicketUseCase struct {
	store    ticketStore
	locker   ports.TicketLocker
	repo     ports.TicketRepository
	events   ports.EventPublisher
	logger   *slog.Logger
	recorder VerificationRecorder
}

func NewReviewTicketUseCase(
	repo ports.TicketRepository,
	locker ports.TicketLocker,
	events ports.EventPublisher,
	logger *slog.Logger,
) *ReviewTicketUseCase {
	return &ReviewTicketUseCase{
		store:  ticketStore{repo: repo, locker: locker},
		locker: locker,
		repo:   repo,
		events: events,
		logger: loggerOrDefault(logger),
	}
}

func (uc *ReviewTicketUseCase) WithRecorder(recorder VerificationRecorder) *ReviewTicketUseCase {
	uc.recorder = recorder
	return uc
}

// Verify records operator attestation. Verifying a mismatch_alert ticket is logged and evented
// as an override, distinct from a clean verification.
func (uc *ReviewTicketUseCase) Verify(ctx context.Context, ticketID, operator string) (*domain.Ticket, error) {
	var verification domain.Verification
	updated, err := uc.store.mutate(ctx, ticketID, "verify ticket", func(t *domain.Ticket, now time.Time) error {
		v, err := t.Verify(operator, now)
		verification = v
		return err
	})
	if err != nil {
		return nil, err
	}

	if uc.recorder != nil {
		uc.recorder.RecordVerification(verification.Override)
	}

	if verification.Override {
		uc.logger.Warn("ticket_verification_override",
			"ticket_id", ticketID,
			"ticket_number", updated.TicketNumber(),
			"operator", verification.Operator,
			"overridden_details", verification.OverriddenDetails,
		)
		event := domain.NewTicketEvent(domain.EventVerificationOverridden, updated, verification.OverriddenDetails, verification.VerifiedAt)
		event.Operator = verification.Operator
		publishEvent(ctx, uc.logger, uc.events, event)
		return updated, nil
	}

	uc.logger.Info("ticket_verified", "ticket_id", ticketID, "operator", verification.Operator)
	event := domain.NewTicketEvent(domain.EventTicketVerified, updated, "", verification.VerifiedAt)
	event.Operator = verification.Operator
	publishEvent(ctx, uc.logger, uc.events, event)
	return updated, nil
}

// Update applies an operator patch. Weight corrections on extracted tickets run through
// reconciliation again.
func (uc *ReviewTicketUseCase) Update(ctx context.Context, ticketID string, patch domain.TicketPatch) (*domain.Ticket, error) {
	var rec *domain.Reconciliation
	updated, err := uc.store.mutate(ctx, ticketID, "update ticket", func(t *domain.Ticket, now time.Time) error {
		r, err := t.ApplyPatch(patch, now)
		rec = r
		return err
	})
	if err != nil {
		return nil, err
	}

	if rec != nil {
		uc.logger.Info("ticket_weights_corrected",
			"ticket_id", ticketID,
			"status", updated.Status().String(),
			"has_mismatch", rec.HasMismatch,
		)
		publishEvent(ctx, uc.logger, uc.events, domain.NewTicketEvent(domain.EventTicketCorrected, updated, rec.Details, updated.UpdatedAt()))
	}
	return updated, nil
}

// Delete removes a ticket in any status.
func (uc *ReviewTicketUseCase) Delete(ctx context.Context, ticketID string) error {
	release, err := uc.locker.Acquire(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("delete ticket: acquire ticket lock: %w", err)
	}
	defer release()

	ticket, err := uc.repo.GetByID(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("delete ticket: fetch ticket: %w", err)
	}
	if err := uc.repo.Delete(ctx, ticketID); err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}

	uc.logger.Info("ticket_deleted", "ticket_id", ticketID, "status", ticket.Status().String())
	publishEvent(ctx, uc.logger, uc.events, domain.NewTicketEvent(domain.EventTicketDeleted, ticket, "", time.Now().UTC()))
	return nil
}
