package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
	"github.com/kirillkom/scale-ticket-service/internal/core/ports"
)

// ticketStore applies lifecycle mutations under the per-ticket lock and saves them with a
// version check.
type ticketStore struct {
	repo   ports.TicketRepository
	locker ports.TicketLocker
}

func (s ticketStore) mutate(
	ctx context.Context,
	ticketID, operation string,
	fn func(t *domain.Ticket, now time.Time) error,
) (*domain.Ticket, error) {
	release, err := s.locker.Acquire(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("%s: acquire ticket lock: %w", operation, err)
	}
	defer release()

	t, err := s.repo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch ticket: %w", operation, err)
	}
	expected := t.Version()
	if err := fn(t, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	if err := s.repo.Save(ctx, t, expected); err != nil {
		return nil, fmt.Errorf("%s: save ticket: %w", operation, err)
	}
	return t, nil
}

func publishEvent(ctx context.Context, logger *slog.Logger, events ports.EventPublisher, event domain.TicketEvent) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, event); err != nil {
		logger.Warn("ticket_event_publish_failed",
			"ticket_id", event.TicketID,
			"event", string(event.Type),
			"error", err,
		)
	}
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
