package events

import (
	"context"
	"log/slog"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
	"github.com/kirillkom/scale-ticket-service/internal/core/ports"
)

// LogPublisher records ticket events in the structured log when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event domain.TicketEvent) error {
	attrs := []slog.Attr{
		slog.String("event", string(event.Type)),
		slog.String("ticket_id", event.TicketID),
		slog.String("status", string(event.Status)),
		slog.Time("occurred_at", event.OccurredAt),
	}
	if event.TicketNumber != "" {
		attrs = append(attrs, slog.String("ticket_number", event.TicketNumber))
	}
	if event.Operator != "" {
		attrs = append(attrs, slog.String("operator", event.Operator))
	}
	if event.Detail != "" {
		attrs = append(attrs, slog.String("detail", event.Detail))
	}
	p.logger.LogAttrs(ctx, slog.LevelInfo, "ticket_event", attrs...)
	return nil
}

// Fanout delivers each event to every publisher and returns the first error.
type Fanout []ports.EventPublisher

func (f Fanout) Publish(ctx context.Context, event domain.TicketEvent) error {
	var first error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
