package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
)

func TestLogPublisherWritesEventAttributes(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := p.Publish(context.Background(), domain.TicketEvent{
		Type:       domain.EventVerificationOverridden,
		TicketID:   "t-1",
		Status:     domain.StatusVerified,
		Operator:   "ops",
		Detail:     "differs by 0.10t",
		OccurredAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"msg":"ticket_event"`, `"event":"ticket.verification_overridden"`, `"operator":"ops"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
	if strings.Contains(out, "ticket_number") {
		t.Fatalf("empty ticket number must be omitted: %s", out)
	}
}

type publisherFunc func(context.Context, domain.TicketEvent) error

func (f publisherFunc) Publish(ctx context.Context, e domain.TicketEvent) error { return f(ctx, e) }

func TestFanoutDeliversToAllAndReturnsFirstError(t *testing.T) {
	calls := 0
	failing := publisherFunc(func(context.Context, domain.TicketEvent) error {
		calls++
		return errors.New("broker down")
	})
	ok := publisherFunc(func(context.Context, domain.TicketEvent) error {
		calls++
		return nil
	})

	err := Fanout{failing, nil, ok}.Publish(context.Background(), domain.TicketEvent{Type: domain.EventTicketDeleted})
	if err == nil || err.Error() != "broker down" {
		t.Fatalf("expected broker error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected both publishers called, got %d", calls)
	}
}
