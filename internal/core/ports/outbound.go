package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
)

// TicketRepository persists tickets. List returns tickets in insertion order.
// Save writes t only when the stored version still equals expectedVersion and
// returns domain.ErrConflict otherwise.
type TicketRepository interface {
	Create(ctx context.Context, t *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	Save(ctx context.Context, t *domain.Ticket, expectedVersion int) error
	UpdateProgress(ctx context.Context, id string, progress int) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter domain.TicketFilter) ([]*domain.Ticket, error)
}

// ObjectStorage stores ticket images.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes extraction jobs.
type MessageQueue interface {
	PublishExtractionJob(ctx context.Context, job domain.ExtractionJob) error
	SubscribeExtractionJobs(ctx context.Context, handler func(context.Context, domain.ExtractionJob) error) error
}

// OCRExtractor reads the seven ticket fields from a stored image.
type OCRExtractor interface {
	Extract(ctx context.Context, image domain.ImageRef) (domain.Extraction, error)
}

// TicketLocker serializes transitions of a single ticket. The returned func releases the lock.
type TicketLocker interface {
	Acquire(ctx context.Context, ticketID string) (func(), error)
}

// EventPublisher announces persisted ticket changes.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.TicketEvent) error
}

// ExtractionObserver receives extraction outcomes for metrics.
type ExtractionObserver interface {
	StartExtraction()
	FinishExtraction(outcome string, duration time.Duration)
	ObserveQueueLag(lag time.Duration)
}
