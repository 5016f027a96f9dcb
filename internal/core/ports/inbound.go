package ports

import (
	"context"
	"io"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
)

// TicketIntake is the inbound contract for ticket upload and submission.
type TicketIntake interface {
	Upload(ctx context.Context, meta domain.UploadMetadata, body io.Reader) (*domain.Ticket, error)
	Submit(ctx context.Context, ticketID string) (*domain.Ticket, error)
	Resubmit(ctx context.Context, ticketID string) (*domain.Ticket, error)
}

// TicketProcessor runs OCR extraction and reconciliation for submitted tickets.
type TicketProcessor interface {
	ProcessByID(ctx context.Context, ticketID string) error
	Cancel(ctx context.Context, ticketID, reason string) (*domain.Ticket, error)
}

// TicketReviewer is the operator contract for verification, correction and deletion.
type TicketReviewer interface {
	Verify(ctx context.Context, ticketID, operator string) (*domain.Ticket, error)
	Update(ctx context.Context, ticketID string, patch domain.TicketPatch) (*domain.Ticket, error)
	Delete(ctx context.Context, ticketID string) error
}

// TicketReader is the inbound read model.
type TicketReader interface {
	GetByID(ctx context.Context, ticketID string) (*domain.Ticket, error)
	Query(ctx context.Context, filter domain.TicketFilter, sort domain.TicketSort) ([]*domain.Ticket, error)
	Aggregate(ctx context.Context, filter domain.TicketFilter) (domain.Analytics, error)
}

// TicketExporter streams query results as spreadsheets. It returns the number of rows written.
type TicketExporter interface {
	ExportCSV(ctx context.Context, w io.Writer, filter domain.TicketFilter, sort domain.TicketSort) (int, error)
	ExportXLSX(ctx context.Context, w io.Writer, filter domain.TicketFilter, sort domain.TicketSort) (int, error)
}
