package domain

import "time"

type TicketEventType string

const (
	EventTicketSubmitted        TicketEventType = "ticket.submitted"
	EventExtractionCompleted    TicketEventType = "ticket.extraction_completed"
	EventMismatchDetected       TicketEventType = "ticket.mismatch_detected"
	EventExtractionFailed       TicketEventType = "ticket.extraction_failed"
	EventTicketVerified         TicketEventType = "ticket.verified"
	EventVerificationOverridden TicketEventType = "ticket.verification_overridden"
	EventTicketCorrected        TicketEventType = "ticket.corrected"
	EventTicketCancelled        TicketEventType = "ticket.cancelled"
	EventTicketDeleted          TicketEventType = "ticket.deleted"
)

// TicketEvent is published after a ticket change has been persisted.
type TicketEvent struct {
	Type         TicketEventType `json:"type"`
	TicketID     string          `json:"ticket_id"`
	TicketNumber string          `json:"ticket_number,omitempty"`
	Status       TicketStatus    `json:"status,omitempty"`
	Detail       string          `json:"detail,omitempty"`
	Operator     string          `json:"operator,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

func NewTicketEvent(eventType TicketEventType, t *Ticket, detail string, now time.Time) TicketEvent {
	return TicketEvent{
		Type:         eventType,
		TicketID:     t.ID(),
		TicketNumber: t.TicketNumber(),
		Status:       t.Status(),
		Detail:       detail,
		OccurredAt:   now.UTC(),
	}
}

// ExtractionJob is the queue payload that asks a worker to run OCR for a ticket.
type ExtractionJob struct {
	TicketID    string    `json:"ticket_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}
