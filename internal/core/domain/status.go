package domain

import (
	"fmt"
	"strings"
)

type TicketStatus string

const (
	StatusPending       TicketStatus = "pending"
	StatusProcessing    TicketStatus = "processing"
	StatusOCRComplete   TicketStatus = "ocr_complete"
	StatusMismatchAlert TicketStatus = "mismatch_alert"
	StatusFailed        TicketStatus = "failed"
	StatusVerified      TicketStatus = "verified"
)

// ocr_complete and mismatch_alert flip into each other only when corrected weights are reconciled again.
var statusTransitions = map[TicketStatus][]TicketStatus{
	StatusPending:       {StatusProcessing},
	StatusProcessing:    {StatusOCRComplete, StatusMismatchAlert, StatusFailed},
	StatusOCRComplete:   {StatusVerified, StatusMismatchAlert},
	StatusMismatchAlert: {StatusVerified, StatusOCRComplete},
	StatusFailed:        {},
	StatusVerified:      {},
}

func AllStatuses() []TicketStatus {
	return []TicketStatus{
		StatusPending,
		StatusProcessing,
		StatusOCRComplete,
		StatusMismatchAlert,
		StatusFailed,
		StatusVerified,
	}
}

func ParseTicketStatus(raw string) (TicketStatus, error) {
	status := TicketStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.IsValid() {
		return "", WrapError(ErrInvalidInput, "parse ticket status", fmt.Errorf("unknown status %q", raw))
	}
	return status, nil
}

func (s TicketStatus) String() string {
	return string(s)
}

func (s TicketStatus) IsValid() bool {
	_, ok := statusTransitions[s]
	return ok
}

func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsExtracted reports whether OCR finished successfully for the ticket at some point.
func (s TicketStatus) IsExtracted() bool {
	return s == StatusOCRComplete || s == StatusMismatchAlert || s == StatusVerified
}

// IsAwaitingReview reports whether an operator can verify the ticket.
func (s TicketStatus) IsAwaitingReview() bool {
	return s == StatusOCRComplete || s == StatusMismatchAlert
}
