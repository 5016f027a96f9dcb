package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrExtractionFailed  = errors.New("extraction failed")
	ErrConflict          = errors.New("concurrent modification")
	ErrTemporary         = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// TransitionError reports a lifecycle action that is not legal from the ticket's current status.
type TransitionError struct {
	TicketID string
	From     TicketStatus
	Action   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s ticket %s in status %s", e.Action, e.TicketID, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// ExtractionError describes why an OCR result could not be accepted.
type ExtractionError struct {
	Field  FieldName
	Reason string
}

func (e *ExtractionError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("field %s: %s", e.Field, e.Reason)
}

func (e *ExtractionError) Unwrap() error {
	return ErrExtractionFailed
}
