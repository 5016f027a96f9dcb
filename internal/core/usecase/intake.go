package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
	"github.com/kirillkom/scale-ticket-service/internal/core/ports"
)

type IntakeTicketUseCase struct {
	store      ticketStore
	repo       ports.TicketRepository
	storage    ports.ObjectStorage
	queue      ports.MessageQueue
	events     ports.EventPublisher
	logger     *slog.Logger
	autoSubmit bool
}

func NewIntakeTicketUseCase(
	repo ports.TicketRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	locker ports.TicketLocker,
	events ports.EventPublisher,
	logger *slog.Logger,
	autoSubmit bool,
) *IntakeTicketUseCase {
	return &IntakeTicketUseCase{
		store:      ticketStore{repo: repo, locker: locker},
		repo:       repo,
		storage:    storage,
		queue:      queue,
		events:     events,
		logger:     loggerOrDefault(logger),
		autoSubmit: autoSubmit,
	}
}

// Upload stores the image and creates a pending ticket. The ticket is submitted right away
// when the metadata asks for it or auto-submit is enabled.
func (uc *IntakeTicketUseCase) Upload(
	ctx context.Context,
	meta domain.UploadMetadata,
	body io.Reader,
) (*domain.Ticket, error) {
	contentType, err := resolveContentType(meta.ContentType, meta.Filename)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(meta.Filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	ticket, err := domain.NewTicket(domain.NewTicketParams{
		ID:         id,
		Driver:     meta.Driver,
		LoadID:     meta.LoadID,
		TicketDate: meta.TicketDate,
		Image:      domain.ImageRef{Key: storageKey, ContentType: contentType},
	}, now)
	if err != nil {
		return nil, err
	}
	if err := uc.repo.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	uc.logger.Info("ticket_uploaded", "ticket_id", id, "content_type", contentType, "storage_key", storageKey)

	if meta.Submit || uc.autoSubmit {
		return uc.Submit(ctx, id)
	}
	return ticket, nil
}

// Submit moves a pending ticket to processing and enqueues its extraction job. When the job
// cannot be enqueued the ticket is failed with the cause as reason.
func (uc *IntakeTicketUseCase) Submit(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := uc.store.mutate(ctx, ticketID, "submit ticket", func(t *domain.Ticket, now time.Time) error {
		return t.Submit(now)
	})
	if err != nil {
		return nil, err
	}

	job := domain.ExtractionJob{TicketID: ticket.ID(), SubmittedAt: ticket.UpdatedAt()}
	if err := uc.queue.PublishExtractionJob(ctx, job); err != nil {
		publishErr := fmt.Errorf("publish extraction job: %w", err)
		if _, failErr := uc.store.mutate(ctx, ticketID, "fail ticket", func(t *domain.Ticket, now time.Time) error {
			return t.Fail(publishErr.Error(), now)
		}); failErr != nil {
			return nil, fmt.Errorf("%w; mark failed status: %v", publishErr, failErr)
		}
		return nil, publishErr
	}

	publishEvent(ctx, uc.logger, uc.events, domain.NewTicketEvent(domain.EventTicketSubmitted, ticket, "", job.SubmittedAt))
	return ticket, nil
}

// Resubmit creates a new ticket from a failed one, sharing its image and metadata, and submits it.
// The failed ticket is left untouched.
func (uc *IntakeTicketUseCase) Resubmit(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	previous, err := uc.repo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("resubmit ticket: fetch ticket: %w", err)
	}
	if previous.Status() != domain.StatusFailed {
		return nil, &domain.TransitionError{TicketID: ticketID, From: previous.Status(), Action: "resubmit"}
	}

	ticket, err := domain.NewTicket(domain.NewTicketParams{
		ID:              uuid.NewString(),
		TicketNumber:    previous.TicketNumber(),
		Location:        previous.Location(),
		Commodity:       previous.Commodity(),
		Driver:          previous.Driver(),
		LoadID:          previous.LoadID(),
		TicketDate:      previous.TicketDate(),
		Image:           previous.Image(),
		ResubmittedFrom: previous.ID(),
	}, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := uc.repo.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	uc.logger.Info("ticket_resubmitted", "ticket_id", ticket.ID(), "resubmitted_from", previous.ID())
	return uc.Submit(ctx, ticket.ID())
}

func resolveContentType(contentType, filename string) (string, error) {
	ct := strings.TrimSpace(contentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	}
	if media, _, err := mime.ParseMediaType(ct); err == nil {
		ct = media
	}
	if strings.HasPrefix(ct, "image/") || ct == "application/pdf" {
		return ct, nil
	}
	return "", domain.WrapError(
		domain.ErrInvalidInput,
		"upload ticket",
		errors.New("ticket must be an image or a PDF"),
	)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "_" {
		return "ticket.bin"
	}
	return base
}
