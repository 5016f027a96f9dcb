package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
)

type ticketRepoFake struct {
	mu        sync.Mutex
	order     []string
	snapshots map[string]domain.TicketSnapshot
	saveErr   error
	listErr   error
	progress  []int
}

func newTicketRepoFake() *ticketRepoFake {
	return &ticketRepoFake{snapshots: make(map[string]domain.TicketSnapshot)}
}

func (f *ticketRepoFake) Create(_ context.Context, t *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.snapshots[t.ID()]; ok {
		return domain.WrapError(domain.ErrConflict, "create ticket", errors.New("duplicate id"))
	}
	f.order = append(f.order, t.ID())
	f.snapshots[t.ID()] = t.Snapshot()
	return nil
}

func (f *ticketRepoFake) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snapshots[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrTicketNotFound, "get ticket", errors.New(id))
	}
	return domain.RestoreTicket(s)
}

func (f *ticketRepoFake) Save(_ context.Context, t *domain.Ticket, expectedVersion int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	current, ok := f.snapshots[t.ID()]
	if !ok {
		return domain.WrapError(domain.ErrTicketNotFound, "save ticket", errors.New(t.ID()))
	}
	if current.Version != expectedVersion {
		return domain.WrapError(domain.ErrConflict, "save ticket", errors.New("version changed"))
	}
	f.snapshots[t.ID()] = t.Snapshot()
	return nil
}

func (f *ticketRepoFake) UpdateProgress(_ context.Context, id string, progress int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snapshots[id]
	if !ok {
		return domain.ErrTicketNotFound
	}
	t, err := domain.RestoreTicket(s)
	if err != nil {
		return err
	}
	if err := t.SetProgress(progress); err != nil {
		return err
	}
	f.progress = append(f.progress, progress)
	f.snapshots[id] = t.Snapshot()
	return nil
}

func (f *ticketRepoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.snapshots[id]; !ok {
		return domain.WrapError(domain.ErrTicketNotFound, "delete ticket", errors.New(id))
	}
	delete(f.snapshots, id)
	for i, existing := range f.order {
		if existing == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *ticketRepoFake) List(_ context.Context, _ domain.TicketFilter) ([]*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*domain.Ticket, 0, len(f.order))
	for _, id := range f.order {
		t, err := domain.RestoreTicket(f.snapshots[id])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// put stores a ticket directly, bypassing use cases.
func (f *ticketRepoFake) put(t *domain.Ticket) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.snapshots[t.ID()]; !ok {
		f.order = append(f.order, t.ID())
	}
	f.snapshots[t.ID()] = t.Snapshot()
}

func (f *ticketRepoFake) status(id string) domain.TicketStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots[id].Status
}

type lockerFake struct {
	mu       sync.Mutex
	acquired int
	err      error
}

func (f *lockerFake) Acquire(context.Context, string) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.acquired++
	return f.mu.Unlock, nil
}

type storageFake struct {
	savedKey  string
	savedBody string
	err       error
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.savedKey = key
	f.savedBody = string(raw)
	return nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.savedBody)), nil
}

type queueFake struct {
	jobs []domain.ExtractionJob
	err  error
}

func (f *queueFake) PublishExtractionJob(_ context.Context, job domain.ExtractionJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *queueFake) SubscribeExtractionJobs(context.Context, func(context.Context, domain.ExtractionJob) error) error {
	return errors.New("not implemented")
}

type eventsFake struct {
	mu     sync.Mutex
	events []domain.TicketEvent
	err    error
}

func (f *eventsFake) Publish(_ context.Context, event domain.TicketEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *eventsFake) types() []domain.TicketEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TicketEventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

type ocrFake struct {
	extraction domain.Extraction
	err        error
	started    chan struct{}
	block      bool
}

func (f *ocrFake) Extract(ctx context.Context, _ domain.ImageRef) (domain.Extraction, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.block {
		<-ctx.Done()
		return domain.Extraction{}, ctx.Err()
	}
	if f.err != nil {
		return domain.Extraction{}, f.err
	}
	return f.extraction, nil
}

func ticketExtraction(gross, tare, net string) domain.Extraction {
	return domain.Extraction{Fields: map[domain.FieldName]domain.OCRField[string]{
		domain.FieldTicketNumber: {Value: "ST-1042", Confidence: 98},
		domain.FieldGrossWeight:  {Value: gross, Confidence: 95},
		domain.FieldTareWeight:   {Value: tare, Confidence: 94},
		domain.FieldNetWeight:    {Value: net, Confidence: 92},
		domain.FieldLocation:     {Value: "North Elevator", Confidence: 90},
		domain.FieldDate:         {Value: "2026-03-12", Confidence: 88},
		domain.FieldCommodity:    {Value: "Corn", Confidence: 96},
	}}
}

type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger() (*slog.Logger, *logBuffer) {
	buf := &logBuffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// seedProcessingTicket stores a ticket already moved to processing.
func seedProcessingTicket(repo *ticketRepoFake, id string) *domain.Ticket {
	t, err := domain.NewTicket(domain.NewTicketParams{
		ID:     id,
		Driver: "Dana Ortiz",
		Image:  domain.ImageRef{Key: id + "_ticket.jpg", ContentType: "image/jpeg"},
	}, testNow)
	if err != nil {
		panic(err)
	}
	if err := t.Submit(testNow); err != nil {
		panic(err)
	}
	repo.put(t)
	return t
}
