package bootstrap

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/kirillkom/scale-ticket-service/internal/config"
	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
)

func inMemoryConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		StoreBackend:          "memory",
		QueueBackend:          "inproc",
		InprocWorkers:         1,
		InprocQueueSize:       4,
		StorageBackend:        "localfs",
		StoragePath:           t.TempDir(),
		OCRServiceURL:         "http://127.0.0.1:1",
		OCRTimeoutSeconds:     1,
		OCRRetryMaxAttempts:   1,
		ProcessTimeoutSeconds: 5,
		DriverScoreMismatch:   85,
		DriverScoreClean:      95,
	}
}

func TestNewWiresInMemoryStack(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	app, err := New(context.Background(), inMemoryConfig(t), logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if app.InprocQueue == nil {
		t.Fatalf("expected in-process queue for inproc backend")
	}

	ctx := context.Background()
	ticket, err := app.IntakeUC.Upload(ctx, domain.UploadMetadata{
		Filename:    "ticket.jpg",
		ContentType: "image/jpeg",
		Driver:      "Dana Ortiz",
	}, bytes.NewReader([]byte("jpeg-bytes")))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	submitted, err := app.IntakeUC.Submit(ctx, ticket.ID())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if submitted.Status() != domain.StatusProcessing {
		t.Fatalf("expected processing, got %s", submitted.Status())
	}
	if app.InprocQueue.Pending() != 1 {
		t.Fatalf("expected the extraction job buffered, got %d", app.InprocQueue.Pending())
	}

	tickets, err := app.QueryUC.Query(ctx, domain.TicketFilter{Search: "dana"}, domain.TicketSort{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(tickets) != 1 || tickets[0].ID() != ticket.ID() {
		t.Fatalf("expected uploaded ticket in query, got %d", len(tickets))
	}
}

func TestNewRejectsMissingOCRURL(t *testing.T) {
	cfg := inMemoryConfig(t)
	cfg.OCRServiceURL = ""

	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error without OCR service url")
	}
}

func TestCloseRunsInReverseOrder(t *testing.T) {
	var order []int
	app := &App{}
	app.closers = append(app.closers, func() { order = append(order, 1) }, func() { order = append(order, 2) })

	app.Close()
	app.Close()
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("unexpected close order %v", order)
	}
}

