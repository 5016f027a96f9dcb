package inproc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
)

func TestWorkersProcessPublishedJobs(t *testing.T) {
	q := New(nil, WithWorkers(2), WithQueueSize(8))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := map[string]bool{}
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		_ = q.SubscribeExtractionJobs(ctx, func(_ context.Context, job domain.ExtractionJob) error {
			mu.Lock()
			seen[job.TicketID] = true
			mu.Unlock()
			wg.Done()
			return nil
		})
	}()

	for _, id := range []string{"a", "b", "c"} {
		if err := q.PublishExtractionJob(context.Background(), domain.ExtractionJob{TicketID: id}); err != nil {
			t.Fatalf("PublishExtractionJob() error = %v", err)
		}
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("expected 3 jobs handled, got %v", seen)
	}
}

func TestPublishOnFullQueueHonoursContext(t *testing.T) {
	q := New(nil, WithQueueSize(1))
	if err := q.PublishExtractionJob(context.Background(), domain.ExtractionJob{TicketID: "a"}); err != nil {
		t.Fatalf("PublishExtractionJob() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.PublishExtractionJob(ctx, domain.ExtractionJob{TicketID: "b"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error on full queue, got %v", err)
	}
}

func TestShutdownRejectsNewJobsAndDrainsBuffered(t *testing.T) {
	q := New(nil, WithWorkers(1), WithQueueSize(4))
	for _, id := range []string{"a", "b"} {
		if err := q.PublishExtractionJob(context.Background(), domain.ExtractionJob{TicketID: id}); err != nil {
			t.Fatalf("PublishExtractionJob() error = %v", err)
		}
	}
	q.Shutdown()

	if err := q.PublishExtractionJob(context.Background(), domain.ExtractionJob{TicketID: "c"}); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error after shutdown, got %v", err)
	}

	handled := 0
	done := make(chan struct{})
	go func() {
		_ = q.SubscribeExtractionJobs(context.Background(), func(context.Context, domain.ExtractionJob) error {
			handled++
			return nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("workers did not stop after draining")
	}
	if handled != 2 || q.Pending() != 0 {
		t.Fatalf("expected 2 drained jobs, got %d (pending %d)", handled, q.Pending())
	}
}

func TestHandlerReceivesJobTimeout(t *testing.T) {
	q := New(nil, WithWorkers(1), WithProcessTimeout(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deadlines := make(chan bool, 1)
	go func() {
		_ = q.SubscribeExtractionJobs(ctx, func(jobCtx context.Context, _ domain.ExtractionJob) error {
			_, ok := jobCtx.Deadline()
			deadlines <- ok
			return nil
		})
	}()
	_ = q.PublishExtractionJob(context.Background(), domain.ExtractionJob{TicketID: "a"})

	select {
	case ok := <-deadlines:
		if !ok {
			t.Fatalf("expected job context with deadline")
		}
	case <-time.After(time.Second):
		t.Fatalf("job was not handled")
	}
}
