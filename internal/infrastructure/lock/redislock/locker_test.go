package redislock

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bsm/redislock"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
)

type leaseFake struct {
	released int
	err      error
}

func (l *leaseFake) Release(context.Context) error {
	l.released++
	return l.err
}

type obtainerFake struct {
	key   string
	ttl   time.Duration
	opts  *redislock.Options
	lease *leaseFake
	err   error
}

func (o *obtainerFake) Obtain(_ context.Context, key string, ttl time.Duration, opt *redislock.Options) (lease, error) {
	o.key, o.ttl, o.opts = key, ttl, opt
	if o.err != nil {
		return nil, o.err
	}
	return o.lease, nil
}

func TestAcquireObtainsPrefixedLeaseAndReleases(t *testing.T) {
	fake := &obtainerFake{lease: &leaseFake{}}
	l := newLocker(fake, Options{TTL: 5 * time.Second})

	release, err := l.Acquire(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if fake.key != "sts:ticket-lock:t-1" || fake.ttl != 5*time.Second {
		t.Fatalf("unexpected obtain call key=%s ttl=%s", fake.key, fake.ttl)
	}
	if fake.opts == nil || fake.opts.RetryStrategy == nil {
		t.Fatalf("expected retry strategy")
	}
	release()
	if fake.lease.released != 1 {
		t.Fatalf("expected release, got %d", fake.lease.released)
	}
}

func TestAcquireNotObtainedIsConflict(t *testing.T) {
	l := newLocker(&obtainerFake{err: redislock.ErrNotObtained}, Options{})
	_, err := l.Acquire(context.Background(), "t-1")
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAcquireRedisFailureIsTemporary(t *testing.T) {
	l := newLocker(&obtainerFake{err: errors.New("dial tcp: connection refused")}, Options{})
	_, err := l.Acquire(context.Background(), "t-1")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary, got %v", err)
	}
}

func TestReleaseFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	fake := &obtainerFake{lease: &leaseFake{err: errors.New("timeout")}}
	l := newLocker(fake, Options{Logger: slog.New(slog.NewJSONHandler(&buf, nil))})

	release, err := l.Acquire(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	release()
	if !strings.Contains(buf.String(), "ticket_lock_release_failed") {
		t.Fatalf("expected release failure log, got %s", buf.String())
	}
}
