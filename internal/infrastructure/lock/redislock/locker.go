package redislock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
)

const keyPrefix = "sts:ticket-lock:"

type lease interface {
	Release(ctx context.Context) error
}

type obtainer interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (lease, error)
}

type clientObtainer struct {
	client *redislock.Client
}

func (c clientObtainer) Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (lease, error) {
	lock, err := c.client.Obtain(ctx, key, ttl, opt)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// Locker serializes ticket transitions across processes with a Redis lease per ticket id.
type Locker struct {
	obtainer obtainer
	ttl      time.Duration
	retry    redislock.RetryStrategy
	logger   *slog.Logger
}

type Options struct {
	TTL         time.Duration
	RetryEvery  time.Duration
	MaxAttempts int
	Logger      *slog.Logger
}

func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func New(client redislock.RedisClient, opts Options) *Locker {
	return newLocker(clientObtainer{client: redislock.New(client)}, opts)
}

func newLocker(o obtainer, opts Options) *Locker {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.RetryEvery <= 0 {
		opts.RetryEvery = 50 * time.Millisecond
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 40
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Locker{
		obtainer: o,
		ttl:      opts.TTL,
		retry:    redislock.LimitRetry(redislock.LinearBackoff(opts.RetryEvery), opts.MaxAttempts),
		logger:   opts.Logger,
	}
}

func (l *Locker) Acquire(ctx context.Context, id string) (func(), error) {
	key := keyPrefix + id
	lock, err := l.obtainer.Obtain(ctx, key, l.ttl, &redislock.Options{RetryStrategy: l.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, domain.WrapError(domain.ErrConflict, "acquire ticket lock", fmt.Errorf("ticket %s is locked", id))
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.WrapError(domain.ErrConflict, "acquire ticket lock", err)
		}
		return nil, domain.WrapError(domain.ErrTemporary, "acquire ticket lock", err)
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("ticket_lock_release_failed", "ticket_id", id, "error", err)
		}
	}, nil
}
