package memlock

import (
	"context"
	"sync"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
)

type slot struct {
	sem  chan struct{}
	refs int
}

// Locker serializes work per ticket id inside one process.
type Locker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

func New() *Locker {
	return &Locker{slots: make(map[string]*slot)}
}

func (l *Locker) Acquire(ctx context.Context, id string) (func(), error) {
	s := l.ref(id)
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(id)
		return nil, domain.WrapError(domain.ErrConflict, "acquire ticket lock", ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.sem
			l.unref(id)
		})
	}, nil
}

func (l *Locker) ref(id string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[id]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		l.slots[id] = s
	}
	s.refs++
	return s
}

func (l *Locker) unref(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slots[id]
	s.refs--
	if s.refs == 0 {
		delete(l.slots, id)
	}
}

func (l *Locker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
