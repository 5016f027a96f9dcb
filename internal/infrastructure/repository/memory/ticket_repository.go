package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
)

// TicketRepository keeps tickets in process memory in insertion order.
type TicketRepository struct {
	mu      sync.RWMutex
	order   []string
	tickets map[string]domain.TicketSnapshot
}

func NewTicketRepository() *TicketRepository {
	return &TicketRepository{tickets: make(map[string]domain.TicketSnapshot)}
}

func (r *TicketRepository) Create(_ context.Context, t *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[t.ID()]; ok {
		return domain.WrapError(domain.ErrConflict, "create ticket", fmt.Errorf("id=%s already exists", t.ID()))
	}
	r.order = append(r.order, t.ID())
	r.tickets[t.ID()] = t.Snapshot()
	return nil
}

func (r *TicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	s, ok := r.tickets[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.WrapError(domain.ErrTicketNotFound, "get ticket", fmt.Errorf("id=%s", id))
	}
	return domain.RestoreTicket(s)
}

func (r *TicketRepository) Save(_ context.Context, t *domain.Ticket, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.tickets[t.ID()]
	if !ok {
		return domain.WrapError(domain.ErrTicketNotFound, "save ticket", fmt.Errorf("id=%s", t.ID()))
	}
	if current.Version != expectedVersion {
		return domain.WrapError(
			domain.ErrConflict,
			"save ticket",
			fmt.Errorf("id=%s expected version %d, stored %d", t.ID(), expectedVersion, current.Version),
		)
	}
	r.tickets[t.ID()] = t.Snapshot()
	return nil
}

func (r *TicketRepository) UpdateProgress(_ context.Context, id string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.tickets[id]
	if !ok {
		return domain.WrapError(domain.ErrTicketNotFound, "update ticket progress", fmt.Errorf("id=%s", id))
	}
	t, err := domain.RestoreTicket(s)
	if err != nil {
		return err
	}
	if err := t.SetProgress(progress); err != nil {
		return domain.WrapError(domain.ErrConflict, "update ticket progress", err)
	}
	r.tickets[id] = t.Snapshot()
	return nil
}

func (r *TicketRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[id]; !ok {
		return domain.WrapError(domain.ErrTicketNotFound, "delete ticket", fmt.Errorf("id=%s", id))
	}
	delete(r.tickets, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *TicketRepository) List(_ context.Context, filter domain.TicketFilter) ([]*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Ticket, 0, len(r.order))
	for _, id := range r.order {
		t, err := domain.RestoreTicket(r.tickets[id])
		if err != nil {
			return nil, err
		}
		if filter.Matches(t) {
			out = append(out, t)
		}
	}
	return out, nil
}
