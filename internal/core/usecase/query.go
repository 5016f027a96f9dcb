package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
	"github.com/kirillkom/scale-ticket-service/internal/core/ports"
)

type QueryTicketsUseCase struct {
	repo   ports.TicketRepository
	policy domain.DriverAccuracyPolicy
}

// NewQueryTicketsUseCase builds the read model. A nil policy uses the default driver scores.
func NewQueryTicketsUseCase(repo ports.TicketRepository, policy domain.DriverAccuracyPolicy) *QueryTicketsUseCase {
	if policy == nil {
		policy = domain.DefaultDriverAccuracyPolicy()
	}
	return &QueryTicketsUseCase{repo: repo, policy: policy}
}

func (uc *QueryTicketsUseCase) GetByID(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := uc.repo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("fetch ticket by id: %w", err)
	}
	return ticket, nil
}

func (uc *QueryTicketsUseCase) Query(
	ctx context.Context,
	filter domain.TicketFilter,
	sort domain.TicketSort,
) ([]*domain.Ticket, error) {
	tickets, err := uc.list(ctx, filter)
	if err != nil {
		return nil, err
	}
	domain.SortTickets(tickets, sort)
	return tickets, nil
}

func (uc *QueryTicketsUseCase) Aggregate(ctx context.Context, filter domain.TicketFilter) (domain.Analytics, error) {
	tickets, err := uc.list(ctx, filter)
	if err != nil {
		return domain.Analytics{}, err
	}
	return domain.Aggregate(tickets, uc.policy), nil
}

func (uc *QueryTicketsUseCase) list(ctx context.Context, filter domain.TicketFilter) ([]*domain.Ticket, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	tickets, err := uc.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return domain.FilterTickets(tickets, filter), nil
}
