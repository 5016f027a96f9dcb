package httpadapter

import (
	"net/url"

	"github.com/oapi-codegen/runtime"
	"github.com/oapi-codegen/runtime/types"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
)

type listParams struct {
	Status []string
	Q      *string
	From   *types.Date
	To     *types.Date
	Sort   *string
	Order  *string
}

func bindListParams(query url.Values, withSort bool) (domain.TicketFilter, domain.TicketSort, error) {
	var p listParams
	bind := func(name string, explode bool, dest any) error {
		if err := runtime.BindQueryParameter("form", explode, false, name, query, dest); err != nil {
			return domain.WrapError(domain.ErrInvalidInput, "query parameter "+name, err)
		}
		return nil
	}
	for _, b := range []struct {
		name string
		dest any
	}{
		{"status", &p.Status},
		{"q", &p.Q},
		{"from", &p.From},
		{"to", &p.To},
	} {
		if err := bind(b.name, true, b.dest); err != nil {
			return domain.TicketFilter{}, domain.TicketSort{}, err
		}
	}

	filter := domain.TicketFilter{Search: deref(p.Q)}
	for _, raw := range p.Status {
		status, err := domain.ParseTicketStatus(raw)
		if err != nil {
			return domain.TicketFilter{}, domain.TicketSort{}, err
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if p.From != nil {
		filter.From = domain.DateOf(p.From.Time)
	}
	if p.To != nil {
		filter.To = domain.DateOf(p.To.Time)
	}
	if err := filter.Validate(); err != nil {
		return domain.TicketFilter{}, domain.TicketSort{}, err
	}

	if !withSort {
		return filter, domain.TicketSort{}, nil
	}
	if err := bind("sort", true, &p.Sort); err != nil {
		return domain.TicketFilter{}, domain.TicketSort{}, err
	}
	if err := bind("order", true, &p.Order); err != nil {
		return domain.TicketFilter{}, domain.TicketSort{}, err
	}
	sort, err := domain.ParseTicketSort(deref(p.Sort), deref(p.Order))
	if err != nil {
		return domain.TicketFilter{}, domain.TicketSort{}, err
	}
	return filter, sort, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
