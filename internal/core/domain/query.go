package domain

import (
	"fmt"
	"sort"
	"strings"
)

type SortKey string

const (
	SortByDate       SortKey = "date"
	SortByWeight     SortKey = "weight"
	SortByStatus     SortKey = "status"
	SortByConfidence SortKey = "confidence"
	SortByDriver     SortKey = "driver"
)

type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// TicketSort selects the ordering of a query. A zero value keeps store insertion order.
type TicketSort struct {
	Key       SortKey
	Direction SortDirection
}

func ParseTicketSort(key, direction string) (TicketSort, error) {
	out := TicketSort{
		Key:       SortKey(strings.ToLower(strings.TrimSpace(key))),
		Direction: SortDirection(strings.ToLower(strings.TrimSpace(direction))),
	}
	switch out.Key {
	case "", SortByDate, SortByWeight, SortByStatus, SortByConfidence, SortByDriver:
	default:
		return TicketSort{}, WrapError(ErrInvalidInput, "parse sort", fmt.Errorf("unknown sort key %q", key))
	}
	switch out.Direction {
	case "":
		out.Direction = SortAscending
	case SortAscending, SortDescending:
	default:
		return TicketSort{}, WrapError(ErrInvalidInput, "parse sort", fmt.Errorf("unknown sort direction %q", direction))
	}
	return out, nil
}

// TicketFilter is conjunctive; zero-valued criteria match everything.
type TicketFilter struct {
	Statuses []TicketStatus
	Search   string
	From     Date
	To       Date
}

func (f TicketFilter) Validate() error {
	for _, s := range f.Statuses {
		if !s.IsValid() {
			return WrapError(ErrInvalidInput, "ticket filter", fmt.Errorf("unknown status %q", s))
		}
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return WrapError(ErrInvalidInput, "ticket filter", fmt.Errorf("from %s is after to %s", f.From, f.To))
	}
	return nil
}

func (f TicketFilter) Matches(t *Ticket) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status()) {
		return false
	}
	if needle := strings.ToLower(strings.TrimSpace(f.Search)); needle != "" {
		haystack := []string{t.TicketNumber(), t.Driver(), t.Location(), t.Commodity()}
		found := false
		for _, h := range haystack {
			if strings.Contains(strings.ToLower(h), needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	date := t.TicketDate()
	if !f.From.IsZero() && (date.IsZero() || date.Before(f.From)) {
		return false
	}
	if !f.To.IsZero() && (date.IsZero() || date.After(f.To)) {
		return false
	}
	return true
}

func containsStatus(statuses []TicketStatus, s TicketStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// FilterTickets keeps the input order.
func FilterTickets(tickets []*Ticket, f TicketFilter) []*Ticket {
	out := make([]*Ticket, 0, len(tickets))
	for _, t := range tickets {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}

// SortTickets orders tickets in place. Sorting is stable in both directions.
func SortTickets(tickets []*Ticket, s TicketSort) {
	less := lessFor(s.Key)
	if less == nil {
		return
	}
	if s.Direction == SortDescending {
		sort.SliceStable(tickets, func(i, j int) bool { return less(tickets[j], tickets[i]) })
		return
	}
	sort.SliceStable(tickets, func(i, j int) bool { return less(tickets[i], tickets[j]) })
}

func lessFor(key SortKey) func(a, b *Ticket) bool {
	switch key {
	case SortByDate:
		return func(a, b *Ticket) bool { return a.TicketDate().Before(b.TicketDate()) }
	case SortByWeight:
		return func(a, b *Ticket) bool { return a.NetWeight() < b.NetWeight() }
	case SortByStatus:
		return func(a, b *Ticket) bool { return a.Status() < b.Status() }
	case SortByConfidence:
		return func(a, b *Ticket) bool { return a.Confidence() < b.Confidence() }
	case SortByDriver:
		return func(a, b *Ticket) bool { return a.Driver() < b.Driver() }
	default:
		return nil
	}
}

// QueryTickets filters then sorts a ticket sequence given in store insertion order.
func QueryTickets(tickets []*Ticket, f TicketFilter, s TicketSort) []*Ticket {
	out := FilterTickets(tickets, f)
	SortTickets(out, s)
	return out
}
