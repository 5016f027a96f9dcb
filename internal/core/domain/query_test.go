package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restored(t *testing.T, s TicketSnapshot) *Ticket {
	t.Helper()
	if s.Image.Key == "" {
		s.Image = ImageRef{Key: s.ID + ".jpg", ContentType: "image/jpeg"}
	}
	ticket, err := RestoreTicket(s)
	require.NoError(t, err)
	return ticket
}

func ids(tickets []*Ticket) []string {
	out := make([]string, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, t.ID())
	}
	return out
}

func querySample(t *testing.T) []*Ticket {
	return []*Ticket{
		restored(t, TicketSnapshot{ID: "a", TicketNumber: "ST-100", Driver: "Maria Lopez", Location: "North Elevator", Commodity: "Corn", TicketDate: NewDate(2026, time.March, 1), NetWeight: 25.3, Status: StatusVerified}),
		restored(t, TicketSnapshot{ID: "b", TicketNumber: "ST-101", Driver: "Ben Kowalski", Location: "South Yard", Commodity: "Soybeans", TicketDate: NewDate(2026, time.March, 3), NetWeight: 8.8, Status: StatusMismatchAlert, HasMismatch: true}),
		restored(t, TicketSnapshot{ID: "c", TicketNumber: "ST-102", Driver: "ana Ruiz", Location: "North Elevator", Commodity: "Wheat", TicketDate: NewDate(2026, time.March, 2), NetWeight: 30.1, Status: StatusPending}),
		restored(t, TicketSnapshot{ID: "d", TicketNumber: "ST-103", Driver: "Maria Lopez", Location: "Depot 4", Commodity: "corn", TicketDate: NewDate(2026, time.March, 5), NetWeight: 12.0, Status: StatusVerified}),
	}
}

func TestFilterByStatusSet(t *testing.T) {
	got := FilterTickets(querySample(t), TicketFilter{Statuses: []TicketStatus{StatusVerified, StatusPending}})
	assert.Equal(t, []string{"a", "c", "d"}, ids(got))
}

func TestFilterSearchIsCaseInsensitiveAcrossFields(t *testing.T) {
	tickets := querySample(t)
	assert.Equal(t, []string{"a", "d"}, ids(FilterTickets(tickets, TicketFilter{Search: "CORN"})))
	assert.Equal(t, []string{"a", "c"}, ids(FilterTickets(tickets, TicketFilter{Search: "north"})))
	assert.Equal(t, []string{"b"}, ids(FilterTickets(tickets, TicketFilter{Search: "st-101"})))
	assert.Equal(t, []string{"c"}, ids(FilterTickets(tickets, TicketFilter{Search: "ANA"})))
}

func TestFilterDateRangeIsInclusive(t *testing.T) {
	got := FilterTickets(querySample(t), TicketFilter{
		From: NewDate(2026, time.March, 2),
		To:   NewDate(2026, time.March, 3),
	})
	assert.Equal(t, []string{"b", "c"}, ids(got))
}

func TestFilterIsConjunctive(t *testing.T) {
	got := FilterTickets(querySample(t), TicketFilter{
		Statuses: []TicketStatus{StatusVerified},
		Search:   "maria",
		From:     NewDate(2026, time.March, 4),
	})
	assert.Equal(t, []string{"d"}, ids(got))
}

func TestFilterValidateRejectsInvertedRange(t *testing.T) {
	err := TicketFilter{From: NewDate(2026, time.March, 5), To: NewDate(2026, time.March, 1)}.Validate()
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrInvalidInput))
}

func TestSortKeys(t *testing.T) {
	tests := []struct {
		sort TicketSort
		want []string
	}{
		{TicketSort{Key: SortByDate, Direction: SortAscending}, []string{"a", "c", "b", "d"}},
		{TicketSort{Key: SortByDate, Direction: SortDescending}, []string{"d", "b", "c", "a"}},
		{TicketSort{Key: SortByWeight, Direction: SortDescending}, []string{"c", "a", "d", "b"}},
		{TicketSort{Key: SortByDriver, Direction: SortAscending}, []string{"b", "a", "d", "c"}},
		{TicketSort{}, []string{"a", "b", "c", "d"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.sort.Key)+"_"+string(tt.sort.Direction), func(t *testing.T) {
			tickets := querySample(t)
			SortTickets(tickets, tt.sort)
			assert.Equal(t, tt.want, ids(tickets))
		})
	}
}

func TestSortByStatusIsStable(t *testing.T) {
	tickets := querySample(t)
	SortTickets(tickets, TicketSort{Key: SortByStatus, Direction: SortAscending})
	first := ids(tickets)
	assert.Equal(t, []string{"b", "c", "a", "d"}, first)

	SortTickets(tickets, TicketSort{Key: SortByStatus, Direction: SortAscending})
	assert.Equal(t, first, ids(tickets))

	SortTickets(tickets, TicketSort{Key: SortByStatus, Direction: SortDescending})
	assert.Equal(t, []string{"a", "d", "c", "b"}, ids(tickets))
}

func TestSortByConfidenceTreatsMissingOCRAsZero(t *testing.T) {
	high := ocrData(45.6, 20.3, 25.3)
	low := ocrData(45.6, 20.3, 25.3)
	low.GrossWeight.Confidence = 10
	tickets := []*Ticket{
		restored(t, TicketSnapshot{ID: "x", Status: StatusOCRComplete, OCR: &high}),
		restored(t, TicketSnapshot{ID: "y", Status: StatusPending}),
		restored(t, TicketSnapshot{ID: "z", Status: StatusOCRComplete, OCR: &low}),
	}
	SortTickets(tickets, TicketSort{Key: SortByConfidence, Direction: SortAscending})
	assert.Equal(t, []string{"y", "z", "x"}, ids(tickets))
}

func TestParseTicketSort(t *testing.T) {
	s, err := ParseTicketSort("Weight", "")
	require.NoError(t, err)
	assert.Equal(t, TicketSort{Key: SortByWeight, Direction: SortAscending}, s)

	_, err = ParseTicketSort("tonnage", "asc")
	assert.True(t, IsKind(err, ErrInvalidInput))

	_, err = ParseTicketSort("date", "sideways")
	assert.True(t, IsKind(err, ErrInvalidInput))
}
