package domain

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	topListSize      = 5
	unspecifiedGroup = "unspecified"
)

type CommodityStat struct {
	Commodity   string  `json:"commodity"`
	Tonnage     float64 `json:"tonnage"`
	TicketCount int     `json:"ticket_count"`
}

type DriverStat struct {
	Driver      string  `json:"driver"`
	TicketCount int     `json:"ticket_count"`
	Accuracy    float64 `json:"accuracy"`
}

type Analytics struct {
	TotalCount        int             `json:"total_count"`
	TotalTonnage      float64         `json:"total_tonnage"`
	ProcessedCount    int             `json:"processed_count"`
	PendingCount      int             `json:"pending_count"`
	MismatchCount     int             `json:"mismatch_count"`
	OCRAccuracyRate   int             `json:"ocr_accuracy_rate"`
	AverageConfidence float64         `json:"average_confidence"`
	TopCommodities    []CommodityStat `json:"top_commodities"`
	TopDrivers        []DriverStat    `json:"top_drivers"`
}

// DriverAccuracyPolicy scores a single ticket for the driver accuracy ranking.
type DriverAccuracyPolicy interface {
	Score(t *Ticket) float64
}

// FixedScorePolicy gives every mismatched ticket one score and every clean ticket another.
// It is a placeholder heuristic, not a calibrated measure.
type FixedScorePolicy struct {
	Mismatch float64
	Clean    float64
}

func (p FixedScorePolicy) Score(t *Ticket) float64 {
	if t.HasMismatch() {
		return p.Mismatch
	}
	return p.Clean
}

func DefaultDriverAccuracyPolicy() FixedScorePolicy {
	return FixedScorePolicy{Mismatch: 85, Clean: 95}
}

// Aggregate reduces a ticket sequence into rollups. It reads nothing but its arguments.
func Aggregate(tickets []*Ticket, policy DriverAccuracyPolicy) Analytics {
	if policy == nil {
		policy = DefaultDriverAccuracyPolicy()
	}

	out := Analytics{
		TotalCount:     len(tickets),
		TopCommodities: []CommodityStat{},
		TopDrivers:     []DriverStat{},
	}
	tonnage := decimal.Zero
	confidenceSum := 0.0
	withOCR := 0

	for _, t := range tickets {
		switch t.Status() {
		case StatusVerified, StatusOCRComplete:
			out.ProcessedCount++
			tonnage = tonnage.Add(weightDecimal(t.NetWeight()))
		case StatusPending, StatusProcessing:
			out.PendingCount++
		case StatusMismatchAlert:
			out.MismatchCount++
		}
		if ocr, ok := t.OCR(); ok {
			confidenceSum += ocr.MeanConfidence()
			withOCR++
		}
	}

	out.TotalTonnage = tonnage.InexactFloat64()
	if out.TotalCount > 0 {
		out.OCRAccuracyRate = int(math.Round(float64(out.ProcessedCount) / float64(out.TotalCount) * 100))
	}
	if withOCR > 0 {
		out.AverageConfidence = confidenceSum / float64(withOCR)
	}
	out.TopCommodities = TopCommodities(tickets, topListSize)
	out.TopDrivers = TopDrivers(tickets, policy, topListSize)
	return out
}

// TopCommodities groups by commodity and ranks by summed net weight. Ties keep first-seen order.
func TopCommodities(tickets []*Ticket, limit int) []CommodityStat {
	type group struct {
		name    string
		tonnage decimal.Decimal
		count   int
	}
	index := map[string]int{}
	groups := []*group{}
	for _, t := range tickets {
		name := groupKey(t.Commodity())
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, &group{name: name, tonnage: decimal.Zero})
		}
		groups[i].tonnage = groups[i].tonnage.Add(weightDecimal(t.NetWeight()))
		groups[i].count++
	}

	sort.SliceStable(groups, func(i, j int) bool { return groups[i].tonnage.GreaterThan(groups[j].tonnage) })

	out := make([]CommodityStat, 0, min(limit, len(groups)))
	for _, g := range groups {
		if len(out) == limit {
			break
		}
		out = append(out, CommodityStat{Commodity: g.name, Tonnage: g.tonnage.InexactFloat64(), TicketCount: g.count})
	}
	return out
}

// TopDrivers ranks drivers by the running average of the policy score over their tickets.
func TopDrivers(tickets []*Ticket, policy DriverAccuracyPolicy, limit int) []DriverStat {
	if policy == nil {
		policy = DefaultDriverAccuracyPolicy()
	}
	index := map[string]int{}
	stats := []*DriverStat{}
	for _, t := range tickets {
		name := groupKey(t.Driver())
		i, ok := index[name]
		if !ok {
			i = len(stats)
			index[name] = i
			stats = append(stats, &DriverStat{Driver: name})
		}
		s := stats[i]
		s.TicketCount++
		s.Accuracy += (policy.Score(t) - s.Accuracy) / float64(s.TicketCount)
	}

	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Accuracy > stats[j].Accuracy })

	out := make([]DriverStat, 0, min(limit, len(stats)))
	for _, s := range stats {
		if len(out) == limit {
			break
		}
		out = append(out, *s)
	}
	return out
}

func groupKey(raw string) string {
	if v := strings.TrimSpace(raw); v != "" {
		return v
	}
	return unspecifiedGroup
}

func weightDecimal(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}
