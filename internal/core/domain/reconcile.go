package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ToleranceTons is the largest accepted gap between calculated and reported net weight.
const ToleranceTons = 0.05

var tolerance = decimal.NewFromFloat(ToleranceTons)

// Reconciliation is the outcome of comparing gross minus tare with the reported net weight.
type Reconciliation struct {
	CalculatedNetWeight float64 `json:"calculated_net_weight"`
	ReportedNetWeight   float64 `json:"reported_net_weight"`
	Delta               float64 `json:"delta"`
	HasMismatch         bool    `json:"has_mismatch"`
	Details             string  `json:"mismatch_details,omitempty"`
}

// Reconcile computes the authoritative net weight and compares it with the reported one.
// A mismatch is a normal outcome; only malformed weights are errors.
func Reconcile(gross, tare, net float64) (Reconciliation, error) {
	if err := validateWeights(gross, tare, net); err != nil {
		return Reconciliation{}, err
	}

	calculated := decimal.NewFromFloat(gross).Sub(decimal.NewFromFloat(tare))
	reported := decimal.NewFromFloat(net)
	delta := calculated.Sub(reported).Abs()

	result := Reconciliation{
		CalculatedNetWeight: calculated.InexactFloat64(),
		ReportedNetWeight:   reported.InexactFloat64(),
		Delta:               delta.InexactFloat64(),
	}
	if delta.GreaterThan(tolerance) {
		result.HasMismatch = true
		result.Details = fmt.Sprintf(
			"Calculated net weight (%st) differs from OCR net weight (%st) by %st.",
			calculated.StringFixed(2),
			reported.StringFixed(2),
			delta.StringFixed(2),
		)
	}
	return result, nil
}

// CalculatedNetWeight returns gross minus tare without float drift, e.g. 32.1-23.4 == 8.7.
func CalculatedNetWeight(gross, tare float64) float64 {
	if validateWeight(FieldGrossWeight, math.Abs(gross)) != nil || validateWeight(FieldTareWeight, math.Abs(tare)) != nil {
		return gross - tare
	}
	return decimal.NewFromFloat(gross).Sub(decimal.NewFromFloat(tare)).InexactFloat64()
}

func validateWeights(gross, tare, net float64) error {
	named := []struct {
		field FieldName
		value float64
	}{
		{FieldGrossWeight, gross},
		{FieldTareWeight, tare},
		{FieldNetWeight, net},
	}
	for _, w := range named {
		if err := validateWeight(w.field, w.value); err != nil {
			return WrapError(ErrInvalidInput, "reconcile", err)
		}
	}
	return nil
}

func validateWeight(field FieldName, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%s is not a finite number", field)
	}
	if value < 0 {
		return fmt.Errorf("%s must not be negative, got %v", field, value)
	}
	return nil
}
