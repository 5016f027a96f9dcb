package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

type FieldName string

const (
	FieldTicketNumber FieldName = "ticket_number"
	FieldGrossWeight  FieldName = "gross_weight"
	FieldTareWeight   FieldName = "tare_weight"
	FieldNetWeight    FieldName = "net_weight"
	FieldLocation     FieldName = "location"
	FieldDate         FieldName = "date"
	FieldCommodity    FieldName = "commodity"
)

// RequiredFields lists every field an extraction must carry.
var RequiredFields = []FieldName{
	FieldTicketNumber,
	FieldGrossWeight,
	FieldTareWeight,
	FieldNetWeight,
	FieldLocation,
	FieldDate,
	FieldCommodity,
}

// OCRField is an extracted value with the engine's confidence in [0,100].
type OCRField[T any] struct {
	Value      T       `json:"value"`
	Confidence float64 `json:"confidence"`
}

func NewOCRField[T any](value T, confidence float64) (OCRField[T], error) {
	if math.IsNaN(confidence) || confidence < 0 || confidence > 100 {
		return OCRField[T]{}, WrapError(ErrInvalidInput, "new ocr field", fmt.Errorf("confidence %v outside [0,100]", confidence))
	}
	return OCRField[T]{Value: value, Confidence: confidence}, nil
}

// ImageRef points at the stored source image of a ticket.
type ImageRef struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
}

// Extraction is the raw result returned by an OCR collaborator.
type Extraction struct {
	Fields map[FieldName]OCRField[string] `json:"fields"`
}

// OCRData is an accepted extraction with typed weights.
type OCRData struct {
	TicketNumber OCRField[string]  `json:"ticket_number"`
	GrossWeight  OCRField[float64] `json:"gross_weight"`
	TareWeight   OCRField[float64] `json:"tare_weight"`
	NetWeight    OCRField[float64] `json:"net_weight"`
	Location     OCRField[string]  `json:"location"`
	Date         OCRField[string]  `json:"date"`
	Commodity    OCRField[string]  `json:"commodity"`
}

func (d OCRData) Confidences() []float64 {
	return []float64{
		d.TicketNumber.Confidence,
		d.GrossWeight.Confidence,
		d.TareWeight.Confidence,
		d.NetWeight.Confidence,
		d.Location.Confidence,
		d.Date.Confidence,
		d.Commodity.Confidence,
	}
}

func (d OCRData) MeanConfidence() float64 {
	values := d.Confidences()
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

// ParseExtraction accepts a raw extraction only when all fields are present,
// confidences are in range and the three weights are numeric.
func ParseExtraction(raw Extraction) (OCRData, error) {
	for _, name := range RequiredFields {
		field, ok := raw.Fields[name]
		if !ok {
			return OCRData{}, &ExtractionError{Field: name, Reason: "missing from OCR result"}
		}
		if math.IsNaN(field.Confidence) || field.Confidence < 0 || field.Confidence > 100 {
			return OCRData{}, &ExtractionError{Field: name, Reason: fmt.Sprintf("confidence %v outside [0,100]", field.Confidence)}
		}
	}

	weights := make(map[FieldName]OCRField[float64], 3)
	for _, name := range []FieldName{FieldGrossWeight, FieldTareWeight, FieldNetWeight} {
		field := raw.Fields[name]
		value, err := ParseWeight(field.Value)
		if err != nil {
			return OCRData{}, &ExtractionError{Field: name, Reason: fmt.Sprintf("value %q is not a weight", field.Value)}
		}
		weights[name] = OCRField[float64]{Value: value, Confidence: field.Confidence}
	}

	text := func(name FieldName) OCRField[string] {
		field := raw.Fields[name]
		field.Value = strings.TrimSpace(field.Value)
		return field
	}

	return OCRData{
		TicketNumber: text(FieldTicketNumber),
		GrossWeight:  weights[FieldGrossWeight],
		TareWeight:   weights[FieldTareWeight],
		NetWeight:    weights[FieldNetWeight],
		Location:     text(FieldLocation),
		Date:         text(FieldDate),
		Commodity:    text(FieldCommodity),
	}, nil
}

var weightUnitSuffixes = []string{"tons", "ton", "t"}

// ParseWeight reads a tonnage as printed on a ticket, e.g. "45.6", "45.6 t" or "1,045.60 tons".
func ParseWeight(raw string) (float64, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	for _, suffix := range weightUnitSuffixes {
		if strings.HasSuffix(value, suffix) {
			value = strings.TrimSpace(strings.TrimSuffix(value, suffix))
			break
		}
	}
	value = strings.ReplaceAll(value, ",", "")
	if value == "" {
		return 0, WrapError(ErrInvalidInput, "parse weight", fmt.Errorf("empty weight"))
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, WrapError(ErrInvalidInput, "parse weight", err)
	}
	return d.InexactFloat64(), nil
}
