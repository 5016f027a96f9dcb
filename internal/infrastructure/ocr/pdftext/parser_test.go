package pdftext

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
)

const printedTicket = `GREAT PLAINS GRAIN CO-OP
Ticket No: ST-2024-0001
Date: 03/12/2026
Site: North Yard
Product: Yellow Corn
Gross Weight:   32.10 t
Tare Weight:    23.40 t
Net Weight:      8.80 t
Driver signature ____________
`

func TestParseLabelledTextReadsAllFields(t *testing.T) {
	got := ParseLabelledText(printedTicket)
	if len(got.Fields) != 7 {
		t.Fatalf("expected 7 fields, got %d: %+v", len(got.Fields), got.Fields)
	}

	data, err := domain.ParseExtraction(got)
	if err != nil {
		t.Fatalf("ParseExtraction() error = %v", err)
	}
	if data.TicketNumber.Value != "ST-2024-0001" || data.Location.Value != "North Yard" || data.Commodity.Value != "Yellow Corn" {
		t.Fatalf("unexpected text fields %+v", data)
	}
	if data.GrossWeight.Value != 32.1 || data.TareWeight.Value != 23.4 || data.NetWeight.Value != 8.8 {
		t.Fatalf("unexpected weights %+v", data)
	}
	if data.NetWeight.Confidence != 100 {
		t.Fatalf("expected full confidence, got %v", data.NetWeight.Confidence)
	}
}

func TestParseLabelledTextAcceptsDottedLeadersAndKeepsFirstValue(t *testing.T) {
	got := ParseLabelledText("Gross........45.6\nGROSS: 99\nNet  25.3\n")
	if got.Fields[domain.FieldGrossWeight].Value != "45.6" {
		t.Fatalf("unexpected gross %q", got.Fields[domain.FieldGrossWeight].Value)
	}
	if got.Fields[domain.FieldNetWeight].Value != "25.3" {
		t.Fatalf("unexpected net %q", got.Fields[domain.FieldNetWeight].Value)
	}
	if _, ok := got.Fields[domain.FieldTareWeight]; ok {
		t.Fatalf("tare must be absent")
	}
}

type imagesFake map[string]string

func (f imagesFake) Save(context.Context, string, io.Reader) error { return nil }

func (f imagesFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f[key])), nil
}

type fallbackFake struct {
	calls int
	err   error
}

func (f *fallbackFake) Extract(context.Context, domain.ImageRef) (domain.Extraction, error) {
	f.calls++
	return domain.Extraction{}, f.err
}

func TestImagesGoStraightToFallback(t *testing.T) {
	fallback := &fallbackFake{}
	e := NewExtractor(imagesFake{}, fallback, nil)
	if _, err := e.Extract(context.Background(), domain.ImageRef{Key: "t.jpg", ContentType: "image/jpeg"}); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if fallback.calls != 1 {
		t.Fatalf("expected fallback call, got %d", fallback.calls)
	}
}

func TestMalformedPDFFallsBack(t *testing.T) {
	fallback := &fallbackFake{err: errors.New("ocr down")}
	e := NewExtractor(imagesFake{"t.pdf": "not really a pdf"}, fallback, nil)

	_, err := e.Extract(context.Background(), domain.ImageRef{Key: "t.pdf", ContentType: "application/pdf"})
	if err == nil || err.Error() != "ocr down" || fallback.calls != 1 {
		t.Fatalf("expected fallback error, got %v after %d calls", err, fallback.calls)
	}
}

func TestMalformedPDFWithoutFallbackIsExtractionFailure(t *testing.T) {
	e := NewExtractor(imagesFake{"t.pdf": "not really a pdf"}, nil, nil)
	_, err := e.Extract(context.Background(), domain.ImageRef{Key: "t.pdf", ContentType: "application/pdf"})
	if !domain.IsKind(err, domain.ErrExtractionFailed) {
		t.Fatalf("expected extraction failure, got %v", err)
	}
}
