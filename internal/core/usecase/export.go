package usecase

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
	"github.com/kirillkom/scale-ticket-service/internal/core/ports"
)

const exportSheet = "Tickets"

var exportHeaders = []string{
	"Ticket Number",
	"Date",
	"Driver",
	"Location",
	"Commodity",
	"Gross Weight",
	"Tare Weight",
	"Net Weight",
	"Status",
}

type ExportTicketsUseCase struct {
	reader  ports.TicketReader
	maxRows int
	logger  *slog.Logger
}

// NewExportTicketsUseCase builds the exporter. maxRows <= 0 disables the row cap.
func NewExportTicketsUseCase(reader ports.TicketReader, maxRows int, logger *slog.Logger) *ExportTicketsUseCase {
	return &ExportTicketsUseCase{reader: reader, maxRows: maxRows, logger: loggerOrDefault(logger)}
}

func (uc *ExportTicketsUseCase) ExportCSV(
	ctx context.Context,
	w io.Writer,
	filter domain.TicketFilter,
	sort domain.TicketSort,
) (int, error) {
	start := time.Now()
	tickets, err := uc.rows(ctx, filter, sort)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeaders); err != nil {
		return 0, fmt.Errorf("csv write header: %w", err)
	}
	for _, t := range tickets {
		if err := cw.Write(exportRow(t)); err != nil {
			return 0, fmt.Errorf("csv write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("csv flush: %w", err)
	}

	uc.logger.Info("tickets_exported", "format", "csv", "rows", len(tickets), "elapsed_ms", time.Since(start).Milliseconds())
	return len(tickets), nil
}

func (uc *ExportTicketsUseCase) ExportXLSX(
	ctx context.Context,
	w io.Writer,
	filter domain.TicketFilter,
	sort domain.TicketSort,
) (int, error) {
	start := time.Now()
	tickets, err := uc.rows(ctx, filter, sort)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return 0, fmt.Errorf("xlsx rename sheet: %w", err)
	}
	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return 0, fmt.Errorf("xlsx write header: %w", err)
		}
	}

	for i, t := range tickets {
		row := i + 2
		values := []any{
			t.TicketNumber(),
			t.TicketDate().String(),
			t.Driver(),
			t.Location(),
			t.Commodity(),
			t.GrossWeight(),
			t.TareWeight(),
			t.NetWeight(),
			t.Status().String(),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				return 0, fmt.Errorf("xlsx write row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 16)
	_ = f.SetColWidth(exportSheet, "B", "B", 12)
	_ = f.SetColWidth(exportSheet, "C", "E", 22)
	_ = f.SetColWidth(exportSheet, "F", "H", 14)
	_ = f.SetColWidth(exportSheet, "I", "I", 16)

	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("xlsx write: %w", err)
	}

	uc.logger.Info("tickets_exported", "format", "xlsx", "rows", len(tickets), "elapsed_ms", time.Since(start).Milliseconds())
	return len(tickets), nil
}

func (uc *ExportTicketsUseCase) rows(ctx context.Context, filter domain.TicketFilter, sort domain.TicketSort) ([]*domain.Ticket, error) {
	tickets, err := uc.reader.Query(ctx, filter, sort)
	if err != nil {
		return nil, fmt.Errorf("query tickets for export: %w", err)
	}
	if uc.maxRows > 0 && len(tickets) > uc.maxRows {
		tickets = tickets[:uc.maxRows]
	}
	return tickets, nil
}

func exportRow(t *domain.Ticket) []string {
	return []string{
		t.TicketNumber(),
		t.TicketDate().String(),
		t.Driver(),
		t.Location(),
		t.Commodity(),
		formatTons(t.GrossWeight()),
		formatTons(t.TareWeight()),
		formatTons(t.NetWeight()),
		t.Status().String(),
	}
}

func formatTons(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
