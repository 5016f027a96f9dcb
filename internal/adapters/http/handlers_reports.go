package httpadapter

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (rt *Router) analytics(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Reader == nil {
		notImplemented(w)
		return
	}
	filter, _, err := bindListParams(r.URL.Query(), false)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := rt.svc.Reader.Aggregate(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) exportCSV(w http.ResponseWriter, r *http.Request) {
	rt.export(w, r, "csv", "text/csv; charset=utf-8", func(buf *bytes.Buffer, filter domain.TicketFilter, sort domain.TicketSort) (int, error) {
		return rt.svc.Exporter.ExportCSV(r.Context(), buf, filter, sort)
	})
}

func (rt *Router) exportXLSX(w http.ResponseWriter, r *http.Request) {
	rt.export(w, r, "xlsx", xlsxContentType, func(buf *bytes.Buffer, filter domain.TicketFilter, sort domain.TicketSort) (int, error) {
		return rt.svc.Exporter.ExportXLSX(r.Context(), buf, filter, sort)
	})
}

// export buffers the file so a failure midway still produces a JSON error instead of a truncated download.
func (rt *Router) export(
	w http.ResponseWriter,
	r *http.Request,
	format, contentType string,
	write func(*bytes.Buffer, domain.TicketFilter, domain.TicketSort) (int, error),
) {
	if rt.svc.Exporter == nil {
		notImplemented(w)
		return
	}
	filter, sort, err := bindListParams(r.URL.Query(), true)
	if err != nil {
		writeError(w, err)
		return
	}

	var buf bytes.Buffer
	rows, err := write(&buf, filter, sort)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordExport(format, rows)
	}

	filename := fmt.Sprintf("tickets-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Row-Count", strconv.Itoa(rows))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
