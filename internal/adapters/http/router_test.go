package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/scale-ticket-service/internal/config"
	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
)

var testNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestTicket(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	ticket, err := domain.NewTicket(domain.NewTicketParams{
		ID:     id,
		Driver: "Dana Ortiz",
		Image:  domain.ImageRef{Key: id + ".jpg", ContentType: "image/jpeg"},
	}, testNow)
	if err != nil {
		t.Fatalf("NewTicket() error = %v", err)
	}
	return ticket
}

type intakeFake struct {
	meta      domain.UploadMetadata
	body      string
	ticket    *domain.Ticket
	err       error
	submitted []string
}

func (f *intakeFake) Upload(_ context.Context, meta domain.UploadMetadata, body io.Reader) (*domain.Ticket, error) {
	f.meta = meta
	data, _ := io.ReadAll(body)
	f.body = string(data)
	return f.ticket, f.err
}

func (f *intakeFake) Submit(_ context.Context, id string) (*domain.Ticket, error) {
	f.submitted = append(f.submitted, id)
	return f.ticket, f.err
}

func (f *intakeFake) Resubmit(_ context.Context, id string) (*domain.Ticket, error) {
	f.submitted = append(f.submitted, "re:"+id)
	return f.ticket, f.err
}

type readerFake struct {
	filter  domain.TicketFilter
	sort    domain.TicketSort
	tickets []*domain.Ticket
	err     error
}

func (f *readerFake) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	for _, t := range f.tickets {
		if t.ID() == id {
			return t, nil
		}
	}
	return nil, domain.WrapError(domain.ErrTicketNotFound, "get ticket", errors.New(id))
}

func (f *readerFake) Query(_ context.Context, filter domain.TicketFilter, sort domain.TicketSort) ([]*domain.Ticket, error) {
	f.filter, f.sort = filter, sort
	return f.tickets, f.err
}

func (f *readerFake) Aggregate(_ context.Context, filter domain.TicketFilter) (domain.Analytics, error) {
	f.filter = filter
	return domain.Analytics{TotalCount: len(f.tickets)}, f.err
}

type reviewerFake struct {
	operator string
	patch    domain.TicketPatch
	deleted  []string
	ticket   *domain.Ticket
	err      error
}

func (f *reviewerFake) Verify(_ context.Context, _ string, operator string) (*domain.Ticket, error) {
	f.operator = operator
	return f.ticket, f.err
}

func (f *reviewerFake) Update(_ context.Context, _ string, patch domain.TicketPatch) (*domain.Ticket, error) {
	f.patch = patch
	return f.ticket, f.err
}

func (f *reviewerFake) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.err
}

type processorFake struct {
	reason string
	ticket *domain.Ticket
}

func (f *processorFake) ProcessByID(context.Context, string) error { return nil }

func (f *processorFake) Cancel(_ context.Context, _ string, reason string) (*domain.Ticket, error) {
	f.reason = reason
	return f.ticket, nil
}

type exporterFake struct {
	filter domain.TicketFilter
}

func (f *exporterFake) ExportCSV(_ context.Context, w io.Writer, filter domain.TicketFilter, _ domain.TicketSort) (int, error) {
	f.filter = filter
	_, err := io.WriteString(w, "Ticket Number\nST-1\n")
	return 1, err
}

func (f *exporterFake) ExportXLSX(context.Context, io.Writer, domain.TicketFilter, domain.TicketSort) (int, error) {
	return 0, domain.WrapError(domain.ErrTemporary, "export xlsx", errors.New("disk full"))
}

type metricsFake struct {
	uploads []string
	exports map[string]int
}

func (f *metricsFake) Handler() http.Handler { return http.NotFoundHandler() }

func (f *metricsFake) Middleware(_ string, next http.Handler) http.Handler { return next }

func (f *metricsFake) RecordUpload(contentType string) { f.uploads = append(f.uploads, contentType) }

func (f *metricsFake) RecordExport(format string, rows int) {
	if f.exports == nil {
		f.exports = map[string]int{}
	}
	f.exports[format] += rows
}

func serve(t *testing.T, handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", res.Body.String(), err)
	}
	return out
}

func multipartUpload(t *testing.T, fields map[string]string, withFile bool) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if withFile {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="file"; filename="ticket.png"`)
		h.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write([]byte("png-bytes"))
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/tickets", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadTicketPassesMetadataAndRecordsMetric(t *testing.T) {
	intake := &intakeFake{ticket: newTestTicket(t, "t-1")}
	metrics := &metricsFake{}
	handler := NewRouter(config.Config{UploadMaxBytes: 1 << 20}, Services{Intake: intake}).WithMetrics(metrics).Handler()

	res := serve(t, handler, multipartUpload(t, map[string]string{
		"driver":      " Dana Ortiz ",
		"load_id":     "L-7",
		"ticket_date": "2026-03-12",
		"submit":      "true",
	}, true))

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if intake.meta.Filename != "ticket.png" || intake.meta.ContentType != "image/png" {
		t.Fatalf("unexpected file metadata: %+v", intake.meta)
	}
	if intake.meta.Driver != "Dana Ortiz" || intake.meta.LoadID != "L-7" || !intake.meta.Submit {
		t.Fatalf("unexpected form metadata: %+v", intake.meta)
	}
	if intake.meta.TicketDate != domain.NewDate(2026, 3, 12) {
		t.Fatalf("unexpected ticket date: %s", intake.meta.TicketDate)
	}
	if intake.body != "png-bytes" {
		t.Fatalf("unexpected body %q", intake.body)
	}
	if body := decodeBody(t, res); body["id"] != "t-1" || body["status"] != "pending" {
		t.Fatalf("unexpected response: %v", body)
	}
	if len(metrics.uploads) != 1 || metrics.uploads[0] != "image/jpeg" {
		t.Fatalf("expected upload recorded with stored content type, got %v", metrics.uploads)
	}
}

func TestUploadTicketRequiresFile(t *testing.T) {
	intake := &intakeFake{}
	handler := NewRouter(config.Config{}, Services{Intake: intake}).Handler()

	res := serve(t, handler, multipartUpload(t, map[string]string{"driver": "Dana"}, false))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if intake.meta.Driver != "" {
		t.Fatalf("intake must not be called without a file")
	}
}

func TestUploadTicketRejectsMalformedFormValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bad date":   {"ticket_date": "not-a-date"},
		"bad submit": {"submit": "maybe"},
	}
	for name, fields := range cases {
		t.Run(name, func(t *testing.T) {
			handler := NewRouter(config.Config{}, Services{Intake: &intakeFake{}}).Handler()
			res := serve(t, handler, multipartUpload(t, fields, true))
			if res.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", res.Code, res.Body.String())
			}
		})
	}
}

func TestUploadTicketMapsUnsupportedTypeToBadRequest(t *testing.T) {
	intake := &intakeFake{err: domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("unsupported content type"))}
	handler := NewRouter(config.Config{}, Services{Intake: intake}).Handler()

	res := serve(t, handler, multipartUpload(t, nil, true))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if body := decodeBody(t, res); !strings.Contains(body["error"].(string), "unsupported content type") {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestListTicketsBindsFilterAndSort(t *testing.T) {
	reader := &readerFake{tickets: []*domain.Ticket{newTestTicket(t, "t-1"), newTestTicket(t, "t-2")}}
	handler := NewRouter(config.Config{}, Services{Reader: reader}).Handler()

	req := httptest.NewRequest(http.MethodGet,
		"/v1/tickets?status=pending&status=mismatch_alert&q=corn&from=2026-03-01&to=2026-03-31&sort=weight&order=desc", nil)
	res := serve(t, handler, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	want := []domain.TicketStatus{domain.StatusPending, domain.StatusMismatchAlert}
	if len(reader.filter.Statuses) != 2 || reader.filter.Statuses[0] != want[0] || reader.filter.Statuses[1] != want[1] {
		t.Fatalf("unexpected statuses: %v", reader.filter.Statuses)
	}
	if reader.filter.Search != "corn" {
		t.Fatalf("unexpected search %q", reader.filter.Search)
	}
	if reader.filter.From != domain.NewDate(2026, 3, 1) || reader.filter.To != domain.NewDate(2026, 3, 31) {
		t.Fatalf("unexpected date range %s..%s", reader.filter.From, reader.filter.To)
	}
	if reader.sort.Key != domain.SortByWeight || reader.sort.Direction != domain.SortDescending {
		t.Fatalf("unexpected sort: %+v", reader.sort)
	}
	body := decodeBody(t, res)
	if body["count"] != float64(2) {
		t.Fatalf("expected count 2, got %v", body["count"])
	}
}

func TestListTicketsRejectsBadParameters(t *testing.T) {
	cases := map[string]string{
		"unknown status": "/v1/tickets?status=archived",
		"malformed date": "/v1/tickets?from=03-01-2026",
		"inverted range": "/v1/tickets?from=2026-03-05&to=2026-03-01",
		"unknown sort":   "/v1/tickets?sort=color",
		"unknown order":  "/v1/tickets?sort=date&order=sideways",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			reader := &readerFake{}
			handler := NewRouter(config.Config{}, Services{Reader: reader}).Handler()
			res := serve(t, handler, httptest.NewRequest(http.MethodGet, target, nil))
			if res.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", res.Code, res.Body.String())
			}
		})
	}
}

func TestGetTicketMissingIsNotFound(t *testing.T) {
	handler := NewRouter(config.Config{}, Services{Reader: &readerFake{}}).Handler()
	res := serve(t, handler, httptest.NewRequest(http.MethodGet, "/v1/tickets/missing", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestVerifyRequiresOperator(t *testing.T) {
	reviewer := &reviewerFake{ticket: newTestTicket(t, "t-1")}
	handler := NewRouter(config.Config{}, Services{Reviewer: reviewer}).Handler()

	res := serve(t, handler, httptest.NewRequest(http.MethodPost, "/v1/tickets/t-1/verify", strings.NewReader(`{}`)))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if body := decodeBody(t, res); !strings.Contains(body["error"].(string), "operator is required") {
		t.Fatalf("unexpected error: %v", body)
	}
	if reviewer.operator != "" {
		t.Fatalf("reviewer must not be called")
	}
}

func TestVerifyRejectsUnknownFields(t *testing.T) {
	handler := NewRouter(config.Config{}, Services{Reviewer: &reviewerFake{}}).Handler()
	res := serve(t, handler, httptest.NewRequest(http.MethodPost, "/v1/tickets/t-1/verify",
		strings.NewReader(`{"operator":"ops","status":"verified"}`)))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestVerifyInvalidTransitionIsConflict(t *testing.T) {
	reviewer := &reviewerFake{err: &domain.TransitionError{TicketID: "t-1", From: domain.StatusProcessing, Action: "verify"}}
	handler := NewRouter(config.Config{}, Services{Reviewer: reviewer}).Handler()

	res := serve(t, handler, httptest.NewRequest(http.MethodPost, "/v1/tickets/t-1/verify",
		strings.NewReader(`{"operator":" ops@example.com "}`)))
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
	if reviewer.operator != "ops@example.com" {
		t.Fatalf("expected trimmed operator, got %q", reviewer.operator)
	}
}

func TestUpdateTicketPassesPatch(t *testing.T) {
	reviewer := &reviewerFake{ticket: newTestTicket(t, "t-1")}
	handler := NewRouter(config.Config{}, Services{Reviewer: reviewer}).Handler()

	res := serve(t, handler, httptest.NewRequest(http.MethodPatch, "/v1/tickets/t-1",
		strings.NewReader(`{"net_weight":8.7,"ticket_date":"2026-03-12"}`)))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if reviewer.patch.NetWeight == nil || *reviewer.patch.NetWeight != 8.7 {
		t.Fatalf("expected net weight in patch, got %+v", reviewer.patch)
	}
	if reviewer.patch.TicketDate == nil || *reviewer.patch.TicketDate != domain.NewDate(2026, 3, 12) {
		t.Fatalf("expected ticket date in patch, got %+v", reviewer.patch)
	}
	if reviewer.patch.Driver != nil {
		t.Fatalf("absent fields must stay nil")
	}
}

func TestUpdateTicketRejectsEmptyAndNegativePatches(t *testing.T) {
	for name, body := range map[string]string{
		"empty":    `{}`,
		"negative": `{"gross_weight":-1}`,
	} {
		t.Run(name, func(t *testing.T) {
			handler := NewRouter(config.Config{}, Services{Reviewer: &reviewerFake{}}).Handler()
			res := serve(t, handler, httptest.NewRequest(http.MethodPatch, "/v1/tickets/t-1", strings.NewReader(body)))
			if res.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", res.Code)
			}
		})
	}
}

func TestDeleteTicketReturnsNoContent(t *testing.T) {
	reviewer := &reviewerFake{}
	handler := NewRouter(config.Config{}, Services{Reviewer: reviewer}).Handler()

	res := serve(t, handler, httptest.NewRequest(http.MethodDelete, "/v1/tickets/t-9", nil))
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if len(reviewer.deleted) != 1 || reviewer.deleted[0] != "t-9" {
		t.Fatalf("unexpected deletes: %v", reviewer.deleted)
	}
}

func TestSubmitAndResubmitAreAccepted(t *testing.T) {
	intake := &intakeFake{ticket: newTestTicket(t, "t-1")}
	handler := NewRouter(config.Config{}, Services{Intake: intake}).Handler()

	for _, target := range []string{"/v1/tickets/t-1/submit", "/v1/tickets/t-1/resubmit"} {
		res := serve(t, handler, httptest.NewRequest(http.MethodPost, target, nil))
		if res.Code != http.StatusAccepted {
			t.Fatalf("%s: expected 202, got %d", target, res.Code)
		}
	}
	if len(intake.submitted) != 2 || intake.submitted[0] != "t-1" || intake.submitted[1] != "re:t-1" {
		t.Fatalf("unexpected submissions: %v", intake.submitted)
	}
}

func TestCancelAcceptsEmptyBody(t *testing.T) {
	processor := &processorFake{ticket: newTestTicket(t, "t-1")}
	handler := NewRouter(config.Config{}, Services{Processor: processor}).Handler()

	res := serve(t, handler, httptest.NewRequest(http.MethodPost, "/v1/tickets/t-1/cancel", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	res = serve(t, handler, httptest.NewRequest(http.MethodPost, "/v1/tickets/t-1/cancel",
		strings.NewReader(`{"reason":"wrong photo"}`)))
	if res.Code != http.StatusOK || processor.reason != "wrong photo" {
		t.Fatalf("expected reason forwarded, got %d %q", res.Code, processor.reason)
	}
}

func TestAnalyticsIgnoresSortParameters(t *testing.T) {
	reader := &readerFake{tickets: []*domain.Ticket{newTestTicket(t, "t-1")}}
	handler := NewRouter(config.Config{}, Services{Reader: reader}).Handler()

	res := serve(t, handler, httptest.NewRequest(http.MethodGet, "/v1/analytics?status=pending&sort=color", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if body := decodeBody(t, res); body["total_count"] != float64(1) {
		t.Fatalf("unexpected analytics: %v", body)
	}
	if len(reader.filter.Statuses) != 1 {
		t.Fatalf("expected status filter forwarded, got %+v", reader.filter)
	}
}

func TestExportCSVIsAttachment(t *testing.T) {
	exporter := &exporterFake{}
	metrics := &metricsFake{}
	handler := NewRouter(config.Config{}, Services{Exporter: exporter}).WithMetrics(metrics).Handler()

	res := serve(t, handler, httptest.NewRequest(http.MethodGet, "/v1/exports/tickets.csv?status=verified", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if ct := res.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := res.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment;") || !strings.Contains(cd, ".csv") {
		t.Fatalf("unexpected disposition %q", cd)
	}
	if res.Header().Get("X-Row-Count") != "1" || res.Body.String() != "Ticket Number\nST-1\n" {
		t.Fatalf("unexpected export: %q rows=%s", res.Body.String(), res.Header().Get("X-Row-Count"))
	}
	if len(exporter.filter.Statuses) != 1 || exporter.filter.Statuses[0] != domain.StatusVerified {
		t.Fatalf("expected filter forwarded, got %+v", exporter.filter)
	}
	if metrics.exports["csv"] != 1 {
		t.Fatalf("expected export recorded, got %v", metrics.exports)
	}
}

func TestExportFailureIsJSONError(t *testing.T) {
	handler := NewRouter(config.Config{}, Services{Exporter: &exporterFake{}}).Handler()

	res := serve(t, handler, httptest.NewRequest(http.MethodGet, "/v1/exports/tickets.xlsx", nil))
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json error, got %q", ct)
	}
	if res.Header().Get("Content-Disposition") != "" {
		t.Fatalf("failed export must not be an attachment")
	}
}

func TestMissingServiceIsNotImplemented(t *testing.T) {
	handler := NewRouter(config.Config{}, Services{}).Handler()
	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/v1/tickets", nil),
		httptest.NewRequest(http.MethodPost, "/v1/tickets/t-1/verify", strings.NewReader(`{"operator":"ops"}`)),
		httptest.NewRequest(http.MethodGet, "/v1/exports/tickets.csv", nil),
	} {
		res := serve(t, handler, req)
		if res.Code != http.StatusNotImplemented {
			t.Fatalf("%s %s: expected 501, got %d", req.Method, req.URL.Path, res.Code)
		}
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	handler := NewRouter(config.Config{}, Services{}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	res := serve(t, handler, req)
	if res.Header().Get(requestIDHeader) != "req-42" {
		t.Fatalf("expected request id echoed, got %q", res.Header().Get(requestIDHeader))
	}

	res = serve(t, handler, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestOpenAPIContractLoadsAndIsServed(t *testing.T) {
	doc, err := LoadContract(context.Background())
	if err != nil {
		t.Fatalf("LoadContract() error = %v", err)
	}
	for _, path := range []string{"/v1/tickets", "/v1/tickets/{id}", "/v1/tickets/{id}/verify", "/v1/analytics"} {
		if doc.Paths.Find(path) == nil {
			t.Fatalf("contract is missing %s", path)
		}
	}

	handler := NewRouter(config.Config{}, Services{}).WithContract(doc).Handler()
	res := serve(t, handler, httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if body := decodeBody(t, res); body["openapi"] == nil {
		t.Fatalf("expected openapi document, got %v", body)
	}
}

func TestAccessLogCarriesTicketRoute(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	handler := NewRouter(config.Config{}, Services{Reader: &readerFake{}}).WithLogger(logger).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/tickets/t-404", nil)
	req.Header.Set(requestIDHeader, "req-7")
	serve(t, handler, req)

	line := logs.String()
	for _, want := range []string{`"msg":"http_request"`, `"level":"WARN"`, `"request_id":"req-7"`, `"route":"GET /v1/tickets/{id}"`, `"status":404`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in access log, got %s", want, line)
		}
	}
}
