package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/kirillkom/scale-ticket-service/internal/config"
	"github.com/kirillkom/scale-ticket-service/internal/core/ports"
)

// Services are the use cases the router exposes. Nil services leave their routes answering 501.
type Services struct {
	Intake    ports.TicketIntake
	Processor ports.TicketProcessor
	Reviewer  ports.TicketReviewer
	Reader    ports.TicketReader
	Exporter  ports.TicketExporter
}

// Metrics is the subset of the HTTP metrics registry the router needs.
type Metrics interface {
	Handler() http.Handler
	Middleware(service string, next http.Handler) http.Handler
	RecordUpload(contentType string)
	RecordExport(format string, rows int)
}

type Router struct {
	cfg      config.Config
	svc      Services
	metrics  Metrics
	logger   *slog.Logger
	contract *openapi3.T
}

func NewRouter(cfg config.Config, svc Services) *Router {
	return &Router{cfg: cfg, svc: svc, logger: slog.Default()}
}

func (rt *Router) WithMetrics(m Metrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) WithLogger(logger *slog.Logger) *Router {
	if logger != nil {
		rt.logger = logger
	}
	return rt
}

// WithContract serves the given API description at /v1/openapi.json.
func (rt *Router) WithContract(doc *openapi3.T) *Router {
	rt.contract = doc
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /v1/openapi.json", rt.openAPI)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("POST /v1/tickets", rt.uploadTicket)
	mux.HandleFunc("GET /v1/tickets", rt.listTickets)
	mux.HandleFunc("GET /v1/tickets/{id}", rt.getTicket)
	mux.HandleFunc("PATCH /v1/tickets/{id}", rt.updateTicket)
	mux.HandleFunc("DELETE /v1/tickets/{id}", rt.deleteTicket)
	mux.HandleFunc("POST /v1/tickets/{id}/submit", rt.submitTicket)
	mux.HandleFunc("POST /v1/tickets/{id}/resubmit", rt.resubmitTicket)
	mux.HandleFunc("POST /v1/tickets/{id}/verify", rt.verifyTicket)
	mux.HandleFunc("POST /v1/tickets/{id}/cancel", rt.cancelTicket)

	mux.HandleFunc("GET /v1/analytics", rt.analytics)
	mux.HandleFunc("GET /v1/exports/tickets.csv", rt.exportCSV)
	mux.HandleFunc("GET /v1/exports/tickets.xlsx", rt.exportXLSX)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	if rt.contract == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "api contract not loaded"})
		return
	}
	writeJSON(w, http.StatusOK, rt.contract)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func notImplemented(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "not available in this process"})
}
