package httpadapter

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
)

const multipartMemory = 8 << 20

func (rt *Router) uploadTicket(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Intake == nil {
		notImplemented(w)
		return
	}
	if rt.cfg.UploadMaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.UploadMaxBytes)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected a multipart/form-data body"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	meta := domain.UploadMetadata{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Driver:      strings.TrimSpace(r.FormValue("driver")),
		LoadID:      strings.TrimSpace(r.FormValue("load_id")),
	}
	if raw := r.FormValue("ticket_date"); raw != "" {
		date, err := domain.ParseDate(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		meta.TicketDate = date
	}
	if raw := r.FormValue("submit"); raw != "" {
		submit, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("submit must be a boolean, got %q", raw)))
			return
		}
		meta.Submit = submit
	}

	ticket, err := rt.svc.Intake.Upload(r.Context(), meta, file)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordUpload(ticket.Image().ContentType)
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (rt *Router) listTickets(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Reader == nil {
		notImplemented(w)
		return
	}
	filter, sort, err := bindListParams(r.URL.Query(), true)
	if err != nil {
		writeError(w, err)
		return
	}
	tickets, err := rt.svc.Reader.Query(r.Context(), filter, sort)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tickets": tickets,
		"count":   len(tickets),
	})
}

func (rt *Router) getTicket(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Reader == nil {
		notImplemented(w)
		return
	}
	ticket, err := rt.svc.Reader.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (rt *Router) updateTicket(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Reviewer == nil {
		notImplemented(w)
		return
	}
	var req patchRequest
	if err := decodeJSON(r.Body, &req, false); err != nil {
		writeError(w, err)
		return
	}
	patch := req.toDomain()
	if patch.IsEmpty() {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "update ticket", errors.New("no fields to update")))
		return
	}
	ticket, err := rt.svc.Reviewer.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (rt *Router) deleteTicket(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Reviewer == nil {
		notImplemented(w)
		return
	}
	if err := rt.svc.Reviewer.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) submitTicket(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Intake == nil {
		notImplemented(w)
		return
	}
	ticket, err := rt.svc.Intake.Submit(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ticket)
}

func (rt *Router) resubmitTicket(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Intake == nil {
		notImplemented(w)
		return
	}
	ticket, err := rt.svc.Intake.Resubmit(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ticket)
}

func (rt *Router) verifyTicket(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Reviewer == nil {
		notImplemented(w)
		return
	}
	var req verifyRequest
	if err := decodeJSON(r.Body, &req, false); err != nil {
		writeError(w, err)
		return
	}
	ticket, err := rt.svc.Reviewer.Verify(r.Context(), r.PathValue("id"), strings.TrimSpace(req.Operator))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (rt *Router) cancelTicket(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Processor == nil {
		notImplemented(w)
		return
	}
	var req cancelRequest
	if err := decodeJSON(r.Body, &req, true); err != nil {
		writeError(w, err)
		return
	}
	ticket, err := rt.svc.Processor.Cancel(r.Context(), r.PathValue("id"), strings.TrimSpace(req.Reason))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}
