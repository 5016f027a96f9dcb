// Package mcpadapter exposes ticket queries and verification as MCP tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
	"github.com/kirillkom/scale-ticket-service/internal/core/ports"
)

const (
	serverName    = "scale-ticket-service"
	serverVersion = "1.0.0"

	// defaultQueryLimit keeps tool responses small enough for a model context.
	defaultQueryLimit = 50
)

type Tools struct {
	reader   ports.TicketReader
	reviewer ports.TicketReviewer
	logger   *slog.Logger
}

func NewTools(reader ports.TicketReader, reviewer ports.TicketReviewer, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{reader: reader, reviewer: reviewer, logger: logger}
}

// Server registers every tool on a new MCP server. verify_ticket is only registered when a reviewer is set.
func (t *Tools) Server() *server.MCPServer {
	s := server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	statusValues := make([]string, 0, len(domain.AllStatuses()))
	for _, st := range domain.AllStatuses() {
		statusValues = append(statusValues, st.String())
	}
	filterOpts := []mcp.ToolOption{
		mcp.WithArray("status",
			mcp.Description("Only tickets in any of these statuses"),
			mcp.Items(map[string]any{"type": "string", "enum": statusValues}),
		),
		mcp.WithString("q", mcp.Description("Case-insensitive match on ticket number, driver, location or commodity")),
		mcp.WithString("from", mcp.Description("Earliest ticket date, YYYY-MM-DD")),
		mcp.WithString("to", mcp.Description("Latest ticket date, YYYY-MM-DD")),
	}

	queryOpts := append([]mcp.ToolOption{
		mcp.WithDescription("List scale tickets matching a filter, optionally sorted."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("sort", mcp.Enum("date", "weight", "status", "confidence", "driver")),
		mcp.WithString("order", mcp.Enum("asc", "desc")),
		mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Maximum tickets returned, default %d", defaultQueryLimit))),
	}, filterOpts...)
	s.AddTool(mcp.NewTool("query_tickets", queryOpts...), t.queryTickets)

	s.AddTool(mcp.NewTool("get_ticket",
		mcp.WithDescription("Fetch one scale ticket with its OCR provenance and reconciliation state."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("id", mcp.Required(), mcp.Description("Ticket id")),
	), t.getTicket)

	analyticsOpts := append([]mcp.ToolOption{
		mcp.WithDescription("Totals, OCR accuracy, top commodities and driver accuracy for the filtered tickets."),
		mcp.WithReadOnlyHintAnnotation(true),
	}, filterOpts...)
	s.AddTool(mcp.NewTool("ticket_analytics", analyticsOpts...), t.analytics)

	if t.reviewer != nil {
		s.AddTool(mcp.NewTool("verify_ticket",
			mcp.WithDescription("Mark an OCR-complete or mismatch-alert ticket as verified. Verifying a mismatch is an override."),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithString("id", mcp.Required(), mcp.Description("Ticket id")),
			mcp.WithString("operator", mcp.Required(), mcp.Description("Who is attesting the weights")),
		), t.verifyTicket)
	}
	return s
}

func (t *Tools) queryTickets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter, err := filterFromRequest(req)
	if err != nil {
		return toolError(err), nil
	}
	sort, err := domain.ParseTicketSort(req.GetString("sort", ""), req.GetString("order", ""))
	if err != nil {
		return toolError(err), nil
	}
	limit := req.GetInt("limit", defaultQueryLimit)
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	tickets, err := t.reader.Query(ctx, filter, sort)
	if err != nil {
		return toolError(err), nil
	}
	total := len(tickets)
	if total > limit {
		tickets = tickets[:limit]
	}
	return jsonResult(map[string]any{
		"tickets":   tickets,
		"count":     len(tickets),
		"total":     total,
		"truncated": total > limit,
	})
}

func (t *Tools) getTicket(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ticket, err := t.reader.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(ticket)
}

func (t *Tools) analytics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter, err := filterFromRequest(req)
	if err != nil {
		return toolError(err), nil
	}
	result, err := t.reader.Aggregate(ctx, filter)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(result)
}

func (t *Tools) verifyTicket(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	operator, err := req.RequireString("operator")
	if err != nil || strings.TrimSpace(operator) == "" {
		return mcp.NewToolResultError("operator is required"), nil
	}
	ticket, err := t.reviewer.Verify(ctx, strings.TrimSpace(id), strings.TrimSpace(operator))
	if err != nil {
		return toolError(err), nil
	}
	t.logger.Info("mcp_ticket_verified", "ticket_id", ticket.ID(), "operator", strings.TrimSpace(operator))
	return jsonResult(ticket)
}

func filterFromRequest(req mcp.CallToolRequest) (domain.TicketFilter, error) {
	filter := domain.TicketFilter{Search: strings.TrimSpace(req.GetString("q", ""))}
	for _, raw := range req.GetStringSlice("status", nil) {
		status, err := domain.ParseTicketStatus(raw)
		if err != nil {
			return domain.TicketFilter{}, err
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	var err error
	if raw := req.GetString("from", ""); raw != "" {
		if filter.From, err = domain.ParseDate(raw); err != nil {
			return domain.TicketFilter{}, err
		}
	}
	if raw := req.GetString("to", ""); raw != "" {
		if filter.To, err = domain.ParseDate(raw); err != nil {
			return domain.TicketFilter{}, err
		}
	}
	return filter, filter.Validate()
}

// toolError reports domain failures inside the tool result so the calling model can react to them.
func toolError(err error) *mcp.CallToolResult {
	kind := "internal"
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		kind = "invalid_input"
	case domain.IsKind(err, domain.ErrTicketNotFound):
		kind = "not_found"
	case domain.IsKind(err, domain.ErrInvalidTransition), domain.IsKind(err, domain.ErrConflict):
		kind = "conflict"
	case domain.IsKind(err, domain.ErrTemporary), errors.Is(err, context.DeadlineExceeded):
		kind = "temporary"
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", kind, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
