package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
)

const ticketColumns = `id, ticket_number, location, commodity, driver, load_id, ticket_date,
	gross_weight, tare_weight, net_weight, image_key, image_content_type, status, processing_progress,
	ocr, has_mismatch, mismatch_details, failure_reason, verification, resubmitted_from, version,
	created_at, updated_at`

type TicketRepository struct {
	db *sql.DB
}

func NewTicketRepository(db *sql.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *TicketRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026031401)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS scale_tickets (
	seq BIGSERIAL UNIQUE,
	id TEXT PRIMARY KEY,
	ticket_number TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	commodity TEXT NOT NULL DEFAULT '',
	driver TEXT NOT NULL DEFAULT '',
	load_id TEXT NOT NULL DEFAULT '',
	ticket_date DATE,
	gross_weight DOUBLE PRECISION NOT NULL DEFAULT 0,
	tare_weight DOUBLE PRECISION NOT NULL DEFAULT 0,
	net_weight DOUBLE PRECISION NOT NULL DEFAULT 0,
	image_key TEXT NOT NULL,
	image_content_type TEXT NOT NULL,
	status TEXT NOT NULL,
	processing_progress INTEGER NOT NULL DEFAULT 0,
	ocr JSONB,
	has_mismatch BOOLEAN NOT NULL DEFAULT FALSE,
	mismatch_details TEXT NOT NULL DEFAULT '',
	failure_reason TEXT NOT NULL DEFAULT '',
	verification JSONB,
	resubmitted_from TEXT NOT NULL DEFAULT '',
	version INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scale_tickets_status ON scale_tickets(status);
CREATE INDEX IF NOT EXISTS idx_scale_tickets_ticket_date ON scale_tickets(ticket_date);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *TicketRepository) Create(ctx context.Context, t *domain.Ticket) error {
	args, err := ticketArgs(t.Snapshot())
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO scale_tickets (`+ticketColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
`, args...)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (r *TicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+ticketColumns+`
FROM scale_tickets
WHERE id = $1
`, id)

	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrTicketNotFound, "get ticket", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan ticket: %w", err)
	}
	return t, nil
}

// Save writes the full ticket state guarded by the version read before the mutation.
func (r *TicketRepository) Save(ctx context.Context, t *domain.Ticket, expectedVersion int) error {
	args, err := ticketArgs(t.Snapshot())
	if err != nil {
		return err
	}
	args = append(args, expectedVersion)

	res, err := r.db.ExecContext(ctx, `
UPDATE scale_tickets
SET ticket_number = $2, location = $3, commodity = $4, driver = $5, load_id = $6, ticket_date = $7,
	gross_weight = $8, tare_weight = $9, net_weight = $10, image_key = $11, image_content_type = $12,
	status = $13, processing_progress = $14, ocr = $15, has_mismatch = $16, mismatch_details = $17,
	failure_reason = $18, verification = $19, resubmitted_from = $20, version = $21,
	created_at = $22, updated_at = $23
WHERE id = $1 AND version = $24
`, args...)
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ticket rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	exists, err := r.exists(ctx, t.ID())
	if err != nil {
		return err
	}
	if !exists {
		return domain.WrapError(domain.ErrTicketNotFound, "save ticket", fmt.Errorf("id=%s", t.ID()))
	}
	return domain.WrapError(
		domain.ErrConflict,
		"save ticket",
		fmt.Errorf("id=%s expected version %d", t.ID(), expectedVersion),
	)
}

func (r *TicketRepository) UpdateProgress(ctx context.Context, id string, progress int) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE scale_tickets
SET processing_progress = $2
WHERE id = $1 AND status = $3
`, id, clamp(progress), string(domain.StatusProcessing))
	if err != nil {
		return fmt.Errorf("update ticket progress: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ticket progress rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrConflict, "update ticket progress", fmt.Errorf("id=%s is not processing", id))
	}
	return nil
}

func (r *TicketRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scale_tickets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete ticket rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrTicketNotFound, "delete ticket", fmt.Errorf("id=%s", id))
	}
	return nil
}

// List pushes the filter down to SQL and returns rows in insertion order.
func (r *TicketRepository) List(ctx context.Context, filter domain.TicketFilter) ([]*domain.Ticket, error) {
	where, args := listConditions(filter)
	query := `
SELECT ` + ticketColumns + `
FROM scale_tickets`
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY seq ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tickets: %w", err)
	}
	return out, nil
}

func (r *TicketRepository) exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM scale_tickets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check ticket exists: %w", err)
	}
	return exists, nil
}

func listConditions(filter domain.TicketFilter) ([]string, []any) {
	var where []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			placeholders = append(placeholders, next(string(s)))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		p := next("%" + escapeLike(search) + "%")
		where = append(where, fmt.Sprintf(
			"(ticket_number ILIKE %[1]s OR driver ILIKE %[1]s OR location ILIKE %[1]s OR commodity ILIKE %[1]s)", p,
		))
	}
	if !filter.From.IsZero() {
		where = append(where, "ticket_date >= "+next(filter.From.Time()))
	}
	if !filter.To.IsZero() {
		where = append(where, "ticket_date <= "+next(filter.To.Time()))
	}
	return where, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var s domain.TicketSnapshot
	var ticketDate sql.NullTime
	var status string
	var ocrRaw, verificationRaw []byte

	err := row.Scan(
		&s.ID, &s.TicketNumber, &s.Location, &s.Commodity, &s.Driver, &s.LoadID, &ticketDate,
		&s.GrossWeight, &s.TareWeight, &s.NetWeight, &s.Image.Key, &s.Image.ContentType, &status,
		&s.ProcessingProgress, &ocrRaw, &s.HasMismatch, &s.MismatchDetails, &s.FailureReason,
		&verificationRaw, &s.ResubmittedFrom, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Status = domain.TicketStatus(status)
	if ticketDate.Valid {
		s.TicketDate = domain.DateOf(ticketDate.Time)
	}
	if len(ocrRaw) > 0 {
		var ocr domain.OCRData
		if err := json.Unmarshal(ocrRaw, &ocr); err != nil {
			return nil, fmt.Errorf("unmarshal ocr: %w", err)
		}
		s.OCR = &ocr
	}
	if len(verificationRaw) > 0 {
		var v domain.Verification
		if err := json.Unmarshal(verificationRaw, &v); err != nil {
			return nil, fmt.Errorf("unmarshal verification: %w", err)
		}
		s.Verification = &v
	}
	return domain.RestoreTicket(s)
}

func ticketArgs(s domain.TicketSnapshot) ([]any, error) {
	var ocrJSON, verificationJSON any
	if s.OCR != nil {
		raw, err := json.Marshal(s.OCR)
		if err != nil {
			return nil, fmt.Errorf("marshal ocr: %w", err)
		}
		ocrJSON = raw
	}
	if s.Verification != nil {
		raw, err := json.Marshal(s.Verification)
		if err != nil {
			return nil, fmt.Errorf("marshal verification: %w", err)
		}
		verificationJSON = raw
	}
	var ticketDate sql.NullTime
	if !s.TicketDate.IsZero() {
		ticketDate = sql.NullTime{Time: s.TicketDate.Time(), Valid: true}
	}

	return []any{
		s.ID, s.TicketNumber, s.Location, s.Commodity, s.Driver, s.LoadID, ticketDate,
		s.GrossWeight, s.TareWeight, s.NetWeight, s.Image.Key, s.Image.ContentType, string(s.Status),
		s.ProcessingProgress, ocrJSON, s.HasMismatch, s.MismatchDetails, s.FailureReason,
		verificationJSON, s.ResubmittedFrom, s.Version, s.CreatedAt, s.UpdatedAt,
	}, nil
}

func clamp(progress int) int {
	switch {
	case progress < 0:
		return 0
	case progress > 100:
		return 100
	default:
		return progress
	}
}
