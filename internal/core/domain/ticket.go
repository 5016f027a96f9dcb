package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Verification records the operator attestation that moved a ticket to verified.
// OverriddenDetails keeps the mismatch message the operator accepted.
type Verification struct {
	Operator          string    `json:"operator"`
	VerifiedAt        time.Time `json:"verified_at"`
	Override          bool      `json:"override"`
	OverriddenDetails string    `json:"overridden_details,omitempty"`
}

// UploadMetadata accompanies a ticket image at upload time.
type UploadMetadata struct {
	Filename    string
	ContentType string
	Driver      string
	LoadID      string
	TicketDate  Date
	Submit      bool
}

type NewTicketParams struct {
	ID              string
	TicketNumber    string
	Location        string
	Commodity       string
	Driver          string
	LoadID          string
	TicketDate      Date
	GrossWeight     float64
	TareWeight      float64
	NetWeight       float64
	Image           ImageRef
	ResubmittedFrom string
}

// TicketPatch carries operator edits. It has no way to express status or reconciliation flags.
type TicketPatch struct {
	TicketNumber *string
	Location     *string
	Commodity    *string
	Driver       *string
	LoadID       *string
	TicketDate   *Date
	GrossWeight  *float64
	TareWeight   *float64
	NetWeight    *float64
}

func (p TicketPatch) IsEmpty() bool {
	return p.TicketNumber == nil && p.Location == nil && p.Commodity == nil && p.Driver == nil &&
		p.LoadID == nil && p.TicketDate == nil && !p.touchesWeights()
}

func (p TicketPatch) touchesWeights() bool {
	return p.GrossWeight != nil || p.TareWeight != nil || p.NetWeight != nil
}

// Ticket is a scale ticket aggregate. Status and reconciliation state change only through its methods.
type Ticket struct {
	id           string
	ticketNumber string
	location     string
	commodity    string
	driver       string
	loadID       string
	ticketDate   Date
	grossWeight  float64
	tareWeight   float64
	netWeight    float64
	image        ImageRef

	status          TicketStatus
	progress        int
	ocr             *OCRData
	hasMismatch     bool
	mismatchDetails string
	failureReason   string
	verification    *Verification
	resubmittedFrom string

	version   int
	createdAt time.Time
	updatedAt time.Time
}

func NewTicket(p NewTicketParams, now time.Time) (*Ticket, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, WrapError(ErrInvalidInput, "new ticket", errors.New("id is required"))
	}
	if strings.TrimSpace(p.Image.Key) == "" {
		return nil, WrapError(ErrInvalidInput, "new ticket", errors.New("image reference is required"))
	}
	for _, w := range []struct {
		field FieldName
		value float64
	}{{FieldGrossWeight, p.GrossWeight}, {FieldTareWeight, p.TareWeight}, {FieldNetWeight, p.NetWeight}} {
		if err := validateWeight(w.field, w.value); err != nil {
			return nil, WrapError(ErrInvalidInput, "new ticket", err)
		}
	}

	now = now.UTC()
	return &Ticket{
		id:              p.ID,
		ticketNumber:    strings.TrimSpace(p.TicketNumber),
		location:        strings.TrimSpace(p.Location),
		commodity:       strings.TrimSpace(p.Commodity),
		driver:          strings.TrimSpace(p.Driver),
		loadID:          strings.TrimSpace(p.LoadID),
		ticketDate:      p.TicketDate,
		grossWeight:     p.GrossWeight,
		tareWeight:      p.TareWeight,
		netWeight:       p.NetWeight,
		image:           p.Image,
		status:          StatusPending,
		resubmittedFrom: p.ResubmittedFrom,
		version:         1,
		createdAt:       now,
		updatedAt:       now,
	}, nil
}

func (t *Ticket) ID() string              { return t.id }
func (t *Ticket) TicketNumber() string    { return t.ticketNumber }
func (t *Ticket) Location() string        { return t.location }
func (t *Ticket) Commodity() string       { return t.commodity }
func (t *Ticket) Driver() string          { return t.driver }
func (t *Ticket) LoadID() string          { return t.loadID }
func (t *Ticket) TicketDate() Date        { return t.ticketDate }
func (t *Ticket) GrossWeight() float64    { return t.grossWeight }
func (t *Ticket) TareWeight() float64     { return t.tareWeight }
func (t *Ticket) NetWeight() float64      { return t.netWeight }
func (t *Ticket) Image() ImageRef         { return t.image }
func (t *Ticket) Status() TicketStatus    { return t.status }
func (t *Ticket) ProcessingProgress() int { return t.progress }
func (t *Ticket) HasMismatch() bool       { return t.hasMismatch }
func (t *Ticket) MismatchDetails() string { return t.mismatchDetails }
func (t *Ticket) FailureReason() string   { return t.failureReason }
func (t *Ticket) ResubmittedFrom() string { return t.resubmittedFrom }
func (t *Ticket) Version() int            { return t.version }
func (t *Ticket) CreatedAt() time.Time    { return t.createdAt }
func (t *Ticket) UpdatedAt() time.Time    { return t.updatedAt }

func (t *Ticket) CalculatedNetWeight() float64 {
	return CalculatedNetWeight(t.grossWeight, t.tareWeight)
}

func (t *Ticket) OCR() (OCRData, bool) {
	if t.ocr == nil {
		return OCRData{}, false
	}
	return *t.ocr, true
}

func (t *Ticket) Verification() (Verification, bool) {
	if t.verification == nil {
		return Verification{}, false
	}
	return *t.verification, true
}

// Confidence is the mean OCR confidence of the ticket, 0 without OCR data.
func (t *Ticket) Confidence() float64 {
	if t.ocr == nil {
		return 0
	}
	return t.ocr.MeanConfidence()
}

func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	out := *t
	if t.ocr != nil {
		ocr := *t.ocr
		out.ocr = &ocr
	}
	if t.verification != nil {
		v := *t.verification
		out.verification = &v
	}
	return &out
}

// Submit hands a pending ticket to extraction.
func (t *Ticket) Submit(now time.Time) error {
	if err := t.transition(StatusProcessing, "submit", now); err != nil {
		return err
	}
	t.progress = 0
	t.failureReason = ""
	return nil
}

// SetProgress records advisory extraction progress. It does not advance the version.
func (t *Ticket) SetProgress(progress int) error {
	if t.status != StatusProcessing {
		return &TransitionError{TicketID: t.id, From: t.status, Action: "report progress on"}
	}
	t.progress = clampProgress(progress)
	return nil
}

// CompleteExtraction applies an accepted OCR result and the reconciliation verdict.
func (t *Ticket) CompleteExtraction(data OCRData, now time.Time) (Reconciliation, error) {
	if t.status != StatusProcessing {
		return Reconciliation{}, &TransitionError{TicketID: t.id, From: t.status, Action: "complete extraction of"}
	}
	rec, err := Reconcile(data.GrossWeight.Value, data.TareWeight.Value, data.NetWeight.Value)
	if err != nil {
		return Reconciliation{}, err
	}

	next := StatusOCRComplete
	if rec.HasMismatch {
		next = StatusMismatchAlert
	}
	if err := t.transition(next, "complete extraction of", now); err != nil {
		return Reconciliation{}, err
	}

	ocr := data
	t.ocr = &ocr
	if v := data.TicketNumber.Value; v != "" {
		t.ticketNumber = v
	}
	if v := data.Location.Value; v != "" {
		t.location = v
	}
	if v := data.Commodity.Value; v != "" {
		t.commodity = v
	}
	if date, err := ParseDate(data.Date.Value); err == nil && !date.IsZero() {
		t.ticketDate = date
	}
	t.grossWeight = data.GrossWeight.Value
	t.tareWeight = data.TareWeight.Value
	t.netWeight = data.NetWeight.Value
	t.progress = 100
	t.applyReconciliation(rec)
	return rec, nil
}

// Fail ends extraction for a processing ticket.
func (t *Ticket) Fail(reason string, now time.Time) error {
	if err := t.transition(StatusFailed, "fail", now); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "extraction failed"
	}
	t.failureReason = reason
	return nil
}

// Verify records operator attestation. Verifying a mismatch is an override and clears the flag.
func (t *Ticket) Verify(operator string, now time.Time) (Verification, error) {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return Verification{}, WrapError(ErrInvalidInput, "verify ticket", errors.New("operator is required"))
	}
	if !t.status.IsAwaitingReview() {
		return Verification{}, &TransitionError{TicketID: t.id, From: t.status, Action: "verify"}
	}

	verification := Verification{
		Operator:   operator,
		VerifiedAt: now.UTC(),
		Override:   t.status == StatusMismatchAlert,
	}
	if verification.Override {
		verification.OverriddenDetails = t.mismatchDetails
	}
	if err := t.transition(StatusVerified, "verify", now); err != nil {
		return Verification{}, err
	}
	t.hasMismatch = false
	t.mismatchDetails = ""
	t.verification = &verification
	return verification, nil
}

// ApplyPatch applies operator edits. Weight corrections on an extracted ticket are reconciled
// again and may move it between ocr_complete and mismatch_alert; the returned reconciliation is
// non-nil only in that case.
func (t *Ticket) ApplyPatch(p TicketPatch, now time.Time) (*Reconciliation, error) {
	if p.IsEmpty() {
		return nil, WrapError(ErrInvalidInput, "update ticket", errors.New("patch is empty"))
	}
	if t.status == StatusVerified {
		return nil, &TransitionError{TicketID: t.id, From: t.status, Action: "update"}
	}
	if p.touchesWeights() && t.status == StatusProcessing {
		return nil, &TransitionError{TicketID: t.id, From: t.status, Action: "correct weights of"}
	}

	gross, tare, net := t.grossWeight, t.tareWeight, t.netWeight
	if p.GrossWeight != nil {
		gross = *p.GrossWeight
	}
	if p.TareWeight != nil {
		tare = *p.TareWeight
	}
	if p.NetWeight != nil {
		net = *p.NetWeight
	}

	var rec *Reconciliation
	next := t.status
	if p.touchesWeights() {
		if t.status.IsAwaitingReview() {
			result, err := Reconcile(gross, tare, net)
			if err != nil {
				return nil, err
			}
			rec = &result
			next = StatusOCRComplete
			if result.HasMismatch {
				next = StatusMismatchAlert
			}
		} else if err := validateWeights(gross, tare, net); err != nil {
			return nil, err
		}
	}
	if next != t.status && !t.status.CanTransitionTo(next) {
		return nil, &TransitionError{TicketID: t.id, From: t.status, Action: "correct weights of"}
	}

	if p.TicketNumber != nil {
		t.ticketNumber = strings.TrimSpace(*p.TicketNumber)
	}
	if p.Location != nil {
		t.location = strings.TrimSpace(*p.Location)
	}
	if p.Commodity != nil {
		t.commodity = strings.TrimSpace(*p.Commodity)
	}
	if p.Driver != nil {
		t.driver = strings.TrimSpace(*p.Driver)
	}
	if p.LoadID != nil {
		t.loadID = strings.TrimSpace(*p.LoadID)
	}
	if p.TicketDate != nil {
		t.ticketDate = *p.TicketDate
	}
	t.grossWeight, t.tareWeight, t.netWeight = gross, tare, net
	t.status = next
	if rec != nil {
		t.applyReconciliation(*rec)
	}
	t.touch(now)
	return rec, nil
}

func (t *Ticket) applyReconciliation(rec Reconciliation) {
	t.hasMismatch = rec.HasMismatch
	t.mismatchDetails = rec.Details
}

func (t *Ticket) transition(next TicketStatus, action string, now time.Time) error {
	if !t.status.CanTransitionTo(next) {
		return &TransitionError{TicketID: t.id, From: t.status, Action: action}
	}
	t.status = next
	t.touch(now)
	return nil
}

func (t *Ticket) touch(now time.Time) {
	t.updatedAt = now.UTC()
	t.version++
}

func clampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// TicketSnapshot is the flat representation used by repositories and the JSON wire format.
// CalculatedNetWeight and Confidence are derived on output and ignored by RestoreTicket.
type TicketSnapshot struct {
	ID                  string        `json:"id"`
	TicketNumber        string        `json:"ticket_number"`
	Location            string        `json:"location"`
	Commodity           string        `json:"commodity"`
	Driver              string        `json:"driver"`
	LoadID              string        `json:"load_id,omitempty"`
	TicketDate          Date          `json:"ticket_date"`
	GrossWeight         float64       `json:"gross_weight"`
	TareWeight          float64       `json:"tare_weight"`
	NetWeight           float64       `json:"net_weight"`
	CalculatedNetWeight float64       `json:"calculated_net_weight"`
	Confidence          float64       `json:"confidence"`
	Image               ImageRef      `json:"image"`
	Status              TicketStatus  `json:"status"`
	ProcessingProgress  int           `json:"processing_progress"`
	OCR                 *OCRData      `json:"ocr,omitempty"`
	HasMismatch         bool          `json:"has_mismatch"`
	MismatchDetails     string        `json:"mismatch_details,omitempty"`
	FailureReason       string        `json:"failure_reason,omitempty"`
	Verification        *Verification `json:"verification,omitempty"`
	ResubmittedFrom     string        `json:"resubmitted_from,omitempty"`
	Version             int           `json:"version"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

func (t *Ticket) Snapshot() TicketSnapshot {
	c := t.Clone()
	return TicketSnapshot{
		ID:                  c.id,
		TicketNumber:        c.ticketNumber,
		Location:            c.location,
		Commodity:           c.commodity,
		Driver:              c.driver,
		LoadID:              c.loadID,
		TicketDate:          c.ticketDate,
		GrossWeight:         c.grossWeight,
		TareWeight:          c.tareWeight,
		NetWeight:           c.netWeight,
		CalculatedNetWeight: c.CalculatedNetWeight(),
		Confidence:          c.Confidence(),
		Image:               c.image,
		Status:              c.status,
		ProcessingProgress:  c.progress,
		OCR:                 c.ocr,
		HasMismatch:         c.hasMismatch,
		MismatchDetails:     c.mismatchDetails,
		FailureReason:       c.failureReason,
		Verification:        c.verification,
		ResubmittedFrom:     c.resubmittedFrom,
		Version:             c.version,
		CreatedAt:           c.createdAt,
		UpdatedAt:           c.updatedAt,
	}
}

// RestoreTicket rebuilds a ticket from persisted state.
func RestoreTicket(s TicketSnapshot) (*Ticket, error) {
	if strings.TrimSpace(s.ID) == "" {
		return nil, WrapError(ErrInvalidInput, "restore ticket", errors.New("id is required"))
	}
	if !s.Status.IsValid() {
		return nil, WrapError(ErrInvalidInput, "restore ticket", fmt.Errorf("unknown status %q", s.Status))
	}
	t := &Ticket{
		id:              s.ID,
		ticketNumber:    s.TicketNumber,
		location:        s.Location,
		commodity:       s.Commodity,
		driver:          s.Driver,
		loadID:          s.LoadID,
		ticketDate:      s.TicketDate,
		grossWeight:     s.GrossWeight,
		tareWeight:      s.TareWeight,
		netWeight:       s.NetWeight,
		image:           s.Image,
		status:          s.Status,
		progress:        clampProgress(s.ProcessingProgress),
		hasMismatch:     s.HasMismatch,
		mismatchDetails: s.MismatchDetails,
		failureReason:   s.FailureReason,
		resubmittedFrom: s.ResubmittedFrom,
		version:         s.Version,
		createdAt:       s.CreatedAt,
		updatedAt:       s.UpdatedAt,
	}
	if s.OCR != nil {
		ocr := *s.OCR
		t.ocr = &ocr
	}
	if s.Verification != nil {
		v := *s.Verification
		t.verification = &v
	}
	return t, nil
}

func (t *Ticket) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Snapshot())
}
