package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	schedule "vtrack/internal/schedule/models"
	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/pagination"
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusPaid      Status = "Paid"
	StatusOverdue   Status = "Overdue"
	StatusCancelled Status = "Cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

// Payable reports whether a payment may be recorded in this status.
func (s Status) Payable() bool {
	return s == StatusPending || s == StatusOverdue
}

// EvidenceFile is the metadata of one stored upload.
type EvidenceFile struct {
	OriginalName string    `json:"original_name"`
	StoredName   string    `json:"stored_name"`
	Path         string    `json:"path"`
	Mime         string    `json:"mime"`
	Size         int64     `json:"size"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

const EvidenceVersion = 1

// Evidence is the versioned envelope persisted with a citation.
type Evidence struct {
	Version int            `json:"version"`
	Files   []EvidenceFile `json:"files"`
}

func NewEvidence(files []EvidenceFile) Evidence {
	if files == nil {
		files = []EvidenceFile{}
	}
	return Evidence{Version: EvidenceVersion, Files: files}
}

// Value implements driver.Valuer for the JSONB column.
func (e Evidence) Value() (driver.Value, error) {
	if e.Files == nil {
		e.Files = []EvidenceFile{}
	}
	if e.Version == 0 {
		e.Version = EvidenceVersion
	}
	return json.Marshal(e)
}

// Scan implements sql.Scanner. A bare array is read as a version 1 envelope.
func (e *Evidence) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*e = NewEvidence(nil)
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported evidence type %T", src)
	}
	if trimmed := strings.TrimSpace(string(raw)); strings.HasPrefix(trimmed, "[") {
		var files []EvidenceFile
		if err := json.Unmarshal(raw, &files); err != nil {
			return fmt.Errorf("decode evidence list: %w", err)
		}
		*e = NewEvidence(files)
		return nil
	}
	var env Evidence
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode evidence: %w", err)
	}
	if env.Version != EvidenceVersion {
		return fmt.Errorf("unsupported evidence version %d", env.Version)
	}
	*e = NewEvidence(env.Files)
	return nil
}

// Details are the free-text fields recorded alongside a citation.
type Details struct {
	OfficersNote           string `json:"officers_note"`
	Confiscated            string `json:"confiscated"`
	ConfiscatedReturned    bool   `json:"confiscated_returned"`
	PlateNo                string `json:"plate_no"`
	ORNumber               string `json:"or_number"`
	CRNumber               string `json:"cr_number"`
	IsAccident             bool   `json:"is_accident"`
	Permit                 string `json:"permit"`
	VehiclePlateNo         string `json:"vehicle_plate_no"`
	Year                   string `json:"year"`
	VehicleMake            string `json:"vehicle_make"`
	Body                   string `json:"body"`
	Color                  string `json:"color"`
	RegisteredOwner        string `json:"registered_owner"`
	RegisteredOwnerAddress string `json:"registered_owner_address"`
	VehiclePlaceIssued     string `json:"vehicle_place_issued"`
}

type fieldLimit struct {
	name  string
	value string
	max   int
}

// validate bounds the fields stored in fixed-width columns. Limits count characters.
func (d Details) validate() error {
	for _, f := range []fieldLimit{
		{"plate_no", d.PlateNo, 50},
		{"or_number", d.ORNumber, 50},
		{"cr_number", d.CRNumber, 50},
		{"vehicle_plate_no", d.VehiclePlateNo, 50},
		{"year", d.Year, 10},
		{"vehicle_make", d.VehicleMake, 100},
		{"body", d.Body, 100},
		{"color", d.Color, 50},
	} {
		if utf8.RuneCountInString(f.value) > f.max {
			return dErrors.Newf(dErrors.CodeInvalidArgument, "%s must be at most %d characters", f.name, f.max)
		}
	}
	return nil
}

// Citation is one issued violation record. TotalAmount is frozen at creation.
type Citation struct {
	ID          uuid.UUID       `json:"id"`
	ViolatorID  uuid.UUID       `json:"violator_id"`
	OfficerID   uuid.UUID       `json:"officer_id"`
	Location    string          `json:"location"`
	IssuedAt    time.Time       `json:"date"`
	Status      Status          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Evidence    Evidence        `json:"evidence"`
	Details
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LineItem is an immutable snapshot of one billed violation.
type LineItem struct {
	ID              uuid.UUID       `json:"id"`
	CitationID      uuid.UUID       `json:"citation_id"`
	ViolationTypeID uuid.UUID       `json:"violation_type_id"`
	Tier            schedule.Tier   `json:"offense_level"`
	AppliedPenalty  decimal.Decimal `json:"applied_penalty"`
	Position        int             `json:"position"`
}

// ErrNoLineItems is returned when a citation is requested without violations.
var ErrNoLineItems = errors.New("at least one violation is required")

// Draft accumulates resolved line items before a citation is persisted.
type Draft struct {
	citation *Citation
	items    []LineItem
}

// NewDraft starts a Pending citation with a zero total.
func NewDraft(id, violatorID, officerID uuid.UUID, location string, issuedAt time.Time, details Details, evidence []EvidenceFile, now time.Time) *Draft {
	return &Draft{citation: &Citation{
		ID:          id,
		ViolatorID:  violatorID,
		OfficerID:   officerID,
		Location:    location,
		IssuedAt:    issuedAt,
		Status:      StatusPending,
		TotalAmount: decimal.Zero,
		Evidence:    NewEvidence(evidence),
		Details:     details,
		CreatedAt:   now,
		UpdatedAt:   now,
	}}
}

// Add snapshots one resolved penalty and adds it to the total.
func (d *Draft) Add(typeID uuid.UUID, tier schedule.Tier, amount decimal.Decimal) {
	d.items = append(d.items, LineItem{
		ID:              uuid.New(),
		CitationID:      d.citation.ID,
		ViolationTypeID: typeID,
		Tier:            tier,
		AppliedPenalty:  amount,
		Position:        len(d.items) + 1,
	})
	d.citation.TotalAmount = d.citation.TotalAmount.Add(amount)
}

// Finish returns the citation and its items once at least one item was added.
func (d *Draft) Finish() (*Citation, []LineItem, error) {
	if len(d.items) == 0 {
		return nil, nil, ErrNoLineItems
	}
	return d.citation, d.items, nil
}

// LineItemRequest selects one violation type at one offense tier.
type LineItemRequest struct {
	ViolationTypeID uuid.UUID     `json:"violation_type_id"`
	Tier            schedule.Tier `json:"offense_level"`
}

// CreateRequest is the input of the citation builder. Evidence files travel separately.
type CreateRequest struct {
	ViolatorID uuid.UUID         `json:"violator_id"`
	Location   string            `json:"location"`
	Date       string            `json:"date"`
	Violations []LineItemRequest `json:"violations"`
	Details
}

// Validate checks the request shape before any lookup or write.
func (r *CreateRequest) Validate() error {
	r.Location = strings.TrimSpace(r.Location)
	switch {
	case r.ViolatorID == uuid.Nil:
		return dErrors.New(dErrors.CodeInvalidArgument, "valid violator ID is required")
	case r.Location == "":
		return dErrors.New(dErrors.CodeInvalidArgument, "location is required")
	case len(r.Violations) == 0:
		return dErrors.New(dErrors.CodeInvalidArgument, ErrNoLineItems.Error())
	}
	for _, v := range r.Violations {
		if v.ViolationTypeID == uuid.Nil {
			return dErrors.New(dErrors.CodeInvalidArgument, "valid violation type ID is required")
		}
		if !v.Tier.Valid() {
			return dErrors.Newf(dErrors.CodeInvalidArgument, "invalid offense level %q", v.Tier)
		}
	}
	return r.Details.validate()
}

// UpdateRequest amends the free-text fields or overrides the status.
type UpdateRequest struct {
	Status              *Status `json:"status"`
	OfficersNote        *string `json:"officers_note"`
	Confiscated         *string `json:"confiscated"`
	ConfiscatedReturned *bool   `json:"confiscated_returned"`
	PlateNo             *string `json:"plate_no"`
	ORNumber            *string `json:"or_number"`
	CRNumber            *string `json:"cr_number"`
}

// Apply validates and writes the present fields onto c. Status overrides
// never set Paid and never touch a Paid citation; payments own that state.
func (r UpdateRequest) Apply(c *Citation, now time.Time) error {
	if r.Status == nil && r.OfficersNote == nil && r.Confiscated == nil && r.ConfiscatedReturned == nil &&
		r.PlateNo == nil && r.ORNumber == nil && r.CRNumber == nil {
		return dErrors.New(dErrors.CodeInvalidArgument, "no fields to update")
	}
	next := *c
	if r.Status != nil {
		switch {
		case !r.Status.Valid():
			return dErrors.New(dErrors.CodeInvalidArgument, "invalid status")
		case *r.Status == StatusPaid:
			return dErrors.New(dErrors.CodeInvalidArgument, "citations become paid only by recording a payment")
		case c.Status == StatusPaid:
			return dErrors.New(dErrors.CodeConflict, "cannot change the status of a paid citation")
		}
		next.Status = *r.Status
	}
	setString(&next.OfficersNote, r.OfficersNote)
	setString(&next.Confiscated, r.Confiscated)
	setString(&next.PlateNo, r.PlateNo)
	setString(&next.ORNumber, r.ORNumber)
	setString(&next.CRNumber, r.CRNumber)
	if r.ConfiscatedReturned != nil {
		next.ConfiscatedReturned = *r.ConfiscatedReturned
	}
	if err := next.Details.validate(); err != nil {
		return err
	}
	next.UpdatedAt = now
	*c = next
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

// LineItemView adds the violation type's display fields.
type LineItemView struct {
	LineItem
	ViolationName string         `json:"violation_name"`
	Level         schedule.Level `json:"level"`
}

// PaymentSummary is the payment shown on a citation, if any.
type PaymentSummary struct {
	ID        uuid.UUID       `json:"id"`
	ReceiptNo string          `json:"receipt_no"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	PaidAt    time.Time       `json:"paid_at"`
}

// View is a citation joined with its display fields for reads.
type View struct {
	Citation
	ViolatorName    string          `json:"violator_name"`
	DriversLicense  string          `json:"drivers_license"`
	OfficerName     string          `json:"officer_name"`
	ViolationsCount int             `json:"violations_count"`
	LineItems       []LineItemView  `json:"violations,omitempty"`
	Payment         *PaymentSummary `json:"payment"`
}

type ListFilter struct {
	Status     Status
	ViolatorID uuid.UUID
	OfficerID  uuid.UUID
	From       time.Time
	To         time.Time
	Page       pagination.Params
}
