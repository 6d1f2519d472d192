package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	citation "vtrack/internal/citation/models"
	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/pagination"
)

type Method string

const (
	MethodCash         Method = "Cash"
	MethodBankTransfer Method = "Bank Transfer"
	MethodCheck        Method = "Check"
	MethodOnline       Method = "Online"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodCheck, MethodOnline:
		return true
	}
	return false
}

// Payment is a recorded receipt settling one citation.
type Payment struct {
	ID          uuid.UUID       `json:"id"`
	CitationID  uuid.UUID       `json:"citation_id"`
	ReceiptNo   string          `json:"receipt_no"`
	Amount      decimal.Decimal `json:"amount"`
	Method      Method          `json:"payment_method"`
	PaidAt      time.Time       `json:"paid_at"`
	ProcessedBy uuid.UUID       `json:"processed_by"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (p *Payment) validate() error {
	switch {
	case p.ID == uuid.Nil || p.CitationID == uuid.Nil:
		return dErrors.New(dErrors.CodeInvariantViolation, "payment and citation ids are required")
	case utf8.RuneCountInString(p.ReceiptNo) < 1 || utf8.RuneCountInString(p.ReceiptNo) > 100:
		return dErrors.New(dErrors.CodeInvariantViolation, "receipt number must be 1-100 characters")
	case !p.Amount.IsPositive():
		return dErrors.New(dErrors.CodeInvariantViolation, "amount must be greater than zero")
	case !p.Method.Valid():
		return dErrors.New(dErrors.CodeInvariantViolation, "payment method must be Cash, Bank Transfer, Check, or Online")
	case p.PaidAt.IsZero():
		return dErrors.New(dErrors.CodeInvariantViolation, "valid payment date is required")
	}
	return nil
}

// Summary is the shape embedded in a citation view.
func (p *Payment) Summary() *citation.PaymentSummary {
	return &citation.PaymentSummary{
		ID:        p.ID,
		ReceiptNo: p.ReceiptNo,
		Amount:    p.Amount,
		Method:    string(p.Method),
		PaidAt:    p.PaidAt,
	}
}

// RecordRequest is the input of the payment ledger.
type RecordRequest struct {
	CitationID uuid.UUID       `json:"citation_id"`
	ReceiptNo  string          `json:"receipt_no"`
	Amount     decimal.Decimal `json:"amount"`
	Method     Method          `json:"payment_method"`
	PaidAt     time.Time       `json:"paid_at"`
	Notes      string          `json:"notes"`
}

func (r RecordRequest) Build(id, processedBy uuid.UUID, now time.Time) (*Payment, error) {
	p := &Payment{
		ID:          id,
		CitationID:  r.CitationID,
		ReceiptNo:   strings.TrimSpace(r.ReceiptNo),
		Amount:      r.Amount.Round(2),
		Method:      r.Method,
		PaidAt:      r.PaidAt,
		ProcessedBy: processedBy,
		Notes:       strings.TrimSpace(r.Notes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateRequest corrects a recorded payment. The citation cannot change.
type UpdateRequest struct {
	ReceiptNo *string          `json:"receipt_no"`
	Amount    *decimal.Decimal `json:"amount"`
	Method    *Method          `json:"payment_method"`
	PaidAt    *time.Time       `json:"paid_at"`
	Notes     *string          `json:"notes"`
}

func (r UpdateRequest) Apply(p *Payment, now time.Time) error {
	if r.ReceiptNo == nil && r.Amount == nil && r.Method == nil && r.PaidAt == nil && r.Notes == nil {
		return dErrors.New(dErrors.CodeInvalidArgument, "no fields to update")
	}
	next := *p
	if r.ReceiptNo != nil {
		next.ReceiptNo = strings.TrimSpace(*r.ReceiptNo)
	}
	if r.Amount != nil {
		next.Amount = r.Amount.Round(2)
	}
	if r.Method != nil {
		next.Method = *r.Method
	}
	if r.PaidAt != nil {
		next.PaidAt = *r.PaidAt
	}
	if r.Notes != nil {
		next.Notes = strings.TrimSpace(*r.Notes)
	}
	if err := next.validate(); err != nil {
		return err
	}
	next.UpdatedAt = now
	*p = next
	return nil
}

// View adds citation and people fields for reads.
type View struct {
	Payment
	ViolatorName    string          `json:"violator_name"`
	CitationTotal   decimal.Decimal `json:"citation_total"`
	CitationStatus  citation.Status `json:"citation_status"`
	ProcessedByName string          `json:"processed_by_name"`
}

type ListFilter struct {
	CitationID uuid.UUID
	Method     Method
	From       time.Time
	To         time.Time
	Page       pagination.Params
}
