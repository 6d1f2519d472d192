package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/pagination"
)

// Level is the severity class of a violation type.
type Level string

const (
	LevelMinor  Level = "Minor"
	LevelMajor  Level = "Major"
	LevelSevere Level = "Severe"
)

func (l Level) Valid() bool {
	switch l {
	case LevelMinor, LevelMajor, LevelSevere:
		return true
	}
	return false
}

// Tier is the offense-escalation level billed on a line item.
type Tier string

const (
	TierFirst  Tier = "First Offense"
	TierSecond Tier = "Second Offense"
	TierThird  Tier = "Third Offense"
)

// Tiers lists every tier in escalation order.
var Tiers = []Tier{TierFirst, TierSecond, TierThird}

func (t Tier) Valid() bool {
	switch t {
	case TierFirst, TierSecond, TierThird:
		return true
	}
	return false
}

// Multiplier is the factor applied to the base penalty.
func (t Tier) Multiplier() decimal.Decimal {
	switch t {
	case TierSecond:
		return decimal.RequireFromString("1.5")
	case TierThird:
		return decimal.NewFromInt(2)
	default:
		return decimal.NewFromInt(1)
	}
}

// Rank orders tiers First < Second < Third.
func (t Tier) Rank() int {
	switch t {
	case TierFirst:
		return 1
	case TierSecond:
		return 2
	case TierThird:
		return 3
	}
	return 0
}

// ViolationType is a chargeable offense with its base penalty.
type ViolationType struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Level       Level           `json:"level"`
	BasePenalty decimal.Decimal `json:"base_penalty"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PenaltyTier is the amount owed for one (type, tier) pair.
type PenaltyTier struct {
	ViolationTypeID uuid.UUID       `json:"violation_type_id"`
	Tier            Tier            `json:"tier_label"`
	Amount          decimal.Decimal `json:"amount"`
}

// TypeWithTiers is a violation type and its three tiers, First to Third.
type TypeWithTiers struct {
	ViolationType
	Tiers []PenaltyTier `json:"tiers"`
}

// NewViolationType validates invariants and returns a new type.
func NewViolationType(id uuid.UUID, name string, level Level, base decimal.Decimal, description string, now time.Time) (*ViolationType, error) {
	t := &ViolationType{
		ID:          id,
		Name:        name,
		Level:       level,
		BasePenalty: base.Round(2),
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *ViolationType) validate() error {
	if t.ID == uuid.Nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "violation type id is required")
	}
	if n := utf8.RuneCountInString(t.Name); n < 1 || n > 255 {
		return dErrors.New(dErrors.CodeInvariantViolation, "name must be 1-255 characters")
	}
	if !t.Level.Valid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "level must be Minor, Major, or Severe")
	}
	if !t.BasePenalty.IsPositive() {
		return dErrors.New(dErrors.CodeInvariantViolation, "base penalty must be greater than zero")
	}
	return nil
}

// BuildTiers derives the three tier rows from a base penalty, rounded to cents.
func BuildTiers(typeID uuid.UUID, base decimal.Decimal) []PenaltyTier {
	tiers := make([]PenaltyTier, 0, len(Tiers))
	for _, tier := range Tiers {
		tiers = append(tiers, PenaltyTier{
			ViolationTypeID: typeID,
			Tier:            tier,
			Amount:          base.Mul(tier.Multiplier()).Round(2),
		})
	}
	return tiers
}

// CreateTypeRequest is the input to CreateType.
type CreateTypeRequest struct {
	Name        string          `json:"name"`
	Level       Level           `json:"level"`
	Penalty     decimal.Decimal `json:"penalty"`
	Description string          `json:"description"`
}

func (r *CreateTypeRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
}

// UpdateTypeRequest carries only the fields being changed.
type UpdateTypeRequest struct {
	Name        *string          `json:"name"`
	Level       *Level           `json:"level"`
	Penalty     *decimal.Decimal `json:"penalty"`
	Description *string          `json:"description"`
}

// Apply validates each present field and writes it onto t.
// Reports whether the base penalty changed.
func (r *UpdateTypeRequest) Apply(t *ViolationType, now time.Time) (bool, error) {
	if r.Name == nil && r.Level == nil && r.Penalty == nil && r.Description == nil {
		return false, dErrors.New(dErrors.CodeInvalidArgument, "no fields to update")
	}
	next := *t
	if r.Name != nil {
		next.Name = strings.TrimSpace(*r.Name)
	}
	if r.Level != nil {
		next.Level = *r.Level
	}
	if r.Penalty != nil {
		next.BasePenalty = r.Penalty.Round(2)
	}
	if r.Description != nil {
		next.Description = strings.TrimSpace(*r.Description)
	}
	if err := next.validate(); err != nil {
		return false, err
	}
	baseChanged := !next.BasePenalty.Equal(t.BasePenalty)
	next.UpdatedAt = now
	*t = next
	return baseChanged, nil
}

// ListFilter selects violation types.
type ListFilter struct {
	Level  Level
	Search string
	Page   pagination.Params
}
