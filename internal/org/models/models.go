package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/pagination"
)

// Location is a site teams operate from.
type Location struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	StreetAddress string    `json:"street_address"`
	ZipCode       string    `json:"zip_code"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (l *Location) validate() error {
	switch {
	case l.ID == uuid.Nil:
		return dErrors.New(dErrors.CodeInvariantViolation, "location id is required")
	case utf8.RuneCountInString(l.Name) < 1 || utf8.RuneCountInString(l.Name) > 100:
		return dErrors.New(dErrors.CodeInvariantViolation, "location name must be 1-100 characters")
	case utf8.RuneCountInString(l.ZipCode) > 20:
		return dErrors.New(dErrors.CodeInvariantViolation, "zip code must be at most 20 characters")
	}
	return nil
}

// Team groups officers under one location.
type Team struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	LocationID  *uuid.UUID `json:"location_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (t *Team) validate() error {
	switch {
	case t.ID == uuid.Nil:
		return dErrors.New(dErrors.CodeInvariantViolation, "team id is required")
	case utf8.RuneCountInString(t.Name) < 1 || utf8.RuneCountInString(t.Name) > 100:
		return dErrors.New(dErrors.CodeInvariantViolation, "team name must be 1-100 characters")
	}
	return nil
}

// TeamView adds the location name for display.
type TeamView struct {
	Team
	LocationName string `json:"location_name,omitempty"`
}

type LocationRequest struct {
	Name          string `json:"name"`
	StreetAddress string `json:"street_address"`
	ZipCode       string `json:"zip_code"`
}

func (r LocationRequest) Build(id uuid.UUID, now time.Time) (*Location, error) {
	l := &Location{
		ID:            id,
		Name:          strings.TrimSpace(r.Name),
		StreetAddress: strings.TrimSpace(r.StreetAddress),
		ZipCode:       strings.TrimSpace(r.ZipCode),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := l.validate(); err != nil {
		return nil, err
	}
	return l, nil
}

type LocationUpdate struct {
	Name          *string `json:"name"`
	StreetAddress *string `json:"street_address"`
	ZipCode       *string `json:"zip_code"`
}

func (r LocationUpdate) Apply(l *Location, now time.Time) error {
	if r.Name == nil && r.StreetAddress == nil && r.ZipCode == nil {
		return dErrors.New(dErrors.CodeInvalidArgument, "no fields to update")
	}
	next := *l
	setString(&next.Name, r.Name)
	setString(&next.StreetAddress, r.StreetAddress)
	setString(&next.ZipCode, r.ZipCode)
	if err := next.validate(); err != nil {
		return err
	}
	next.UpdatedAt = now
	*l = next
	return nil
}

type TeamRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	LocationID  *uuid.UUID `json:"location_id"`
}

func (r TeamRequest) Build(id uuid.UUID, now time.Time) (*Team, error) {
	t := &Team{
		ID:          id,
		Name:        strings.TrimSpace(r.Name),
		Description: strings.TrimSpace(r.Description),
		LocationID:  r.LocationID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

type TeamUpdate struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	LocationID  *uuid.UUID `json:"location_id"`
}

func (r TeamUpdate) Apply(t *Team, now time.Time) error {
	if r.Name == nil && r.Description == nil && r.LocationID == nil {
		return dErrors.New(dErrors.CodeInvalidArgument, "no fields to update")
	}
	next := *t
	setString(&next.Name, r.Name)
	setString(&next.Description, r.Description)
	if r.LocationID != nil {
		next.LocationID = r.LocationID
	}
	if err := next.validate(); err != nil {
		return err
	}
	next.UpdatedAt = now
	*t = next
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

type LocationFilter struct {
	Search string
	Page   pagination.Params
}

type TeamFilter struct {
	LocationID uuid.UUID
	Search     string
	Page       pagination.Params
}
