package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/pagination"
)

type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale || g == GenderOther
}

// Violator is an individual citations can be issued against.
type Violator struct {
	ID            uuid.UUID `json:"id"`
	LicenseNumber string    `json:"drivers_license"`
	ContactNo     string    `json:"contact_no"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Gender        Gender    `json:"gender"`
	Address       string    `json:"address"`
	Age           int       `json:"age"`
	DateOfBirth   time.Time `json:"date_of_birth"`
	Nationality   string    `json:"nationality"`
	LicenseType   string    `json:"license_type"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FullName is "First Last".
func (v *Violator) FullName() string {
	return v.FirstName + " " + v.LastName
}

func (v *Violator) validate() error {
	switch {
	case v.ID == uuid.Nil:
		return dErrors.New(dErrors.CodeInvariantViolation, "violator id is required")
	case utf8.RuneCountInString(v.ContactNo) < 10 || utf8.RuneCountInString(v.ContactNo) > 20:
		return dErrors.New(dErrors.CodeInvariantViolation, "contact number must be 10-20 characters")
	case utf8.RuneCountInString(v.LicenseNumber) < 1 || utf8.RuneCountInString(v.LicenseNumber) > 50:
		return dErrors.New(dErrors.CodeInvariantViolation, "driver's license must be 1-50 characters")
	case utf8.RuneCountInString(v.FirstName) < 1 || utf8.RuneCountInString(v.FirstName) > 100:
		return dErrors.New(dErrors.CodeInvariantViolation, "first name must be 1-100 characters")
	case utf8.RuneCountInString(v.LastName) < 1 || utf8.RuneCountInString(v.LastName) > 100:
		return dErrors.New(dErrors.CodeInvariantViolation, "last name must be 1-100 characters")
	case !v.Gender.Valid():
		return dErrors.New(dErrors.CodeInvariantViolation, "gender must be Male, Female, or Other")
	case v.Address == "":
		return dErrors.New(dErrors.CodeInvariantViolation, "address is required")
	case v.Age < 1 || v.Age > 120:
		return dErrors.New(dErrors.CodeInvariantViolation, "age must be between 1 and 120")
	case v.DateOfBirth.IsZero():
		return dErrors.New(dErrors.CodeInvariantViolation, "date of birth must be a valid date")
	case utf8.RuneCountInString(v.Nationality) > 100:
		return dErrors.New(dErrors.CodeInvariantViolation, "nationality must be at most 100 characters")
	case utf8.RuneCountInString(v.LicenseType) > 50:
		return dErrors.New(dErrors.CodeInvariantViolation, "license type must be at most 50 characters")
	}
	return nil
}

// CreateRequest is the input to Create. Dates are YYYY-MM-DD or RFC 3339.
type CreateRequest struct {
	LicenseNumber string `json:"drivers_license"`
	ContactNo     string `json:"contact_no"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Gender        Gender `json:"gender"`
	Address       string `json:"address"`
	Age           int    `json:"age"`
	DateOfBirth   string `json:"date_of_birth"`
	Nationality   string `json:"nationality"`
	LicenseType   string `json:"license_type"`
}

// Build validates the request into a new Violator.
func (r CreateRequest) Build(id uuid.UUID, now time.Time) (*Violator, error) {
	dob, err := parseDate(r.DateOfBirth)
	if err != nil {
		return nil, err
	}
	v := &Violator{
		ID:            id,
		LicenseNumber: strings.TrimSpace(r.LicenseNumber),
		ContactNo:     strings.TrimSpace(r.ContactNo),
		FirstName:     strings.TrimSpace(r.FirstName),
		LastName:      strings.TrimSpace(r.LastName),
		Gender:        r.Gender,
		Address:       strings.TrimSpace(r.Address),
		Age:           r.Age,
		DateOfBirth:   dob,
		Nationality:   strings.TrimSpace(r.Nationality),
		LicenseType:   strings.TrimSpace(r.LicenseType),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := v.validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// UpdateRequest carries only the fields being changed.
type UpdateRequest struct {
	LicenseNumber *string `json:"drivers_license"`
	ContactNo     *string `json:"contact_no"`
	FirstName     *string `json:"first_name"`
	LastName      *string `json:"last_name"`
	Gender        *Gender `json:"gender"`
	Address       *string `json:"address"`
	Age           *int    `json:"age"`
	DateOfBirth   *string `json:"date_of_birth"`
	Nationality   *string `json:"nationality"`
	LicenseType   *string `json:"license_type"`
}

func (r UpdateRequest) empty() bool {
	return r.LicenseNumber == nil && r.ContactNo == nil && r.FirstName == nil && r.LastName == nil &&
		r.Gender == nil && r.Address == nil && r.Age == nil && r.DateOfBirth == nil &&
		r.Nationality == nil && r.LicenseType == nil
}

// Apply validates the present fields and writes them onto v.
func (r UpdateRequest) Apply(v *Violator, now time.Time) error {
	if r.empty() {
		return dErrors.New(dErrors.CodeInvalidArgument, "no fields to update")
	}
	next := *v
	setString(&next.LicenseNumber, r.LicenseNumber)
	setString(&next.ContactNo, r.ContactNo)
	setString(&next.FirstName, r.FirstName)
	setString(&next.LastName, r.LastName)
	setString(&next.Address, r.Address)
	setString(&next.Nationality, r.Nationality)
	setString(&next.LicenseType, r.LicenseType)
	if r.Gender != nil {
		next.Gender = *r.Gender
	}
	if r.Age != nil {
		next.Age = *r.Age
	}
	if r.DateOfBirth != nil {
		dob, err := parseDate(*r.DateOfBirth)
		if err != nil {
			return err
		}
		next.DateOfBirth = dob
	}
	if err := next.validate(); err != nil {
		return err
	}
	next.UpdatedAt = now
	*v = next
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC().Truncate(24 * time.Hour), nil
	}
	return time.Time{}, dErrors.New(dErrors.CodeInvariantViolation, "date of birth must be a valid date")
}

// ListFilter matches Search against names, license and contact number.
type ListFilter struct {
	Search string
	Page   pagination.Params
}
