package models

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"vtrack/internal/authz"
	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/pagination"
)

const MinPasswordLength = 6

// User is an account that can sign in: an officer, a treasurer or an admin.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Role         string     `json:"role"`
	TeamID       *uuid.UUID `json:"team_id"`
	BadgeNumber  string     `json:"badge_number,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

func (u *User) validate() error {
	switch {
	case u.ID == uuid.Nil:
		return dErrors.New(dErrors.CodeInvariantViolation, "user id is required")
	case !validEmail(u.Email):
		return dErrors.New(dErrors.CodeInvariantViolation, "valid email is required")
	case utf8.RuneCountInString(u.Email) > 255:
		return dErrors.New(dErrors.CodeInvariantViolation, "email must be at most 255 characters")
	case utf8.RuneCountInString(u.FirstName) < 1 || utf8.RuneCountInString(u.FirstName) > 50:
		return dErrors.New(dErrors.CodeInvariantViolation, "first name must be 1-50 characters")
	case utf8.RuneCountInString(u.LastName) < 1 || utf8.RuneCountInString(u.LastName) > 50:
		return dErrors.New(dErrors.CodeInvariantViolation, "last name must be 1-50 characters")
	case !authz.ValidRole(u.Role):
		return dErrors.New(dErrors.CodeInvariantViolation, "invalid role")
	case utf8.RuneCountInString(u.BadgeNumber) > 50:
		return dErrors.New(dErrors.CodeInvariantViolation, "badge number must be at most 50 characters")
	case utf8.RuneCountInString(u.Phone) > 30:
		return dErrors.New(dErrors.CodeInvariantViolation, "phone must be at most 30 characters")
	}
	return nil
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// NormalizeEmail is the canonical form used for lookups and uniqueness.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidatePassword enforces the minimum password length.
func ValidatePassword(p string) error {
	if len(p) < MinPasswordLength {
		return dErrors.Newf(dErrors.CodeInvalidArgument, "password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// RegisterRequest creates a user. Only admins register accounts.
type RegisterRequest struct {
	Email       string     `json:"email"`
	Password    string     `json:"password"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Role        string     `json:"role"`
	TeamID      *uuid.UUID `json:"team_id"`
	BadgeNumber string     `json:"badge_number"`
	Phone       string     `json:"phone"`
}

// Build validates everything except the password, which the caller hashes.
func (r RegisterRequest) Build(id uuid.UUID, passwordHash string, now time.Time) (*User, error) {
	u := &User{
		ID:           id,
		Email:        NormalizeEmail(r.Email),
		PasswordHash: passwordHash,
		FirstName:    strings.TrimSpace(r.FirstName),
		LastName:     strings.TrimSpace(r.LastName),
		Role:         r.Role,
		TeamID:       r.TeamID,
		BadgeNumber:  strings.TrimSpace(r.BadgeNumber),
		Phone:        strings.TrimSpace(r.Phone),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateRequest changes profile fields. TeamID and IsActive are admin-only.
type UpdateRequest struct {
	FirstName   *string    `json:"first_name"`
	LastName    *string    `json:"last_name"`
	Phone       *string    `json:"phone"`
	BadgeNumber *string    `json:"badge_number"`
	TeamID      *uuid.UUID `json:"team_id"`
	IsActive    *bool      `json:"is_active"`
}

// Privileged reports whether the request touches admin-only fields.
func (r UpdateRequest) Privileged() bool {
	return r.TeamID != nil || r.IsActive != nil
}

func (r UpdateRequest) Apply(u *User, now time.Time) error {
	if r.FirstName == nil && r.LastName == nil && r.Phone == nil && r.BadgeNumber == nil && !r.Privileged() {
		return dErrors.New(dErrors.CodeInvalidArgument, "no fields to update")
	}
	next := *u
	setString(&next.FirstName, r.FirstName)
	setString(&next.LastName, r.LastName)
	setString(&next.Phone, r.Phone)
	setString(&next.BadgeNumber, r.BadgeNumber)
	if r.TeamID != nil {
		next.TeamID = r.TeamID
	}
	if r.IsActive != nil {
		next.IsActive = *r.IsActive
	}
	if err := next.validate(); err != nil {
		return err
	}
	next.UpdatedAt = now
	*u = next
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

// View adds the team name for display.
type View struct {
	User
	TeamName string `json:"team_name,omitempty"`
}

type ListFilter struct {
	Role   string
	TeamID uuid.UUID
	Active *bool
	Page   pagination.Params
}
