// Package authz maps caller roles to the actions they may perform.
package authz

import (
	"context"
	"slices"

	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/requestcontext"
)

const (
	RoleAdmin     = "admin"
	RoleOfficer   = "officer"
	RoleTreasurer = "treasurer"
)

// Roles lists every role a user may hold.
var Roles = []string{RoleAdmin, RoleOfficer, RoleTreasurer}

const (
	ActionScheduleManage = "schedule.manage"
	ActionViolatorCreate = "violator.create"
	ActionViolatorUpdate = "violator.update"
	ActionViolatorDelete = "violator.delete"
	ActionCitationCreate = "citation.create"
	ActionCitationUpdate = "citation.update"
	ActionCitationStatus = "citation.status"
	ActionCitationDelete = "citation.delete"
	ActionPaymentRecord  = "payment.record"
	ActionPaymentUpdate  = "payment.update"
	ActionPaymentReverse = "payment.reverse"
	ActionOrgManage      = "org.manage"
	ActionUserManage     = "user.manage"
)

var defaultGrants = map[string][]string{
	ActionScheduleManage: {RoleAdmin},
	ActionViolatorCreate: {RoleAdmin, RoleOfficer},
	ActionViolatorUpdate: {RoleAdmin, RoleOfficer},
	ActionViolatorDelete: {RoleAdmin},
	ActionCitationCreate: {RoleAdmin, RoleOfficer},
	ActionCitationUpdate: {RoleAdmin, RoleOfficer},
	ActionCitationStatus: {RoleAdmin},
	ActionCitationDelete: {RoleAdmin},
	ActionPaymentRecord:  {RoleAdmin, RoleTreasurer, RoleOfficer},
	ActionPaymentUpdate:  {RoleAdmin, RoleTreasurer},
	ActionPaymentReverse: {RoleAdmin},
	ActionOrgManage:      {RoleAdmin},
	ActionUserManage:     {RoleAdmin},
}

// Policy is an immutable role table built at startup.
type Policy struct {
	grants map[string][]string
}

// NewPolicy returns the default policy.
func NewPolicy() *Policy {
	return &Policy{grants: defaultGrants}
}

// Allows reports whether role may perform action. Unknown actions are denied.
func (p *Policy) Allows(role, action string) bool {
	return slices.Contains(p.grants[action], role)
}

// Authorize checks the caller carried by ctx.
func (p *Policy) Authorize(ctx context.Context, action string) error {
	caller, ok := requestcontext.Caller(ctx)
	if !ok {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !caller.Active {
		return dErrors.New(dErrors.CodeUnauthorized, "user account is inactive")
	}
	if !p.Allows(caller.Role, action) {
		return dErrors.New(dErrors.CodeForbidden, "insufficient permissions")
	}
	return nil
}

// IsAdmin reports whether the caller in ctx is an administrator.
func IsAdmin(ctx context.Context) bool {
	caller, ok := requestcontext.Caller(ctx)
	return ok && caller.Role == RoleAdmin
}

// ValidRole reports whether role is known.
func ValidRole(role string) bool {
	return slices.Contains(Roles, role)
}
