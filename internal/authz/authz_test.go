package authz

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/requestcontext"
)

func callerCtx(role string, active bool) context.Context {
	return requestcontext.WithCaller(context.Background(), requestcontext.Identity{
		UserID: uuid.New(), Role: role, Active: active,
	})
}

func TestAuthorize(t *testing.T) {
	p := NewPolicy()

	tests := []struct {
		name   string
		ctx    context.Context
		action string
		code   dErrors.Code
	}{
		{"officer creates citation", callerCtx(RoleOfficer, true), ActionCitationCreate, ""},
		{"treasurer records payment", callerCtx(RoleTreasurer, true), ActionPaymentRecord, ""},
		{"treasurer cannot create citation", callerCtx(RoleTreasurer, true), ActionCitationCreate, dErrors.CodeForbidden},
		{"officer cannot reverse payment", callerCtx(RoleOfficer, true), ActionPaymentReverse, dErrors.CodeForbidden},
		{"admin reverses payment", callerCtx(RoleAdmin, true), ActionPaymentReverse, ""},
		{"inactive admin", callerCtx(RoleAdmin, false), ActionPaymentReverse, dErrors.CodeUnauthorized},
		{"anonymous", context.Background(), ActionCitationCreate, dErrors.CodeUnauthorized},
		{"unknown action", callerCtx(RoleAdmin, true), "citation.teleport", dErrors.CodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Authorize(tt.ctx, tt.action)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, dErrors.HasCode(err, tt.code), "expected %s, got %v", tt.code, err)
		})
	}
}
