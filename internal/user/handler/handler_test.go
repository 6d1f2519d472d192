package handler

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"vtrack/internal/authz"
	"vtrack/internal/guard"
	"vtrack/internal/platform/logger"
	"vtrack/internal/storage/memory"
	"vtrack/internal/user/models"
	"vtrack/internal/user/service"
	"vtrack/pkg/testutil"
)

type fixture struct {
	router  http.Handler
	adminID uuid.UUID
	officer *models.View
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memory.New()
	svc := service.New(db.Users(), db, guard.New(db.References()), service.WithTeams(db.Org()), service.WithHashCost(bcrypt.MinCost))
	f := &fixture{adminID: uuid.New()}
	ctx := testutil.CallerContext(f.adminID, authz.RoleAdmin)
	require.NoError(t, db.Users().Create(ctx, &models.User{ID: f.adminID, Email: "admin@vtrack.test", FirstName: "Ada", LastName: "Admin", Role: authz.RoleAdmin, IsActive: true}))

	officer, err := svc.Register(ctx, models.RegisterRequest{Email: "officer@vtrack.test", Password: "secret1", FirstName: "Ana", LastName: "Reyes", Role: authz.RoleOfficer})
	require.NoError(t, err)
	f.officer = officer

	r := chi.NewRouter()
	New(svc, logger.Discard(), authz.NewPolicy()).Register(r)
	f.router = r
	return f
}

func (f *fixture) asOfficer(req *http.Request) *http.Request {
	return testutil.WithCaller(req, f.officer.ID, authz.RoleOfficer)
}

func (f *fixture) asAdmin(req *http.Request) *http.Request {
	return testutil.WithCaller(req, f.adminID, authz.RoleAdmin)
}

func TestOfficerSeesOnlySelf(t *testing.T) {
	f := newFixture(t)

	rr := testutil.DoRequest(f.router, f.asOfficer(testutil.NewRequest(t, http.MethodGet, "/users/"+f.officer.ID.String())))
	testutil.AssertStatusOK(t, rr)
	assert.NotContains(t, rr.Body.String(), "password")

	rr = testutil.DoRequest(f.router, f.asOfficer(testutil.NewRequest(t, http.MethodGet, "/users/"+f.adminID.String())))
	testutil.AssertStatus(t, rr, http.StatusForbidden)

	rr = testutil.DoRequest(f.router, f.asOfficer(testutil.NewRequest(t, http.MethodGet, "/users")))
	testutil.AssertStatus(t, rr, http.StatusForbidden)
}

func TestSelfUpdateCannotDeactivate(t *testing.T) {
	f := newFixture(t)
	path := "/users/" + f.officer.ID.String()

	rr := testutil.DoRequest(f.router, f.asOfficer(testutil.NewJSONRequest(t, http.MethodPut, path, map[string]any{"is_active": false})))
	testutil.AssertStatus(t, rr, http.StatusForbidden)

	rr = testutil.DoRequest(f.router, f.asOfficer(testutil.NewJSONRequest(t, http.MethodPut, path, map[string]any{"badge_number": "B-77"})))
	testutil.AssertStatusOK(t, rr)
	assert.Equal(t, "B-77", testutil.DecodeData[models.View](t, rr).BadgeNumber)

	rr = testutil.DoRequest(f.router, f.asAdmin(testutil.NewJSONRequest(t, http.MethodPut, path, map[string]any{"is_active": false})))
	testutil.AssertStatusOK(t, rr)
	assert.False(t, testutil.DecodeData[models.View](t, rr).IsActive)
}

func TestAdminListAndDelete(t *testing.T) {
	f := newFixture(t)

	rr := testutil.DoRequest(f.router, f.asAdmin(testutil.NewRequest(t, http.MethodGet, "/users?role=officer&is_active=true")))
	testutil.AssertStatusOK(t, rr)
	users := testutil.DecodeData[[]models.View](t, rr)
	require.Len(t, users, 1)
	assert.Equal(t, f.officer.ID, users[0].ID)

	rr = testutil.DoRequest(f.router, f.asAdmin(testutil.NewRequest(t, http.MethodGet, "/users?is_active=maybe")))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)

	rr = testutil.DoRequest(f.router, f.asAdmin(testutil.NewRequest(t, http.MethodDelete, "/users/"+f.adminID.String())))
	testutil.AssertStatusAndError(t, rr, http.StatusConflict, "conflict")

	rr = testutil.DoRequest(f.router, f.asAdmin(testutil.NewRequest(t, http.MethodDelete, "/users/"+f.officer.ID.String())))
	testutil.AssertStatusOK(t, rr)

	rr = testutil.DoRequest(f.router, f.asAdmin(testutil.NewRequest(t, http.MethodGet, "/users/"+f.officer.ID.String())))
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}
