package httptransport

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	authhandler "vtrack/internal/auth/handler"
	"vtrack/internal/auth/revocation"
	authservice "vtrack/internal/auth/service"
	"vtrack/internal/auth/token"
	"vtrack/internal/authz"
	"vtrack/internal/guard"
	"vtrack/internal/platform/logger"
	"vtrack/internal/platform/metrics"
	schedulehandler "vtrack/internal/schedule/handler"
	scheduleservice "vtrack/internal/schedule/service"
	"vtrack/internal/storage/memory"
	user "vtrack/internal/user/models"
	userservice "vtrack/internal/user/service"
	"vtrack/pkg/testutil"
)

type fixture struct {
	router http.Handler
	down   bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memory.New()
	log := logger.Discard()
	policy := authz.NewPolicy()
	g := guard.New(db.References())

	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	require.NoError(t, err)
	adminID := uuid.New()
	require.NoError(t, db.Users().Create(testutil.CallerContext(adminID, authz.RoleAdmin), &user.User{
		ID: adminID, Email: "admin@vtrack.test", PasswordHash: string(hash), FirstName: "Ada", LastName: "Admin", Role: authz.RoleAdmin, IsActive: true,
	}))

	tokens := token.New("router-test-key", "vtrack-test", time.Hour)
	trl := revocation.NewMemory()
	users := userservice.New(db.Users(), db, g, userservice.WithHashCost(bcrypt.MinCost))
	auth := authhandler.New(authservice.New(users, tokens, trl, log), log, policy)
	schedule := schedulehandler.New(scheduleservice.New(db.Schedule(), db, g), log, policy)

	reg := prometheus.NewRegistry()
	f := &fixture{}
	f.router = NewRouter(Config{
		Logger:         log,
		Metrics:        metrics.NewWithRegisterer(reg),
		Gatherer:       reg,
		Tokens:         tokens,
		Revocations:    trl,
		RequestTimeout: 5 * time.Second,
		Health: map[string]HealthCheck{
			"database": func(context.Context) error {
				if f.down {
					return errors.New("connection refused")
				}
				return nil
			},
		},
	}, []PublicRoutes{auth}, []Routes{auth, schedule})
	return f
}

func (f *fixture) login(t *testing.T) string {
	t.Helper()
	rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": "admin@vtrack.test", "password": "admin123"}))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return testutil.DecodeData[authservice.LoginResult](t, rr).Token
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newFixture(t)
	rr := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/api/v1/violation-types"))
	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")

	req := testutil.NewRequest(t, http.MethodGet, "/api/v1/violation-types")
	req.Header.Set("Authorization", "Bearer "+f.login(t))
	rr = testutil.DoRequest(f.router, req)
	testutil.AssertStatusOK(t, rr)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestRequestIDIsPropagated(t *testing.T) {
	f := newFixture(t)
	req := testutil.NewRequest(t, http.MethodGet, "/api/health")
	req.Header.Set("X-Request-ID", "req-42")
	rr := testutil.DoRequest(f.router, req)
	assert.Equal(t, "req-42", rr.Header().Get("X-Request-ID"))
}

func TestRejectsUnsupportedContentType(t *testing.T) {
	f := newFixture(t)
	req := testutil.NewRequestWithBody(t, http.MethodPost, "/api/v1/auth/login", "email=a&password=b")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := testutil.DoRequest(f.router, req)
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_argument")
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	rr := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/api/v2/anything"))
	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rr := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/api/health"))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "status", "ok")

	f.down = true
	rr = testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/api/health"))
	testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
	testutil.AssertJSONContains(t, rr, "status", "degraded")
}

func TestMetricsExposeRouteLatency(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	rr := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
	testutil.AssertStatusOK(t, rr)
	body := rr.Body.String()
	assert.Contains(t, body, "vtrack_http_request_duration_seconds")
	assert.Contains(t, body, `route="/api/v1/auth/login"`)
}
