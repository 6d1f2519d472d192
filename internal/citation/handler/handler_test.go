package handler

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vtrack/internal/authz"
	"vtrack/internal/citation/models"
	"vtrack/internal/citation/service"
	"vtrack/internal/evidence"
	"vtrack/internal/guard"
	"vtrack/internal/platform/logger"
	schedule "vtrack/internal/schedule/models"
	schedulesvc "vtrack/internal/schedule/service"
	"vtrack/internal/storage/memory"
	user "vtrack/internal/user/models"
	violator "vtrack/internal/violator/models"
	violatorsvc "vtrack/internal/violator/service"
	"vtrack/pkg/testutil"
)

type fixture struct {
	router     http.Handler
	dir        string
	officerID  uuid.UUID
	adminID    uuid.UUID
	violatorID uuid.UUID
	typeID     uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := memory.New()
	g := guard.New(db.References())
	sched := schedulesvc.New(db.Schedule(), db, g)
	violators := violatorsvc.New(db.Violators(), db, g)

	dir := t.TempDir()
	blobs, err := evidence.NewFileStore(dir, 1<<20)
	require.NoError(t, err)
	svc := service.New(db.Citations(), db, g, sched, violators,
		service.WithEvidence(blobs, evidence.Limits{MaxFiles: 3, MaxBytes: 1 << 20}))

	f := &fixture{dir: dir, officerID: uuid.New(), adminID: uuid.New(), violatorID: uuid.New()}
	require.NoError(t, db.Users().Create(ctx, &user.User{ID: f.officerID, Email: "o@vtrack.test", FirstName: "Ana", LastName: "Reyes", Role: authz.RoleOfficer, IsActive: true}))
	require.NoError(t, db.Users().Create(ctx, &user.User{ID: f.adminID, Email: "a@vtrack.test", FirstName: "Ben", LastName: "Cruz", Role: authz.RoleAdmin, IsActive: true}))
	require.NoError(t, db.Violators().Create(ctx, &violator.Violator{ID: f.violatorID, LicenseNumber: "L-1", FirstName: "Juan", LastName: "Dela Cruz"}))
	vt, err := sched.CreateType(ctx, schedule.CreateTypeRequest{Name: "Illegal Parking", Level: schedule.LevelMinor, Penalty: decimal.NewFromInt(500)})
	require.NoError(t, err)
	f.typeID = vt.ID

	r := chi.NewRouter()
	New(svc, logger.Discard(), authz.NewPolicy(), 4<<20).Register(r)
	f.router = r
	return f
}

func (f *fixture) body(tiers ...schedule.Tier) map[string]any {
	violations := make([]map[string]any, 0, len(tiers))
	for _, tier := range tiers {
		violations = append(violations, map[string]any{"violation_type_id": f.typeID, "offense_level": tier})
	}
	return map[string]any{
		"violator_id": f.violatorID,
		"location":    "Rizal Avenue",
		"date":        "2026-03-14",
		"violations":  violations,
		"plate_no":    "ABC 1234",
	}
}

func (f *fixture) do(req *http.Request, userID uuid.UUID, role string) *httptest.ResponseRecorder {
	return testutil.DoRequest(f.router, testutil.WithCaller(req, userID, role))
}

func TestCreateJSON(t *testing.T) {
	f := newFixture(t)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/citations", f.body(schedule.TierFirst, schedule.TierSecond))
	rr := f.do(req, f.officerID, authz.RoleOfficer)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	view := testutil.DecodeData[models.View](t, rr)
	assert.Equal(t, models.StatusPending, view.Status)
	assert.True(t, view.TotalAmount.Equal(decimal.NewFromInt(1250)))
	assert.Equal(t, "Ana Reyes", view.OfficerName)
	assert.Len(t, view.LineItems, 2)
}

func TestCreateRejectedForTreasurer(t *testing.T) {
	f := newFixture(t)
	req := testutil.NewJSONRequest(t, http.MethodPost, "/citations", f.body(schedule.TierFirst))
	rr := f.do(req, uuid.New(), authz.RoleTreasurer)
	testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
}

func TestCreateUnknownPairIsNotFound(t *testing.T) {
	f := newFixture(t)
	body := f.body(schedule.TierFirst)
	body["violations"] = []map[string]any{{"violation_type_id": uuid.New(), "offense_level": schedule.TierFirst}}

	req := testutil.NewJSONRequest(t, http.MethodPost, "/citations", body)
	rr := f.do(req, f.officerID, authz.RoleOfficer)
	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")

	req = testutil.NewRequest(t, http.MethodGet, "/citations")
	rr = f.do(req, f.officerID, authz.RoleOfficer)
	testutil.AssertStatusOK(t, rr)
	assert.Contains(t, rr.Body.String(), `"totalItems":0`)
}

func multipartRequest(t *testing.T, payload string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("payload", payload))
	for name, contentType := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="evidences"; filename=%q`, name))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte("evidence bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/citations", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestCreateMultipartStoresEvidence(t *testing.T) {
	f := newFixture(t)
	req := multipartRequest(t, testutil.MustMarshal(t, f.body(schedule.TierFirst)), map[string]string{"scene.png": "image/png"})
	rr := f.do(req, f.officerID, authz.RoleOfficer)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	view := testutil.DecodeData[models.View](t, rr)

	req = testutil.NewRequest(t, http.MethodGet, "/citations/"+view.ID.String()+"/evidences")
	rr = f.do(req, f.officerID, authz.RoleOfficer)
	testutil.AssertStatusOK(t, rr)
	files := testutil.DecodeData[[]models.EvidenceFile](t, rr)
	require.Len(t, files, 1)
	assert.Equal(t, "scene.png", files[0].OriginalName)
	content, err := os.ReadFile(filepath.Join(f.dir, files[0].StoredName))
	require.NoError(t, err)
	assert.Equal(t, "evidence bytes", string(content))
}

func TestCreateMultipartFailureLeavesNoFiles(t *testing.T) {
	f := newFixture(t)
	body := f.body(schedule.TierFirst)
	body["violator_id"] = uuid.New()

	req := multipartRequest(t, testutil.MustMarshal(t, body), map[string]string{"scene.png": "image/png"})
	rr := f.do(req, f.officerID, authz.RoleOfficer)
	testutil.AssertStatus(t, rr, http.StatusNotFound)

	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateMultipartRejectsExecutable(t *testing.T) {
	f := newFixture(t)
	req := multipartRequest(t, testutil.MustMarshal(t, f.body(schedule.TierFirst)), map[string]string{"run.exe": "application/octet-stream"})
	rr := f.do(req, f.officerID, authz.RoleOfficer)
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_argument")
}

func TestStatusOverrideNeedsAdmin(t *testing.T) {
	f := newFixture(t)
	req := testutil.NewJSONRequest(t, http.MethodPost, "/citations", f.body(schedule.TierFirst))
	rr := f.do(req, f.officerID, authz.RoleOfficer)
	require.Equal(t, http.StatusCreated, rr.Code)
	id := testutil.DecodeData[models.View](t, rr).ID.String()

	req = testutil.NewJSONRequest(t, http.MethodPut, "/citations/"+id, map[string]any{"status": "Cancelled"})
	rr = f.do(req, f.officerID, authz.RoleOfficer)
	testutil.AssertStatus(t, rr, http.StatusForbidden)

	req = testutil.NewJSONRequest(t, http.MethodPut, "/citations/"+id, map[string]any{"officers_note": "towed"})
	rr = f.do(req, f.officerID, authz.RoleOfficer)
	testutil.AssertStatusOK(t, rr)

	req = testutil.NewJSONRequest(t, http.MethodPut, "/citations/"+id, map[string]any{"status": "Cancelled"})
	rr = f.do(req, f.adminID, authz.RoleAdmin)
	testutil.AssertStatusOK(t, rr)
	assert.Equal(t, models.StatusCancelled, testutil.DecodeData[models.View](t, rr).Status)

	req = testutil.NewJSONRequest(t, http.MethodPut, "/citations/"+id, map[string]any{"status": "Paid"})
	rr = f.do(req, f.adminID, authz.RoleAdmin)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestListValidatesQuery(t *testing.T) {
	f := newFixture(t)
	for _, q := range []string{"limit=101", "violator_id=nope", "date_from=yesterday", "status=Lost"} {
		req := testutil.NewRequest(t, http.MethodGet, "/citations?"+q)
		rr := f.do(req, f.officerID, authz.RoleOfficer)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	}
	req := testutil.NewRequest(t, http.MethodGet, "/citations?limit=100&status=Pending&date_from=2026-01-01")
	rr := f.do(req, f.officerID, authz.RoleOfficer)
	testutil.AssertStatusOK(t, rr)
}

func TestDeleteAdminOnly(t *testing.T) {
	f := newFixture(t)
	req := testutil.NewJSONRequest(t, http.MethodPost, "/citations", f.body(schedule.TierFirst))
	rr := f.do(req, f.officerID, authz.RoleOfficer)
	require.Equal(t, http.StatusCreated, rr.Code)
	id := testutil.DecodeData[models.View](t, rr).ID.String()

	rr = f.do(testutil.NewRequest(t, http.MethodDelete, "/citations/"+id), f.officerID, authz.RoleOfficer)
	testutil.AssertStatus(t, rr, http.StatusForbidden)
	rr = f.do(testutil.NewRequest(t, http.MethodDelete, "/citations/"+id), f.adminID, authz.RoleAdmin)
	testutil.AssertStatusOK(t, rr)
	rr = f.do(testutil.NewRequest(t, http.MethodGet, "/citations/"+id), f.adminID, authz.RoleAdmin)
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}
