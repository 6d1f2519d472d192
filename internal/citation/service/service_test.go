package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"vtrack/internal/citation/models"
	"vtrack/internal/evidence"
	evidencemocks "vtrack/internal/evidence/mocks"
	"vtrack/internal/guard"
	payment "vtrack/internal/payment/models"
	"vtrack/internal/platform/metrics"
	schedule "vtrack/internal/schedule/models"
	schedulesvc "vtrack/internal/schedule/service"
	"vtrack/internal/storage/memory"
	user "vtrack/internal/user/models"
	violator "vtrack/internal/violator/models"
	violatorsvc "vtrack/internal/violator/service"
	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/pagination"
	"vtrack/pkg/requestcontext"
)

type CitationServiceSuite struct {
	suite.Suite
	ctx        context.Context
	db         *memory.DB
	schedule   *schedulesvc.Service
	violators  *violatorsvc.Service
	metrics    *metrics.Metrics
	service    *Service
	officerID  uuid.UUID
	violatorID uuid.UUID
	parking    *schedule.TypeWithTiers
}

func TestCitationServiceSuite(t *testing.T) {
	suite.Run(t, new(CitationServiceSuite))
}

func (s *CitationServiceSuite) SetupTest() {
	s.db = memory.New()
	g := guard.New(s.db.References())
	s.schedule = schedulesvc.New(s.db.Schedule(), s.db, g)
	s.violators = violatorsvc.New(s.db.Violators(), s.db, g)
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.service = s.newService()

	s.officerID = uuid.New()
	s.violatorID = uuid.New()
	s.ctx = requestcontext.WithCaller(context.Background(), requestcontext.Identity{
		UserID: s.officerID, Role: "officer", Active: true,
	})
	s.Require().NoError(s.db.Users().Create(s.ctx, &user.User{
		ID: s.officerID, Email: "ana@vtrack.test", FirstName: "Ana", LastName: "Reyes", Role: "officer", IsActive: true,
	}))
	s.Require().NoError(s.db.Violators().Create(s.ctx, &violator.Violator{
		ID: s.violatorID, LicenseNumber: "N01-23-456789", FirstName: "Juan", LastName: "Dela Cruz",
	}))

	var err error
	s.parking, err = s.schedule.CreateType(s.ctx, schedule.CreateTypeRequest{
		Name: "Illegal Parking", Level: schedule.LevelMinor, Penalty: decimal.NewFromInt(500),
	})
	s.Require().NoError(err)
}

func (s *CitationServiceSuite) newService(opts ...Option) *Service {
	opts = append([]Option{WithEvents(s.db.Outbox()), WithMetrics(s.metrics)}, opts...)
	return New(s.db.Citations(), s.db, guard.New(s.db.References()), s.schedule, s.violators, opts...)
}

func (s *CitationServiceSuite) request(items ...models.LineItemRequest) models.CreateRequest {
	return models.CreateRequest{
		ViolatorID: s.violatorID,
		Location:   "Rizal Avenue",
		Date:       "2026-03-14T09:30:00Z",
		Violations: items,
		Details:    models.Details{PlateNo: "ABC 1234"},
	}
}

func (s *CitationServiceSuite) item(tier schedule.Tier) models.LineItemRequest {
	return models.LineItemRequest{ViolationTypeID: s.parking.ID, Tier: tier}
}

func (s *CitationServiceSuite) countCitations() int {
	n, err := s.db.Citations().Count(s.ctx, models.ListFilter{})
	s.Require().NoError(err)
	return n
}

func (s *CitationServiceSuite) TestCreateSumsResolvedTiers() {
	view, err := s.service.Create(s.ctx, s.request(s.item(schedule.TierFirst), s.item(schedule.TierSecond)), nil)
	s.Require().NoError(err)

	s.Equal(models.StatusPending, view.Status)
	s.True(view.TotalAmount.Equal(decimal.NewFromInt(1250)), "total %s", view.TotalAmount)
	s.Equal(s.officerID, view.OfficerID)
	s.Equal("Juan Dela Cruz", view.ViolatorName)
	s.Equal("Ana Reyes", view.OfficerName)
	s.Equal(2, view.ViolationsCount)
	s.Require().Len(view.LineItems, 2)
	s.True(view.LineItems[0].AppliedPenalty.Equal(decimal.NewFromInt(500)))
	s.True(view.LineItems[1].AppliedPenalty.Equal(decimal.NewFromInt(750)))
	s.Equal("Illegal Parking", view.LineItems[0].ViolationName)
	s.Nil(view.Payment)
	s.True(view.IssuedAt.Equal(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)))

	s.Contains(s.db.Outbox().EventTypes(s.ctx), "citation.created")
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.CitationsCreated))
}

func (s *CitationServiceSuite) TestCreateWithUnresolvablePairPersistsNothing() {
	unknown := models.LineItemRequest{ViolationTypeID: uuid.New(), Tier: schedule.TierFirst}
	_, err := s.service.Create(s.ctx, s.request(s.item(schedule.TierFirst), unknown, s.item(schedule.TierThird)), nil)

	s.Require().True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Contains(err.Error(), unknown.ViolationTypeID.String())
	s.Zero(s.countCitations())
	referenced, err := s.db.References().Exists(s.ctx, guard.ViolationTypeLineItems, s.parking.ID)
	s.Require().NoError(err)
	s.False(referenced, "no orphaned line items")
	s.NotContains(s.db.Outbox().EventTypes(s.ctx), "citation.created")
}

func (s *CitationServiceSuite) TestCreatePreconditions() {
	cases := []struct {
		name string
		req  models.CreateRequest
		code dErrors.Code
	}{
		{"no violations", s.request(), dErrors.CodeInvalidArgument},
		{"missing location", func() models.CreateRequest {
			r := s.request(s.item(schedule.TierFirst))
			r.Location = "  "
			return r
		}(), dErrors.CodeInvalidArgument},
		{"bad tier", s.request(models.LineItemRequest{ViolationTypeID: s.parking.ID, Tier: "Fourth Offense"}), dErrors.CodeInvalidArgument},
		{"bad date", func() models.CreateRequest {
			r := s.request(s.item(schedule.TierFirst))
			r.Date = "yesterday"
			return r
		}(), dErrors.CodeInvalidArgument},
		{"unknown violator", func() models.CreateRequest {
			r := s.request(s.item(schedule.TierFirst))
			r.ViolatorID = uuid.New()
			return r
		}(), dErrors.CodeNotFound},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.service.Create(s.ctx, tc.req, nil)
			s.True(dErrors.HasCode(err, tc.code), "got %v", err)
		})
	}
	s.Zero(s.countCitations())
}

func (s *CitationServiceSuite) TestCreateRequiresCaller() {
	_, err := s.service.Create(context.Background(), s.request(s.item(schedule.TierFirst)), nil)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *CitationServiceSuite) TestLineItemsKeepPenaltyAfterScheduleChange() {
	view, err := s.service.Create(s.ctx, s.request(s.item(schedule.TierThird)), nil)
	s.Require().NoError(err)

	raised := decimal.NewFromInt(800)
	_, err = s.schedule.UpdateType(s.ctx, s.parking.ID, schedule.UpdateTypeRequest{Penalty: &raised})
	s.Require().NoError(err)

	again, err := s.service.Get(s.ctx, view.ID)
	s.Require().NoError(err)
	s.True(again.TotalAmount.Equal(decimal.NewFromInt(1000)))
	s.True(again.LineItems[0].AppliedPenalty.Equal(decimal.NewFromInt(1000)))
}

func (s *CitationServiceSuite) TestGetIsStable() {
	view, err := s.service.Create(s.ctx, s.request(s.item(schedule.TierFirst)), nil)
	s.Require().NoError(err)

	first, err := s.service.Get(s.ctx, view.ID)
	s.Require().NoError(err)
	second, err := s.service.Get(s.ctx, view.ID)
	s.Require().NoError(err)
	s.Equal(first, second)

	_, err = s.service.Get(s.ctx, uuid.New())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *CitationServiceSuite) TestListFiltersByStatus() {
	for range 3 {
		_, err := s.service.Create(s.ctx, s.request(s.item(schedule.TierFirst)), nil)
		s.Require().NoError(err)
	}
	cancelled := models.StatusCancelled
	page, err := s.service.List(s.ctx, models.ListFilter{Page: pagination.Params{Page: 1, Limit: 10}})
	s.Require().NoError(err)
	s.Require().Len(page.Items, 3)
	_, err = s.service.Update(s.ctx, page.Items[0].ID, models.UpdateRequest{Status: &cancelled})
	s.Require().NoError(err)

	page, err = s.service.List(s.ctx, models.ListFilter{Status: models.StatusPending, Page: pagination.Params{Page: 1, Limit: 1}})
	s.Require().NoError(err)
	s.Equal(2, page.Meta.TotalItems)
	s.Equal(2, page.Meta.TotalPages)
	s.True(page.Meta.HasNextPage)

	_, err = s.service.List(s.ctx, models.ListFilter{Status: "Lost", Page: pagination.Params{Page: 1, Limit: 10}})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))
}

func (s *CitationServiceSuite) TestUpdateNeverSetsPaid() {
	view, err := s.service.Create(s.ctx, s.request(s.item(schedule.TierFirst)), nil)
	s.Require().NoError(err)

	paid := models.StatusPaid
	_, err = s.service.Update(s.ctx, view.ID, models.UpdateRequest{Status: &paid})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))

	note := "  driver cooperative "
	updated, err := s.service.Update(s.ctx, view.ID, models.UpdateRequest{OfficersNote: &note})
	s.Require().NoError(err)
	s.Equal("driver cooperative", updated.OfficersNote)
	s.True(updated.TotalAmount.Equal(view.TotalAmount))
}

func (s *CitationServiceSuite) TestDeleteGuardedByPayment() {
	view, err := s.service.Create(s.ctx, s.request(s.item(schedule.TierFirst)), nil)
	s.Require().NoError(err)
	s.Require().NoError(s.db.Payments().Create(s.ctx, &payment.Payment{
		ID: uuid.New(), CitationID: view.ID, ReceiptNo: "R-1", Amount: decimal.NewFromInt(500),
		Method: payment.MethodCash, PaidAt: time.Now(), ProcessedBy: s.officerID,
	}))

	err = s.service.Delete(s.ctx, view.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	_, err = s.service.Get(s.ctx, view.ID)
	s.NoError(err)
}

func (s *CitationServiceSuite) TestDeleteRemovesCitationAndItems() {
	view, err := s.service.Create(s.ctx, s.request(s.item(schedule.TierFirst)), nil)
	s.Require().NoError(err)

	s.Require().NoError(s.service.Delete(s.ctx, view.ID))
	_, err = s.service.Get(s.ctx, view.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Require().NoError(s.schedule.DeleteType(s.ctx, s.parking.ID), "type is free once its line items are gone")
	s.Contains(s.db.Outbox().EventTypes(s.ctx), "citation.deleted")

	err = s.service.Delete(s.ctx, view.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *CitationServiceSuite) TestEvidenceMetadataIsPersisted() {
	ctrl := gomock.NewController(s.T())
	blobs := evidencemocks.NewMockStore(ctrl)
	svc := s.newService(WithEvidence(blobs, evidence.Limits{MaxFiles: 2, MaxBytes: 1024}))

	blobs.EXPECT().Put(gomock.Any(), gomock.Any()).Return(evidence.Stored{Key: "evidence-1-a.jpg", Path: "/uploads/evidence-1-a.jpg", Size: 3}, nil)
	view, err := svc.Create(s.ctx, s.request(s.item(schedule.TierFirst)), []evidence.Upload{
		{Name: "scene.jpg", ContentType: "image/jpeg", Size: 3, Body: strings.NewReader("abc")},
	})
	s.Require().NoError(err)

	files, err := svc.Evidences(s.ctx, view.ID)
	s.Require().NoError(err)
	s.Require().Len(files, 1)
	s.Equal("scene.jpg", files[0].OriginalName)
	s.Equal("evidence-1-a.jpg", files[0].StoredName)
	s.Equal("image/jpeg", files[0].Mime)
}

func (s *CitationServiceSuite) TestFailedCreateRemovesStoredEvidence() {
	ctrl := gomock.NewController(s.T())
	blobs := evidencemocks.NewMockStore(ctrl)
	svc := s.newService(WithEvidence(blobs, evidence.Limits{MaxFiles: 2}))

	gomock.InOrder(
		blobs.EXPECT().Put(gomock.Any(), gomock.Any()).Return(evidence.Stored{Key: "evidence-1-a.png"}, nil),
		blobs.EXPECT().Delete(gomock.Any(), "evidence-1-a.png").Return(nil),
	)
	req := s.request(models.LineItemRequest{ViolationTypeID: uuid.New(), Tier: schedule.TierFirst})
	_, err := svc.Create(s.ctx, req, []evidence.Upload{
		{Name: "scene.png", ContentType: "image/png", Body: strings.NewReader("png")},
	})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Zero(s.countCitations())
}

func (s *CitationServiceSuite) TestPartialEvidenceFailureCleansUp() {
	ctrl := gomock.NewController(s.T())
	blobs := evidencemocks.NewMockStore(ctrl)
	svc := s.newService(WithEvidence(blobs, evidence.Limits{MaxFiles: 3}))

	blobs.EXPECT().Put(gomock.Any(), gomock.Any()).Return(evidence.Stored{Key: "first.pdf"}, nil)
	blobs.EXPECT().Put(gomock.Any(), gomock.Any()).Return(evidence.Stored{}, errors.New("disk full"))
	blobs.EXPECT().Delete(gomock.Any(), "first.pdf").Return(nil)

	uploads := []evidence.Upload{
		{Name: "a.pdf", ContentType: "application/pdf", Body: strings.NewReader("1")},
		{Name: "b.pdf", ContentType: "application/pdf", Body: strings.NewReader("2")},
	}
	_, err := svc.Create(s.ctx, s.request(s.item(schedule.TierFirst)), uploads)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Zero(s.countCitations())
}

func (s *CitationServiceSuite) TestUploadsRejectedWithoutEvidenceStore() {
	_, err := s.service.Create(s.ctx, s.request(s.item(schedule.TierFirst)), []evidence.Upload{
		{Name: "scene.png", ContentType: "image/png", Body: strings.NewReader("png")},
	})
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}
