package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	citation "vtrack/internal/citation/models"
	"vtrack/internal/payment/models"
	"vtrack/internal/platform/metrics"
	schedule "vtrack/internal/schedule/models"
	"vtrack/internal/storage/memory"
	user "vtrack/internal/user/models"
	violator "vtrack/internal/violator/models"
	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/pagination"
	"vtrack/pkg/requestcontext"
)

type PaymentServiceSuite struct {
	suite.Suite
	ctx        context.Context
	db         *memory.DB
	metrics    *metrics.Metrics
	service    *Service
	citationID uuid.UUID
}

func TestPaymentServiceSuite(t *testing.T) {
	suite.Run(t, new(PaymentServiceSuite))
}

func (s *PaymentServiceSuite) SetupTest() {
	s.db = memory.New()
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.service = New(s.db.Payments(), s.db.Citations(), s.db, WithEvents(s.db.Outbox()), WithMetrics(s.metrics))

	treasurerID := uuid.New()
	s.ctx = requestcontext.WithCaller(context.Background(), requestcontext.Identity{
		UserID: treasurerID, Role: "treasurer", Active: true,
	})
	s.Require().NoError(s.db.Users().Create(s.ctx, &user.User{
		ID: treasurerID, Email: "t@vtrack.test", FirstName: "Lia", LastName: "Santos", Role: "treasurer", IsActive: true,
	}))
	s.citationID = s.seedCitation(treasurerID)
}

// seedCitation writes a 1250 citation for Illegal Parking First and Second Offense.
func (s *PaymentServiceSuite) seedCitation(officerID uuid.UUID) uuid.UUID {
	violatorID, typeID := uuid.New(), uuid.New()
	s.Require().NoError(s.db.Violators().Create(s.ctx, &violator.Violator{
		ID: violatorID, LicenseNumber: violatorID.String(), FirstName: "Juan", LastName: "Dela Cruz",
	}))
	vt, err := schedule.NewViolationType(typeID, "Illegal Parking", schedule.LevelMinor, decimal.NewFromInt(500), "", time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.db.Schedule().CreateType(s.ctx, vt, schedule.BuildTiers(typeID, vt.BasePenalty)))

	draft := citation.NewDraft(uuid.New(), violatorID, officerID, "Rizal Avenue", time.Now(), citation.Details{}, nil, time.Now())
	draft.Add(typeID, schedule.TierFirst, decimal.NewFromInt(500))
	draft.Add(typeID, schedule.TierSecond, decimal.NewFromInt(750))
	c, items, err := draft.Finish()
	s.Require().NoError(err)
	s.Require().NoError(s.db.Citations().Create(s.ctx, c, items))
	return c.ID
}

func (s *PaymentServiceSuite) record(receipt string) (*models.View, error) {
	return s.service.Record(s.ctx, models.RecordRequest{
		CitationID: s.citationID,
		ReceiptNo:  receipt,
		Amount:     decimal.NewFromInt(1250),
		Method:     models.MethodCash,
		PaidAt:     time.Now(),
	})
}

func (s *PaymentServiceSuite) citationStatus() citation.Status {
	c, err := s.db.Citations().Find(s.ctx, s.citationID)
	s.Require().NoError(err)
	return c.Status
}

func (s *PaymentServiceSuite) TestRecordMarksCitationPaid() {
	view, err := s.record("R-100")
	s.Require().NoError(err)

	s.Equal(citation.StatusPaid, s.citationStatus())
	s.Equal(citation.StatusPaid, view.CitationStatus)
	s.True(view.CitationTotal.Equal(decimal.NewFromInt(1250)))
	s.Equal("Juan Dela Cruz", view.ViolatorName)
	s.Equal("Lia Santos", view.ProcessedByName)
	s.Contains(s.db.Outbox().EventTypes(s.ctx), "payment.recorded")
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.PaymentsRecorded))

	cv, err := s.db.Citations().FindView(s.ctx, s.citationID)
	s.Require().NoError(err)
	s.Require().NotNil(cv.Payment)
	s.Equal("R-100", cv.Payment.ReceiptNo)
}

func (s *PaymentServiceSuite) TestSecondPaymentConflicts() {
	_, err := s.record("R-100")
	s.Require().NoError(err)

	for attempt := range 3 {
		_, err = s.record(fmt.Sprintf("R-10%d", attempt+1))
		s.True(dErrors.HasCode(err, dErrors.CodeConflict), "attempt %d", attempt)
	}
	page, err := s.service.List(s.ctx, models.ListFilter{CitationID: s.citationID, Page: pagination.Params{Page: 1, Limit: 10}})
	s.Require().NoError(err)
	s.Equal(1, page.Meta.TotalItems)
}

func (s *PaymentServiceSuite) TestReverseRestoresPending() {
	view, err := s.record("R-100")
	s.Require().NoError(err)

	s.Require().NoError(s.service.Reverse(s.ctx, view.ID))
	s.Equal(citation.StatusPending, s.citationStatus())
	s.Contains(s.db.Outbox().EventTypes(s.ctx), "payment.reversed")

	_, err = s.service.Get(s.ctx, view.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.record("R-200")
	s.Require().NoError(err)
	s.Equal(citation.StatusPaid, s.citationStatus())
}

func (s *PaymentServiceSuite) TestReverseResetsOverdueToPending() {
	s.Require().NoError(s.db.Citations().SetStatus(s.ctx, s.citationID, citation.StatusOverdue, time.Now()))
	view, err := s.record("R-100")
	s.Require().NoError(err)

	s.Require().NoError(s.service.Reverse(s.ctx, view.ID))
	s.Equal(citation.StatusPending, s.citationStatus())
}

func (s *PaymentServiceSuite) TestReverseUnknownPayment() {
	err := s.service.Reverse(s.ctx, uuid.New())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *PaymentServiceSuite) TestDuplicateReceiptAcrossCitations() {
	_, err := s.record("R-100")
	s.Require().NoError(err)

	other := s.seedCitation(requestcontext.UserID(s.ctx))
	_, err = s.service.Record(s.ctx, models.RecordRequest{
		CitationID: other, ReceiptNo: "R-100", Amount: decimal.NewFromInt(1), Method: models.MethodCheck, PaidAt: time.Now(),
	})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	c, err := s.db.Citations().Find(s.ctx, other)
	s.Require().NoError(err)
	s.Equal(citation.StatusPending, c.Status)
}

func (s *PaymentServiceSuite) TestRecordPreconditions() {
	cases := []struct {
		name string
		req  models.RecordRequest
		code dErrors.Code
	}{
		{"unknown citation", models.RecordRequest{CitationID: uuid.New(), ReceiptNo: "R-1", Amount: decimal.NewFromInt(1), Method: models.MethodCash, PaidAt: time.Now()}, dErrors.CodeNotFound},
		{"zero amount", models.RecordRequest{CitationID: s.citationID, ReceiptNo: "R-1", Amount: decimal.Zero, Method: models.MethodCash, PaidAt: time.Now()}, dErrors.CodeInvalidArgument},
		{"bad method", models.RecordRequest{CitationID: s.citationID, ReceiptNo: "R-1", Amount: decimal.NewFromInt(1), Method: "Barter", PaidAt: time.Now()}, dErrors.CodeInvalidArgument},
		{"missing receipt", models.RecordRequest{CitationID: s.citationID, Amount: decimal.NewFromInt(1), Method: models.MethodCash, PaidAt: time.Now()}, dErrors.CodeInvalidArgument},
		{"missing date", models.RecordRequest{CitationID: s.citationID, ReceiptNo: "R-1", Amount: decimal.NewFromInt(1), Method: models.MethodCash}, dErrors.CodeInvalidArgument},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.service.Record(s.ctx, tc.req)
			s.True(dErrors.HasCode(err, tc.code), "got %v", err)
		})
	}
	s.Equal(citation.StatusPending, s.citationStatus())
}

func (s *PaymentServiceSuite) TestCancelledCitationCannotBePaid() {
	s.Require().NoError(s.db.Citations().SetStatus(s.ctx, s.citationID, citation.StatusCancelled, time.Now()))
	_, err := s.record("R-100")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *PaymentServiceSuite) TestConcurrentRecordsOnlyOneSucceeds() {
	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.record(fmt.Sprintf("R-%03d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, succeeded)
	s.Equal(workers-1, conflicts)
	s.Equal(citation.StatusPaid, s.citationStatus())
}

func (s *PaymentServiceSuite) TestUpdateRechecksReceipt() {
	first, err := s.record("R-100")
	s.Require().NoError(err)
	other := s.seedCitation(requestcontext.UserID(s.ctx))
	_, err = s.service.Record(s.ctx, models.RecordRequest{
		CitationID: other, ReceiptNo: "R-200", Amount: decimal.NewFromInt(1250), Method: models.MethodOnline, PaidAt: time.Now(),
	})
	s.Require().NoError(err)

	taken := "R-200"
	_, err = s.service.Update(s.ctx, first.ID, models.UpdateRequest{ReceiptNo: &taken})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	same := "R-100"
	notes := "corrected amount"
	amount := decimal.NewFromInt(1200)
	updated, err := s.service.Update(s.ctx, first.ID, models.UpdateRequest{ReceiptNo: &same, Amount: &amount, Notes: &notes})
	s.Require().NoError(err)
	s.True(updated.Amount.Equal(amount))
	s.Equal(s.citationID, updated.CitationID)
}

func (s *PaymentServiceSuite) TestListRejectsUnknownMethod() {
	_, err := s.service.List(s.ctx, models.ListFilter{Method: "Barter", Page: pagination.Params{Page: 1, Limit: 10}})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))
}
