//go:build integration

package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	citation "vtrack/internal/citation/models"
	citationservice "vtrack/internal/citation/service"
	citationstore "vtrack/internal/citation/store"
	"vtrack/internal/guard"
	"vtrack/internal/outbox"
	"vtrack/internal/payment/models"
	paymentstore "vtrack/internal/payment/store"
	"vtrack/internal/platform/postgres"
	schedule "vtrack/internal/schedule/models"
	scheduleservice "vtrack/internal/schedule/service"
	schedulestore "vtrack/internal/schedule/store"
	user "vtrack/internal/user/models"
	userstore "vtrack/internal/user/store"
	violator "vtrack/internal/violator/models"
	violatorservice "vtrack/internal/violator/service"
	violatorstore "vtrack/internal/violator/store"
	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/requestcontext"
	"vtrack/pkg/testutil/containers"
)

// PostgresLedgerSuite runs the ledger against real row locks and constraints.
type PostgresLedgerSuite struct {
	suite.Suite
	pg        *containers.PostgresContainer
	citations *citationstore.PostgresStore
	outbox    *outbox.PostgresStore
	schedule  *scheduleservice.Service
	violators *violatorservice.Service
	builder   *citationservice.Service
	ledger    *Service
	ctx       context.Context
}

func TestPostgresLedgerSuite(t *testing.T) {
	suite.Run(t, new(PostgresLedgerSuite))
}

func (s *PostgresLedgerSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	db := s.pg.DB
	tx := postgres.NewTxRunner(db, 5*time.Second)
	g := guard.New(guard.NewPostgresChecker(db))

	s.citations = citationstore.NewPostgres(db)
	s.outbox = outbox.NewPostgresStore(db)
	s.schedule = scheduleservice.New(schedulestore.NewPostgres(db), tx, g)
	s.violators = violatorservice.New(violatorstore.NewPostgres(db), tx, g)
	s.builder = citationservice.New(s.citations, tx, g, s.schedule, s.violators, citationservice.WithEvents(s.outbox))
	s.ledger = New(paymentstore.NewPostgres(db), s.citations, tx, WithEvents(s.outbox))
}

func (s *PostgresLedgerSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.pg.TruncateTables(ctx,
		"outbox", "payments", "citation_line_items", "citations", "penalty_tiers", "violation_types",
		"violators", "users", "teams", "locations"))

	officerID := uuid.New()
	s.ctx = requestcontext.WithCaller(ctx, requestcontext.Identity{UserID: officerID, Role: "officer", Active: true})
	s.Require().NoError(userstore.NewPostgres(s.pg.DB).Create(s.ctx, &user.User{
		ID: officerID, Email: "officer@vtrack.test", PasswordHash: "x", FirstName: "Ana", LastName: "Reyes",
		Role: "officer", IsActive: true, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))
}

func (s *PostgresLedgerSuite) newCitation() *citation.View {
	vt, err := s.schedule.CreateType(s.ctx, schedule.CreateTypeRequest{
		Name: "Illegal Parking", Level: schedule.LevelMinor, Penalty: decimal.NewFromInt(500),
	})
	s.Require().NoError(err)

	v, err := s.violators.Create(s.ctx, violator.CreateRequest{
		LicenseNumber: "N01-" + uuid.NewString()[:8], ContactNo: "09171234567", FirstName: "Juan", LastName: "Dela Cruz",
		Gender: violator.GenderMale, Address: "Quezon City", Age: 34, DateOfBirth: "1991-04-02",
	})
	s.Require().NoError(err)

	c, err := s.builder.Create(s.ctx, citation.CreateRequest{
		ViolatorID: v.ID,
		Location:   "EDSA corner Ortigas",
		Violations: []citation.LineItemRequest{
			{ViolationTypeID: vt.ID, Tier: schedule.TierFirst},
			{ViolationTypeID: vt.ID, Tier: schedule.TierThird},
		},
	}, nil)
	s.Require().NoError(err)
	return c
}

func (s *PostgresLedgerSuite) TestCitationTotalsAreSnapshotted() {
	c := s.newCitation()
	s.True(c.TotalAmount.Equal(decimal.NewFromInt(1500)))
	s.Require().Len(c.LineItems, 2)
	s.Equal(citation.StatusPending, c.Status)
}

func (s *PostgresLedgerSuite) TestConcurrentPaymentsOnlyOneWins() {
	c := s.newCitation()

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := range attempts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.ledger.Record(s.ctx, models.RecordRequest{
				CitationID: c.ID,
				ReceiptNo:  "R-" + uuid.NewString()[:8],
				Amount:     decimal.NewFromInt(1500),
				Method:     models.MethodCash,
				PaidAt:     time.Now(),
			})
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		s.True(dErrors.HasCode(err, dErrors.CodeConflict), "unexpected error: %v", err)
	}
	s.Equal(1, ok)

	stored, err := s.citations.Find(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(citation.StatusPaid, stored.Status)
}

func (s *PostgresLedgerSuite) TestReverseReturnsCitationToPending() {
	c := s.newCitation()
	p, err := s.ledger.Record(s.ctx, models.RecordRequest{
		CitationID: c.ID, ReceiptNo: "R-1", Amount: decimal.NewFromInt(1500), Method: models.MethodBankTransfer, PaidAt: time.Now(),
	})
	s.Require().NoError(err)

	admin := requestcontext.WithCaller(context.Background(), requestcontext.Identity{UserID: uuid.New(), Role: "admin", Active: true})
	s.Require().NoError(s.ledger.Reverse(admin, p.ID))

	stored, err := s.citations.Find(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(citation.StatusPending, stored.Status)

	events, err := s.outbox.FetchUnpublished(s.ctx, 100)
	s.Require().NoError(err)
	var types []string
	for _, e := range events {
		types = append(types, e.EventType)
	}
	s.Contains(types, "citation.created")
	s.Contains(types, "payment.recorded")
	s.Contains(types, "payment.reversed")
}

func (s *PostgresLedgerSuite) TestDuplicateReceiptConflicts() {
	first, second := s.newCitation(), s.newCitation()
	req := models.RecordRequest{ReceiptNo: "R-DUP", Amount: decimal.NewFromInt(1500), Method: models.MethodCash, PaidAt: time.Now()}

	req.CitationID = first.ID
	_, err := s.ledger.Record(s.ctx, req)
	s.Require().NoError(err)

	req.CitationID = second.ID
	_, err = s.ledger.Record(s.ctx, req)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}
