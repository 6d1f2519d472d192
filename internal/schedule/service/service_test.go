package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	citation "vtrack/internal/citation/models"
	"vtrack/internal/guard"
	"vtrack/internal/schedule/models"
	"vtrack/internal/storage/memory"
	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/pagination"
)

type ScheduleServiceSuite struct {
	suite.Suite
	ctx     context.Context
	db      *memory.DB
	service *Service
}

func TestScheduleServiceSuite(t *testing.T) {
	suite.Run(t, new(ScheduleServiceSuite))
}

func (s *ScheduleServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = memory.New()
	s.service = New(s.db.Schedule(), s.db, guard.New(s.db.References()), WithEvents(s.db.Outbox()))
}

func (s *ScheduleServiceSuite) createType(name string, base int64) *models.TypeWithTiers {
	vt, err := s.service.CreateType(s.ctx, models.CreateTypeRequest{
		Name:    name,
		Level:   models.LevelMinor,
		Penalty: decimal.NewFromInt(base),
	})
	s.Require().NoError(err)
	return vt
}

func (s *ScheduleServiceSuite) TestCreateTypeMaterializesTiers() {
	vt := s.createType("Illegal Parking", 500)

	s.Require().Len(vt.Tiers, 3)
	expected := map[models.Tier]int64{
		models.TierFirst:  500,
		models.TierSecond: 750,
		models.TierThird:  1000,
	}
	for _, tier := range vt.Tiers {
		s.True(tier.Amount.Equal(decimal.NewFromInt(expected[tier.Tier])), "tier %s", tier.Tier)
	}

	amount, err := s.service.Lookup(s.ctx, vt.ID, models.TierSecond)
	s.Require().NoError(err)
	s.True(amount.Equal(decimal.NewFromInt(750)))
	s.Contains(s.db.Outbox().EventTypes(s.ctx), "violation_type.created")
}

func (s *ScheduleServiceSuite) TestCreateTypeRejectsNonPositiveBase() {
	for _, base := range []int64{0, -100} {
		_, err := s.service.CreateType(s.ctx, models.CreateTypeRequest{
			Name:    "Speeding",
			Level:   models.LevelMajor,
			Penalty: decimal.NewFromInt(base),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument), "base %d", base)
	}
	s.Empty(s.db.Outbox().Events(s.ctx))
}

func (s *ScheduleServiceSuite) TestLookupUnknownPair() {
	_, err := s.service.Lookup(s.ctx, uuid.New(), models.TierFirst)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	vt := s.createType("Illegal Parking", 500)
	_, err = s.service.Lookup(s.ctx, vt.ID, models.Tier("Fourth Offense"))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))
}

func (s *ScheduleServiceSuite) TestUpdateTypeRegeneratesTiers() {
	vt := s.createType("Illegal Parking", 500)

	penalty := decimal.NewFromInt(600)
	updated, err := s.service.UpdateType(s.ctx, vt.ID, models.UpdateTypeRequest{Penalty: &penalty})
	s.Require().NoError(err)
	s.True(updated.Tiers[2].Amount.Equal(decimal.NewFromInt(1200)))

	amount, err := s.service.Lookup(s.ctx, vt.ID, models.TierSecond)
	s.Require().NoError(err)
	s.True(amount.Equal(decimal.NewFromInt(900)))
}

func (s *ScheduleServiceSuite) TestUpdateTypeMissing() {
	name := "Renamed"
	_, err := s.service.UpdateType(s.ctx, uuid.New(), models.UpdateTypeRequest{Name: &name})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ScheduleServiceSuite) TestDeleteTypeGuardedByLineItems() {
	used := s.createType("Illegal Parking", 500)
	unused := s.createType("No Helmet", 300)
	s.seedLineItem(used.ID)

	err := s.service.DeleteType(s.ctx, used.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	_, err = s.service.Lookup(s.ctx, used.ID, models.TierFirst)
	s.NoError(err, "tiers must survive a rejected delete")

	s.Require().NoError(s.service.DeleteType(s.ctx, unused.ID))
	_, err = s.service.GetType(s.ctx, unused.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ScheduleServiceSuite) TestListTypesFiltersByLevel() {
	s.createType("Illegal Parking", 500)
	_, err := s.service.CreateType(s.ctx, models.CreateTypeRequest{
		Name: "Reckless Driving", Level: models.LevelSevere, Penalty: decimal.NewFromInt(2000),
	})
	s.Require().NoError(err)

	page, err := pagination.New(1, 10)
	s.Require().NoError(err)
	result, err := s.service.ListTypes(s.ctx, models.ListFilter{Level: models.LevelSevere, Page: page})
	s.Require().NoError(err)
	s.Len(result.Items, 1)
	s.Equal(1, result.Meta.TotalItems)

	_, err = s.service.ListTypes(s.ctx, models.ListFilter{Level: "Trivial", Page: page})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))
}

// seedLineItem stores a citation billing typeID, bypassing the builder.
func (s *ScheduleServiceSuite) seedLineItem(typeID uuid.UUID) {
	now := time.Now()
	violatorID, officerID := uuid.New(), uuid.New()
	seedPeople(s.T(), s.db, violatorID, officerID)

	d := citation.NewDraft(uuid.New(), violatorID, officerID, "Main St", now, citation.Details{}, nil, now)
	d.Add(typeID, models.TierFirst, decimal.NewFromInt(500))
	c, items, err := d.Finish()
	s.Require().NoError(err)
	s.Require().NoError(s.db.Citations().Create(s.ctx, c, items))
}
