package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"vtrack/internal/guard"
	"vtrack/internal/org/models"
	"vtrack/internal/storage/memory"
	user "vtrack/internal/user/models"
	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/pagination"
)

type OrgServiceSuite struct {
	suite.Suite
	ctx     context.Context
	db      *memory.DB
	service *Service
}

func TestOrgServiceSuite(t *testing.T) {
	suite.Run(t, new(OrgServiceSuite))
}

func (s *OrgServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = memory.New()
	s.service = New(s.db.Org(), s.db, guard.New(s.db.References()), WithEvents(s.db.Outbox()))
}

func (s *OrgServiceSuite) location(name string) *models.Location {
	l, err := s.service.CreateLocation(s.ctx, models.LocationRequest{Name: name, StreetAddress: "1 Rizal Ave"})
	s.Require().NoError(err)
	return l
}

func (s *OrgServiceSuite) TestCreateTeamRequiresExistingLocation() {
	missing := uuid.New()
	_, err := s.service.CreateTeam(s.ctx, models.TeamRequest{Name: "Alpha", LocationID: &missing})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))

	n, err := s.db.Org().CountTeams(s.ctx, models.TeamFilter{})
	s.Require().NoError(err)
	s.Zero(n)

	loc := s.location("Central")
	team, err := s.service.CreateTeam(s.ctx, models.TeamRequest{Name: " Alpha ", LocationID: &loc.ID})
	s.Require().NoError(err)
	s.Equal("Alpha", team.Name)
	s.Equal("Central", team.LocationName)
}

func (s *OrgServiceSuite) TestTeamWithoutLocation() {
	team, err := s.service.CreateTeam(s.ctx, models.TeamRequest{Name: "Roving"})
	s.Require().NoError(err)
	s.Nil(team.LocationID)
	s.Empty(team.LocationName)
}

func (s *OrgServiceSuite) TestDeleteLocationGuardedByTeams() {
	loc := s.location("Central")
	team, err := s.service.CreateTeam(s.ctx, models.TeamRequest{Name: "Alpha", LocationID: &loc.ID})
	s.Require().NoError(err)

	err = s.service.DeleteLocation(s.ctx, loc.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	_, err = s.service.GetLocation(s.ctx, loc.ID)
	s.Require().NoError(err)

	s.Require().NoError(s.service.DeleteTeam(s.ctx, team.ID))
	s.Require().NoError(s.service.DeleteLocation(s.ctx, loc.ID))
	s.Subset(s.db.Outbox().EventTypes(s.ctx), []string{"team.deleted", "location.deleted"})
}

func (s *OrgServiceSuite) TestDeleteTeamGuardedByUsers() {
	team, err := s.service.CreateTeam(s.ctx, models.TeamRequest{Name: "Alpha"})
	s.Require().NoError(err)
	s.Require().NoError(s.db.Users().Create(s.ctx, &user.User{
		ID: uuid.New(), Email: "o@vtrack.test", FirstName: "Ana", LastName: "Reyes", Role: "officer", TeamID: &team.ID, IsActive: true,
	}))

	err = s.service.DeleteTeam(s.ctx, team.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Empty(s.db.Outbox().EventTypes(s.ctx))
}

func (s *OrgServiceSuite) TestDeleteUnknown() {
	s.True(dErrors.HasCode(s.service.DeleteLocation(s.ctx, uuid.New()), dErrors.CodeNotFound))
	s.True(dErrors.HasCode(s.service.DeleteTeam(s.ctx, uuid.New()), dErrors.CodeNotFound))
}

func (s *OrgServiceSuite) TestUpdateTeamMovesLocation() {
	a, b := s.location("North"), s.location("South")
	team, err := s.service.CreateTeam(s.ctx, models.TeamRequest{Name: "Alpha", LocationID: &a.ID})
	s.Require().NoError(err)

	updated, err := s.service.UpdateTeam(s.ctx, team.ID, models.TeamUpdate{LocationID: &b.ID})
	s.Require().NoError(err)
	s.Equal("South", updated.LocationName)

	missing := uuid.New()
	_, err = s.service.UpdateTeam(s.ctx, team.ID, models.TeamUpdate{LocationID: &missing})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))

	_, err = s.service.UpdateTeam(s.ctx, team.ID, models.TeamUpdate{})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))
}

func (s *OrgServiceSuite) TestUpdateLocationValidates() {
	loc := s.location("Central")
	empty := ""
	_, err := s.service.UpdateLocation(s.ctx, loc.ID, models.LocationUpdate{Name: &empty})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))

	got, err := s.service.GetLocation(s.ctx, loc.ID)
	s.Require().NoError(err)
	s.Equal("Central", got.Name)
}

func (s *OrgServiceSuite) TestListTeamsByLocation() {
	a, b := s.location("North"), s.location("South")
	for _, name := range []string{"Alpha", "Bravo"} {
		_, err := s.service.CreateTeam(s.ctx, models.TeamRequest{Name: name, LocationID: &a.ID})
		s.Require().NoError(err)
	}
	_, err := s.service.CreateTeam(s.ctx, models.TeamRequest{Name: "Charlie", LocationID: &b.ID})
	s.Require().NoError(err)

	page, err := s.service.ListTeams(s.ctx, models.TeamFilter{LocationID: a.ID, Page: pagination.Params{Page: 1, Limit: 1}})
	s.Require().NoError(err)
	s.Equal(2, page.Meta.TotalItems)
	s.Equal(2, page.Meta.TotalPages)
	s.Require().Len(page.Items, 1)
	s.Equal("Alpha", page.Items[0].Name)
}
