package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/google/uuid"

	org "vtrack/internal/org/models"
	"vtrack/pkg/platform/sentinel"
)

type OrgStore struct {
	db *DB
}

func (s *OrgStore) CreateLocation(ctx context.Context, l *org.Location) error {
	return s.db.write(ctx, func(t *tables) error {
		if _, ok := t.locations[l.ID]; ok {
			return sentinel.ErrConflict
		}
		t.locations[l.ID] = *l
		return nil
	})
}

func (s *OrgStore) FindLocation(ctx context.Context, id uuid.UUID) (*org.Location, error) {
	var out org.Location
	err := s.db.read(ctx, func(t *tables) error {
		l, ok := t.locations[id]
		if !ok {
			return sentinel.ErrNotFound
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func matchLocation(l org.Location, f org.LocationFilter) bool {
	return f.Search == "" || containsFold(l.Name, f.Search) || containsFold(l.StreetAddress, f.Search)
}

func (s *OrgStore) ListLocations(ctx context.Context, f org.LocationFilter) ([]org.Location, error) {
	var out []org.Location
	err := s.db.read(ctx, func(t *tables) error {
		var all []org.Location
		for _, l := range t.locations {
			if matchLocation(l, f) {
				all = append(all, l)
			}
		}
		slices.SortFunc(all, func(a, b org.Location) int {
			return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID.String(), b.ID.String()))
		})
		start, end := f.Page.Window(len(all))
		out = all[start:end]
		return nil
	})
	return out, err
}

func (s *OrgStore) CountLocations(ctx context.Context, f org.LocationFilter) (int, error) {
	var n int
	err := s.db.read(ctx, func(t *tables) error {
		for _, l := range t.locations {
			if matchLocation(l, f) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *OrgStore) UpdateLocation(ctx context.Context, l *org.Location) error {
	return s.db.write(ctx, func(t *tables) error {
		if _, ok := t.locations[l.ID]; !ok {
			return sentinel.ErrNotFound
		}
		t.locations[l.ID] = *l
		return nil
	})
}

func (s *OrgStore) DeleteLocation(ctx context.Context, id uuid.UUID) error {
	return s.db.write(ctx, func(t *tables) error {
		if _, ok := t.locations[id]; !ok {
			return sentinel.ErrNotFound
		}
		if t.locationReferenced(id) {
			return sentinel.ErrConflict
		}
		delete(t.locations, id)
		return nil
	})
}

func (s *OrgStore) CreateTeam(ctx context.Context, team *org.Team) error {
	return s.db.write(ctx, func(t *tables) error {
		if _, ok := t.teams[team.ID]; ok {
			return sentinel.ErrConflict
		}
		if team.LocationID != nil {
			if _, ok := t.locations[*team.LocationID]; !ok {
				return sentinel.ErrConflict
			}
		}
		t.teams[team.ID] = *team
		return nil
	})
}

func (t *tables) teamView(team org.Team) org.TeamView {
	v := org.TeamView{Team: team}
	if team.LocationID != nil {
		v.LocationName = t.locations[*team.LocationID].Name
	}
	return v
}

func (s *OrgStore) FindTeam(ctx context.Context, id uuid.UUID) (*org.TeamView, error) {
	var out org.TeamView
	err := s.db.read(ctx, func(t *tables) error {
		team, ok := t.teams[id]
		if !ok {
			return sentinel.ErrNotFound
		}
		out = t.teamView(team)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func matchTeam(team org.Team, f org.TeamFilter) bool {
	if f.LocationID != uuid.Nil && (team.LocationID == nil || *team.LocationID != f.LocationID) {
		return false
	}
	return f.Search == "" || containsFold(team.Name, f.Search)
}

func (s *OrgStore) ListTeams(ctx context.Context, f org.TeamFilter) ([]org.TeamView, error) {
	var out []org.TeamView
	err := s.db.read(ctx, func(t *tables) error {
		var all []org.Team
		for _, team := range t.teams {
			if matchTeam(team, f) {
				all = append(all, team)
			}
		}
		slices.SortFunc(all, func(a, b org.Team) int {
			return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID.String(), b.ID.String()))
		})
		start, end := f.Page.Window(len(all))
		for _, team := range all[start:end] {
			out = append(out, t.teamView(team))
		}
		return nil
	})
	return out, err
}

func (s *OrgStore) CountTeams(ctx context.Context, f org.TeamFilter) (int, error) {
	var n int
	err := s.db.read(ctx, func(t *tables) error {
		for _, team := range t.teams {
			if matchTeam(team, f) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *OrgStore) UpdateTeam(ctx context.Context, team *org.Team) error {
	return s.db.write(ctx, func(t *tables) error {
		if _, ok := t.teams[team.ID]; !ok {
			return sentinel.ErrNotFound
		}
		if team.LocationID != nil {
			if _, ok := t.locations[*team.LocationID]; !ok {
				return sentinel.ErrConflict
			}
		}
		t.teams[team.ID] = *team
		return nil
	})
}

func (s *OrgStore) DeleteTeam(ctx context.Context, id uuid.UUID) error {
	return s.db.write(ctx, func(t *tables) error {
		if _, ok := t.teams[id]; !ok {
			return sentinel.ErrNotFound
		}
		if t.teamReferenced(id) {
			return sentinel.ErrConflict
		}
		delete(t.teams, id)
		return nil
	})
}
