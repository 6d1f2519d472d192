package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"vtrack/internal/guard"
	"vtrack/internal/org/models"
	"vtrack/internal/outbox"
	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/pagination"
	"vtrack/pkg/platform/sentinel"
	txcontext "vtrack/pkg/platform/tx"
	"vtrack/pkg/requestcontext"
)

type Store interface {
	CreateLocation(ctx context.Context, l *models.Location) error
	FindLocation(ctx context.Context, id uuid.UUID) (*models.Location, error)
	ListLocations(ctx context.Context, filter models.LocationFilter) ([]models.Location, error)
	CountLocations(ctx context.Context, filter models.LocationFilter) (int, error)
	UpdateLocation(ctx context.Context, l *models.Location) error
	DeleteLocation(ctx context.Context, id uuid.UUID) error

	CreateTeam(ctx context.Context, t *models.Team) error
	FindTeam(ctx context.Context, id uuid.UUID) (*models.TeamView, error)
	ListTeams(ctx context.Context, filter models.TeamFilter) ([]models.TeamView, error)
	CountTeams(ctx context.Context, filter models.TeamFilter) (int, error)
	UpdateTeam(ctx context.Context, t *models.Team) error
	DeleteTeam(ctx context.Context, id uuid.UUID) error
}

type Guard interface {
	Ensure(ctx context.Context, id uuid.UUID, refs ...guard.Reference) error
}

// Service manages the locations and teams officers are organised into.
type Service struct {
	store  Store
	tx     txcontext.Runner
	guard  Guard
	events outbox.Appender
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithEvents(events outbox.Appender) Option {
	return func(s *Service) {
		s.events = events
	}
}

func New(store Store, tx txcontext.Runner, guard Guard, opts ...Option) *Service {
	s := &Service{store: store, tx: tx, guard: guard}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateLocation(ctx context.Context, req models.LocationRequest) (*models.Location, error) {
	l, err := req.Build(uuid.New(), requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Invalid(err)
	}
	if err := s.store.CreateLocation(ctx, l); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create location")
	}
	s.logAudit(ctx, "location_created", "location_id", l.ID)
	return l, nil
}

func (s *Service) GetLocation(ctx context.Context, id uuid.UUID) (*models.Location, error) {
	l, err := s.store.FindLocation(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "location not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load location")
	}
	return l, nil
}

func (s *Service) ListLocations(ctx context.Context, filter models.LocationFilter) (pagination.Page[models.Location], error) {
	page, err := pagination.Fetch(ctx, filter.Page,
		func(ctx context.Context) ([]models.Location, error) { return s.store.ListLocations(ctx, filter) },
		func(ctx context.Context) (int, error) { return s.store.CountLocations(ctx, filter) },
	)
	if err != nil {
		return page, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list locations")
	}
	return page, nil
}

func (s *Service) UpdateLocation(ctx context.Context, id uuid.UUID, req models.LocationUpdate) (*models.Location, error) {
	var l *models.Location
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if l, err = s.GetLocation(ctx, id); err != nil {
			return err
		}
		if err := req.Apply(l, requestcontext.Now(ctx)); err != nil {
			return dErrors.Invalid(err)
		}
		if err := s.store.UpdateLocation(ctx, l); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update location")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "location_updated", "location_id", id)
	return l, nil
}

// DeleteLocation removes a location no team is assigned to.
func (s *Service) DeleteLocation(ctx context.Context, id uuid.UUID) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.GetLocation(ctx, id); err != nil {
			return err
		}
		if err := s.guard.Ensure(ctx, id, guard.LocationTeams); err != nil {
			return err
		}
		if err := s.store.DeleteLocation(ctx, id); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "cannot delete location with assigned teams")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete location")
		}
		return outbox.Record(ctx, s.events, "location", id, outbox.EventLocationDeleted, map[string]uuid.UUID{"id": id})
	})
	if err != nil {
		return err
	}
	s.logAudit(ctx, "location_deleted", "location_id", id)
	return nil
}

// CreateTeam requires the referenced location, when given, to exist.
func (s *Service) CreateTeam(ctx context.Context, req models.TeamRequest) (*models.TeamView, error) {
	t, err := req.Build(uuid.New(), requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Invalid(err)
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.ensureLocation(ctx, t.LocationID); err != nil {
			return err
		}
		if err := s.store.CreateTeam(ctx, t); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create team")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "team_created", "team_id", t.ID)
	return s.GetTeam(ctx, t.ID)
}

func (s *Service) GetTeam(ctx context.Context, id uuid.UUID) (*models.TeamView, error) {
	t, err := s.store.FindTeam(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "team not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load team")
	}
	return t, nil
}

func (s *Service) ListTeams(ctx context.Context, filter models.TeamFilter) (pagination.Page[models.TeamView], error) {
	page, err := pagination.Fetch(ctx, filter.Page,
		func(ctx context.Context) ([]models.TeamView, error) { return s.store.ListTeams(ctx, filter) },
		func(ctx context.Context) (int, error) { return s.store.CountTeams(ctx, filter) },
	)
	if err != nil {
		return page, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list teams")
	}
	return page, nil
}

func (s *Service) UpdateTeam(ctx context.Context, id uuid.UUID, req models.TeamUpdate) (*models.TeamView, error) {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		view, err := s.GetTeam(ctx, id)
		if err != nil {
			return err
		}
		t := view.Team
		if err := req.Apply(&t, requestcontext.Now(ctx)); err != nil {
			return dErrors.Invalid(err)
		}
		if req.LocationID != nil {
			if err := s.ensureLocation(ctx, t.LocationID); err != nil {
				return err
			}
		}
		if err := s.store.UpdateTeam(ctx, &t); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update team")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "team_updated", "team_id", id)
	return s.GetTeam(ctx, id)
}

// DeleteTeam removes a team no user is assigned to.
func (s *Service) DeleteTeam(ctx context.Context, id uuid.UUID) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.GetTeam(ctx, id); err != nil {
			return err
		}
		if err := s.guard.Ensure(ctx, id, guard.TeamUsers); err != nil {
			return err
		}
		if err := s.store.DeleteTeam(ctx, id); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "cannot delete team with assigned users")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete team")
		}
		return outbox.Record(ctx, s.events, "team", id, outbox.EventTeamDeleted, map[string]uuid.UUID{"id": id})
	})
	if err != nil {
		return err
	}
	s.logAudit(ctx, "team_deleted", "team_id", id)
	return nil
}

func (s *Service) ensureLocation(ctx context.Context, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	_, err := s.store.FindLocation(ctx, *id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeInvalidArgument, "location does not exist")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load location")
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	if actor := requestcontext.UserID(ctx); actor != uuid.Nil {
		attributes = append(attributes, "actor_id", actor)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}
