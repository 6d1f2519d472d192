package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	citation "vtrack/internal/citation/models"
	"vtrack/internal/guard"
	"vtrack/internal/outbox"
	"vtrack/internal/violator/models"
	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/pagination"
	"vtrack/pkg/platform/sentinel"
	txcontext "vtrack/pkg/platform/tx"
	"vtrack/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, v *models.Violator) error
	Find(ctx context.Context, id uuid.UUID) (*models.Violator, error)
	LicenseExists(ctx context.Context, license string, except uuid.UUID) (bool, error)
	List(ctx context.Context, filter models.ListFilter) ([]models.Violator, error)
	Count(ctx context.Context, filter models.ListFilter) (int, error)
	Update(ctx context.Context, v *models.Violator) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type Guard interface {
	Ensure(ctx context.Context, id uuid.UUID, refs ...guard.Reference) error
}

// Citations lists the citations issued against a violator.
type Citations interface {
	List(ctx context.Context, filter citation.ListFilter) (pagination.Page[citation.View], error)
}

// Service is the violator registry.
type Service struct {
	store     Store
	tx        txcontext.Runner
	guard     Guard
	citations Citations
	events    outbox.Appender
	logger    *slog.Logger
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

func WithCitations(citations Citations) Option {
	return func(s *Service) {
		s.citations = citations
	}
}

func New(store Store, tx txcontext.Runner, guard Guard, opts ...Option) *Service {
	s := &Service{store: store, tx: tx, guard: guard}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, req models.CreateRequest) (*models.Violator, error) {
	v, err := req.Build(uuid.New(), requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Invalid(err)
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.ensureLicenseFree(ctx, v.LicenseNumber, uuid.Nil); err != nil {
			return err
		}
		if err := s.store.Create(ctx, v); err != nil {
			return translateWrite(err, "failed to create violator")
		}
		return outbox.Record(ctx, s.events, "violator", v.ID, outbox.EventViolatorCreated, v)
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "violator_created", "violator_id", v.ID)
	return v, nil
}

// Get returns NotFound for unknown ids, so other components can use it as an
// existence check.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Violator, error) {
	v, err := s.store.Find(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "violator not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load violator")
	}
	return v, nil
}

func (s *Service) List(ctx context.Context, filter models.ListFilter) (pagination.Page[models.Violator], error) {
	page, err := pagination.Fetch(ctx, filter.Page,
		func(ctx context.Context) ([]models.Violator, error) { return s.store.List(ctx, filter) },
		func(ctx context.Context) (int, error) { return s.store.Count(ctx, filter) },
	)
	if err != nil {
		return page, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list violators")
	}
	return page, nil
}

// Update applies the present fields. A changed license is re-checked for
// uniqueness against every other violator.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req models.UpdateRequest) (*models.Violator, error) {
	var v *models.Violator
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if v, err = s.Get(ctx, id); err != nil {
			return err
		}
		if err := req.Apply(v, requestcontext.Now(ctx)); err != nil {
			return dErrors.Invalid(err)
		}
		if req.LicenseNumber != nil {
			if err := s.ensureLicenseFree(ctx, v.LicenseNumber, id); err != nil {
				return err
			}
		}
		if err := s.store.Update(ctx, v); err != nil {
			return translateWrite(err, "failed to update violator")
		}
		return outbox.Record(ctx, s.events, "violator", id, outbox.EventViolatorUpdated, v)
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "violator_updated", "violator_id", id)
	return v, nil
}

// Delete removes a violator no citation references.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		if err := s.guard.Ensure(ctx, id, guard.ViolatorCitations); err != nil {
			return err
		}
		if err := s.store.Delete(ctx, id); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "cannot delete violator with existing citations")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete violator")
		}
		return outbox.Record(ctx, s.events, "violator", id, outbox.EventViolatorDeleted, map[string]uuid.UUID{"id": id})
	})
	if err != nil {
		return err
	}
	s.logAudit(ctx, "violator_deleted", "violator_id", id)
	return nil
}

// Citations pages through the citations of one violator, optionally by status.
func (s *Service) Citations(ctx context.Context, id uuid.UUID, status citation.Status, page pagination.Params) (pagination.Page[citation.View], error) {
	if s.citations == nil {
		return pagination.Page[citation.View]{}, dErrors.New(dErrors.CodeUnavailable, "citation listing is not configured")
	}
	if status != "" && !status.Valid() {
		return pagination.Page[citation.View]{}, dErrors.New(dErrors.CodeInvalidArgument, "invalid status")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return pagination.Page[citation.View]{}, err
	}
	return s.citations.List(ctx, citation.ListFilter{ViolatorID: id, Status: status, Page: page})
}

func (s *Service) ensureLicenseFree(ctx context.Context, license string, except uuid.UUID) error {
	taken, err := s.store.LicenseExists(ctx, license, except)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check driver's license")
	}
	if taken {
		return dErrors.New(dErrors.CodeConflict, "violator with this driver's license already exists")
	}
	return nil
}

func translateWrite(err error, msg string) error {
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.New(dErrors.CodeConflict, "violator with this driver's license already exists")
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "violator not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
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
