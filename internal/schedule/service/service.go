package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vtrack/internal/guard"
	"vtrack/internal/outbox"
	"vtrack/internal/schedule/models"
	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/pagination"
	"vtrack/pkg/platform/sentinel"
	txcontext "vtrack/pkg/platform/tx"
	"vtrack/pkg/requestcontext"
)

type Store interface {
	CreateType(ctx context.Context, t *models.ViolationType, tiers []models.PenaltyTier) error
	FindType(ctx context.Context, id uuid.UUID) (*models.ViolationType, error)
	ListTypes(ctx context.Context, filter models.ListFilter) ([]models.ViolationType, error)
	CountTypes(ctx context.Context, filter models.ListFilter) (int, error)
	ListTiers(ctx context.Context, typeID uuid.UUID) ([]models.PenaltyTier, error)
	UpdateType(ctx context.Context, t *models.ViolationType) error
	ReplaceTiers(ctx context.Context, typeID uuid.UUID, tiers []models.PenaltyTier) error
	DeleteType(ctx context.Context, id uuid.UUID) error
	LookupTier(ctx context.Context, typeID uuid.UUID, tier models.Tier) (decimal.Decimal, error)
}

type Guard interface {
	Ensure(ctx context.Context, id uuid.UUID, refs ...guard.Reference) error
}

// Service owns the penalty schedule. Tier amounts are derived from the base
// penalty and only affect lookups made after a change.
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

// Lookup resolves the penalty owed for one (type, tier) pair.
func (s *Service) Lookup(ctx context.Context, typeID uuid.UUID, tier models.Tier) (decimal.Decimal, error) {
	if !tier.Valid() {
		return decimal.Zero, dErrors.Newf(dErrors.CodeInvalidArgument, "invalid offense level %q", tier)
	}
	amount, err := s.store.LookupTier(ctx, typeID, tier)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return decimal.Zero, dErrors.Newf(dErrors.CodeNotFound, "no penalty for violation type %s at %s", typeID, tier)
		}
		return decimal.Zero, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up penalty")
	}
	return amount, nil
}

// CreateType stores a violation type and its three derived tiers atomically.
func (s *Service) CreateType(ctx context.Context, req models.CreateTypeRequest) (*models.TypeWithTiers, error) {
	req.Normalize()
	vt, err := models.NewViolationType(uuid.New(), req.Name, req.Level, req.Penalty, req.Description, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Invalid(err)
	}
	tiers := models.BuildTiers(vt.ID, vt.BasePenalty)

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateType(ctx, vt, tiers); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create violation type")
		}
		return outbox.Record(ctx, s.events, "violation_type", vt.ID, outbox.EventViolationTypeCreated, vt)
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "violation_type_created", "violation_type_id", vt.ID, "base_penalty", vt.BasePenalty.String())
	return &models.TypeWithTiers{ViolationType: *vt, Tiers: tiers}, nil
}

// GetType returns a type with its tiers ordered First to Third.
func (s *Service) GetType(ctx context.Context, id uuid.UUID) (*models.TypeWithTiers, error) {
	vt, err := s.findType(ctx, id)
	if err != nil {
		return nil, err
	}
	tiers, err := s.store.ListTiers(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load penalty tiers")
	}
	return &models.TypeWithTiers{ViolationType: *vt, Tiers: tiers}, nil
}

func (s *Service) ListTypes(ctx context.Context, filter models.ListFilter) (pagination.Page[models.ViolationType], error) {
	if filter.Level != "" && !filter.Level.Valid() {
		return pagination.Page[models.ViolationType]{}, dErrors.New(dErrors.CodeInvalidArgument, "invalid level")
	}
	page, err := pagination.Fetch(ctx, filter.Page,
		func(ctx context.Context) ([]models.ViolationType, error) { return s.store.ListTypes(ctx, filter) },
		func(ctx context.Context) (int, error) { return s.store.CountTypes(ctx, filter) },
	)
	if err != nil {
		return page, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list violation types")
	}
	return page, nil
}

// UpdateType applies the requested changes. A new base penalty regenerates
// the tiers; line items already issued keep their frozen amounts.
func (s *Service) UpdateType(ctx context.Context, id uuid.UUID, req models.UpdateTypeRequest) (*models.TypeWithTiers, error) {
	var result *models.TypeWithTiers
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		vt, err := s.findType(ctx, id)
		if err != nil {
			return err
		}
		baseChanged, err := req.Apply(vt, requestcontext.Now(ctx))
		if err != nil {
			return dErrors.Invalid(err)
		}
		if err := s.store.UpdateType(ctx, vt); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update violation type")
		}
		if baseChanged {
			if err := s.store.ReplaceTiers(ctx, id, models.BuildTiers(id, vt.BasePenalty)); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to regenerate penalty tiers")
			}
		}
		tiers, err := s.store.ListTiers(ctx, id)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load penalty tiers")
		}
		result = &models.TypeWithTiers{ViolationType: *vt, Tiers: tiers}
		return outbox.Record(ctx, s.events, "violation_type", id, outbox.EventViolationTypeUpdated, result)
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "violation_type_updated", "violation_type_id", id)
	return result, nil
}

// DeleteType removes a type that no line item references, tiers first.
func (s *Service) DeleteType(ctx context.Context, id uuid.UUID) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.findType(ctx, id); err != nil {
			return err
		}
		if err := s.guard.Ensure(ctx, id, guard.ViolationTypeLineItems); err != nil {
			return err
		}
		if err := s.store.DeleteType(ctx, id); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "cannot delete violation type that is used in citations")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete violation type")
		}
		return outbox.Record(ctx, s.events, "violation_type", id, outbox.EventViolationTypeDeleted, map[string]uuid.UUID{"id": id})
	})
	if err != nil {
		return err
	}
	s.logAudit(ctx, "violation_type_deleted", "violation_type_id", id)
	return nil
}

func (s *Service) findType(ctx context.Context, id uuid.UUID) (*models.ViolationType, error) {
	vt, err := s.store.FindType(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "violation type not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load violation type")
	}
	return vt, nil
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
