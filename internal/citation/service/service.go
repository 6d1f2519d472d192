package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"vtrack/internal/citation/models"
	"vtrack/internal/evidence"
	"vtrack/internal/guard"
	"vtrack/internal/outbox"
	"vtrack/internal/platform/metrics"
	"vtrack/internal/platform/tracing"
	schedule "vtrack/internal/schedule/models"
	violator "vtrack/internal/violator/models"
	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/pagination"
	"vtrack/pkg/platform/sentinel"
	txcontext "vtrack/pkg/platform/tx"
	"vtrack/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, c *models.Citation, items []models.LineItem) error
	Find(ctx context.Context, id uuid.UUID) (*models.Citation, error)
	FindView(ctx context.Context, id uuid.UUID) (*models.View, error)
	List(ctx context.Context, filter models.ListFilter) ([]models.View, error)
	Count(ctx context.Context, filter models.ListFilter) (int, error)
	Update(ctx context.Context, c *models.Citation) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Penalties resolves the amount owed for one violation type at one tier.
type Penalties interface {
	Lookup(ctx context.Context, typeID uuid.UUID, tier schedule.Tier) (decimal.Decimal, error)
}

// Violators confirms that a violator exists.
type Violators interface {
	Get(ctx context.Context, id uuid.UUID) (*violator.Violator, error)
}

type Guard interface {
	Ensure(ctx context.Context, id uuid.UUID, refs ...guard.Reference) error
}

// Service builds citations and owns their reads and administrative edits.
type Service struct {
	store     Store
	tx        txcontext.Runner
	guard     Guard
	penalties Penalties
	violators Violators
	blobs     evidence.Store
	limits    evidence.Limits
	events    outbox.Appender
	metrics   *metrics.Metrics
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithEvidence enables evidence uploads. Without it, a create carrying files
// is rejected.
func WithEvidence(blobs evidence.Store, limits evidence.Limits) Option {
	return func(s *Service) {
		s.blobs = blobs
		s.limits = limits
	}
}

func New(store Store, tx txcontext.Runner, guard Guard, penalties Penalties, violators Violators, opts ...Option) *Service {
	s := &Service{store: store, tx: tx, guard: guard, penalties: penalties, violators: violators}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create resolves every requested violation against the penalty schedule and
// persists the citation with its line items in one transaction. Evidence blobs
// are written first and removed again if the transaction fails.
func (s *Service) Create(ctx context.Context, req models.CreateRequest, uploads []evidence.Upload) (result *models.View, err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "citation.create", attribute.String("violator.id", req.ViolatorID.String()))
	defer func() { tracing.End(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	issuedAt, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	officerID := requestcontext.UserID(ctx)
	if officerID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authenticated officer is required")
	}
	if len(uploads) > 0 {
		if s.blobs == nil {
			return nil, dErrors.New(dErrors.CodeUnavailable, "evidence storage is not configured")
		}
		if err := s.limits.Validate(uploads); err != nil {
			return nil, err
		}
	}

	now := requestcontext.Now(ctx)
	files, err := s.storeEvidence(ctx, uploads, now)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	span.SetAttributes(attribute.String("citation.id", id.String()))
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.violators.Get(ctx, req.ViolatorID); err != nil {
			return err
		}
		draft := models.NewDraft(id, req.ViolatorID, officerID, req.Location, issuedAt, req.Details, files, now)
		for _, item := range req.Violations {
			amount, err := s.penalties.Lookup(ctx, item.ViolationTypeID, item.Tier)
			if err != nil {
				return err
			}
			draft.Add(item.ViolationTypeID, item.Tier, amount)
		}
		c, items, err := draft.Finish()
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidArgument, err.Error())
		}
		if err := s.store.Create(ctx, c, items); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "citation references a record that no longer exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create citation")
		}
		return outbox.Record(ctx, s.events, "citation", id, outbox.EventCitationCreated, map[string]any{
			"id":           id,
			"violator_id":  c.ViolatorID,
			"officer_id":   c.OfficerID,
			"total_amount": c.TotalAmount,
			"line_items":   items,
		})
	})
	if err != nil {
		s.discardEvidence(ctx, files)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementCitationsCreated()
		s.metrics.ObserveCitationCreate(start)
	}
	s.logAudit(ctx, "citation_created", "citation_id", id, "violator_id", req.ViolatorID, "line_items", len(req.Violations))
	return s.Get(ctx, id)
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidArgument, "valid date is required")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", time.DateTime, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, dErrors.New(dErrors.CodeInvalidArgument, "valid date is required")
}

func (s *Service) storeEvidence(ctx context.Context, uploads []evidence.Upload, now time.Time) ([]models.EvidenceFile, error) {
	files := make([]models.EvidenceFile, 0, len(uploads))
	for _, u := range uploads {
		stored, err := s.blobs.Put(ctx, u)
		if err != nil {
			s.discardEvidence(ctx, files)
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store evidence")
		}
		files = append(files, models.EvidenceFile{
			OriginalName: u.Name,
			StoredName:   stored.Key,
			Path:         stored.Path,
			Mime:         u.ContentType,
			Size:         stored.Size,
			UploadedAt:   now,
		})
	}
	return files, nil
}

// discardEvidence removes blobs whose citation was never committed. It runs on
// a context detached from the request so a cancelled client still gets cleanup.
func (s *Service) discardEvidence(ctx context.Context, files []models.EvidenceFile) {
	if s.blobs == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, f := range files {
		if err := s.blobs.Delete(ctx, f.StoredName); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to remove evidence blob",
				"stored_name", f.StoredName,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}
}

// Get returns the citation with its violator, officer, line items and payment.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.View, error) {
	view, err := s.store.FindView(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "citation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load citation")
	}
	return view, nil
}

func (s *Service) List(ctx context.Context, filter models.ListFilter) (pagination.Page[models.View], error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return pagination.Page[models.View]{}, dErrors.New(dErrors.CodeInvalidArgument, "invalid status")
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return pagination.Page[models.View]{}, dErrors.New(dErrors.CodeInvalidArgument, "date_to must not be before date_from")
	}
	page, err := pagination.Fetch(ctx, filter.Page,
		func(ctx context.Context) ([]models.View, error) { return s.store.List(ctx, filter) },
		func(ctx context.Context) (int, error) { return s.store.Count(ctx, filter) },
	)
	if err != nil {
		return page, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list citations")
	}
	return page, nil
}

// Update amends the free-text fields or overrides the status of an unpaid
// citation. The total and the line items never change.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req models.UpdateRequest) (*models.View, error) {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		if err := req.Apply(c, requestcontext.Now(ctx)); err != nil {
			return err
		}
		if err := s.store.Update(ctx, c); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "citation not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update citation")
		}
		return outbox.Record(ctx, s.events, "citation", id, outbox.EventCitationUpdated, map[string]any{
			"id":     id,
			"status": c.Status,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "citation_updated", "citation_id", id)
	return s.Get(ctx, id)
}

// Delete removes an unpaid citation and its line items. Evidence blobs are
// removed after the commit.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	var files []models.EvidenceFile
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		if err := s.guard.Ensure(ctx, id, guard.CitationPayments); err != nil {
			return err
		}
		if err := s.store.Delete(ctx, id); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "cannot delete citation with recorded payment")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete citation")
		}
		files = c.Evidence.Files
		return outbox.Record(ctx, s.events, "citation", id, outbox.EventCitationDeleted, map[string]uuid.UUID{"id": id})
	})
	if err != nil {
		return err
	}
	s.discardEvidence(ctx, files)
	s.logAudit(ctx, "citation_deleted", "citation_id", id)
	return nil
}

// Evidences returns the evidence metadata of a citation in upload order.
func (s *Service) Evidences(ctx context.Context, id uuid.UUID) ([]models.EvidenceFile, error) {
	c, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.Evidence.Files, nil
}

func (s *Service) find(ctx context.Context, id uuid.UUID) (*models.Citation, error) {
	c, err := s.store.Find(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "citation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load citation")
	}
	return c, nil
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
