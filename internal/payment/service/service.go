package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	citation "vtrack/internal/citation/models"
	"vtrack/internal/outbox"
	"vtrack/internal/payment/models"
	"vtrack/internal/platform/metrics"
	"vtrack/internal/platform/tracing"
	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/pagination"
	"vtrack/pkg/platform/sentinel"
	txcontext "vtrack/pkg/platform/tx"
	"vtrack/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, p *models.Payment) error
	Find(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	ReceiptExists(ctx context.Context, receipt string, except uuid.UUID) (bool, error)
	FindView(ctx context.Context, id uuid.UUID) (*models.View, error)
	List(ctx context.Context, filter models.ListFilter) ([]models.View, error)
	Count(ctx context.Context, filter models.ListFilter) (int, error)
	Update(ctx context.Context, p *models.Payment) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Citations is the part of the citation store the ledger reconciles against.
// LockForPayment must hold the citation until the transaction ends.
type Citations interface {
	LockForPayment(ctx context.Context, id uuid.UUID) (*citation.Citation, error)
	SetStatus(ctx context.Context, id uuid.UUID, status citation.Status, at time.Time) error
}

// Service is the payment ledger. Recording and reversing a payment change the
// citation status in the same transaction.
type Service struct {
	store     Store
	citations Citations
	tx        txcontext.Runner
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

func New(store Store, citations Citations, tx txcontext.Runner, opts ...Option) *Service {
	s := &Service{store: store, citations: citations, tx: tx}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record settles a citation. The citation row is locked before its status is
// checked, so of two concurrent payments only one can see it unpaid.
func (s *Service) Record(ctx context.Context, req models.RecordRequest) (result *models.View, err error) {
	ctx, span := tracing.Start(ctx, "payment.record", attribute.String("citation.id", req.CitationID.String()))
	defer func() { tracing.End(span, err) }()

	processedBy := requestcontext.UserID(ctx)
	if processedBy == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authenticated user is required")
	}
	if req.CitationID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "valid citation ID is required")
	}
	now := requestcontext.Now(ctx)
	p, err := req.Build(uuid.New(), processedBy, now)
	if err != nil {
		return nil, dErrors.Invalid(err)
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.citations.LockForPayment(ctx, p.CitationID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "citation not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load citation")
		}
		switch c.Status {
		case citation.StatusPaid:
			return dErrors.New(dErrors.CodeConflict, "citation is already paid")
		case citation.StatusCancelled:
			return dErrors.New(dErrors.CodeConflict, "cannot record payment for a cancelled citation")
		}
		if err := s.ensureReceiptFree(ctx, p.ReceiptNo, uuid.Nil); err != nil {
			return err
		}
		if err := s.store.Create(ctx, p); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "citation is already paid or receipt number already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record payment")
		}
		if err := s.citations.SetStatus(ctx, c.ID, citation.StatusPaid, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark citation paid")
		}
		return outbox.Record(ctx, s.events, "payment", p.ID, outbox.EventPaymentRecorded, p)
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("payment.id", p.ID.String()))
	if s.metrics != nil {
		s.metrics.IncrementPaymentsRecorded()
	}
	s.logAudit(ctx, "payment_recorded", "payment_id", p.ID, "citation_id", p.CitationID, "amount", p.Amount.String())
	return s.Get(ctx, p.ID)
}

// Reverse deletes a payment and returns its citation to Pending.
func (s *Service) Reverse(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := tracing.Start(ctx, "payment.reverse", attribute.String("payment.id", id.String()))
	defer func() { tracing.End(span, err) }()

	var citationID uuid.UUID
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		p, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		citationID = p.CitationID
		if _, err := s.citations.LockForPayment(ctx, p.CitationID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load citation")
		}
		if err := s.store.Delete(ctx, id); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "payment not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete payment")
		}
		if err := s.citations.SetStatus(ctx, p.CitationID, citation.StatusPending, requestcontext.Now(ctx)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset citation status")
		}
		return outbox.Record(ctx, s.events, "payment", id, outbox.EventPaymentReversed, map[string]uuid.UUID{
			"id":          id,
			"citation_id": p.CitationID,
		})
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.IncrementPaymentsReversed()
	}
	s.logAudit(ctx, "payment_reversed", "payment_id", id, "citation_id", citationID)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.View, error) {
	view, err := s.store.FindView(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "payment not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load payment")
	}
	return view, nil
}

func (s *Service) List(ctx context.Context, filter models.ListFilter) (pagination.Page[models.View], error) {
	if filter.Method != "" && !filter.Method.Valid() {
		return pagination.Page[models.View]{}, dErrors.New(dErrors.CodeInvalidArgument, "invalid payment method")
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return pagination.Page[models.View]{}, dErrors.New(dErrors.CodeInvalidArgument, "date_to must not be before date_from")
	}
	page, err := pagination.Fetch(ctx, filter.Page,
		func(ctx context.Context) ([]models.View, error) { return s.store.List(ctx, filter) },
		func(ctx context.Context) (int, error) { return s.store.Count(ctx, filter) },
	)
	if err != nil {
		return page, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list payments")
	}
	return page, nil
}

// Update corrects a recorded payment. The citation it settles never changes.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req models.UpdateRequest) (*models.View, error) {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		p, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		if err := req.Apply(p, requestcontext.Now(ctx)); err != nil {
			return dErrors.Invalid(err)
		}
		if req.ReceiptNo != nil {
			if err := s.ensureReceiptFree(ctx, p.ReceiptNo, id); err != nil {
				return err
			}
		}
		if err := s.store.Update(ctx, p); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "receipt number already exists")
			}
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "payment not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update payment")
		}
		return outbox.Record(ctx, s.events, "payment", id, outbox.EventPaymentUpdated, p)
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "payment_updated", "payment_id", id)
	return s.Get(ctx, id)
}

func (s *Service) ensureReceiptFree(ctx context.Context, receipt string, except uuid.UUID) error {
	taken, err := s.store.ReceiptExists(ctx, receipt, except)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check receipt number")
	}
	if taken {
		return dErrors.New(dErrors.CodeConflict, "receipt number already exists")
	}
	return nil
}

func (s *Service) find(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	p, err := s.store.Find(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "payment not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load payment")
	}
	return p, nil
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
