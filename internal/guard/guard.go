// Package guard rejects deletes of records that other records still reference.
//
// Every check is one existence query keyed by foreign key. A rejection is a
// Conflict so callers can tell "still in use" apart from "does not exist".
package guard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"vtrack/internal/platform/metrics"
	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/requestcontext"
)

// Reference names one dependent relationship.
type Reference string

const (
	ViolatorCitations      Reference = "violator.citations"
	ViolationTypeLineItems Reference = "violation_type.line_items"
	LocationTeams          Reference = "location.teams"
	TeamUsers              Reference = "team.users"
	UserCitations          Reference = "user.citations"
	UserPayments           Reference = "user.payments"
	CitationPayments       Reference = "citation.payments"
)

type rule struct {
	entity  string
	message string
}

var rules = map[Reference]rule{
	ViolatorCitations:      {"violator", "cannot delete violator with existing citations"},
	ViolationTypeLineItems: {"violation_type", "cannot delete violation type that is used in citations"},
	LocationTeams:          {"location", "cannot delete location with assigned teams"},
	TeamUsers:              {"team", "cannot delete team with assigned users"},
	UserCitations:          {"user", "cannot delete user who has issued citations"},
	UserPayments:           {"user", "cannot delete user who has processed payments"},
	CitationPayments:       {"citation", "cannot delete citation with recorded payment"},
}

// Entity is the kind of record protected by ref.
func (r Reference) Entity() string {
	return rules[r].entity
}

// Checker answers whether any row depends on id through ref.
type Checker interface {
	Exists(ctx context.Context, ref Reference, id uuid.UUID) (bool, error)
}

type Guard struct {
	checker Checker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Guard)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

func New(checker Checker, opts ...Option) *Guard {
	g := &Guard{checker: checker}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Ensure fails with Conflict on the first reference that still has dependents.
func (g *Guard) Ensure(ctx context.Context, id uuid.UUID, refs ...Reference) error {
	for _, ref := range refs {
		r, ok := rules[ref]
		if !ok {
			return dErrors.New(dErrors.CodeInternal, fmt.Sprintf("unknown reference %q", ref))
		}
		exists, err := g.checker.Exists(ctx, ref, id)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check references")
		}
		if exists {
			g.reject(ctx, r.entity, id, string(ref))
			return dErrors.New(dErrors.CodeConflict, r.message)
		}
	}
	return nil
}

// EnsureNotSelf rejects an operation targeting the caller's own account.
func (g *Guard) EnsureNotSelf(ctx context.Context, userID uuid.UUID) error {
	if caller := requestcontext.UserID(ctx); caller != uuid.Nil && caller == userID {
		g.reject(ctx, "user", userID, "self")
		return dErrors.New(dErrors.CodeConflict, "cannot delete your own account")
	}
	return nil
}

func (g *Guard) reject(ctx context.Context, entity string, id uuid.UUID, reason string) {
	if g.metrics != nil {
		g.metrics.IncrementGuardRejection(entity)
	}
	if g.logger != nil {
		g.logger.InfoContext(ctx, "delete rejected",
			"entity", entity,
			"entity_id", id,
			"reason", reason,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}
