package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vtrack/internal/authz"
	"vtrack/internal/platform/middleware"
	"vtrack/internal/schedule/models"
	"vtrack/pkg/pagination"
	"vtrack/pkg/platform/httputil"
)

// Service defines the schedule operations exposed over HTTP.
type Service interface {
	Lookup(ctx context.Context, typeID uuid.UUID, tier models.Tier) (decimal.Decimal, error)
	CreateType(ctx context.Context, req models.CreateTypeRequest) (*models.TypeWithTiers, error)
	GetType(ctx context.Context, id uuid.UUID) (*models.TypeWithTiers, error)
	ListTypes(ctx context.Context, filter models.ListFilter) (pagination.Page[models.ViolationType], error)
	UpdateType(ctx context.Context, id uuid.UUID, req models.UpdateTypeRequest) (*models.TypeWithTiers, error)
	DeleteType(ctx context.Context, id uuid.UUID) error
}

type Handler struct {
	service    Service
	logger     *slog.Logger
	authorizer middleware.Authorizer
}

func New(service Service, logger *slog.Logger, authorizer middleware.Authorizer) *Handler {
	return &Handler{service: service, logger: logger, authorizer: authorizer}
}

// Register mounts the routes on an authenticated router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/violation-types", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.Get("/{id}/penalty", h.handleLookup)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAction(h.authorizer, authz.ActionScheduleManage))
			r.Post("/", h.handleCreate)
			r.Put("/{id}", h.handleUpdate)
			r.Delete("/{id}", h.handleDelete)
		})
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	page, err := pagination.Parse(q.Get("page"), q.Get("limit"))
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "invalid list request")
		return
	}
	result, err := h.service.ListTypes(ctx, models.ListFilter{
		Level:  models.Level(q.Get("level")),
		Search: q.Get("search"),
		Page:   page,
	})
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to list violation types")
		return
	}
	httputil.WritePage(w, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	vt, err := h.service.GetType(ctx, id)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to get violation type")
		return
	}
	httputil.WriteData(w, http.StatusOK, "", vt)
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	tier := models.Tier(r.URL.Query().Get("tier"))
	amount, err := h.service.Lookup(ctx, id, tier)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "penalty lookup failed")
		return
	}
	httputil.WriteData(w, http.StatusOK, "", models.PenaltyTier{ViolationTypeID: id, Tier: tier, Amount: amount})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.CreateTypeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Fail(ctx, h.logger, w, err, "invalid create violation type request")
		return
	}
	vt, err := h.service.CreateType(ctx, req)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to create violation type")
		return
	}
	httputil.WriteData(w, http.StatusCreated, "Violation type created successfully", vt)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req models.UpdateTypeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Fail(ctx, h.logger, w, err, "invalid update violation type request")
		return
	}
	vt, err := h.service.UpdateType(ctx, id, req)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to update violation type")
		return
	}
	httputil.WriteData(w, http.StatusOK, "Violation type updated successfully", vt)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.DeleteType(ctx, id); err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to delete violation type")
		return
	}
	httputil.WriteMessage(w, "Violation type deleted successfully")
}
