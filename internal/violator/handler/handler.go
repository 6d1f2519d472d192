package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"vtrack/internal/authz"
	citation "vtrack/internal/citation/models"
	"vtrack/internal/platform/middleware"
	"vtrack/internal/violator/models"
	"vtrack/pkg/pagination"
	"vtrack/pkg/platform/httputil"
)

type Service interface {
	Create(ctx context.Context, req models.CreateRequest) (*models.Violator, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Violator, error)
	List(ctx context.Context, filter models.ListFilter) (pagination.Page[models.Violator], error)
	Update(ctx context.Context, id uuid.UUID, req models.UpdateRequest) (*models.Violator, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Citations(ctx context.Context, id uuid.UUID, status citation.Status, page pagination.Params) (pagination.Page[citation.View], error)
}

type Handler struct {
	service    Service
	logger     *slog.Logger
	authorizer middleware.Authorizer
}

func New(service Service, logger *slog.Logger, authorizer middleware.Authorizer) *Handler {
	return &Handler{service: service, logger: logger, authorizer: authorizer}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/violators", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.Get("/{id}/citations", h.handleCitations)
		r.With(middleware.RequireAction(h.authorizer, authz.ActionViolatorCreate)).Post("/", h.handleCreate)
		r.With(middleware.RequireAction(h.authorizer, authz.ActionViolatorUpdate)).Put("/{id}", h.handleUpdate)
		r.With(middleware.RequireAction(h.authorizer, authz.ActionViolatorDelete)).Delete("/{id}", h.handleDelete)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	page, err := pagination.Parse(q.Get("page"), q.Get("limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.List(ctx, models.ListFilter{Search: q.Get("search"), Page: page})
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to list violators")
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
	v, err := h.service.Get(ctx, id)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to get violator")
		return
	}
	httputil.WriteData(w, http.StatusOK, "", v)
}

func (h *Handler) handleCitations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	q := r.URL.Query()
	page, err := pagination.Parse(q.Get("page"), q.Get("limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.Citations(ctx, id, citation.Status(q.Get("status")), page)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to list violator citations")
		return
	}
	httputil.WritePage(w, result)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.CreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	v, err := h.service.Create(ctx, req)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to create violator")
		return
	}
	httputil.WriteData(w, http.StatusCreated, "Violator created successfully", v)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req models.UpdateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	v, err := h.service.Update(ctx, id, req)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to update violator")
		return
	}
	httputil.WriteData(w, http.StatusOK, "Violator updated successfully", v)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Delete(ctx, id); err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to delete violator")
		return
	}
	httputil.WriteMessage(w, "Violator deleted successfully")
}
