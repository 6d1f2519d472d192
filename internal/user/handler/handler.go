package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"vtrack/internal/authz"
	"vtrack/internal/platform/middleware"
	"vtrack/internal/user/models"
	"vtrack/pkg/pagination"
	"vtrack/pkg/platform/httputil"
)

type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*models.View, error)
	List(ctx context.Context, filter models.ListFilter) (pagination.Page[models.View], error)
	Update(ctx context.Context, id uuid.UUID, req models.UpdateRequest) (*models.View, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Handler struct {
	service    Service
	logger     *slog.Logger
	authorizer middleware.Authorizer
}

func New(service Service, logger *slog.Logger, authorizer middleware.Authorizer) *Handler {
	return &Handler{service: service, logger: logger, authorizer: authorizer}
}

// Register mounts /users. Get and Update are self-or-admin, checked by the service.
func (h *Handler) Register(r chi.Router) {
	manage := middleware.RequireAction(h.authorizer, authz.ActionUserManage)
	r.Route("/users", func(r chi.Router) {
		r.With(manage).Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.Put("/{id}", h.handleUpdate)
		r.With(manage).Delete("/{id}", h.handleDelete)
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
	filter := models.ListFilter{Role: q.Get("role"), Page: page}
	teamID, err := httputil.QueryUUID(r, "team_id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if teamID != nil {
		filter.TeamID = *teamID
	}
	if filter.Active, err = httputil.QueryBool(r, "is_active"); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.List(ctx, filter)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to list users")
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
	u, err := h.service.Get(ctx, id)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to get user")
		return
	}
	httputil.WriteData(w, http.StatusOK, "", u)
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
	u, err := h.service.Update(ctx, id, req)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to update user")
		return
	}
	httputil.WriteData(w, http.StatusOK, "User updated successfully", u)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Delete(ctx, id); err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to delete user")
		return
	}
	httputil.WriteMessage(w, "User deleted successfully")
}
