package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"vtrack/internal/authz"
	"vtrack/internal/org/models"
	"vtrack/internal/platform/middleware"
	"vtrack/pkg/pagination"
	"vtrack/pkg/platform/httputil"
)

type Service interface {
	CreateLocation(ctx context.Context, req models.LocationRequest) (*models.Location, error)
	GetLocation(ctx context.Context, id uuid.UUID) (*models.Location, error)
	ListLocations(ctx context.Context, filter models.LocationFilter) (pagination.Page[models.Location], error)
	UpdateLocation(ctx context.Context, id uuid.UUID, req models.LocationUpdate) (*models.Location, error)
	DeleteLocation(ctx context.Context, id uuid.UUID) error

	CreateTeam(ctx context.Context, req models.TeamRequest) (*models.TeamView, error)
	GetTeam(ctx context.Context, id uuid.UUID) (*models.TeamView, error)
	ListTeams(ctx context.Context, filter models.TeamFilter) (pagination.Page[models.TeamView], error)
	UpdateTeam(ctx context.Context, id uuid.UUID, req models.TeamUpdate) (*models.TeamView, error)
	DeleteTeam(ctx context.Context, id uuid.UUID) error
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
	manage := middleware.RequireAction(h.authorizer, authz.ActionOrgManage)
	r.Route("/locations", func(r chi.Router) {
		r.Get("/", h.handleListLocations)
		r.Get("/{id}", h.handleGetLocation)
		r.With(manage).Post("/", h.handleCreateLocation)
		r.With(manage).Put("/{id}", h.handleUpdateLocation)
		r.With(manage).Delete("/{id}", h.handleDeleteLocation)
	})
	r.Route("/teams", func(r chi.Router) {
		r.Get("/", h.handleListTeams)
		r.Get("/{id}", h.handleGetTeam)
		r.With(manage).Post("/", h.handleCreateTeam)
		r.With(manage).Put("/{id}", h.handleUpdateTeam)
		r.With(manage).Delete("/{id}", h.handleDeleteTeam)
	})
}

func (h *Handler) handleListLocations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	page, err := pagination.Parse(q.Get("page"), q.Get("limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.ListLocations(ctx, models.LocationFilter{Search: q.Get("search"), Page: page})
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to list locations")
		return
	}
	httputil.WritePage(w, result)
}

func (h *Handler) handleGetLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	l, err := h.service.GetLocation(ctx, id)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to get location")
		return
	}
	httputil.WriteData(w, http.StatusOK, "", l)
}

func (h *Handler) handleCreateLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.LocationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	l, err := h.service.CreateLocation(ctx, req)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to create location")
		return
	}
	httputil.WriteData(w, http.StatusCreated, "Location created successfully", l)
}

func (h *Handler) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req models.LocationUpdate
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	l, err := h.service.UpdateLocation(ctx, id, req)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to update location")
		return
	}
	httputil.WriteData(w, http.StatusOK, "Location updated successfully", l)
}

func (h *Handler) handleDeleteLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.DeleteLocation(ctx, id); err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to delete location")
		return
	}
	httputil.WriteMessage(w, "Location deleted successfully")
}

func (h *Handler) handleListTeams(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	page, err := pagination.Parse(q.Get("page"), q.Get("limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter := models.TeamFilter{Search: q.Get("search"), Page: page}
	locationID, err := httputil.QueryUUID(r, "location_id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if locationID != nil {
		filter.LocationID = *locationID
	}
	result, err := h.service.ListTeams(ctx, filter)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to list teams")
		return
	}
	httputil.WritePage(w, result)
}

func (h *Handler) handleGetTeam(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	t, err := h.service.GetTeam(ctx, id)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to get team")
		return
	}
	httputil.WriteData(w, http.StatusOK, "", t)
}

func (h *Handler) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.TeamRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	t, err := h.service.CreateTeam(ctx, req)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to create team")
		return
	}
	httputil.WriteData(w, http.StatusCreated, "Team created successfully", t)
}

func (h *Handler) handleUpdateTeam(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req models.TeamUpdate
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	t, err := h.service.UpdateTeam(ctx, id, req)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to update team")
		return
	}
	httputil.WriteData(w, http.StatusOK, "Team updated successfully", t)
}

func (h *Handler) handleDeleteTeam(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.DeleteTeam(ctx, id); err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to delete team")
		return
	}
	httputil.WriteMessage(w, "Team deleted successfully")
}
