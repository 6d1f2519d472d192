package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"vtrack/internal/authz"
	"vtrack/internal/payment/models"
	"vtrack/internal/platform/middleware"
	"vtrack/pkg/pagination"
	"vtrack/pkg/platform/httputil"
)

type Service interface {
	Record(ctx context.Context, req models.RecordRequest) (*models.View, error)
	Reverse(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*models.View, error)
	List(ctx context.Context, filter models.ListFilter) (pagination.Page[models.View], error)
	Update(ctx context.Context, id uuid.UUID, req models.UpdateRequest) (*models.View, error)
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
	r.Route("/payments", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.With(middleware.RequireAction(h.authorizer, authz.ActionPaymentRecord)).Post("/", h.handleRecord)
		r.With(middleware.RequireAction(h.authorizer, authz.ActionPaymentUpdate)).Put("/{id}", h.handleUpdate)
		r.With(middleware.RequireAction(h.authorizer, authz.ActionPaymentReverse)).Delete("/{id}", h.handleReverse)
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
	filter := models.ListFilter{Method: models.Method(q.Get("payment_method")), Page: page}
	citationID, err := httputil.QueryUUID(r, "citation_id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if citationID != nil {
		filter.CitationID = *citationID
	}
	from, err := httputil.QueryTime(r, "date_from")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if from != nil {
		filter.From = *from
	}
	to, err := httputil.QueryTime(r, "date_to")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if to != nil {
		filter.To = *to
	}

	result, err := h.service.List(ctx, filter)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to list payments")
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
	view, err := h.service.Get(ctx, id)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to get payment")
		return
	}
	httputil.WriteData(w, http.StatusOK, "", view)
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.RecordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	view, err := h.service.Record(ctx, req)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to record payment")
		return
	}
	httputil.WriteData(w, http.StatusCreated, "Payment recorded successfully", view)
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
	view, err := h.service.Update(ctx, id, req)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to update payment")
		return
	}
	httputil.WriteData(w, http.StatusOK, "Payment updated successfully", view)
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Reverse(ctx, id); err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to reverse payment")
		return
	}
	httputil.WriteMessage(w, "Payment deleted and citation returned to Pending")
}
