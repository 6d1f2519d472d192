package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"vtrack/internal/authz"
	"vtrack/internal/citation/models"
	"vtrack/internal/evidence"
	"vtrack/internal/platform/middleware"
	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/pagination"
	"vtrack/pkg/platform/httputil"
)

const (
	payloadField  = "payload"
	evidenceField = "evidences"
	formMemory    = 8 << 20
)

type Service interface {
	Create(ctx context.Context, req models.CreateRequest, uploads []evidence.Upload) (*models.View, error)
	Get(ctx context.Context, id uuid.UUID) (*models.View, error)
	List(ctx context.Context, filter models.ListFilter) (pagination.Page[models.View], error)
	Update(ctx context.Context, id uuid.UUID, req models.UpdateRequest) (*models.View, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Evidences(ctx context.Context, id uuid.UUID) ([]models.EvidenceFile, error)
}

type Handler struct {
	service    Service
	logger     *slog.Logger
	authorizer middleware.Authorizer
	maxUpload  int64
}

// New builds the citation handler. maxUpload bounds a multipart request body;
// zero leaves it unbounded.
func New(service Service, logger *slog.Logger, authorizer middleware.Authorizer, maxUpload int64) *Handler {
	return &Handler{service: service, logger: logger, authorizer: authorizer, maxUpload: maxUpload}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/citations", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.Get("/{id}/evidences", h.handleEvidences)
		r.With(middleware.RequireAction(h.authorizer, authz.ActionCitationCreate)).Post("/", h.handleCreate)
		r.With(middleware.RequireAction(h.authorizer, authz.ActionCitationUpdate)).Put("/{id}", h.handleUpdate)
		r.With(middleware.RequireAction(h.authorizer, authz.ActionCitationDelete)).Delete("/{id}", h.handleDelete)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.List(ctx, filter)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to list citations")
		return
	}
	httputil.WritePage(w, result)
}

func parseFilter(r *http.Request) (models.ListFilter, error) {
	q := r.URL.Query()
	page, err := pagination.Parse(q.Get("page"), q.Get("limit"))
	if err != nil {
		return models.ListFilter{}, err
	}
	filter := models.ListFilter{Status: models.Status(q.Get("status")), Page: page}
	if id, err := httputil.QueryUUID(r, "violator_id"); err != nil {
		return filter, err
	} else if id != nil {
		filter.ViolatorID = *id
	}
	if id, err := httputil.QueryUUID(r, "officer_id"); err != nil {
		return filter, err
	} else if id != nil {
		filter.OfficerID = *id
	}
	if t, err := httputil.QueryTime(r, "date_from"); err != nil {
		return filter, err
	} else if t != nil {
		filter.From = *t
	}
	if t, err := httputil.QueryTime(r, "date_to"); err != nil {
		return filter, err
	} else if t != nil {
		filter.To = *t
	}
	return filter, nil
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
		httputil.Fail(ctx, h.logger, w, err, "failed to get citation")
		return
	}
	httputil.WriteData(w, http.StatusOK, "", view)
}

func (h *Handler) handleEvidences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	files, err := h.service.Evidences(ctx, id)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to get citation evidences")
		return
	}
	httputil.WriteData(w, http.StatusOK, "", files)
}

// handleCreate accepts either a JSON body or a multipart form whose payload
// field holds the JSON request and whose evidences fields hold the files.
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		req     models.CreateRequest
		uploads []evidence.Upload
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		files, err := h.parseMultipart(w, r, &req)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		defer closeAll(files)
		uploads = make([]evidence.Upload, 0, len(files))
		for _, f := range files {
			uploads = append(uploads, f.upload)
		}
	} else if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	view, err := h.service.Create(ctx, req, uploads)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to create citation")
		return
	}
	httputil.WriteData(w, http.StatusCreated, "Citation created successfully", view)
}

type openFile struct {
	upload evidence.Upload
	file   multipart.File
}

func closeAll(files []openFile) {
	for _, f := range files {
		_ = f.file.Close()
	}
}

func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request, req *models.CreateRequest) ([]openFile, error) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	if err := r.ParseMultipartForm(formMemory); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidArgument, "invalid multipart form")
	}
	raw := r.FormValue(payloadField)
	if raw == "" {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "payload field is required")
	}
	if err := json.Unmarshal([]byte(raw), req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidArgument, "invalid payload")
	}

	headers := r.MultipartForm.File[evidenceField]
	files := make([]openFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll(files)
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidArgument, "unreadable evidence file")
		}
		files = append(files, openFile{
			file: f,
			upload: evidence.Upload{
				Name:        fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Size:        fh.Size,
				Body:        f,
			},
		})
	}
	return files, nil
}

// handleUpdate applies amendments. Overriding the status needs a separate grant.
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
	if req.Status != nil {
		if err := h.authorizer.Authorize(ctx, authz.ActionCitationStatus); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	view, err := h.service.Update(ctx, id, req)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to update citation")
		return
	}
	httputil.WriteData(w, http.StatusOK, "Citation updated successfully", view)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Delete(ctx, id); err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to delete citation")
		return
	}
	httputil.WriteMessage(w, "Citation deleted successfully")
}
