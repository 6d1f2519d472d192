package handler

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"vtrack/internal/auth/lockout"
	"vtrack/internal/auth/service"
	"vtrack/internal/authz"
	"vtrack/internal/platform/middleware"
	user "vtrack/internal/user/models"
	"vtrack/pkg/platform/httputil"
)

type Service interface {
	Login(ctx context.Context, req service.LoginRequest) (*service.LoginResult, error)
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (*user.View, error)
	UpdateProfile(ctx context.Context, req service.ProfileRequest) (*user.View, error)
	Register(ctx context.Context, req user.RegisterRequest) (*user.View, error)
	ChangePassword(ctx context.Context, req service.ChangePasswordRequest) error
	Roles() []string
}

type Handler struct {
	service    Service
	logger     *slog.Logger
	authorizer middleware.Authorizer
}

func New(service Service, logger *slog.Logger, authorizer middleware.Authorizer) *Handler {
	return &Handler{service: service, logger: logger, authorizer: authorizer}
}

// RegisterPublic mounts the routes reachable without a token.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
}

// Register mounts the routes that need an authenticated caller.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/logout", h.handleLogout)
	r.Get("/auth/profile", h.handleProfile)
	r.Put("/auth/profile", h.handleUpdateProfile)
	r.Get("/auth/roles", h.handleRoles)
	r.Post("/auth/change-password", h.handleChangePassword)
	r.With(middleware.RequireAction(h.authorizer, authz.ActionUserManage)).Post("/auth/register", h.handleRegister)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req service.LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	req.ClientIP = middleware.ClientIP(r)
	res, err := h.service.Login(ctx, req)
	if err != nil {
		if wait, ok := lockout.RetryAfter(ctx, err); ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		}
		httputil.Fail(ctx, h.logger, w, err, "failed to log in")
		return
	}
	httputil.WriteData(w, http.StatusOK, "Login successful", res)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Logout(ctx); err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to log out")
		return
	}
	httputil.WriteMessage(w, "Logged out successfully")
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, err := h.service.Profile(ctx)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to load profile")
		return
	}
	httputil.WriteData(w, http.StatusOK, "", u)
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req service.ProfileRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	u, err := h.service.UpdateProfile(ctx, req)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to update profile")
		return
	}
	httputil.WriteData(w, http.StatusOK, "Profile updated successfully", u)
}

func (h *Handler) handleRoles(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteData(w, http.StatusOK, "", h.service.Roles())
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req user.RegisterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	u, err := h.service.Register(ctx, req)
	if err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to register user")
		return
	}
	httputil.WriteData(w, http.StatusCreated, "User registered successfully", u)
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req service.ChangePasswordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.ChangePassword(ctx, req); err != nil {
		httputil.Fail(ctx, h.logger, w, err, "failed to change password")
		return
	}
	httputil.WriteMessage(w, "Password changed successfully")
}
