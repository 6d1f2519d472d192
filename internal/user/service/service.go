package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"vtrack/internal/authz"
	"vtrack/internal/guard"
	org "vtrack/internal/org/models"
	"vtrack/internal/outbox"
	"vtrack/internal/user/models"
	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/pagination"
	"vtrack/pkg/platform/sentinel"
	txcontext "vtrack/pkg/platform/tx"
	"vtrack/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, u *models.User) error
	Find(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindView(ctx context.Context, id uuid.UUID) (*models.View, error)
	List(ctx context.Context, filter models.ListFilter) ([]models.View, error)
	Count(ctx context.Context, filter models.ListFilter) (int, error)
	Update(ctx context.Context, u *models.User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Teams is the existence check for team assignments.
type Teams interface {
	FindTeam(ctx context.Context, id uuid.UUID) (*org.TeamView, error)
}

type Guard interface {
	Ensure(ctx context.Context, id uuid.UUID, refs ...guard.Reference) error
	EnsureNotSelf(ctx context.Context, userID uuid.UUID) error
}

// Service manages user accounts and their credentials.
type Service struct {
	store    Store
	tx       txcontext.Runner
	guard    Guard
	teams    Teams
	events   outbox.Appender
	logger   *slog.Logger
	hashCost int
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

func WithTeams(teams Teams) Option {
	return func(s *Service) {
		s.teams = teams
	}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) {
		s.hashCost = cost
	}
}

func New(store Store, tx txcontext.Runner, guard Guard, opts ...Option) *Service {
	s := &Service{store: store, tx: tx, guard: guard, hashCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an active account with a hashed password.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.View, error) {
	if err := models.ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	u, err := req.Build(uuid.New(), string(hash), requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Invalid(err)
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.ensureTeam(ctx, u.TeamID); err != nil {
			return err
		}
		if _, err := s.store.FindByEmail(ctx, u.Email); err == nil {
			return dErrors.New(dErrors.CodeConflict, "user with this email already exists")
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check email")
		}
		if err := s.store.Create(ctx, u); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "user with this email already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
		}
		return outbox.Record(ctx, s.events, "user", u.ID, outbox.EventUserRegistered, map[string]any{
			"id": u.ID, "email": u.Email, "role": u.Role,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "user_registered", "user_id", u.ID, "role", u.Role)
	return s.view(ctx, u.ID)
}

// SeedAdmin registers the first administrator. It refuses once any admin exists.
func (s *Service) SeedAdmin(ctx context.Context, req models.RegisterRequest) (*models.View, error) {
	n, err := s.store.Count(ctx, models.ListFilter{Role: authz.RoleAdmin})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count administrators")
	}
	if n > 0 {
		return nil, dErrors.New(dErrors.CodeConflict, "an administrator already exists")
	}
	req.Role = authz.RoleAdmin
	return s.Register(ctx, req)
}

// Authenticate checks credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.store.FindByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
	}
	if !u.IsActive {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "user account is inactive")
	}
	return u, nil
}

// ChangePassword replaces the caller's password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, current, next string) error {
	caller := requestcontext.UserID(ctx)
	if caller == uuid.Nil {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if err := models.ValidatePassword(next); err != nil {
		return err
	}
	u, err := s.find(ctx, caller)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return dErrors.New(dErrors.CodeUnauthorized, "current password is incorrect")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.hashCost)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	if err := s.store.UpdatePassword(ctx, caller, string(hash), requestcontext.Now(ctx)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update password")
	}
	s.logAudit(ctx, "password_changed", "user_id", caller)
	return nil
}

// Get returns a user to that user or to an admin.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.View, error) {
	if err := ensureSelfOrAdmin(ctx, id); err != nil {
		return nil, err
	}
	return s.view(ctx, id)
}

func (s *Service) List(ctx context.Context, filter models.ListFilter) (pagination.Page[models.View], error) {
	if filter.Role != "" && !authz.ValidRole(filter.Role) {
		return pagination.Page[models.View]{}, dErrors.New(dErrors.CodeInvalidArgument, "invalid role")
	}
	page, err := pagination.Fetch(ctx, filter.Page,
		func(ctx context.Context) ([]models.View, error) { return s.store.List(ctx, filter) },
		func(ctx context.Context) (int, error) { return s.store.Count(ctx, filter) },
	)
	if err != nil {
		return page, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users")
	}
	return page, nil
}

// Update lets users edit their own profile. Team and active status are admin-only.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req models.UpdateRequest) (*models.View, error) {
	if err := ensureSelfOrAdmin(ctx, id); err != nil {
		return nil, err
	}
	if req.Privileged() && !authz.IsAdmin(ctx) {
		return nil, dErrors.New(dErrors.CodeForbidden, "only admins can change team or active status")
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		u, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		if err := req.Apply(u, requestcontext.Now(ctx)); err != nil {
			return dErrors.Invalid(err)
		}
		if req.TeamID != nil {
			if err := s.ensureTeam(ctx, u.TeamID); err != nil {
				return err
			}
		}
		if err := s.store.Update(ctx, u); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "team no longer exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user")
		}
		return outbox.Record(ctx, s.events, "user", u.ID, outbox.EventUserUpdated, map[string]any{
			"id": u.ID, "team_id": u.TeamID, "is_active": u.IsActive,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "user_updated", "user_id", id)
	return s.view(ctx, id)
}

// Delete removes an account that never issued a citation or processed a
// payment. Admins cannot delete themselves.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.find(ctx, id); err != nil {
			return err
		}
		if err := s.guard.EnsureNotSelf(ctx, id); err != nil {
			return err
		}
		if err := s.guard.Ensure(ctx, id, guard.UserCitations, guard.UserPayments); err != nil {
			return err
		}
		if err := s.store.Delete(ctx, id); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "cannot delete user with issued citations or processed payments")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete user")
		}
		return outbox.Record(ctx, s.events, "user", id, outbox.EventUserDeleted, map[string]uuid.UUID{"id": id})
	})
	if err != nil {
		return err
	}
	s.logAudit(ctx, "user_deleted", "user_id", id)
	return nil
}

func (s *Service) find(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := s.store.Find(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return u, nil
}

func (s *Service) view(ctx context.Context, id uuid.UUID) (*models.View, error) {
	v, err := s.store.FindView(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return v, nil
}

func (s *Service) ensureTeam(ctx context.Context, id *uuid.UUID) error {
	if id == nil || s.teams == nil {
		return nil
	}
	_, err := s.teams.FindTeam(ctx, *id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeInvalidArgument, "team does not exist")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load team")
	}
	return nil
}

func ensureSelfOrAdmin(ctx context.Context, id uuid.UUID) error {
	caller, ok := requestcontext.Caller(ctx)
	if !ok {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if caller.UserID != id && caller.Role != authz.RoleAdmin {
		return dErrors.New(dErrors.CodeForbidden, "insufficient permissions")
	}
	return nil
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
