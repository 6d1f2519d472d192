package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vtrack/internal/auth/token"
	"vtrack/internal/authz"
	user "vtrack/internal/user/models"
	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/requestcontext"
)

type Users interface {
	Authenticate(ctx context.Context, email, password string) (*user.User, error)
	Register(ctx context.Context, req user.RegisterRequest) (*user.View, error)
	ChangePassword(ctx context.Context, current, next string) error
	Get(ctx context.Context, id uuid.UUID) (*user.View, error)
	Update(ctx context.Context, id uuid.UUID, req user.UpdateRequest) (*user.View, error)
}

type Tokens interface {
	Issue(userID uuid.UUID, role string, active bool) (token.Issued, error)
	TTL() time.Duration
}

// Revocations records logged-out tokens.
type Revocations interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
}

// Lockout throttles repeated failed logins.
type Lockout interface {
	Check(ctx context.Context, email, ip string) error
	RecordFailure(ctx context.Context, email, ip string) (bool, error)
	Clear(ctx context.Context, email, ip string) error
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// ClientIP is filled by the transport.
	ClientIP string `json:"-"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ProfileRequest is the part of a user record its owner edits directly.
type ProfileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
}

type LoginResult struct {
	Token     string     `json:"token"`
	TokenType string     `json:"token_type"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *user.View `json:"user"`
}

type Service struct {
	users       Users
	tokens      Tokens
	revocations Revocations
	lockout     Lockout
	logger      *slog.Logger
}

type Option func(*Service)

// WithLockout enables failed-login throttling.
func WithLockout(l Lockout) Option {
	return func(s *Service) {
		s.lockout = l
	}
}

func New(users Users, tokens Tokens, revocations Revocations, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{users: users, tokens: tokens, revocations: revocations, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if req.Email == "" || req.Password == "" {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "email and password are required")
	}
	if s.lockout != nil {
		if err := s.lockout.Check(ctx, req.Email, req.ClientIP); err != nil {
			return nil, err
		}
	}
	u, err := s.users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			s.logger.WarnContext(ctx, "login failed",
				"reason", err.Error(),
				"request_id", requestcontext.RequestID(ctx),
			)
			s.recordFailure(ctx, req)
		}
		return nil, err
	}
	if s.lockout != nil {
		if err := s.lockout.Clear(ctx, req.Email, req.ClientIP); err != nil {
			s.logger.WarnContext(ctx, "failed to clear login failures", "error", err)
		}
	}
	issued, err := s.tokens.Issue(u.ID, u.Role, u.IsActive)
	if err != nil {
		return nil, err
	}

	ctx = requestcontext.WithCaller(ctx, requestcontext.Identity{UserID: u.ID, Role: u.Role, Active: u.IsActive, JTI: issued.JTI})
	profile, err := s.users.Get(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user_logged_in",
		"user_id", u.ID,
		"role", u.Role,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
	return &LoginResult{Token: issued.Token, TokenType: "Bearer", ExpiresAt: issued.ExpiresAt, User: profile}, nil
}

// recordFailure never masks the original authentication error.
func (s *Service) recordFailure(ctx context.Context, req LoginRequest) {
	if s.lockout == nil {
		return
	}
	if _, err := s.lockout.RecordFailure(ctx, req.Email, req.ClientIP); err != nil {
		s.logger.ErrorContext(ctx, "failed to record login failure",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

// Logout revokes the caller's current token for the full token lifetime,
// which always covers its remaining validity.
func (s *Service) Logout(ctx context.Context) error {
	caller, ok := requestcontext.Caller(ctx)
	if !ok || caller.JTI == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if err := s.revocations.RevokeToken(ctx, caller.JTI, s.tokens.TTL()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to revoke token")
	}
	s.logger.InfoContext(ctx, "user_logged_out",
		"user_id", caller.UserID,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
	return nil
}

func (s *Service) Profile(ctx context.Context) (*user.View, error) {
	id := requestcontext.UserID(ctx)
	if id == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return s.users.Get(ctx, id)
}

// UpdateProfile edits the caller's own name and phone.
func (s *Service) UpdateProfile(ctx context.Context, req ProfileRequest) (*user.View, error) {
	id := requestcontext.UserID(ctx)
	if id == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return s.users.Update(ctx, id, user.UpdateRequest{FirstName: req.FirstName, LastName: req.LastName, Phone: req.Phone})
}

func (s *Service) Register(ctx context.Context, req user.RegisterRequest) (*user.View, error) {
	return s.users.Register(ctx, req)
}

func (s *Service) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return dErrors.New(dErrors.CodeInvalidArgument, "current and new password are required")
	}
	return s.users.ChangePassword(ctx, req.CurrentPassword, req.NewPassword)
}

// Roles lists the roles accounts may be registered with.
func (s *Service) Roles() []string {
	return authz.Roles
}
