// Package lockout throttles repeated failed logins for an email and client IP pair.
package lockout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/requestcontext"
)

// Store keeps failure counters and lock deadlines per key.
type Store interface {
	// RecordFailure increments the counter for key and returns the new count.
	// The counter expires window after the first failure.
	RecordFailure(ctx context.Context, key string, window time.Duration) (int, error)
	Lock(ctx context.Context, key string, until time.Time) error
	LockedUntil(ctx context.Context, key string) (*time.Time, error)
	Clear(ctx context.Context, key string) error
}

type Config struct {
	MaxAttempts  int
	Window       time.Duration
	LockDuration time.Duration
}

func DefaultConfig() Config {
	return Config{MaxAttempts: 5, Window: 15 * time.Minute, LockDuration: 15 * time.Minute}
}

type lockedError struct {
	until time.Time
}

func (e *lockedError) Error() string {
	return fmt.Sprintf("locked until %s", e.until.Format(time.RFC3339))
}

// RetryAfter reports how long a locked-out caller has to wait.
func RetryAfter(ctx context.Context, err error) (time.Duration, bool) {
	var le *lockedError
	if !errors.As(err, &le) {
		return 0, false
	}
	return max(le.until.Sub(requestcontext.Now(ctx)), 0), true
}

type Service struct {
	store  Store
	config Config
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithConfig(cfg Config) Option {
	return func(s *Service) {
		if cfg.MaxAttempts > 0 {
			s.config.MaxAttempts = cfg.MaxAttempts
		}
		if cfg.Window > 0 {
			s.config.Window = cfg.Window
		}
		if cfg.LockDuration > 0 {
			s.config.LockDuration = cfg.LockDuration
		}
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, config: DefaultConfig(), logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func key(email, ip string) string {
	return strings.ToLower(strings.TrimSpace(email)) + "|" + ip
}

// Check fails with a rate limit error while the pair is locked.
func (s *Service) Check(ctx context.Context, email, ip string) error {
	until, err := s.store.LockedUntil(ctx, key(email, ip))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check login lockout")
	}
	if until == nil || !requestcontext.Now(ctx).Before(*until) {
		return nil
	}
	return dErrors.Wrap(&lockedError{until: *until}, dErrors.CodeRateLimited,
		"too many failed login attempts, try again later")
}

// RecordFailure counts a failed login and locks the pair once the window's
// attempts are used up. It reports whether a lock was applied.
func (s *Service) RecordFailure(ctx context.Context, email, ip string) (bool, error) {
	k := key(email, ip)
	count, err := s.store.RecordFailure(ctx, k, s.config.Window)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record login failure")
	}
	if count < s.config.MaxAttempts {
		return false, nil
	}
	until := requestcontext.Now(ctx).Add(s.config.LockDuration)
	if err := s.store.Lock(ctx, k, until); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to apply login lockout")
	}
	s.logger.WarnContext(ctx, "auth_lockout_triggered",
		"email", strings.ToLower(email),
		"ip", ip,
		"failures", count,
		"locked_until", until,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
	return true, nil
}

// Clear resets the pair after a successful login.
func (s *Service) Clear(ctx context.Context, email, ip string) error {
	if err := s.store.Clear(ctx, key(email, ip)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear login failures")
	}
	return nil
}
