package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"vtrack/internal/platform/logger"
	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/requestcontext"
)

type LockoutSuite struct {
	suite.Suite
	now   time.Time
	store *MemoryStore
	svc   *Service
}

func TestLockoutSuite(t *testing.T) {
	suite.Run(t, new(LockoutSuite))
}

func (s *LockoutSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s.store = NewMemoryStore()
	s.store.now = func() time.Time { return s.now }
	s.svc = New(s.store, WithLogger(logger.Discard()), WithConfig(Config{
		MaxAttempts:  3,
		Window:       10 * time.Minute,
		LockDuration: 5 * time.Minute,
	}))
}

func (s *LockoutSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *LockoutSuite) fail(times int) (locked bool) {
	for range times {
		var err error
		locked, err = s.svc.RecordFailure(s.ctx(), "Officer@vtrack.test", "10.0.0.1")
		s.Require().NoError(err)
	}
	return locked
}

func (s *LockoutSuite) TestLocksAfterMaxAttempts() {
	s.False(s.fail(2))
	s.NoError(s.svc.Check(s.ctx(), "officer@vtrack.test", "10.0.0.1"))

	s.True(s.fail(1))
	err := s.svc.Check(s.ctx(), "OFFICER@vtrack.test", "10.0.0.1")
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))

	wait, ok := RetryAfter(s.ctx(), err)
	s.True(ok)
	s.Equal(5*time.Minute, wait)
}

func (s *LockoutSuite) TestLockIsScopedToClientIP() {
	s.fail(3)
	s.NoError(s.svc.Check(s.ctx(), "officer@vtrack.test", "10.0.0.2"))
}

func (s *LockoutSuite) TestLockExpires() {
	s.fail(3)
	s.now = s.now.Add(5 * time.Minute)
	s.NoError(s.svc.Check(s.ctx(), "officer@vtrack.test", "10.0.0.1"))
}

func (s *LockoutSuite) TestWindowResetsCounter() {
	s.fail(2)
	s.now = s.now.Add(11 * time.Minute)
	s.False(s.fail(2), "failures from an expired window do not count")
}

func (s *LockoutSuite) TestClearForgetsFailures() {
	s.fail(2)
	s.Require().NoError(s.svc.Clear(s.ctx(), "officer@vtrack.test", "10.0.0.1"))
	s.False(s.fail(2))
}

func TestRetryAfterIgnoresOtherErrors(t *testing.T) {
	_, ok := RetryAfter(context.Background(), dErrors.New(dErrors.CodeUnauthorized, "invalid credentials"))
	assert.False(t, ok)
}

func TestDefaultsApplyForZeroConfig(t *testing.T) {
	svc := New(NewMemoryStore(), WithConfig(Config{}))
	require.Equal(t, DefaultConfig(), svc.config)
}
