// Package revocation tracks logged-out access tokens by jti until they expire.
package revocation

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "vtrack:trl:"

// RedisList shares revocations across server instances.
type RedisList struct {
	client redis.Cmdable
}

func NewRedis(client redis.Cmdable) *RedisList {
	return &RedisList{client: client}
}

// RevokeToken stores the jti for ttl. A non-positive ttl means the token has
// already expired and nothing is stored.
func (l *RedisList) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	return l.client.Set(ctx, keyPrefix+jti, "1", ttl).Err()
}

func (l *RedisList) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	err := l.client.Get(ctx, keyPrefix+jti).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
