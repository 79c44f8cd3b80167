package sessions

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// package-level Redis client used for access-token revocation (optional)
var revocationClient *redis.Client

const revokedPrefix = "docsync:revoked:"

// SetRevocationClient configures the Redis client used to record revoked
// access tokens. Safe to call with nil to disable revocation.
func SetRevocationClient(c *redis.Client) {
	revocationClient = c
}

// RevokeAccessToken rejects token on every gateway replica for ttl (normally
// the token's remaining lifetime). Without a Redis client it is a no-op.
func RevokeAccessToken(ctx context.Context, token string, ttl time.Duration) error {
	if revocationClient == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return revocationClient.Set(ctx, revokedPrefix+token, "1", ttl).Err()
}

// IsAccessTokenRevoked returns true when the token was revoked and the
// revocation has not yet expired. Without a Redis client it returns (false, nil).
func IsAccessTokenRevoked(ctx context.Context, token string) (bool, error) {
	if revocationClient == nil {
		return false, nil
	}
	n, err := revocationClient.Exists(ctx, revokedPrefix+token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
