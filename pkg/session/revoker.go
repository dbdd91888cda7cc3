package session

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "loanportal:session"

// raiseCutoff only moves a user cutoff forward.
var raiseCutoff = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current and tonumber(current) >= tonumber(ARGV[1]) then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// Revoker tracks revoked token ids and per-user revocation cutoffs in Redis.
type Revoker struct {
	client redis.UniversalClient
	prefix string
}

func NewRevoker(client redis.UniversalClient, prefix string) *Revoker {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Revoker{client: client, prefix: prefix}
}

// Revoke marks jti as revoked for ttl. Non-positive ttls are a no-op.
func (r *Revoker) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 || strings.TrimSpace(jti) == "" {
		return nil
	}
	return r.client.Set(ctx, r.jtiKey(jti), "1", ttl).Err()
}

func (r *Revoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, r.jtiKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RevokeUser records since as the user's cutoff, keeping it for ttl. An
// older cutoff never replaces a newer one.
func (r *Revoker) RevokeUser(ctx context.Context, userID string, since time.Time, ttl time.Duration) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("user id required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return raiseCutoff.Run(ctx, r.client, []string{r.userKey(userID)}, since.Unix(), ttl.Milliseconds()).Err()
}

// RevokedAfter returns the user's cutoff, or the zero time when none is set.
func (r *Revoker) RevokedAfter(ctx context.Context, userID string) (time.Time, error) {
	raw, err := r.client.Get(ctx, r.userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0).UTC(), nil
}

func (r *Revoker) jtiKey(jti string) string {
	return r.prefix + ":revoked:" + jti
}

func (r *Revoker) userKey(userID string) string {
	return r.prefix + ":revoked_user:" + userID
}
