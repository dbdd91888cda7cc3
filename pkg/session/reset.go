package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrResetCodeInvalid = errors.New("reset code invalid or expired")
	// ErrResetCodeLocked is returned once the attempt budget is spent; the
	// challenge is discarded at that point.
	ErrResetCodeLocked = errors.New("too many reset attempts")
)

// ResetCodes stores password reset challenges keyed by normalized email.
// Only the bcrypt hash of a code is persisted.
type ResetCodes struct {
	client      redis.UniversalClient
	prefix      string
	ttl         time.Duration
	maxAttempts int
}

func NewResetCodes(client redis.UniversalClient, prefix string, ttl time.Duration, maxAttempts int) *ResetCodes {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &ResetCodes{client: client, prefix: prefix, ttl: ttl, maxAttempts: maxAttempts}
}

// Issue creates a 6-digit code for email, replacing any earlier challenge.
func (c *ResetCodes) Issue(ctx context.Context, email string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	code := fmt.Sprintf("%06d", n.Int64())
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	key := c.key(email)
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{"hash": string(hash), "attempts": 0})
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return code, nil
}

// Consume checks code and deletes the challenge on success.
func (c *ResetCodes) Consume(ctx context.Context, email, code string) error {
	key := c.key(email)
	hash, err := c.client.HGet(ctx, key, "hash").Result()
	if errors.Is(err, redis.Nil) {
		return ErrResetCodeInvalid
	}
	if err != nil {
		return err
	}
	attempts, err := c.client.HIncrBy(ctx, key, "attempts", 1).Result()
	if err != nil {
		return err
	}
	if attempts > int64(c.maxAttempts) {
		_ = c.client.Del(ctx, key).Err()
		return ErrResetCodeLocked
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(strings.TrimSpace(code))) != nil {
		return ErrResetCodeInvalid
	}
	return c.client.Del(ctx, key).Err()
}

func (c *ResetCodes) key(email string) string {
	return c.prefix + ":reset:" + strings.ToLower(strings.TrimSpace(email))
}
