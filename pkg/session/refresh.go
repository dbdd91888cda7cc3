package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrRefreshTokenReplay means an already rotated token was presented.
	// The whole family is revoked when this happens.
	ErrRefreshTokenReplay = errors.New("refresh token replay detected")
)

// RefreshStore keeps refresh-token families in Redis. Each login starts a
// family; rotation replaces the current token and remembers the old hashes so
// that reuse can be detected.
type RefreshStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRefreshStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RefreshStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RefreshStore{client: client, prefix: prefix, ttl: ttl}
}

// TTL is the refresh-token lifetime.
func (s *RefreshStore) TTL() time.Duration {
	return s.ttl
}

// Issue starts a new family for userID and returns its first token.
func (s *RefreshStore) Issue(ctx context.Context, userID string) (string, error) {
	token, err := randomToken(32)
	if err != nil {
		return "", err
	}
	familyID, err := randomToken(16)
	if err != nil {
		return "", err
	}
	hash := tokenHash(token)

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.tokenKey(hash), familyID, s.ttl)
	pipe.HSet(ctx, s.familyKey(familyID), map[string]any{"userId": userID, "currentHash": hash})
	pipe.Expire(ctx, s.familyKey(familyID), s.ttl)
	pipe.SAdd(ctx, s.familyTokensKey(familyID), hash)
	pipe.Expire(ctx, s.familyTokensKey(familyID), s.ttl)
	pipe.SAdd(ctx, s.userFamiliesKey(userID), familyID)
	pipe.Expire(ctx, s.userFamiliesKey(userID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return token, nil
}

// Rotate exchanges token for a new one in the same family and returns the
// owning user id.
func (s *RefreshStore) Rotate(ctx context.Context, token string) (string, string, error) {
	hash := tokenHash(token)
	for {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}
		familyID, err := s.client.Get(ctx, s.tokenKey(hash)).Result()
		if errors.Is(err, redis.Nil) {
			return "", "", ErrInvalidRefreshToken
		}
		if err != nil {
			return "", "", err
		}

		familyKey := s.familyKey(familyID)
		var userID, next string
		revoke := false
		err = s.client.Watch(ctx, func(tx *redis.Tx) error {
			family, err := tx.HGetAll(ctx, familyKey).Result()
			if err != nil {
				return err
			}
			userID = family["userId"]
			current := family["currentHash"]
			if userID == "" || current == "" {
				revoke = true
				return ErrInvalidRefreshToken
			}
			if current != hash {
				revoke = true
				return ErrRefreshTokenReplay
			}
			next, err = randomToken(32)
			if err != nil {
				return err
			}
			nextHash := tokenHash(next)
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, s.tokenKey(nextHash), familyID, s.ttl)
				pipe.HSet(ctx, familyKey, "currentHash", nextHash)
				pipe.Expire(ctx, familyKey, s.ttl)
				pipe.SAdd(ctx, s.familyTokensKey(familyID), nextHash)
				pipe.Expire(ctx, s.familyTokensKey(familyID), s.ttl)
				pipe.Expire(ctx, s.userFamiliesKey(userID), s.ttl)
				return nil
			})
			return err
		}, familyKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if revoke {
				_ = s.revokeFamily(ctx, familyID, userID)
			}
			return "", "", err
		}
		return userID, next, nil
	}
}

// Revoke drops the family that token belongs to. Unknown tokens are ignored.
func (s *RefreshStore) Revoke(ctx context.Context, token string) error {
	familyID, err := s.client.Get(ctx, s.tokenKey(tokenHash(token))).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.revokeFamily(ctx, familyID, "")
}

// RevokeUser drops every family of userID.
func (s *RefreshStore) RevokeUser(ctx context.Context, userID string) error {
	families, err := s.client.SMembers(ctx, s.userFamiliesKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	for _, familyID := range families {
		if err := s.revokeFamily(ctx, familyID, userID); err != nil {
			return err
		}
	}
	return s.client.Del(ctx, s.userFamiliesKey(userID)).Err()
}

func (s *RefreshStore) revokeFamily(ctx context.Context, familyID, userID string) error {
	if userID == "" {
		owner, err := s.client.HGet(ctx, s.familyKey(familyID), "userId").Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		userID = owner
	}
	hashes, err := s.client.SMembers(ctx, s.familyTokensKey(familyID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	pipe := s.client.TxPipeline()
	for _, h := range hashes {
		pipe.Del(ctx, s.tokenKey(h))
	}
	pipe.Del(ctx, s.familyTokensKey(familyID), s.familyKey(familyID))
	if userID != "" {
		pipe.SRem(ctx, s.userFamiliesKey(userID), familyID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RefreshStore) tokenKey(hash string) string {
	return s.prefix + ":refresh:token:" + hash
}

func (s *RefreshStore) familyKey(familyID string) string {
	return s.prefix + ":refresh:family:" + familyID
}

func (s *RefreshStore) familyTokensKey(familyID string) string {
	return s.prefix + ":refresh:family_tokens:" + familyID
}

func (s *RefreshStore) userFamiliesKey(userID string) string {
	return s.prefix + ":refresh:user_families:" + userID
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func tokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
