package session

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"loanportal/pkg/domain"
)

func newTestRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestIssuerIssueAndVerify(t *testing.T) {
	iss, err := NewIssuer(newTestKey(t), NewRevoker(newTestRedis(t), ""), Options{KeyID: "kid-1"})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	token, expires, err := iss.Issue(domain.User{ID: "admin-1", Email: "ops@example.com", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("expected future expiry, got %v", expires)
	}
	claims, err := iss.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	id := claims.Identity()
	if id.UserID != "admin-1" || !id.Admin() || id.Email != "ops@example.com" {
		t.Fatalf("unexpected identity %+v", id)
	}
	if !claims.AppMetadata.IsAdmin || claims.AppMetadata.Role != "admin" {
		t.Fatalf("unexpected app metadata %+v", claims.AppMetadata)
	}
}

func TestIssuerRejectsOtherAudience(t *testing.T) {
	key := newTestKey(t)
	signing, _ := NewIssuer(key, nil, Options{Audience: "aud-a"})
	verifying, _ := NewIssuer(key, nil, Options{Audience: "aud-b"})

	token, _, err := signing.Issue(domain.User{ID: "user-1", Role: domain.RoleUser})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifying.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestIssuerRevocation(t *testing.T) {
	ctx := context.Background()
	iss, _ := NewIssuer(newTestKey(t), NewRevoker(newTestRedis(t), ""), Options{})

	token, _, _ := iss.Issue(domain.User{ID: "user-1", Role: domain.RoleUser})
	if err := iss.Revoke(ctx, token); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := iss.Verify(ctx, token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected revoked jti, got %v", err)
	}

	other, _, _ := iss.Issue(domain.User{ID: "user-2", Role: domain.RoleUser})
	if err := iss.RevokeUser(ctx, "user-2", time.Now().Add(2*time.Second)); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	if _, err := iss.Verify(ctx, other); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected user cutoff to revoke token, got %v", err)
	}
	if err := iss.Revoke(ctx, "garbage"); err != nil {
		t.Fatalf("revoking an invalid token should be a no-op, got %v", err)
	}
}

func TestIssuerVerifiesPreviousKeyAndPublishesJWKS(t *testing.T) {
	oldKey := newTestKey(t)
	oldIssuer, _ := NewIssuer(oldKey, nil, Options{KeyID: "kid-old"})
	newIssuer, _ := NewIssuer(newTestKey(t), nil, Options{
		KeyID:        "kid-new",
		PreviousKeys: map[string]*rsa.PublicKey{"kid-old": &oldKey.PublicKey},
	})

	token, _, _ := oldIssuer.Issue(domain.User{ID: "user-1", Role: domain.RoleUser})
	if _, err := newIssuer.Verify(context.Background(), token); err != nil {
		t.Fatalf("previous key should still verify: %v", err)
	}

	set := newIssuer.JWKS()
	if len(set.Keys) != 2 || set.Keys[0].Kid != "kid-new" || set.Keys[1].Kid != "kid-old" {
		t.Fatalf("unexpected jwks %+v", set.Keys)
	}
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Alg != "RS256" || k.N == "" || k.E == "" {
			t.Fatalf("incomplete jwk %+v", k)
		}
	}
}

func TestRevokerUserCutoffMonotonic(t *testing.T) {
	ctx := context.Background()
	r := NewRevoker(newTestRedis(t), "test")
	newer := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := r.RevokeUser(ctx, "user-1", newer, time.Hour); err != nil {
		t.Fatalf("revoke newer: %v", err)
	}
	if err := r.RevokeUser(ctx, "user-1", newer.Add(-time.Hour), time.Hour); err != nil {
		t.Fatalf("revoke older: %v", err)
	}
	got, err := r.RevokedAfter(ctx, "user-1")
	if err != nil {
		t.Fatalf("revoked after: %v", err)
	}
	if !got.Equal(newer) {
		t.Fatalf("cutoff = %v, want %v", got, newer)
	}
	if got, _ := r.RevokedAfter(ctx, "user-2"); !got.IsZero() {
		t.Fatalf("expected no cutoff for user-2, got %v", got)
	}
}
