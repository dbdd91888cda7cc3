package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRefreshStoreRotateAndRevoke(t *testing.T) {
	ctx := context.Background()
	s := NewRefreshStore(newTestRedis(t), "", time.Minute)

	token, err := s.Issue(ctx, "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	userID, next, err := s.Rotate(ctx, token)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if userID != "user-1" || next == "" || next == token {
		t.Fatalf("unexpected rotation result %q %q", userID, next)
	}
	if err := s.Revoke(ctx, next); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, _, err := s.Rotate(ctx, next); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected invalid token after revoke, got %v", err)
	}
}

func TestRefreshStoreDetectsReplay(t *testing.T) {
	ctx := context.Background()
	s := NewRefreshStore(newTestRedis(t), "", time.Minute)

	token, _ := s.Issue(ctx, "user-2")
	_, next, err := s.Rotate(ctx, token)
	if err != nil {
		t.Fatalf("first rotate: %v", err)
	}
	if _, _, err := s.Rotate(ctx, token); !errors.Is(err, ErrRefreshTokenReplay) {
		t.Fatalf("expected replay, got %v", err)
	}
	if _, _, err := s.Rotate(ctx, next); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected family revoked after replay, got %v", err)
	}
}

func TestRefreshStoreRevokeUser(t *testing.T) {
	ctx := context.Background()
	s := NewRefreshStore(newTestRedis(t), "", time.Minute)

	first, _ := s.Issue(ctx, "user-3")
	second, _ := s.Issue(ctx, "user-3")
	keep, _ := s.Issue(ctx, "user-4")

	if err := s.RevokeUser(ctx, "user-3"); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	for _, tok := range []string{first, second} {
		if _, _, err := s.Rotate(ctx, tok); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Fatalf("expected revoked family, got %v", err)
		}
	}
	if _, _, err := s.Rotate(ctx, keep); err != nil {
		t.Fatalf("other users keep their tokens: %v", err)
	}
}
