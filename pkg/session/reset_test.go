package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResetCodesConsume(t *testing.T) {
	ctx := context.Background()
	codes := NewResetCodes(newTestRedis(t), "", time.Minute, 5)

	code, err := codes.Issue(ctx, "Dana@Example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("code %q should have 6 digits", code)
	}
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	if err := codes.Consume(ctx, "dana@example.com", wrong); !errors.Is(err, ErrResetCodeInvalid) {
		t.Fatalf("expected invalid code, got %v", err)
	}
	if err := codes.Consume(ctx, " dana@example.com ", code); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := codes.Consume(ctx, "dana@example.com", code); !errors.Is(err, ErrResetCodeInvalid) {
		t.Fatalf("code must be single use, got %v", err)
	}
}

func TestResetCodesLockAfterAttempts(t *testing.T) {
	ctx := context.Background()
	codes := NewResetCodes(newTestRedis(t), "", time.Minute, 2)

	code, _ := codes.Issue(ctx, "lee@example.com")
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	for i := 0; i < 2; i++ {
		if err := codes.Consume(ctx, "lee@example.com", wrong); !errors.Is(err, ErrResetCodeInvalid) {
			t.Fatalf("attempt %d: expected invalid, got %v", i+1, err)
		}
	}
	if err := codes.Consume(ctx, "lee@example.com", code); !errors.Is(err, ErrResetCodeLocked) {
		t.Fatalf("expected lock, got %v", err)
	}
	if err := codes.Consume(ctx, "lee@example.com", code); !errors.Is(err, ErrResetCodeInvalid) {
		t.Fatalf("locked challenge should be gone, got %v", err)
	}
}
