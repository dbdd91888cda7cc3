package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"loanportal/pkg/domain"
)

// GetFileURL presigns a GET for filename, retrying with exponential backoff.
// Attempt 1 runs immediately and attempt k waits base*2^(k-2) first. Context
// cancellation stops the retries.
func (a *App) GetFileURL(ctx context.Context, filename string, retries int) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", invalid("filename required")
	}
	if retries <= 0 {
		retries = a.urlRetries
	}
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 {
			if err := a.sleep(ctx, backoffDelay(a.urlBaseDelay, attempt)); err != nil {
				return "", err
			}
		}
		url, err := a.objects.PresignGet(ctx, filename, signedURLExpiry)
		if err == nil && url != "" {
			a.metrics.SignedURLAttempt("ok")
			return url, nil
		}
		if err == nil {
			err = errors.New("empty signed url")
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		a.metrics.SignedURLAttempt("error")
		a.log(ctx).Debug("signed url attempt failed", "key", filename, "attempt", attempt, "err", err)
		lastErr = err
	}
	return "", fmt.Errorf("%w: %v", ErrFileUnavailable, lastErr)
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return base << (attempt - 2)
}

// DocumentURL returns a fresh signed URL for a document the caller may see.
func (a *App) DocumentURL(ctx context.Context, id domain.Identity, documentID string) (string, error) {
	doc, _, err := a.visibleDocument(id, documentID)
	if err != nil {
		return "", err
	}
	return a.GetFileURL(ctx, doc.Filename, a.urlRetries)
}
