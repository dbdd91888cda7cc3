package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a short random hex token, used for request ids.
func NewID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// NewEntityID returns a uuid for persisted rows.
func NewEntityID() string {
	return uuid.NewString()
}

// IsEntityID reports whether raw parses as a uuid.
func IsEntityID(raw string) bool {
	_, err := uuid.Parse(raw)
	return err == nil
}
