package service

import (
	"context"
	"time"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/utils/rate"
)

// RateLimiter bounds per-user operations inside a rolling window. The
// redis-backed implementation lives in utils/rate.
type RateLimiter interface {
	Allow(ctx context.Context, key string, rule rate.Rule) (bool, error)
}

// TOTPService generates and validates time-based one-time passwords.
type TOTPService interface {
	// GenerateSecret returns a fresh Base32 secret.
	GenerateSecret() (string, error)
	// FormatSecret renders the secret for manual entry.
	FormatSecret(secret string) string
	// BuildEnrollmentURI builds the otpauth:// URI for the secret.
	BuildEnrollmentURI(secret, accountName string) string
	// ValidateCode checks a user-supplied code against the secret at the
	// given time, honoring the configured clock-skew window.
	ValidateCode(secret, code string, at time.Time) bool
	// Algorithm, Digits and Period expose the configured derivation
	// parameters for method metadata.
	Algorithm() string
	Digits() int
	Period() int
}

// CodeHasher hashes and verifies short secrets (recovery codes, email login
// codes) with a memory-hard function.
type CodeHasher interface {
	Hash(code string) (string, error)
	Verify(code, encodedHash string) (bool, error)
}
