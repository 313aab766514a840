package entity

import (
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/errors"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/utils/random"
)

// challengeTokenBytes sizes the random challenge token. 32 bytes before
// URL-safe encoding is the floor required to resist guessing.
const challengeTokenBytes = 32

// ChallengePolicy captures the deployment-tunable challenge limits at
// creation time, so a policy change never retroactively alters live rows.
type ChallengePolicy struct {
	MaxAttempts int
	TTL         time.Duration
}

// MFAChallenge is the short-lived, attempt-bounded verification ticket
// created at login, mapping to the "mfa_challenges" table. The opaque
// ChallengeToken, never the row id, is the value exposed to clients.
type MFAChallenge struct {
	ID             uuid.UUID  `db:"id"`
	ChallengeToken string     `db:"challenge_token"`
	UserID         uuid.UUID  `db:"user_id"`
	Type           MFAType    `db:"type"`
	MFAMethodID    *uuid.UUID `db:"mfa_method_id"`
	AttemptCount   int        `db:"attempt_count"`
	MaxAttempts    int        `db:"max_attempts"`
	IsCompleted    bool       `db:"is_completed"`
	IsInvalid      bool       `db:"is_invalid"`
	EmailCodeHash  *string    `db:"email_code_hash"` // set only for email-method challenges
	CreatedAt      time.Time  `db:"created_at"`
	ExpiresAt      time.Time  `db:"expires_at"`
	CompletedAt    *time.Time `db:"completed_at"`
	LastAttemptAt  *time.Time `db:"last_attempt_at"`
}

// NewMFAChallenge creates a pending challenge with a fresh random token and
// a fixed expiry window from creation.
func NewMFAChallenge(userID uuid.UUID, mfaType MFAType, methodID *uuid.UUID, policy ChallengePolicy, now time.Time) (*MFAChallenge, error) {
	if policy.MaxAttempts <= 0 || policy.TTL <= 0 {
		return nil, domainErrors.ErrInvalidRequest
	}
	token, err := random.GenerateURLSafeToken(challengeTokenBytes)
	if err != nil {
		return nil, err
	}
	return &MFAChallenge{
		ID:             uuid.New(),
		ChallengeToken: token,
		UserID:         userID,
		Type:           mfaType,
		MFAMethodID:    methodID,
		MaxAttempts:    policy.MaxAttempts,
		CreatedAt:      now,
		ExpiresAt:      now.Add(policy.TTL),
	}, nil
}

// IsExpired reports whether the challenge is past its validity window.
// Validity is always re-derived from wall-clock time, never cached.
func (c *MFAChallenge) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// AttemptsRemaining returns how many failed attempts the budget still allows.
func (c *MFAChallenge) AttemptsRemaining() int {
	remaining := c.MaxAttempts - c.AttemptCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsValid reports whether the challenge can still be satisfied: not expired,
// not invalidated, not completed, and attempts remaining.
func (c *MFAChallenge) IsValid(now time.Time) bool {
	return !c.IsExpired(now) && !c.IsInvalid && !c.IsCompleted && c.AttemptsRemaining() > 0
}

// RecordFailedAttempt counts one wrong submission. Legal only while pending
// and unexpired. Reaching the configured maximum auto-invalidates the
// challenge; the returned remaining count is then zero.
func (c *MFAChallenge) RecordFailedAttempt(now time.Time) (remaining int, err error) {
	if c.IsCompleted {
		return 0, domainErrors.ErrChallengeCompleted
	}
	if c.IsInvalid {
		return 0, domainErrors.ErrChallengeInvalid
	}
	if c.IsExpired(now) {
		return 0, domainErrors.ErrChallengeExpired
	}
	c.AttemptCount++
	attemptAt := now
	c.LastAttemptAt = &attemptAt
	if c.AttemptCount >= c.MaxAttempts {
		c.IsInvalid = true
		return 0, nil
	}
	return c.AttemptsRemaining(), nil
}

// Complete transitions a pending, unexpired challenge to its terminal
// success state. Completing an invalid or already-completed challenge is a
// state-transition error.
func (c *MFAChallenge) Complete(now time.Time) error {
	if c.IsCompleted {
		return domainErrors.ErrChallengeCompleted
	}
	if c.IsInvalid {
		return domainErrors.ErrChallengeInvalid
	}
	if c.IsExpired(now) {
		return domainErrors.ErrChallengeExpired
	}
	c.IsCompleted = true
	completedAt := now
	c.CompletedAt = &completedAt
	return nil
}

// Invalidate moves the challenge to its terminal invalid state. Repeated
// invalidation is a no-op; a completed challenge cannot be invalidated.
func (c *MFAChallenge) Invalidate() error {
	if c.IsCompleted {
		return domainErrors.ErrChallengeCompleted
	}
	c.IsInvalid = true
	return nil
}
