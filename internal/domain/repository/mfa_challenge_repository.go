package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/entity"
)

// MFAChallengeRepository persists login challenges.
type MFAChallengeRepository interface {
	Create(ctx context.Context, challenge *entity.MFAChallenge) error

	FindByID(ctx context.Context, id uuid.UUID) (*entity.MFAChallenge, error)
	// FindByToken resolves the opaque challenge token handed to the client.
	FindByToken(ctx context.Context, token string) (*entity.MFAChallenge, error)

	// Complete marks the challenge completed only while it is still neither
	// completed nor invalid at write time, so a success cannot overwrite a
	// concurrent exhaustion. A lost race reports ErrChallengeCompleted or
	// ErrChallengeInvalid.
	Complete(ctx context.Context, id uuid.UUID, at time.Time) error

	// Invalidate flips the challenge invalid; a completed challenge is left
	// untouched so an anomaly can never erase a finished login.
	Invalidate(ctx context.Context, id uuid.UUID) error

	// RecordFailedAttempt atomically increments the attempt counter and,
	// when the budget is exhausted, marks the challenge invalid in the same
	// statement. It returns the updated row so concurrent failures cannot
	// both observe a remaining attempt.
	RecordFailedAttempt(ctx context.Context, id uuid.UUID, at time.Time) (*entity.MFAChallenge, error)

	// InvalidateActiveByUserID marks every pending challenge of the user
	// invalid and returns how many were affected.
	InvalidateActiveByUserID(ctx context.Context, userID uuid.UUID) (int64, error)
	// DeleteExpiredOlderThan removes terminal challenges whose expiry is
	// before the cutoff and returns the number of rows removed.
	DeleteExpiredOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
