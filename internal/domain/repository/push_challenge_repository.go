package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/entity"
)

// PushChallengeRepository persists push approval challenges.
type PushChallengeRepository interface {
	Create(ctx context.Context, challenge *entity.MFAPushChallenge) error

	FindByID(ctx context.Context, id uuid.UUID) (*entity.MFAPushChallenge, error)
	FindPendingByDeviceID(ctx context.Context, deviceID uuid.UUID) ([]*entity.MFAPushChallenge, error)

	// TransitionStatus persists the challenge's status, signature and
	// response timestamp only while the stored status still equals expected,
	// so two concurrent responses or consumptions cannot both win. A lost
	// race reports the state error matching the row's actual status.
	TransitionStatus(ctx context.Context, challenge *entity.MFAPushChallenge, expected entity.PushChallengeStatus) error

	// MarkExpiredOlderThan flips still-pending challenges past their expiry
	// to the expired status and returns how many were affected.
	MarkExpiredOlderThan(ctx context.Context, now time.Time) (int64, error)
	// DeleteTerminalOlderThan removes challenges in a terminal status whose
	// expiry is before the cutoff.
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
