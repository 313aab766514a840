package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/entity"
)

// MFARecoveryCodeRepository persists hashed recovery codes.
type MFARecoveryCodeRepository interface {
	CreateMultiple(ctx context.Context, codes []*entity.MFARecoveryCode) error
	// MarkAsUsed flips the used flag on a single code. Returns
	// domainErrors.ErrNotFound if the code is unknown or already used.
	MarkAsUsed(ctx context.Context, id uuid.UUID) error
	FindByMethodID(ctx context.Context, methodID uuid.UUID) ([]*entity.MFARecoveryCode, error)
	FindUnusedByMethodID(ctx context.Context, methodID uuid.UUID) ([]*entity.MFARecoveryCode, error)
	CountUnusedByMethodID(ctx context.Context, methodID uuid.UUID) (int, error)
	// DeleteUnusedByMethodID removes the unused codes of a method, used
	// when regenerating a fresh batch.
	DeleteUnusedByMethodID(ctx context.Context, methodID uuid.UUID) error
	DeleteByMethodID(ctx context.Context, methodID uuid.UUID) error
}
