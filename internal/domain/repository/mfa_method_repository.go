package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/entity"
)

// MFAMethodRepository persists registered MFA methods.
type MFAMethodRepository interface {
	Create(ctx context.Context, method *entity.MFAMethod) error
	Update(ctx context.Context, method *entity.MFAMethod) error
	Delete(ctx context.Context, id uuid.UUID) error

	FindByID(ctx context.Context, id uuid.UUID) (*entity.MFAMethod, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.MFAMethod, error)
	// FindByUserIDAndType returns the user's method of the given type,
	// domainErrors.ErrNotFound when absent.
	FindByUserIDAndType(ctx context.Context, userID uuid.UUID, mfaType entity.MFAType) (*entity.MFAMethod, error)
	FindEnabledByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.MFAMethod, error)
	FindDefaultByUserID(ctx context.Context, userID uuid.UUID) (*entity.MFAMethod, error)

	CountEnabledByUserID(ctx context.Context, userID uuid.UUID) (int, error)
	// ClearDefaultForUser drops the default flag from every method of the
	// user so a new default can be assigned without violating uniqueness.
	ClearDefaultForUser(ctx context.Context, userID uuid.UUID) error
	// DeleteUnverifiedOlderThan removes never-verified methods created
	// before the cutoff and returns the number of rows removed.
	DeleteUnverifiedOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
