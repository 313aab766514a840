package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/entity"
)

// PushDeviceRepository persists devices enrolled for push approval.
type PushDeviceRepository interface {
	Create(ctx context.Context, device *entity.MFAPushDevice) error
	Update(ctx context.Context, device *entity.MFAPushDevice) error

	FindByID(ctx context.Context, id uuid.UUID) (*entity.MFAPushDevice, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.MFAPushDevice, error)
	FindActiveByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.MFAPushDevice, error)
	DeleteByMethodID(ctx context.Context, methodID uuid.UUID) error
}
