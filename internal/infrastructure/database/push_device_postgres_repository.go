package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/entity"
	domainErrors "github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/errors"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/repository"
)

type pgxPushDeviceRepository struct {
	db *pgxpool.Pool
}

// NewPgxPushDeviceRepository creates a new instance of pgxPushDeviceRepository.
func NewPgxPushDeviceRepository(db *pgxpool.Pool) repository.PushDeviceRepository {
	return &pgxPushDeviceRepository{db: db}
}

const pushDeviceColumns = `id, method_id, user_id, name, platform, device_token, public_key, is_active, created_at, last_used_at`

func (r *pgxPushDeviceRepository) Create(ctx context.Context, device *entity.MFAPushDevice) error {
	query := `
		INSERT INTO mfa_push_devices (` + pushDeviceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.Exec(ctx, query,
		device.ID, device.MethodID, device.UserID, device.Name, device.Platform,
		device.DeviceToken, device.PublicKey, device.IsActive, device.CreatedAt, device.LastUsedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create push device: %w", err)
	}
	return nil
}

func (r *pgxPushDeviceRepository) Update(ctx context.Context, device *entity.MFAPushDevice) error {
	query := `
		UPDATE mfa_push_devices SET
			name = $2, device_token = $3, is_active = $4, last_used_at = $5
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query,
		device.ID, device.Name, device.DeviceToken, device.IsActive, device.LastUsedAt)
	if err != nil {
		return fmt.Errorf("failed to update push device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrNotFound
	}
	return nil
}

func (r *pgxPushDeviceRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.MFAPushDevice, error) {
	query := `SELECT ` + pushDeviceColumns + ` FROM mfa_push_devices WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *pgxPushDeviceRepository) FindByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.MFAPushDevice, error) {
	query := `SELECT ` + pushDeviceColumns + ` FROM mfa_push_devices WHERE user_id = $1 ORDER BY created_at`
	return r.scanMany(ctx, query, userID)
}

func (r *pgxPushDeviceRepository) FindActiveByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.MFAPushDevice, error) {
	query := `SELECT ` + pushDeviceColumns + ` FROM mfa_push_devices WHERE user_id = $1 AND is_active ORDER BY created_at`
	return r.scanMany(ctx, query, userID)
}

func (r *pgxPushDeviceRepository) DeleteByMethodID(ctx context.Context, methodID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM mfa_push_devices WHERE method_id = $1`, methodID)
	if err != nil {
		return fmt.Errorf("failed to delete push devices: %w", err)
	}
	return nil
}

func (r *pgxPushDeviceRepository) scanOne(row pgx.Row) (*entity.MFAPushDevice, error) {
	device := &entity.MFAPushDevice{}
	err := row.Scan(
		&device.ID, &device.MethodID, &device.UserID, &device.Name, &device.Platform,
		&device.DeviceToken, &device.PublicKey, &device.IsActive, &device.CreatedAt, &device.LastUsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan push device: %w", err)
	}
	return device, nil
}

func (r *pgxPushDeviceRepository) scanMany(ctx context.Context, query string, args ...interface{}) ([]*entity.MFAPushDevice, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query push devices: %w", err)
	}
	defer rows.Close()

	var devices []*entity.MFAPushDevice
	for rows.Next() {
		device, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate push devices: %w", err)
	}
	return devices, nil
}
