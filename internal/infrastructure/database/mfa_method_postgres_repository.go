package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/entity"
	domainErrors "github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/errors"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/repository"
)

type pgxMFAMethodRepository struct {
	db *pgxpool.Pool
}

// NewPgxMFAMethodRepository creates a new instance of pgxMFAMethodRepository.
func NewPgxMFAMethodRepository(db *pgxpool.Pool) repository.MFAMethodRepository {
	return &pgxMFAMethodRepository{db: db}
}

const mfaMethodColumns = `id, user_id, type, secret, metadata, name, is_enabled, is_default, created_at, verified_at, last_used_at, updated_at`

func (r *pgxMFAMethodRepository) Create(ctx context.Context, method *entity.MFAMethod) error {
	metadata, err := json.Marshal(method.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal method metadata: %w", err)
	}
	query := `
		INSERT INTO mfa_methods (` + mfaMethodColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = r.db.Exec(ctx, query,
		method.ID, method.UserID, method.Type, method.Secret, metadata, method.Name,
		method.IsEnabled, method.IsDefault, method.CreatedAt, method.VerifiedAt,
		method.LastUsedAt, method.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Unique violation on (user_id, type) or id.
			return domainErrors.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create mfa method: %w", err)
	}
	return nil
}

func (r *pgxMFAMethodRepository) Update(ctx context.Context, method *entity.MFAMethod) error {
	metadata, err := json.Marshal(method.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal method metadata: %w", err)
	}
	query := `
		UPDATE mfa_methods SET
			secret = $2, metadata = $3, name = $4, is_enabled = $5, is_default = $6,
			verified_at = $7, last_used_at = $8, updated_at = $9
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query,
		method.ID, method.Secret, metadata, method.Name, method.IsEnabled,
		method.IsDefault, method.VerifiedAt, method.LastUsedAt, method.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update mfa method: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrNotFound
	}
	return nil
}

func (r *pgxMFAMethodRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM mfa_methods WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete mfa method: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrNotFound
	}
	return nil
}

func (r *pgxMFAMethodRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.MFAMethod, error) {
	query := `SELECT ` + mfaMethodColumns + ` FROM mfa_methods WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *pgxMFAMethodRepository) FindByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.MFAMethod, error) {
	query := `SELECT ` + mfaMethodColumns + ` FROM mfa_methods WHERE user_id = $1 ORDER BY created_at`
	return r.scanMany(ctx, query, userID)
}

func (r *pgxMFAMethodRepository) FindByUserIDAndType(ctx context.Context, userID uuid.UUID, mfaType entity.MFAType) (*entity.MFAMethod, error) {
	query := `SELECT ` + mfaMethodColumns + ` FROM mfa_methods WHERE user_id = $1 AND type = $2`
	return r.scanOne(r.db.QueryRow(ctx, query, userID, mfaType))
}

func (r *pgxMFAMethodRepository) FindEnabledByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.MFAMethod, error) {
	query := `SELECT ` + mfaMethodColumns + ` FROM mfa_methods WHERE user_id = $1 AND is_enabled ORDER BY created_at`
	return r.scanMany(ctx, query, userID)
}

func (r *pgxMFAMethodRepository) FindDefaultByUserID(ctx context.Context, userID uuid.UUID) (*entity.MFAMethod, error) {
	query := `SELECT ` + mfaMethodColumns + ` FROM mfa_methods WHERE user_id = $1 AND is_enabled AND is_default`
	return r.scanOne(r.db.QueryRow(ctx, query, userID))
}

func (r *pgxMFAMethodRepository) CountEnabledByUserID(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM mfa_methods WHERE user_id = $1 AND is_enabled`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count enabled methods: %w", err)
	}
	return count, nil
}

func (r *pgxMFAMethodRepository) ClearDefaultForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE mfa_methods SET is_default = FALSE, updated_at = $2 WHERE user_id = $1 AND is_default`,
		userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to clear default flags: %w", err)
	}
	return nil
}

func (r *pgxMFAMethodRepository) DeleteUnverifiedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM mfa_methods WHERE NOT is_enabled AND verified_at IS NULL AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unverified methods: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *pgxMFAMethodRepository) scanOne(row pgx.Row) (*entity.MFAMethod, error) {
	method := &entity.MFAMethod{}
	var metadata []byte
	err := row.Scan(
		&method.ID, &method.UserID, &method.Type, &method.Secret, &metadata, &method.Name,
		&method.IsEnabled, &method.IsDefault, &method.CreatedAt, &method.VerifiedAt,
		&method.LastUsedAt, &method.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan mfa method: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &method.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal method metadata: %w", err)
		}
	}
	return method, nil
}

func (r *pgxMFAMethodRepository) scanMany(ctx context.Context, query string, args ...interface{}) ([]*entity.MFAMethod, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query mfa methods: %w", err)
	}
	defer rows.Close()

	var methods []*entity.MFAMethod
	for rows.Next() {
		method, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		methods = append(methods, method)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mfa methods: %w", err)
	}
	return methods, nil
}
