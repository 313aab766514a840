package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/entity"
	domainErrors "github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/errors"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/repository"
)

type pgxMFARecoveryCodeRepository struct {
	db *pgxpool.Pool
}

// NewPgxMFARecoveryCodeRepository creates a new instance of pgxMFARecoveryCodeRepository.
func NewPgxMFARecoveryCodeRepository(db *pgxpool.Pool) repository.MFARecoveryCodeRepository {
	return &pgxMFARecoveryCodeRepository{db: db}
}

func (r *pgxMFARecoveryCodeRepository) CreateMultiple(ctx context.Context, codes []*entity.MFARecoveryCode) error {
	if len(codes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	query := `
		INSERT INTO mfa_recovery_codes (id, method_id, hashed_code, is_used, used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for _, code := range codes {
		batch.Queue(query, code.ID, code.MethodID, code.HashedCode, code.IsUsed, code.UsedAt, code.CreatedAt)
	}
	results := r.db.SendBatch(ctx, batch)
	defer results.Close()
	for range codes {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to create recovery codes: %w", err)
		}
	}
	return nil
}

// MarkAsUsed consumes a code. The is_used guard in the predicate makes the
// consumption single-shot under concurrent submissions.
func (r *pgxMFARecoveryCodeRepository) MarkAsUsed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE mfa_recovery_codes SET is_used = TRUE, used_at = $2 WHERE id = $1 AND NOT is_used`,
		id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark recovery code used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrNotFound
	}
	return nil
}

func (r *pgxMFARecoveryCodeRepository) FindByMethodID(ctx context.Context, methodID uuid.UUID) ([]*entity.MFARecoveryCode, error) {
	return r.find(ctx,
		`SELECT id, method_id, hashed_code, is_used, used_at, created_at
		 FROM mfa_recovery_codes WHERE method_id = $1 ORDER BY created_at`, methodID)
}

func (r *pgxMFARecoveryCodeRepository) FindUnusedByMethodID(ctx context.Context, methodID uuid.UUID) ([]*entity.MFARecoveryCode, error) {
	return r.find(ctx,
		`SELECT id, method_id, hashed_code, is_used, used_at, created_at
		 FROM mfa_recovery_codes WHERE method_id = $1 AND NOT is_used ORDER BY created_at`, methodID)
}

func (r *pgxMFARecoveryCodeRepository) CountUnusedByMethodID(ctx context.Context, methodID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM mfa_recovery_codes WHERE method_id = $1 AND NOT is_used`, methodID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recovery codes: %w", err)
	}
	return count, nil
}

func (r *pgxMFARecoveryCodeRepository) DeleteUnusedByMethodID(ctx context.Context, methodID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM mfa_recovery_codes WHERE method_id = $1 AND NOT is_used`, methodID)
	if err != nil {
		return fmt.Errorf("failed to delete unused recovery codes: %w", err)
	}
	return nil
}

func (r *pgxMFARecoveryCodeRepository) DeleteByMethodID(ctx context.Context, methodID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM mfa_recovery_codes WHERE method_id = $1`, methodID)
	if err != nil {
		return fmt.Errorf("failed to delete recovery codes: %w", err)
	}
	return nil
}

func (r *pgxMFARecoveryCodeRepository) find(ctx context.Context, query string, args ...interface{}) ([]*entity.MFARecoveryCode, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recovery codes: %w", err)
	}
	defer rows.Close()

	var codes []*entity.MFARecoveryCode
	for rows.Next() {
		code := &entity.MFARecoveryCode{}
		if err := rows.Scan(&code.ID, &code.MethodID, &code.HashedCode, &code.IsUsed, &code.UsedAt, &code.CreatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domainErrors.ErrNotFound
			}
			return nil, fmt.Errorf("failed to scan recovery code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recovery codes: %w", err)
	}
	return codes, nil
}
