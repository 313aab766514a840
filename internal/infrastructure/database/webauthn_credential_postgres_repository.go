package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/entity"
	domainErrors "github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/errors"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/repository"
)

type pgxWebAuthnCredentialRepository struct {
	db *pgxpool.Pool
}

// NewPgxWebAuthnCredentialRepository creates a new instance of pgxWebAuthnCredentialRepository.
func NewPgxWebAuthnCredentialRepository(db *pgxpool.Pool) repository.WebAuthnCredentialRepository {
	return &pgxWebAuthnCredentialRepository{db: db}
}

const webauthnCredentialColumns = `id, method_id, user_id, credential_id, public_key, attestation_type, aaguid, sign_count, transports, is_active, created_at, last_used_at`

func (r *pgxWebAuthnCredentialRepository) Create(ctx context.Context, credential *entity.WebAuthnCredential) error {
	query := `
		INSERT INTO webauthn_credentials (` + webauthnCredentialColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.Exec(ctx, query,
		credential.ID, credential.MethodID, credential.UserID, credential.CredentialID,
		credential.PublicKey, credential.AttestationType, credential.AAGUID,
		credential.SignCount, credential.Transports, credential.IsActive,
		credential.CreatedAt, credential.LastUsedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Unique violation on the raw credential id.
			return domainErrors.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create webauthn credential: %w", err)
	}
	return nil
}

func (r *pgxWebAuthnCredentialRepository) Update(ctx context.Context, credential *entity.WebAuthnCredential) error {
	query := `
		UPDATE webauthn_credentials SET
			sign_count = $2, is_active = $3, last_used_at = $4
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query,
		credential.ID, credential.SignCount, credential.IsActive, credential.LastUsedAt)
	if err != nil {
		return fmt.Errorf("failed to update webauthn credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrNotFound
	}
	return nil
}

func (r *pgxWebAuthnCredentialRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.WebAuthnCredential, error) {
	query := `SELECT ` + webauthnCredentialColumns + ` FROM webauthn_credentials WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *pgxWebAuthnCredentialRepository) FindByCredentialID(ctx context.Context, credentialID []byte) (*entity.WebAuthnCredential, error) {
	query := `SELECT ` + webauthnCredentialColumns + ` FROM webauthn_credentials WHERE credential_id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, credentialID))
}

func (r *pgxWebAuthnCredentialRepository) FindByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.WebAuthnCredential, error) {
	query := `SELECT ` + webauthnCredentialColumns + ` FROM webauthn_credentials WHERE user_id = $1 ORDER BY created_at`
	return r.scanMany(ctx, query, userID)
}

func (r *pgxWebAuthnCredentialRepository) FindActiveByMethodID(ctx context.Context, methodID uuid.UUID) ([]*entity.WebAuthnCredential, error) {
	query := `SELECT ` + webauthnCredentialColumns + ` FROM webauthn_credentials WHERE method_id = $1 AND is_active ORDER BY created_at`
	return r.scanMany(ctx, query, methodID)
}

func (r *pgxWebAuthnCredentialRepository) DeleteByMethodID(ctx context.Context, methodID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM webauthn_credentials WHERE method_id = $1`, methodID)
	if err != nil {
		return fmt.Errorf("failed to delete webauthn credentials: %w", err)
	}
	return nil
}

func (r *pgxWebAuthnCredentialRepository) scanOne(row pgx.Row) (*entity.WebAuthnCredential, error) {
	credential := &entity.WebAuthnCredential{}
	err := row.Scan(
		&credential.ID, &credential.MethodID, &credential.UserID, &credential.CredentialID,
		&credential.PublicKey, &credential.AttestationType, &credential.AAGUID,
		&credential.SignCount, &credential.Transports, &credential.IsActive,
		&credential.CreatedAt, &credential.LastUsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan webauthn credential: %w", err)
	}
	return credential, nil
}

func (r *pgxWebAuthnCredentialRepository) scanMany(ctx context.Context, query string, args ...interface{}) ([]*entity.WebAuthnCredential, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query webauthn credentials: %w", err)
	}
	defer rows.Close()

	var credentials []*entity.WebAuthnCredential
	for rows.Next() {
		credential, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		credentials = append(credentials, credential)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate webauthn credentials: %w", err)
	}
	return credentials, nil
}
