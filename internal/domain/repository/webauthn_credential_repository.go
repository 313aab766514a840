package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/entity"
)

// WebAuthnCredentialRepository persists registered authenticator credentials.
type WebAuthnCredentialRepository interface {
	Create(ctx context.Context, credential *entity.WebAuthnCredential) error
	Update(ctx context.Context, credential *entity.WebAuthnCredential) error

	FindByID(ctx context.Context, id uuid.UUID) (*entity.WebAuthnCredential, error)
	// FindByCredentialID looks a credential up by the authenticator-issued
	// raw credential id.
	FindByCredentialID(ctx context.Context, credentialID []byte) (*entity.WebAuthnCredential, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.WebAuthnCredential, error)
	FindActiveByMethodID(ctx context.Context, methodID uuid.UUID) ([]*entity.WebAuthnCredential, error)
	DeleteByMethodID(ctx context.Context, methodID uuid.UUID) error
}
