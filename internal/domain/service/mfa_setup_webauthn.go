package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/entity"
	domainErrors "github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/errors"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/models"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/utils/metrics"
)

const defaultWebAuthnMethodName = "Security key"

// WebAuthnRegistration carries the attestation output of a completed
// client-side registration ceremony.
type WebAuthnRegistration struct {
	CredentialID    []byte
	PublicKey       []byte
	SignCount       uint32
	AttestationType string
	AAGUID          []byte
	Transports      []string
}

// RegisterWebAuthnCredential registers an authenticator. Unlike other types
// the method is enabled immediately: the registration ceremony itself proves
// possession. A second credential attaches to the existing method without
// reissuing recovery codes.
func (s *MFASetupService) RegisterWebAuthnCredential(ctx context.Context, userID uuid.UUID, reg WebAuthnRegistration) (*models.SetupCompleteResponse, error) {
	if userID == uuid.Nil || len(reg.CredentialID) == 0 || len(reg.PublicKey) == 0 {
		return nil, domainErrors.ErrInvalidRequest
	}

	if existing, err := s.webauthnRepo.FindByCredentialID(ctx, reg.CredentialID); err == nil && existing != nil {
		return nil, domainErrors.ErrAlreadyExists
	} else if err != nil && !domainErrors.IsNotFound(err) {
		return nil, fmt.Errorf("failed to check credential uniqueness: %w", err)
	}

	now := time.Now().UTC()
	encodedID := base64.RawURLEncoding.EncodeToString(reg.CredentialID)

	method, err := s.methodRepo.FindByUserIDAndType(ctx, userID, entity.MFATypeWebAuthn)
	if err != nil && !domainErrors.IsNotFound(err) {
		return nil, fmt.Errorf("failed to load webauthn method: %w", err)
	}

	if method != nil && err == nil {
		// Additional authenticator under the existing method.
		credential := entity.NewWebAuthnCredential(method.ID, userID, reg.CredentialID, reg.PublicKey, reg.SignCount, reg.Transports, now)
		credential.AttestationType = reg.AttestationType
		credential.AAGUID = reg.AAGUID
		if err := s.webauthnRepo.Create(ctx, credential); err != nil {
			return nil, fmt.Errorf("failed to store webauthn credential: %w", err)
		}
		s.logger.Info("webauthn credential added",
			zap.String("user_id", userID.String()), zap.String("method_id", method.ID.String()))
		return &models.SetupCompleteResponse{
			MFAMethodID:     method.ID,
			IsDefault:       method.IsDefault,
			SecurityMessage: "A new security key was added to your account.",
		}, nil
	}

	enabledBefore, err := s.methodRepo.CountEnabledByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count enabled methods: %w", err)
	}

	method = entity.NewMFAMethod(userID, entity.MFATypeWebAuthn, defaultWebAuthnMethodName, now)
	method.Secret = &encodedID
	method.Metadata.WebAuthn = &entity.WebAuthnMetadata{
		CredentialID: encodedID,
		PublicKey:    base64.RawURLEncoding.EncodeToString(reg.PublicKey),
		Transports:   reg.Transports,
	}
	if enabledBefore == 0 {
		if err := s.methodRepo.ClearDefaultForUser(ctx, userID); err != nil {
			return nil, fmt.Errorf("failed to clear default flags: %w", err)
		}
		if err := method.SetAsDefault(now); err != nil {
			return nil, err
		}
	}
	if err := s.methodRepo.Create(ctx, method); err != nil {
		return nil, fmt.Errorf("failed to store webauthn method: %w", err)
	}

	credential := entity.NewWebAuthnCredential(method.ID, userID, reg.CredentialID, reg.PublicKey, reg.SignCount, reg.Transports, now)
	credential.AttestationType = reg.AttestationType
	credential.AAGUID = reg.AAGUID
	if err := s.webauthnRepo.Create(ctx, credential); err != nil {
		return nil, fmt.Errorf("failed to store webauthn credential: %w", err)
	}

	plainCodes, err := s.issueRecoveryCodes(ctx, method, now)
	if err != nil {
		return nil, err
	}

	metrics.MethodSetupsTotal.WithLabelValues(string(entity.MFATypeWebAuthn)).Inc()
	metrics.MethodActivationsTotal.WithLabelValues(string(entity.MFATypeWebAuthn)).Inc()
	s.publish(ctx, EventMethodActivated, map[string]interface{}{
		"user_id":    userID.String(),
		"method_id":  method.ID.String(),
		"type":       string(entity.MFATypeWebAuthn),
		"is_default": method.IsDefault,
	})
	s.logger.Info("webauthn method registered",
		zap.String("user_id", userID.String()),
		zap.String("method_id", method.ID.String()),
		zap.Bool("is_default", method.IsDefault))

	return &models.SetupCompleteResponse{
		MFAMethodID:   method.ID,
		RecoveryCodes: plainCodes,
		IsDefault:     method.IsDefault,
		SecurityMessage: "Your security key is now active. Store your recovery codes " +
			"in a safe place: they are shown only once and each can be used a single time.",
	}, nil
}
