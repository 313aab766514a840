package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/entity"
	domainErrors "github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/errors"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/models"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/utils/metrics"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/utils/qrcode"
)

const defaultTOTPMethodName = "Authenticator app"

// StartTOTPSetup creates an unverified TOTP method and returns the
// enrollment material. A prior unverified attempt for the type is replaced;
// an already-enabled TOTP method rejects the setup.
func (s *MFASetupService) StartTOTPSetup(ctx context.Context, userID uuid.UUID, accountName string) (*models.TOTPSetupResponse, error) {
	if userID == uuid.Nil || accountName == "" {
		return nil, domainErrors.ErrInvalidRequest
	}
	if err := s.beginSetup(ctx, userID, entity.MFATypeTOTP); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	secret, err := s.totpSvc.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp secret: %w", err)
	}

	method := entity.NewMFAMethod(userID, entity.MFATypeTOTP, defaultTOTPMethodName, now)
	method.Secret = &secret
	method.Metadata.TOTP = &entity.TOTPMetadata{
		Algorithm: s.totpSvc.Algorithm(),
		Digits:    s.totpSvc.Digits(),
		Period:    s.totpSvc.Period(),
	}
	if err := s.methodRepo.Create(ctx, method); err != nil {
		return nil, fmt.Errorf("failed to store totp method: %w", err)
	}

	uri := s.totpSvc.BuildEnrollmentURI(secret, accountName)
	image, err := qrcode.EncodeDataURI(uri)
	if err != nil {
		// The secret and URI are still usable for manual entry.
		s.logger.Warn("failed to render qr code", zap.Error(err), zap.String("user_id", userID.String()))
		image = ""
	}

	metrics.MethodSetupsTotal.WithLabelValues(string(entity.MFATypeTOTP)).Inc()
	s.publish(ctx, EventMethodSetupStarted, map[string]interface{}{
		"user_id":   userID.String(),
		"method_id": method.ID.String(),
		"type":      string(entity.MFATypeTOTP),
	})
	s.logger.Info("totp setup started",
		zap.String("user_id", userID.String()), zap.String("method_id", method.ID.String()))

	return &models.TOTPSetupResponse{
		MFAMethodID:     method.ID,
		Secret:          secret,
		FormattedSecret: s.totpSvc.FormatSecret(secret),
		QrCodeUri:       uri,
		QrCodeImage:     image,
		IssuerName:      s.cfg.IssuerName,
		AccountName:     accountName,
	}, nil
}

// VerifyTOTPSetup validates the first code from the authenticator app and
// activates the method.
func (s *MFASetupService) VerifyTOTPSetup(ctx context.Context, userID uuid.UUID, code string) (*models.SetupCompleteResponse, error) {
	if userID == uuid.Nil || code == "" {
		return nil, domainErrors.ErrInvalidRequest
	}
	method, err := s.loadUnverified(ctx, userID, entity.MFATypeTOTP)
	if err != nil {
		return nil, err
	}
	if method.Secret == nil {
		return nil, fmt.Errorf("totp method %s has no secret: %w", method.ID, domainErrors.ErrInternal)
	}

	now := time.Now().UTC()
	if !s.totpSvc.ValidateCode(*method.Secret, code, now) {
		metrics.VerificationsTotal.WithLabelValues(string(entity.MFATypeTOTP), "failure").Inc()
		return nil, domainErrors.ErrInvalidMFACode
	}
	metrics.VerificationsTotal.WithLabelValues(string(entity.MFATypeTOTP), "success").Inc()

	return s.finalizeActivation(ctx, method, now)
}
