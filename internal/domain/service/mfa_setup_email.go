package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/entity"
	domainErrors "github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/errors"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/models"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/utils/metrics"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/utils/random"
)

const defaultEmailMethodName = "Email"

// StartEmailSetup creates an unverified email method and sends a setup code
// to the address. Delivery failure is reported as CodeSent=false, never as a
// failed setup: the record is already persisted and the send can be retried.
func (s *MFASetupService) StartEmailSetup(ctx context.Context, userID uuid.UUID, email string) (*models.EmailSetupResponse, error) {
	email = strings.TrimSpace(email)
	if userID == uuid.Nil || email == "" || !strings.Contains(email, "@") {
		return nil, domainErrors.ErrInvalidRequest
	}

	allowed, _ := s.limiter.Allow(ctx, fmt.Sprintf("send:%s", userID), s.cfg.SendRule)
	if !allowed {
		metrics.RateLimitRejectionsTotal.WithLabelValues("email_send").Inc()
		return nil, domainErrors.ErrRateLimitExceeded
	}

	if err := s.beginSetup(ctx, userID, entity.MFATypeEmail); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	method := entity.NewMFAMethod(userID, entity.MFATypeEmail, defaultEmailMethodName, now)
	method.Metadata.Email = &entity.EmailMetadata{EmailAddress: email}

	code, err := random.GenerateRandomDigits(s.cfg.SetupCodeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate setup code: %w", err)
	}
	codeHash, err := s.hasher.Hash(code)
	if err != nil {
		return nil, fmt.Errorf("failed to hash setup code: %w", err)
	}
	if err := method.StoreSetupVerificationCode(codeHash, now.Add(s.cfg.SetupCodeTTL), now); err != nil {
		return nil, err
	}
	if err := s.methodRepo.Create(ctx, method); err != nil {
		return nil, fmt.Errorf("failed to store email method: %w", err)
	}

	expiryMinutes := int(s.cfg.SetupCodeTTL.Minutes())
	codeSent := true
	if err := s.emailSender.SendSetupVerificationCode(ctx, email, code, expiryMinutes, s.cfg.IssuerName); err != nil {
		codeSent = false
		s.logger.Warn("failed to send setup verification code",
			zap.Error(err), zap.String("user_id", userID.String()))
	}

	metrics.MethodSetupsTotal.WithLabelValues(string(entity.MFATypeEmail)).Inc()
	s.publish(ctx, EventMethodSetupStarted, map[string]interface{}{
		"user_id":   userID.String(),
		"method_id": method.ID.String(),
		"type":      string(entity.MFATypeEmail),
	})
	s.logger.Info("email setup started",
		zap.String("user_id", userID.String()),
		zap.String("method_id", method.ID.String()),
		zap.Bool("code_sent", codeSent))

	return &models.EmailSetupResponse{
		MFAMethodID:   method.ID,
		Email:         email,
		CodeSent:      codeSent,
		ExpiryMinutes: expiryMinutes,
	}, nil
}

// VerifyEmailSetup validates the emailed code and activates the method. An
// expired code reads back as absent and is reported distinctly from a wrong
// code.
func (s *MFASetupService) VerifyEmailSetup(ctx context.Context, userID uuid.UUID, code string) (*models.SetupCompleteResponse, error) {
	if userID == uuid.Nil || code == "" {
		return nil, domainErrors.ErrInvalidRequest
	}
	method, err := s.loadUnverified(ctx, userID, entity.MFATypeEmail)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	codeHash, ok := method.GetSetupVerificationCode(now)
	if !ok {
		return nil, domainErrors.ErrSetupCodeExpired
	}
	match, err := s.hasher.Verify(code, codeHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify setup code: %w", err)
	}
	if !match {
		metrics.VerificationsTotal.WithLabelValues(string(entity.MFATypeEmail), "failure").Inc()
		return nil, domainErrors.ErrInvalidMFACode
	}
	metrics.VerificationsTotal.WithLabelValues(string(entity.MFATypeEmail), "success").Inc()

	method.ClearSetupVerificationCode(now)
	return s.finalizeActivation(ctx, method, now)
}
