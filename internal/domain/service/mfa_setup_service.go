package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/entity"
	domainErrors "github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/errors"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/interfaces"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/models"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/repository"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/utils/metrics"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/utils/random"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/utils/rate"
)

// SetupConfig carries the enrollment policy.
type SetupConfig struct {
	IssuerName        string
	RecoveryCodeCount int
	SetupCodeLength   int
	SetupCodeTTL      time.Duration
	PushSetupTTL      time.Duration
	SendRule          rate.Rule
}

// MFASetupService orchestrates method enrollment: starting and verifying
// setups, recovery code issuance, default selection and method removal.
type MFASetupService struct {
	methodRepo        repository.MFAMethodRepository
	recoveryRepo      repository.MFARecoveryCodeRepository
	webauthnRepo      repository.WebAuthnCredentialRepository
	pushDeviceRepo    repository.PushDeviceRepository
	pushChallengeRepo repository.PushChallengeRepository
	totpSvc           TOTPService
	hasher            CodeHasher
	emailSender       interfaces.EmailSender
	pushSender        interfaces.PushSender
	limiter           RateLimiter
	publisher         EventPublisher
	logger            *zap.Logger
	cfg               SetupConfig
}

// NewMFASetupService creates the enrollment orchestrator.
func NewMFASetupService(
	methodRepo repository.MFAMethodRepository,
	recoveryRepo repository.MFARecoveryCodeRepository,
	webauthnRepo repository.WebAuthnCredentialRepository,
	pushDeviceRepo repository.PushDeviceRepository,
	pushChallengeRepo repository.PushChallengeRepository,
	totpSvc TOTPService,
	hasher CodeHasher,
	emailSender interfaces.EmailSender,
	pushSender interfaces.PushSender,
	limiter RateLimiter,
	publisher EventPublisher,
	logger *zap.Logger,
	cfg SetupConfig,
) *MFASetupService {
	return &MFASetupService{
		methodRepo:        methodRepo,
		recoveryRepo:      recoveryRepo,
		webauthnRepo:      webauthnRepo,
		pushDeviceRepo:    pushDeviceRepo,
		pushChallengeRepo: pushChallengeRepo,
		totpSvc:           totpSvc,
		hasher:            hasher,
		emailSender:       emailSender,
		pushSender:        pushSender,
		limiter:           limiter,
		publisher:         publisher,
		logger:            logger.With(zap.String("component", "mfa_setup_service")),
		cfg:               cfg,
	}
}

// publish sends a lifecycle event best-effort. Failures are logged, never
// returned: the state change has already been persisted.
func (s *MFASetupService) publish(ctx context.Context, eventType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, payload); err != nil {
		s.logger.Warn("failed to publish event", zap.String("event_type", eventType), zap.Error(err))
	}
}

// beginSetup enforces the one-active-setup-per-type rule: an enabled method
// of the type rejects the new setup, a prior unverified attempt is replaced.
func (s *MFASetupService) beginSetup(ctx context.Context, userID uuid.UUID, mfaType entity.MFAType) error {
	existing, err := s.methodRepo.FindByUserIDAndType(ctx, userID, mfaType)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to check existing %s method: %w", mfaType, err)
	}
	if existing.IsEnabled {
		return domainErrors.ErrMFAAlreadyEnabled
	}
	if err := s.removeMethodRecords(ctx, existing); err != nil {
		return fmt.Errorf("failed to replace unverified %s method: %w", mfaType, err)
	}
	s.logger.Info("replaced unverified setup attempt",
		zap.String("user_id", userID.String()), zap.String("type", string(mfaType)))
	return nil
}

// removeMethodRecords deletes a method together with its owned sub-records.
func (s *MFASetupService) removeMethodRecords(ctx context.Context, method *entity.MFAMethod) error {
	if err := s.recoveryRepo.DeleteByMethodID(ctx, method.ID); err != nil {
		return err
	}
	switch method.Type {
	case entity.MFATypeWebAuthn:
		if err := s.webauthnRepo.DeleteByMethodID(ctx, method.ID); err != nil {
			return err
		}
	case entity.MFATypePush:
		if err := s.pushDeviceRepo.DeleteByMethodID(ctx, method.ID); err != nil {
			return err
		}
	}
	return s.methodRepo.Delete(ctx, method.ID)
}

// finalizeActivation runs the shared tail of every successful VerifyXSetup:
// enable the method, issue recovery codes, promote to default when it is the
// user's first enabled method, and emit the activation event. The plaintext
// recovery codes returned here are never retrievable again.
func (s *MFASetupService) finalizeActivation(ctx context.Context, method *entity.MFAMethod, now time.Time) (*models.SetupCompleteResponse, error) {
	enabledBefore, err := s.methodRepo.CountEnabledByUserID(ctx, method.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to count enabled methods: %w", err)
	}

	if !method.IsEnabled {
		if err := method.Verify(now); err != nil {
			return nil, err
		}
	}

	isFirst := enabledBefore == 0
	if isFirst {
		if err := s.methodRepo.ClearDefaultForUser(ctx, method.UserID); err != nil {
			return nil, fmt.Errorf("failed to clear default flags: %w", err)
		}
		if err := method.SetAsDefault(now); err != nil {
			return nil, err
		}
	}

	plainCodes, err := s.issueRecoveryCodes(ctx, method, now)
	if err != nil {
		return nil, err
	}

	if err := s.methodRepo.Update(ctx, method); err != nil {
		return nil, fmt.Errorf("failed to persist activated method: %w", err)
	}

	metrics.MethodActivationsTotal.WithLabelValues(string(method.Type)).Inc()
	s.publish(ctx, EventMethodActivated, map[string]interface{}{
		"user_id":    method.UserID.String(),
		"method_id":  method.ID.String(),
		"type":       string(method.Type),
		"is_default": method.IsDefault,
	})
	s.logger.Info("mfa method activated",
		zap.String("user_id", method.UserID.String()),
		zap.String("method_id", method.ID.String()),
		zap.String("type", string(method.Type)),
		zap.Bool("is_default", method.IsDefault))

	return &models.SetupCompleteResponse{
		MFAMethodID:   method.ID,
		RecoveryCodes: plainCodes,
		IsDefault:     method.IsDefault,
		SecurityMessage: "Two-factor authentication is now active. Store your recovery codes " +
			"in a safe place: they are shown only once and each can be used a single time.",
	}, nil
}

// issueRecoveryCodes generates a fresh batch of codes, persists the hashes
// and returns the plaintexts.
func (s *MFASetupService) issueRecoveryCodes(ctx context.Context, method *entity.MFAMethod, now time.Time) ([]string, error) {
	plain := make([]string, 0, s.cfg.RecoveryCodeCount)
	hashed := make([]*entity.MFARecoveryCode, 0, s.cfg.RecoveryCodeCount)
	for i := 0; i < s.cfg.RecoveryCodeCount; i++ {
		code, err := random.GenerateRecoveryCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate recovery code: %w", err)
		}
		hash, err := s.hasher.Hash(code)
		if err != nil {
			return nil, fmt.Errorf("failed to hash recovery code: %w", err)
		}
		plain = append(plain, code)
		hashed = append(hashed, entity.NewMFARecoveryCode(method.ID, hash, now))
	}
	if err := s.recoveryRepo.CreateMultiple(ctx, hashed); err != nil {
		return nil, fmt.Errorf("failed to store recovery codes: %w", err)
	}
	method.SetRecoveryCodes(hashed, now)
	return plain, nil
}

// loadUnverified fetches the user's method of the type and checks it is
// still awaiting verification.
func (s *MFASetupService) loadUnverified(ctx context.Context, userID uuid.UUID, mfaType entity.MFAType) (*entity.MFAMethod, error) {
	method, err := s.methodRepo.FindByUserIDAndType(ctx, userID, mfaType)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return nil, domainErrors.ErrMFAMethodNotFound
		}
		return nil, fmt.Errorf("failed to load %s method: %w", mfaType, err)
	}
	if method.IsEnabled {
		return nil, domainErrors.ErrMFAAlreadyEnabled
	}
	return method, nil
}
