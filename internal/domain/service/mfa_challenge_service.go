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

// ChallengeConfig carries the login challenge policy.
type ChallengeConfig struct {
	IssuerName      string
	Policy          entity.ChallengePolicy
	EmailCodeLength int
	CreateRule      rate.Rule
	SendRule        rate.Rule
}

// MFAChallengeService issues login challenges and resolves verification
// attempts against them.
type MFAChallengeService struct {
	challengeRepo     repository.MFAChallengeRepository
	methodRepo        repository.MFAMethodRepository
	recoveryRepo      repository.MFARecoveryCodeRepository
	webauthnRepo      repository.WebAuthnCredentialRepository
	pushChallengeRepo repository.PushChallengeRepository
	totpSvc           TOTPService
	hasher            CodeHasher
	emailSender       interfaces.EmailSender
	limiter           RateLimiter
	publisher         EventPublisher
	logger            *zap.Logger
	cfg               ChallengeConfig
}

// NewMFAChallengeService creates the verification orchestrator.
func NewMFAChallengeService(
	challengeRepo repository.MFAChallengeRepository,
	methodRepo repository.MFAMethodRepository,
	recoveryRepo repository.MFARecoveryCodeRepository,
	webauthnRepo repository.WebAuthnCredentialRepository,
	pushChallengeRepo repository.PushChallengeRepository,
	totpSvc TOTPService,
	hasher CodeHasher,
	emailSender interfaces.EmailSender,
	limiter RateLimiter,
	publisher EventPublisher,
	logger *zap.Logger,
	cfg ChallengeConfig,
) *MFAChallengeService {
	return &MFAChallengeService{
		challengeRepo:     challengeRepo,
		methodRepo:        methodRepo,
		recoveryRepo:      recoveryRepo,
		webauthnRepo:      webauthnRepo,
		pushChallengeRepo: pushChallengeRepo,
		totpSvc:           totpSvc,
		hasher:            hasher,
		emailSender:       emailSender,
		limiter:           limiter,
		publisher:         publisher,
		logger:            logger.With(zap.String("component", "mfa_challenge_service")),
		cfg:               cfg,
	}
}

// CreateChallenge opens a login challenge against the user's method of the
// given type, or the default method when mfaType is nil. For email methods a
// login code is generated, hashed onto the challenge and delivered.
func (s *MFAChallengeService) CreateChallenge(ctx context.Context, userID uuid.UUID, mfaType *entity.MFAType) (*models.ChallengeResponse, error) {
	if userID == uuid.Nil {
		return nil, domainErrors.ErrInvalidRequest
	}

	allowed, _ := s.limiter.Allow(ctx, fmt.Sprintf("challenge:%s", userID), s.cfg.CreateRule)
	if !allowed {
		metrics.RateLimitRejectionsTotal.WithLabelValues("challenge_create").Inc()
		return nil, domainErrors.ErrRateLimitExceeded
	}

	method, err := s.resolveMethod(ctx, userID, mfaType)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	challenge, err := entity.NewMFAChallenge(userID, method.Type, &method.ID, s.cfg.Policy, now)
	if err != nil {
		return nil, err
	}

	if method.Type == entity.MFATypeEmail {
		if err := s.issueEmailLoginCode(ctx, method, challenge); err != nil {
			return nil, err
		}
	}

	if err := s.challengeRepo.Create(ctx, challenge); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	metrics.ChallengesCreatedTotal.WithLabelValues(string(method.Type)).Inc()
	s.publish(ctx, EventChallengeCreated, map[string]interface{}{
		"user_id":      userID.String(),
		"challenge_id": challenge.ID.String(),
		"type":         string(method.Type),
	})
	s.logger.Info("challenge created",
		zap.String("user_id", userID.String()),
		zap.String("challenge_id", challenge.ID.String()),
		zap.String("type", string(method.Type)))

	return &models.ChallengeResponse{
		ChallengeToken:    challenge.ChallengeToken,
		Type:              challenge.Type,
		ExpiresAt:         challenge.ExpiresAt,
		AttemptsRemaining: challenge.AttemptsRemaining(),
	}, nil
}

// VerifyChallengeCode resolves a TOTP or email challenge with a user-typed
// code. Wrong codes consume an attempt; exhausting the budget permanently
// invalidates the challenge.
func (s *MFAChallengeService) VerifyChallengeCode(ctx context.Context, token, code string) (*models.VerificationResult, error) {
	if token == "" || code == "" {
		return nil, domainErrors.ErrInvalidRequest
	}
	challenge, err := s.loadActiveChallenge(ctx, token)
	if err != nil {
		return nil, err
	}
	method, err := s.loadChallengeMethod(ctx, challenge)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var valid bool
	switch challenge.Type {
	case entity.MFATypeTOTP:
		if method.Secret == nil {
			return nil, fmt.Errorf("totp method %s has no secret: %w", method.ID, domainErrors.ErrInternal)
		}
		valid = s.totpSvc.ValidateCode(*method.Secret, code, now)
	case entity.MFATypeEmail:
		if challenge.EmailCodeHash == nil {
			return nil, fmt.Errorf("email challenge %s has no code: %w", challenge.ID, domainErrors.ErrInternal)
		}
		valid, err = s.hasher.Verify(code, *challenge.EmailCodeHash)
		if err != nil {
			return nil, fmt.Errorf("failed to verify email code: %w", err)
		}
	default:
		return nil, domainErrors.ErrChallengeInvalid
	}

	if !valid {
		return s.recordFailure(ctx, challenge, domainErrors.ErrInvalidMFACode)
	}
	return s.completeChallenge(ctx, challenge, method, now)
}

// VerifyChallengeRecoveryCode resolves a challenge with a one-time recovery
// code. The code is matched against every unused code of the method and
// consumed on success.
func (s *MFAChallengeService) VerifyChallengeRecoveryCode(ctx context.Context, token, code string) (*models.VerificationResult, error) {
	if token == "" || code == "" {
		return nil, domainErrors.ErrInvalidRequest
	}
	challenge, err := s.loadActiveChallenge(ctx, token)
	if err != nil {
		return nil, err
	}
	method, err := s.loadChallengeMethod(ctx, challenge)
	if err != nil {
		return nil, err
	}

	unused, err := s.recoveryRepo.FindUnusedByMethodID(ctx, method.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load recovery codes: %w", err)
	}

	// Every unused code is checked so timing does not reveal which one,
	// if any, matched.
	var matched *entity.MFARecoveryCode
	for _, rc := range unused {
		ok, verr := s.hasher.Verify(code, rc.HashedCode)
		if verr != nil {
			return nil, fmt.Errorf("failed to verify recovery code: %w", verr)
		}
		if ok && matched == nil {
			matched = rc
		}
	}
	if matched == nil {
		return s.recordFailure(ctx, challenge, domainErrors.ErrInvalidRecoveryCode)
	}

	// MarkAsUsed only succeeds on a still-unused row, so a concurrent
	// submission of the same code loses here.
	if err := s.recoveryRepo.MarkAsUsed(ctx, matched.ID); err != nil {
		if domainErrors.IsNotFound(err) {
			return s.recordFailure(ctx, challenge, domainErrors.ErrInvalidRecoveryCode)
		}
		return nil, fmt.Errorf("failed to consume recovery code: %w", err)
	}

	now := time.Now().UTC()
	s.logger.Info("recovery code consumed",
		zap.String("user_id", challenge.UserID.String()),
		zap.String("method_id", method.ID.String()))
	return s.completeChallenge(ctx, challenge, method, now)
}

// VerifyChallengeWebAuthn resolves a WebAuthn challenge after the client
// ceremony. A signature counter that moved backwards indicates a cloned
// authenticator: the challenge is invalidated and the anomaly surfaced
// distinctly so the caller can revoke the credential.
func (s *MFAChallengeService) VerifyChallengeWebAuthn(ctx context.Context, token string, credentialID []byte, signCount uint32) (*models.VerificationResult, error) {
	if token == "" || len(credentialID) == 0 {
		return nil, domainErrors.ErrInvalidRequest
	}
	challenge, err := s.loadActiveChallenge(ctx, token)
	if err != nil {
		return nil, err
	}
	if challenge.Type != entity.MFATypeWebAuthn {
		return nil, domainErrors.ErrChallengeInvalid
	}
	method, err := s.loadChallengeMethod(ctx, challenge)
	if err != nil {
		return nil, err
	}

	credential, err := s.webauthnRepo.FindByCredentialID(ctx, credentialID)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return s.recordFailure(ctx, challenge, domainErrors.ErrInvalidMFACode)
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if credential.UserID != challenge.UserID {
		return nil, domainErrors.ErrForbidden
	}
	if !credential.IsActive {
		return s.recordFailure(ctx, challenge, domainErrors.ErrInvalidMFACode)
	}

	now := time.Now().UTC()
	if !credential.UpdateSignCount(signCount, now) {
		metrics.SignCountRegressionsTotal.Inc()
		s.publish(ctx, EventSignCountRegression, map[string]interface{}{
			"user_id":       challenge.UserID.String(),
			"credential_id": credential.ID.String(),
			"stored_count":  credential.SignCount,
			"claimed_count": signCount,
		})
		s.logger.Error("webauthn sign count regression",
			zap.String("user_id", challenge.UserID.String()),
			zap.String("credential_id", credential.ID.String()),
			zap.Uint32("stored_count", credential.SignCount),
			zap.Uint32("claimed_count", signCount))
		if ierr := challenge.Invalidate(); ierr == nil {
			if uerr := s.challengeRepo.Invalidate(ctx, challenge.ID); uerr != nil {
				s.logger.Warn("failed to invalidate challenge", zap.Error(uerr))
			}
		}
		return nil, domainErrors.ErrSignCountRegression
	}

	if err := s.webauthnRepo.Update(ctx, credential); err != nil {
		return nil, fmt.Errorf("failed to persist sign count: %w", err)
	}
	return s.completeChallenge(ctx, challenge, method, now)
}

// VerifyChallengePush resolves a push challenge by consuming the device's
// approval. A denial or missing response is surfaced as a state error, not a
// guessed-code failure, so it never burns an attempt.
func (s *MFAChallengeService) VerifyChallengePush(ctx context.Context, token string, pushChallengeID uuid.UUID) (*models.VerificationResult, error) {
	if token == "" || pushChallengeID == uuid.Nil {
		return nil, domainErrors.ErrInvalidRequest
	}
	challenge, err := s.loadActiveChallenge(ctx, token)
	if err != nil {
		return nil, err
	}
	if challenge.Type != entity.MFATypePush {
		return nil, domainErrors.ErrChallengeInvalid
	}
	method, err := s.loadChallengeMethod(ctx, challenge)
	if err != nil {
		return nil, err
	}

	pushChallenge, err := s.pushChallengeRepo.FindByID(ctx, pushChallengeID)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return nil, domainErrors.ErrPushChallengeNotFound
		}
		return nil, fmt.Errorf("failed to load push challenge: %w", err)
	}
	if pushChallenge.UserID != challenge.UserID {
		return nil, domainErrors.ErrForbidden
	}

	now := time.Now().UTC()
	if pushChallenge.Status == entity.PushChallengePending && pushChallenge.IsExpired(now) {
		return nil, domainErrors.ErrPushChallengeExpired
	}
	if err := pushChallenge.MarkConsumed(); err != nil {
		return nil, err
	}
	if err := s.pushChallengeRepo.TransitionStatus(ctx, pushChallenge, entity.PushChallengeApproved); err != nil {
		if domainErrors.IsInvalidState(err) || domainErrors.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to persist consumed approval: %w", err)
	}
	return s.completeChallenge(ctx, challenge, method, now)
}

// InvalidateUserChallenges marks every pending challenge of the user
// invalid, used when credentials change mid-login.
func (s *MFAChallengeService) InvalidateUserChallenges(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, domainErrors.ErrInvalidRequest
	}
	affected, err := s.challengeRepo.InvalidateActiveByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate challenges: %w", err)
	}
	if affected > 0 {
		s.logger.Info("invalidated active challenges",
			zap.String("user_id", userID.String()), zap.Int64("count", affected))
	}
	return affected, nil
}

// GetChallengeByToken resolves the opaque token back to its challenge.
func (s *MFAChallengeService) GetChallengeByToken(ctx context.Context, token string) (*entity.MFAChallenge, error) {
	if token == "" {
		return nil, domainErrors.ErrInvalidRequest
	}
	challenge, err := s.challengeRepo.FindByToken(ctx, token)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return nil, domainErrors.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	return challenge, nil
}

func (s *MFAChallengeService) publish(ctx context.Context, eventType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, payload); err != nil {
		s.logger.Warn("failed to publish event", zap.String("event_type", eventType), zap.Error(err))
	}
}

// resolveMethod picks the enabled method the challenge runs against.
func (s *MFAChallengeService) resolveMethod(ctx context.Context, userID uuid.UUID, mfaType *entity.MFAType) (*entity.MFAMethod, error) {
	if mfaType != nil {
		if !mfaType.IsValid() {
			return nil, domainErrors.ErrInvalidRequest
		}
		method, err := s.methodRepo.FindByUserIDAndType(ctx, userID, *mfaType)
		if err != nil {
			if domainErrors.IsNotFound(err) {
				return nil, domainErrors.ErrMFAMethodNotFound
			}
			return nil, fmt.Errorf("failed to load method: %w", err)
		}
		if !method.IsEnabled {
			return nil, domainErrors.ErrMFANotEnabled
		}
		return method, nil
	}

	method, err := s.methodRepo.FindDefaultByUserID(ctx, userID)
	if err == nil {
		return method, nil
	}
	if !domainErrors.IsNotFound(err) {
		return nil, fmt.Errorf("failed to load default method: %w", err)
	}
	enabled, err := s.methodRepo.FindEnabledByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load enabled methods: %w", err)
	}
	if len(enabled) == 0 {
		return nil, domainErrors.ErrMFANotEnabled
	}
	return enabled[0], nil
}

// issueEmailLoginCode generates the login code, stores its hash on the
// challenge and delivers it. The code shares the challenge's expiry.
func (s *MFAChallengeService) issueEmailLoginCode(ctx context.Context, method *entity.MFAMethod, challenge *entity.MFAChallenge) error {
	if method.Metadata.Email == nil || method.Metadata.Email.EmailAddress == "" {
		return fmt.Errorf("email method %s has no address: %w", method.ID, domainErrors.ErrInternal)
	}

	allowed, _ := s.limiter.Allow(ctx, fmt.Sprintf("send:%s", method.UserID), s.cfg.SendRule)
	if !allowed {
		metrics.RateLimitRejectionsTotal.WithLabelValues("email_send").Inc()
		return domainErrors.ErrRateLimitExceeded
	}

	code, err := random.GenerateRandomDigits(s.cfg.EmailCodeLength)
	if err != nil {
		return fmt.Errorf("failed to generate login code: %w", err)
	}
	codeHash, err := s.hasher.Hash(code)
	if err != nil {
		return fmt.Errorf("failed to hash login code: %w", err)
	}
	challenge.EmailCodeHash = &codeHash

	expiryMinutes := int(time.Until(challenge.ExpiresAt).Minutes()) + 1
	if err := s.emailSender.SendSetupVerificationCode(ctx, method.Metadata.Email.EmailAddress, code, expiryMinutes, s.cfg.IssuerName); err != nil {
		// The challenge is still usable via recovery code.
		s.logger.Warn("failed to send login code",
			zap.Error(err), zap.String("user_id", method.UserID.String()))
	}
	return nil
}

// loadActiveChallenge resolves the token and re-derives validity from the
// wall clock: expiry is honored even before cleanup physically touches the
// row.
func (s *MFAChallengeService) loadActiveChallenge(ctx context.Context, token string) (*entity.MFAChallenge, error) {
	challenge, err := s.challengeRepo.FindByToken(ctx, token)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return nil, domainErrors.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	now := time.Now().UTC()
	switch {
	case challenge.IsCompleted:
		return nil, domainErrors.ErrChallengeCompleted
	case challenge.IsInvalid:
		return nil, domainErrors.ErrChallengeInvalid
	case challenge.IsExpired(now):
		return nil, domainErrors.ErrChallengeExpired
	}
	return challenge, nil
}

func (s *MFAChallengeService) loadChallengeMethod(ctx context.Context, challenge *entity.MFAChallenge) (*entity.MFAMethod, error) {
	if challenge.MFAMethodID == nil {
		return nil, fmt.Errorf("challenge %s has no method: %w", challenge.ID, domainErrors.ErrInternal)
	}
	method, err := s.methodRepo.FindByID(ctx, *challenge.MFAMethodID)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return nil, domainErrors.ErrMFAMethodNotFound
		}
		return nil, fmt.Errorf("failed to load method: %w", err)
	}
	if !method.IsEnabled {
		return nil, domainErrors.ErrMFANotEnabled
	}
	return method, nil
}

// recordFailure burns one attempt through the repository's atomic counter.
// Exhaustion permanently invalidates the challenge and is reported as its
// own failure class.
func (s *MFAChallengeService) recordFailure(ctx context.Context, challenge *entity.MFAChallenge, cause error) (*models.VerificationResult, error) {
	metrics.VerificationsTotal.WithLabelValues(string(challenge.Type), "failure").Inc()

	updated, err := s.challengeRepo.RecordFailedAttempt(ctx, challenge.ID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to record attempt: %w", err)
	}

	if updated.IsInvalid {
		metrics.ChallengesExhaustedTotal.Inc()
		s.publish(ctx, EventChallengeExhausted, map[string]interface{}{
			"user_id":      updated.UserID.String(),
			"challenge_id": updated.ID.String(),
			"type":         string(updated.Type),
		})
		s.logger.Warn("challenge attempts exhausted",
			zap.String("user_id", updated.UserID.String()),
			zap.String("challenge_id", updated.ID.String()))
		return &models.VerificationResult{Verified: false, AttemptsRemaining: 0}, domainErrors.ErrAttemptsExhausted
	}

	return &models.VerificationResult{
		Verified:          false,
		AttemptsRemaining: updated.AttemptsRemaining(),
	}, cause
}

// completeChallenge finishes a successful verification: the challenge
// completes, usage is stamped on the method, and the completion event goes
// out.
func (s *MFAChallengeService) completeChallenge(ctx context.Context, challenge *entity.MFAChallenge, method *entity.MFAMethod, now time.Time) (*models.VerificationResult, error) {
	if err := challenge.Complete(now); err != nil {
		return nil, err
	}
	// The guarded write re-checks validity against the stored row, so a
	// concurrent exhaustion that invalidated the challenge after our read
	// wins and the success is rejected.
	if err := s.challengeRepo.Complete(ctx, challenge.ID, now); err != nil {
		if domainErrors.IsInvalidState(err) || domainErrors.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to persist completed challenge: %w", err)
	}

	method.RecordUsage(now)
	if err := s.methodRepo.Update(ctx, method); err != nil {
		// The verification already succeeded; usage stamping is advisory.
		s.logger.Warn("failed to record method usage", zap.Error(err))
	}

	metrics.VerificationsTotal.WithLabelValues(string(challenge.Type), "success").Inc()
	s.publish(ctx, EventChallengeCompleted, map[string]interface{}{
		"user_id":      challenge.UserID.String(),
		"challenge_id": challenge.ID.String(),
		"type":         string(challenge.Type),
	})
	s.logger.Info("challenge completed",
		zap.String("user_id", challenge.UserID.String()),
		zap.String("challenge_id", challenge.ID.String()),
		zap.String("type", string(challenge.Type)))

	return &models.VerificationResult{
		Verified:          true,
		AttemptsRemaining: challenge.AttemptsRemaining(),
	}, nil
}
