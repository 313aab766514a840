package service

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
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
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/utils/rate"
)

// PushConfig carries the push approval policy.
type PushConfig struct {
	ChallengeTTL time.Duration
	SendRule     rate.Rule
}

// MFAPushService runs the device approval protocol: challenge delivery,
// approve/deny responses, and one-shot consumption of approvals.
type MFAPushService struct {
	pushChallengeRepo repository.PushChallengeRepository
	pushDeviceRepo    repository.PushDeviceRepository
	pushSender        interfaces.PushSender
	limiter           RateLimiter
	publisher         EventPublisher
	logger            *zap.Logger
	cfg               PushConfig
}

// NewMFAPushService creates the push approval orchestrator.
func NewMFAPushService(
	pushChallengeRepo repository.PushChallengeRepository,
	pushDeviceRepo repository.PushDeviceRepository,
	pushSender interfaces.PushSender,
	limiter RateLimiter,
	publisher EventPublisher,
	logger *zap.Logger,
	cfg PushConfig,
) *MFAPushService {
	return &MFAPushService{
		pushChallengeRepo: pushChallengeRepo,
		pushDeviceRepo:    pushDeviceRepo,
		pushSender:        pushSender,
		limiter:           limiter,
		publisher:         publisher,
		logger:            logger.With(zap.String("component", "mfa_push_service")),
		cfg:               cfg,
	}
}

// CreatePushChallenge opens an approval request against a registered device
// and delivers the prompt. A zero ttl falls back to the configured default;
// out-of-range values are rejected at entity construction.
func (s *MFAPushService) CreatePushChallenge(ctx context.Context, userID, deviceID uuid.UUID, sessionID, ipAddress, userAgent string, ttl time.Duration) (*models.PushChallengeView, error) {
	if userID == uuid.Nil || deviceID == uuid.Nil {
		return nil, domainErrors.ErrInvalidRequest
	}

	device, err := s.pushDeviceRepo.FindByID(ctx, deviceID)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return nil, domainErrors.ErrPushDeviceNotFound
		}
		return nil, fmt.Errorf("failed to load device: %w", err)
	}
	if device.UserID != userID {
		return nil, domainErrors.ErrForbidden
	}
	if !device.IsActive {
		return nil, domainErrors.ErrPushDeviceInactive
	}

	allowed, _ := s.limiter.Allow(ctx, fmt.Sprintf("send:%s", userID), s.cfg.SendRule)
	if !allowed {
		metrics.RateLimitRejectionsTotal.WithLabelValues("push_send").Inc()
		return nil, domainErrors.ErrRateLimitExceeded
	}

	if ttl == 0 {
		ttl = s.cfg.ChallengeTTL
	}
	now := time.Now().UTC()
	challenge, err := entity.NewMFAPushChallenge(deviceID, userID, sessionID, ipAddress, userAgent, ttl, now)
	if err != nil {
		return nil, err
	}
	if err := s.pushChallengeRepo.Create(ctx, challenge); err != nil {
		return nil, fmt.Errorf("failed to store push challenge: %w", err)
	}

	err = s.pushSender.SendPushNotification(ctx, device.DeviceToken,
		"Sign-in request",
		fmt.Sprintf("A sign-in from %s needs your approval", ipAddress),
		map[string]string{
			"challenge_id":   challenge.ID.String(),
			"challenge_code": challenge.ChallengeCode,
			"session_id":     sessionID,
			"ip_address":     ipAddress,
			"user_agent":     userAgent,
			"expires_at":     challenge.ExpiresAt.Format(time.RFC3339),
		})
	if err != nil {
		// The device can still poll for pending challenges.
		s.logger.Warn("failed to send approval push",
			zap.Error(err), zap.String("device_id", deviceID.String()))
	}

	s.logger.Info("push challenge created",
		zap.String("user_id", userID.String()),
		zap.String("device_id", deviceID.String()),
		zap.String("challenge_id", challenge.ID.String()))

	return &models.PushChallengeView{
		ID:            challenge.ID,
		ChallengeCode: challenge.ChallengeCode,
		SessionID:     challenge.SessionID,
		IPAddress:     challenge.IPAddress,
		UserAgent:     challenge.UserAgent,
		ExpiresAt:     challenge.ExpiresAt,
	}, nil
}

// RespondToPush records the device's approve or deny decision. The signature
// covers the challenge code; when the device registered a public key the
// signature is verified against it.
func (s *MFAPushService) RespondToPush(ctx context.Context, deviceID, challengeID uuid.UUID, approve bool, signature string) error {
	if deviceID == uuid.Nil || challengeID == uuid.Nil {
		return domainErrors.ErrInvalidRequest
	}

	challenge, err := s.pushChallengeRepo.FindByID(ctx, challengeID)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return domainErrors.ErrPushChallengeNotFound
		}
		return fmt.Errorf("failed to load push challenge: %w", err)
	}
	if challenge.DeviceID != deviceID {
		return domainErrors.ErrForbidden
	}

	device, err := s.pushDeviceRepo.FindByID(ctx, deviceID)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return domainErrors.ErrPushDeviceNotFound
		}
		return fmt.Errorf("failed to load device: %w", err)
	}
	if !device.IsActive {
		return domainErrors.ErrPushDeviceInactive
	}
	if err := s.verifyDeviceSignature(device, challenge.ChallengeCode, signature); err != nil {
		return err
	}

	now := time.Now().UTC()
	if challenge.Status == entity.PushChallengePending && challenge.IsExpired(now) {
		if merr := challenge.MarkExpired(); merr == nil {
			if uerr := s.pushChallengeRepo.TransitionStatus(ctx, challenge, entity.PushChallengePending); uerr != nil {
				s.logger.Warn("failed to persist expired challenge", zap.Error(uerr))
			}
		}
		return domainErrors.ErrPushChallengeExpired
	}

	outcome := "denied"
	if approve {
		err = challenge.Approve(signature, now)
		outcome = "approved"
	} else {
		err = challenge.Deny(signature, now)
	}
	if err != nil {
		return err
	}
	// The guarded write lets exactly one response through; a concurrent
	// response that won the row reports the state that beat this one.
	if err := s.pushChallengeRepo.TransitionStatus(ctx, challenge, entity.PushChallengePending); err != nil {
		if domainErrors.IsInvalidState(err) || domainErrors.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("failed to persist response: %w", err)
	}

	device.RecordUsage(now)
	if err := s.pushDeviceRepo.Update(ctx, device); err != nil {
		s.logger.Warn("failed to record device usage", zap.Error(err))
	}

	metrics.PushResponsesTotal.WithLabelValues(outcome).Inc()
	s.publish(ctx, EventPushResponded, map[string]interface{}{
		"user_id":      challenge.UserID.String(),
		"challenge_id": challenge.ID.String(),
		"device_id":    deviceID.String(),
		"outcome":      outcome,
	})
	s.logger.Info("push challenge responded",
		zap.String("challenge_id", challenge.ID.String()),
		zap.String("device_id", deviceID.String()),
		zap.String("outcome", outcome))
	return nil
}

// ConsumePushApproval exchanges an approved challenge for its one permitted
// use. A second consumption attempt fails: approvals cannot be replayed.
func (s *MFAPushService) ConsumePushApproval(ctx context.Context, challengeID uuid.UUID) error {
	if challengeID == uuid.Nil {
		return domainErrors.ErrInvalidRequest
	}
	challenge, err := s.pushChallengeRepo.FindByID(ctx, challengeID)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return domainErrors.ErrPushChallengeNotFound
		}
		return fmt.Errorf("failed to load push challenge: %w", err)
	}

	now := time.Now().UTC()
	if challenge.Status == entity.PushChallengePending && challenge.IsExpired(now) {
		return domainErrors.ErrPushChallengeExpired
	}
	if err := challenge.MarkConsumed(); err != nil {
		return err
	}
	if err := s.pushChallengeRepo.TransitionStatus(ctx, challenge, entity.PushChallengeApproved); err != nil {
		if domainErrors.IsInvalidState(err) || domainErrors.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("failed to persist consumed approval: %w", err)
	}
	s.logger.Info("push approval consumed", zap.String("challenge_id", challenge.ID.String()))
	return nil
}

// GetPendingChallenges lists the still-pending challenges for a device, the
// poll fallback when push delivery failed.
func (s *MFAPushService) GetPendingChallenges(ctx context.Context, userID, deviceID uuid.UUID) ([]*models.PushChallengeView, error) {
	if userID == uuid.Nil || deviceID == uuid.Nil {
		return nil, domainErrors.ErrInvalidRequest
	}
	device, err := s.pushDeviceRepo.FindByID(ctx, deviceID)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return nil, domainErrors.ErrPushDeviceNotFound
		}
		return nil, fmt.Errorf("failed to load device: %w", err)
	}
	if device.UserID != userID {
		return nil, domainErrors.ErrForbidden
	}

	pending, err := s.pushChallengeRepo.FindPendingByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending challenges: %w", err)
	}

	now := time.Now().UTC()
	views := make([]*models.PushChallengeView, 0, len(pending))
	for _, ch := range pending {
		if ch.IsExpired(now) {
			continue
		}
		views = append(views, &models.PushChallengeView{
			ID:            ch.ID,
			ChallengeCode: ch.ChallengeCode,
			SessionID:     ch.SessionID,
			IPAddress:     ch.IPAddress,
			UserAgent:     ch.UserAgent,
			ExpiresAt:     ch.ExpiresAt,
		})
	}
	return views, nil
}

func (s *MFAPushService) publish(ctx context.Context, eventType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, payload); err != nil {
		s.logger.Warn("failed to publish event", zap.String("event_type", eventType), zap.Error(err))
	}
}

// verifyDeviceSignature checks an ed25519 signature over the challenge code
// when the device registered a public key. Devices without a key only get
// the non-empty signature check at the entity level.
func (s *MFAPushService) verifyDeviceSignature(device *entity.MFAPushDevice, challengeCode, signature string) error {
	if signature == "" {
		return domainErrors.ErrPushSignatureMissing
	}
	if device.PublicKey == "" {
		return nil
	}
	pubKey, err := base64.StdEncoding.DecodeString(device.PublicKey)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("device %s has malformed public key: %w", device.ID, domainErrors.ErrInternal)
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return domainErrors.ErrForbidden
	}
	if !ed25519.Verify(ed25519.PublicKey(pubKey), []byte(challengeCode), sig) {
		return domainErrors.ErrForbidden
	}
	return nil
}
