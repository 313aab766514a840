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
)

const defaultPushMethodName = "Mobile device"

// StartPushSetup registers a device under an unverified push method and
// sends an approval challenge to it. Enrollment completes when the device
// approves the challenge and the client calls VerifyPushSetup.
func (s *MFASetupService) StartPushSetup(ctx context.Context, userID uuid.UUID, reg models.PushDeviceRegistration) (*models.PushSetupResponse, error) {
	if userID == uuid.Nil || reg.DeviceToken == "" || reg.Name == "" {
		return nil, domainErrors.ErrInvalidRequest
	}
	if err := s.pushSender.ValidateToken(ctx, reg.DeviceToken, reg.Platform); err != nil {
		return nil, fmt.Errorf("invalid device token: %w", domainErrors.ErrInvalidRequest)
	}

	allowed, _ := s.limiter.Allow(ctx, fmt.Sprintf("send:%s", userID), s.cfg.SendRule)
	if !allowed {
		metrics.RateLimitRejectionsTotal.WithLabelValues("push_send").Inc()
		return nil, domainErrors.ErrRateLimitExceeded
	}

	if err := s.beginSetup(ctx, userID, entity.MFATypePush); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	method := entity.NewMFAMethod(userID, entity.MFATypePush, defaultPushMethodName, now)
	device := entity.NewMFAPushDevice(method.ID, userID, reg.Name, reg.Platform, reg.DeviceToken, reg.PublicKey, now)
	method.Metadata.Push = &entity.PushMetadata{DeviceIDs: []uuid.UUID{device.ID}}

	if err := s.methodRepo.Create(ctx, method); err != nil {
		return nil, fmt.Errorf("failed to store push method: %w", err)
	}
	if err := s.pushDeviceRepo.Create(ctx, device); err != nil {
		return nil, fmt.Errorf("failed to store push device: %w", err)
	}

	challenge, err := entity.NewMFAPushChallenge(device.ID, userID, "enrollment", reg.IPAddress, reg.UserAgent, s.cfg.PushSetupTTL, now)
	if err != nil {
		return nil, err
	}
	if err := s.pushChallengeRepo.Create(ctx, challenge); err != nil {
		return nil, fmt.Errorf("failed to store push challenge: %w", err)
	}

	pushSent := true
	err = s.pushSender.SendPushNotification(ctx, device.DeviceToken,
		"Confirm device enrollment",
		fmt.Sprintf("Approve to finish setting up %s for two-factor authentication", device.Name),
		map[string]string{
			"challenge_id":   challenge.ID.String(),
			"challenge_code": challenge.ChallengeCode,
			"expires_at":     challenge.ExpiresAt.Format(time.RFC3339),
		})
	if err != nil {
		pushSent = false
		s.logger.Warn("failed to send enrollment push",
			zap.Error(err), zap.String("user_id", userID.String()), zap.String("device_id", device.ID.String()))
	}

	metrics.MethodSetupsTotal.WithLabelValues(string(entity.MFATypePush)).Inc()
	s.publish(ctx, EventMethodSetupStarted, map[string]interface{}{
		"user_id":   userID.String(),
		"method_id": method.ID.String(),
		"type":      string(entity.MFATypePush),
	})
	s.logger.Info("push setup started",
		zap.String("user_id", userID.String()),
		zap.String("method_id", method.ID.String()),
		zap.String("device_id", device.ID.String()),
		zap.Bool("push_sent", pushSent))

	return &models.PushSetupResponse{
		MFAMethodID: method.ID,
		DeviceID:    device.ID,
		ChallengeID: challenge.ID,
		PushSent:    pushSent,
		ExpiresAt:   challenge.ExpiresAt,
	}, nil
}

// VerifyPushSetup completes push enrollment once the device has approved the
// enrollment challenge. The approval is consumed so it cannot double as a
// login approval.
func (s *MFASetupService) VerifyPushSetup(ctx context.Context, userID uuid.UUID, challengeID uuid.UUID) (*models.SetupCompleteResponse, error) {
	if userID == uuid.Nil || challengeID == uuid.Nil {
		return nil, domainErrors.ErrInvalidRequest
	}
	method, err := s.loadUnverified(ctx, userID, entity.MFATypePush)
	if err != nil {
		return nil, err
	}

	challenge, err := s.pushChallengeRepo.FindByID(ctx, challengeID)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return nil, domainErrors.ErrPushChallengeNotFound
		}
		return nil, fmt.Errorf("failed to load push challenge: %w", err)
	}
	if challenge.UserID != userID {
		return nil, domainErrors.ErrForbidden
	}

	now := time.Now().UTC()
	if challenge.Status == entity.PushChallengePending && challenge.IsExpired(now) {
		return nil, domainErrors.ErrPushChallengeExpired
	}
	if err := challenge.MarkConsumed(); err != nil {
		return nil, err
	}
	if err := s.pushChallengeRepo.TransitionStatus(ctx, challenge, entity.PushChallengeApproved); err != nil {
		if domainErrors.IsInvalidState(err) || domainErrors.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to persist consumed challenge: %w", err)
	}

	device, err := s.pushDeviceRepo.FindByID(ctx, challenge.DeviceID)
	if err == nil {
		device.RecordUsage(now)
		if err := s.pushDeviceRepo.Update(ctx, device); err != nil {
			s.logger.Warn("failed to record device usage", zap.Error(err))
		}
	}

	metrics.VerificationsTotal.WithLabelValues(string(entity.MFATypePush), "success").Inc()
	return s.finalizeActivation(ctx, method, now)
}
