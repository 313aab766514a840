package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/repository"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/utils/metrics"
)

// CleanupConfig carries the retention policy for expired records.
type CleanupConfig struct {
	Interval                  time.Duration
	ChallengeRetention        time.Duration
	PushChallengeRetention    time.Duration
	UnverifiedMethodRetention time.Duration
}

// MFACleanupService periodically removes records past their validity window.
// It only ever touches rows already invalid to every read path, so it is
// safe to run concurrently with live verification traffic.
type MFACleanupService struct {
	challengeRepo     repository.MFAChallengeRepository
	pushChallengeRepo repository.PushChallengeRepository
	methodRepo        repository.MFAMethodRepository
	logger            *zap.Logger
	cfg               CleanupConfig
}

// NewMFACleanupService creates the cleanup worker.
func NewMFACleanupService(
	challengeRepo repository.MFAChallengeRepository,
	pushChallengeRepo repository.PushChallengeRepository,
	methodRepo repository.MFAMethodRepository,
	logger *zap.Logger,
	cfg CleanupConfig,
) *MFACleanupService {
	return &MFACleanupService{
		challengeRepo:     challengeRepo,
		pushChallengeRepo: pushChallengeRepo,
		methodRepo:        methodRepo,
		logger:            logger.With(zap.String("component", "mfa_cleanup_service")),
		cfg:               cfg,
	}
}

// CleanupExpiredChallenges deletes challenges whose expiry is past the
// retention window.
func (s *MFACleanupService) CleanupExpiredChallenges(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.cfg.ChallengeRetention)
	deleted, err := s.challengeRepo.DeleteExpiredOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired challenges: %w", err)
	}
	if deleted > 0 {
		metrics.CleanupDeletionsTotal.WithLabelValues("challenge").Add(float64(deleted))
		s.logger.Info("deleted expired challenges", zap.Int64("count", deleted))
	}
	return deleted, nil
}

// CleanupExpiredPushChallenges first flips timed-out pending push challenges
// to the expired status, then deletes terminal ones past retention.
func (s *MFACleanupService) CleanupExpiredPushChallenges(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	expired, err := s.pushChallengeRepo.MarkExpiredOlderThan(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire push challenges: %w", err)
	}
	if expired > 0 {
		s.logger.Info("marked push challenges expired", zap.Int64("count", expired))
	}

	deleted, err := s.pushChallengeRepo.DeleteTerminalOlderThan(ctx, now.Add(-s.cfg.PushChallengeRetention))
	if err != nil {
		return 0, fmt.Errorf("failed to delete push challenges: %w", err)
	}
	if deleted > 0 {
		metrics.CleanupDeletionsTotal.WithLabelValues("push_challenge").Add(float64(deleted))
		s.logger.Info("deleted terminal push challenges", zap.Int64("count", deleted))
	}
	return deleted, nil
}

// CleanupStaleUnverifiedMethods deletes setup attempts that were never
// verified within the retention age.
func (s *MFACleanupService) CleanupStaleUnverifiedMethods(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.cfg.UnverifiedMethodRetention)
	deleted, err := s.methodRepo.DeleteUnverifiedOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale methods: %w", err)
	}
	if deleted > 0 {
		metrics.CleanupDeletionsTotal.WithLabelValues("unverified_method").Add(float64(deleted))
		s.logger.Info("deleted stale unverified methods", zap.Int64("count", deleted))
	}
	return deleted, nil
}

// Run executes all cleanup passes on the configured interval until the
// context is cancelled. A failing pass is logged and retried next tick.
func (s *MFACleanupService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("cleanup worker started", zap.Duration("interval", s.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			if _, err := s.CleanupExpiredChallenges(ctx); err != nil {
				s.logger.Error("challenge cleanup failed", zap.Error(err))
			}
			if _, err := s.CleanupExpiredPushChallenges(ctx); err != nil {
				s.logger.Error("push challenge cleanup failed", zap.Error(err))
			}
			if _, err := s.CleanupStaleUnverifiedMethods(ctx); err != nil {
				s.logger.Error("stale method cleanup failed", zap.Error(err))
			}
		}
	}
}
