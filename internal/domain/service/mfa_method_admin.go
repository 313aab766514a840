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
)

// CancelSetup removes an unverified method of the given type. It returns
// false when there is nothing to cancel: no method of the type exists, or
// the existing one is already enabled.
func (s *MFASetupService) CancelSetup(ctx context.Context, userID uuid.UUID, mfaType entity.MFAType) (bool, error) {
	if userID == uuid.Nil || !mfaType.IsValid() {
		return false, domainErrors.ErrInvalidRequest
	}
	method, err := s.methodRepo.FindByUserIDAndType(ctx, userID, mfaType)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load %s method: %w", mfaType, err)
	}
	if method.IsEnabled {
		return false, nil
	}
	if err := s.removeMethodRecords(ctx, method); err != nil {
		return false, fmt.Errorf("failed to cancel %s setup: %w", mfaType, err)
	}
	s.logger.Info("setup cancelled",
		zap.String("user_id", userID.String()), zap.String("type", string(mfaType)))
	return true, nil
}

// RemoveMethod deletes a method and its sub-records. Removing the last
// enabled method would silently disable MFA for the account, so unless force
// is set the removal is refused with a warning instead.
func (s *MFASetupService) RemoveMethod(ctx context.Context, userID, methodID uuid.UUID, force bool) (*models.RemoveMethodResult, error) {
	method, err := s.loadOwned(ctx, userID, methodID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if method.IsEnabled {
		enabled, err := s.methodRepo.CountEnabledByUserID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to count enabled methods: %w", err)
		}
		if enabled <= 1 && !force {
			return &models.RemoveMethodResult{
				Removed:         false,
				WouldDisableMFA: true,
				Warning: "This is your last enabled two-factor method. Removing it will " +
					"disable two-factor authentication for your account.",
			}, nil
		}
	}

	wasDefault := method.IsDefault
	if err := s.removeMethodRecords(ctx, method); err != nil {
		return nil, fmt.Errorf("failed to remove method: %w", err)
	}

	if wasDefault {
		if remaining, err := s.methodRepo.FindEnabledByUserID(ctx, userID); err == nil && len(remaining) > 0 {
			next := remaining[0]
			if err := next.SetAsDefault(now); err == nil {
				if err := s.methodRepo.Update(ctx, next); err != nil {
					s.logger.Warn("failed to promote new default method", zap.Error(err))
				}
			}
		}
	}

	s.notifySecurityChange(ctx, userID, "mfa_method_removed",
		fmt.Sprintf("The %s method %q was removed from your account", method.Type, method.Name), now)
	s.publish(ctx, EventMethodRemoved, map[string]interface{}{
		"user_id":   userID.String(),
		"method_id": methodID.String(),
		"type":      string(method.Type),
	})
	s.logger.Info("mfa method removed",
		zap.String("user_id", userID.String()),
		zap.String("method_id", methodID.String()),
		zap.String("type", string(method.Type)))

	return &models.RemoveMethodResult{Removed: true}, nil
}

// SetDefaultMethod makes the method the user's default factor. Every other
// default flag is cleared first so at most one enabled method carries it.
func (s *MFASetupService) SetDefaultMethod(ctx context.Context, userID, methodID uuid.UUID) error {
	method, err := s.loadOwned(ctx, userID, methodID)
	if err != nil {
		return err
	}
	if !method.IsEnabled {
		return domainErrors.ErrMFANotEnabled
	}
	if err := s.methodRepo.ClearDefaultForUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear default flags: %w", err)
	}
	now := time.Now().UTC()
	if err := method.SetAsDefault(now); err != nil {
		return err
	}
	if err := s.methodRepo.Update(ctx, method); err != nil {
		return fmt.Errorf("failed to persist default method: %w", err)
	}
	return nil
}

// RenameMethod sets the user-facing display name of a method.
func (s *MFASetupService) RenameMethod(ctx context.Context, userID, methodID uuid.UUID, name string) error {
	method, err := s.loadOwned(ctx, userID, methodID)
	if err != nil {
		return err
	}
	if err := method.Rename(name, time.Now().UTC()); err != nil {
		return err
	}
	if err := s.methodRepo.Update(ctx, method); err != nil {
		return fmt.Errorf("failed to persist renamed method: %w", err)
	}
	return nil
}

// RegenerateRecoveryCodes replaces the unused recovery codes of an enabled
// method with a fresh batch and returns the new plaintexts. Used codes are
// preserved for the audit trail; the old unused ones stop working
// immediately.
func (s *MFASetupService) RegenerateRecoveryCodes(ctx context.Context, userID, methodID uuid.UUID) ([]string, error) {
	method, err := s.loadOwned(ctx, userID, methodID)
	if err != nil {
		return nil, err
	}
	if !method.IsEnabled {
		return nil, domainErrors.ErrMFANotEnabled
	}

	existing, err := s.recoveryRepo.FindByMethodID(ctx, methodID)
	if err != nil {
		return nil, fmt.Errorf("failed to load recovery codes: %w", err)
	}
	method.RecoveryCodes = existing

	if err := s.recoveryRepo.DeleteUnusedByMethodID(ctx, methodID); err != nil {
		return nil, fmt.Errorf("failed to discard old recovery codes: %w", err)
	}

	now := time.Now().UTC()
	plainCodes, err := s.issueRecoveryCodes(ctx, method, now)
	if err != nil {
		return nil, err
	}
	if err := s.methodRepo.Update(ctx, method); err != nil {
		return nil, fmt.Errorf("failed to persist method: %w", err)
	}

	s.notifySecurityChange(ctx, userID, "mfa_recovery_codes_regenerated",
		"The recovery codes for your account were regenerated", now)
	s.publish(ctx, EventRecoveryCodesRegenerated, map[string]interface{}{
		"user_id":   userID.String(),
		"method_id": methodID.String(),
	})
	s.logger.Info("recovery codes regenerated",
		zap.String("user_id", userID.String()), zap.String("method_id", methodID.String()))

	return plainCodes, nil
}

// GetOverview summarizes the user's MFA posture: registered methods, how
// many are enabled, and which types can still be added.
func (s *MFASetupService) GetOverview(ctx context.Context, userID uuid.UUID) (*models.MFAOverview, error) {
	if userID == uuid.Nil {
		return nil, domainErrors.ErrInvalidRequest
	}
	methods, err := s.methodRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load methods: %w", err)
	}

	overview := &models.MFAOverview{
		TotalMethods: len(methods),
		Methods:      make([]models.MethodSummary, 0, len(methods)),
	}
	registered := make(map[entity.MFAType]bool, len(methods))
	for _, m := range methods {
		registered[m.Type] = true
		if m.IsEnabled {
			overview.EnabledMethods++
		}
		unused, err := s.recoveryRepo.CountUnusedByMethodID(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count recovery codes: %w", err)
		}
		overview.Methods = append(overview.Methods, models.MethodSummary{
			ID:                  m.ID,
			Type:                m.Type,
			Name:                m.Name,
			IsEnabled:           m.IsEnabled,
			IsDefault:           m.IsDefault,
			CreatedAt:           m.CreatedAt,
			VerifiedAt:          m.VerifiedAt,
			LastUsedAt:          m.LastUsedAt,
			UnusedRecoveryCodes: unused,
		})
	}
	overview.HasEnabledMFA = overview.EnabledMethods > 0
	for _, t := range entity.AllMFATypes {
		if !registered[t] {
			overview.AvailableTypes = append(overview.AvailableTypes, t)
		}
	}
	return overview, nil
}

// loadOwned fetches a method and checks it belongs to the user.
func (s *MFASetupService) loadOwned(ctx context.Context, userID, methodID uuid.UUID) (*entity.MFAMethod, error) {
	if userID == uuid.Nil || methodID == uuid.Nil {
		return nil, domainErrors.ErrInvalidRequest
	}
	method, err := s.methodRepo.FindByID(ctx, methodID)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return nil, domainErrors.ErrMFAMethodNotFound
		}
		return nil, fmt.Errorf("failed to load method: %w", err)
	}
	if method.UserID != userID {
		return nil, domainErrors.ErrForbidden
	}
	return method, nil
}

// notifySecurityChange sends a best-effort security notification to the
// user's verified email method, when one exists. Delivery failure never
// fails the operation that triggered it.
func (s *MFASetupService) notifySecurityChange(ctx context.Context, userID uuid.UUID, eventType, details string, now time.Time) {
	emailMethod, err := s.methodRepo.FindByUserIDAndType(ctx, userID, entity.MFATypeEmail)
	if err != nil || !emailMethod.IsEnabled || emailMethod.Metadata.Email == nil {
		return
	}
	addr := emailMethod.Metadata.Email.EmailAddress
	if err := s.emailSender.SendSecurityNotification(ctx, addr, eventType, details, now, "", s.cfg.IssuerName); err != nil {
		s.logger.Warn("failed to send security notification",
			zap.Error(err), zap.String("user_id", userID.String()), zap.String("event_type", eventType))
	}
}
