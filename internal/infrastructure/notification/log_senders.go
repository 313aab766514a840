// Package notification carries the outbound delivery adapters. Real mail and
// push transports live in the platform notification service; the log-backed
// implementations here stand in when no gateway is configured, so local and
// test environments run without external dependencies.
package notification

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/entity"
	domainErrors "github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/errors"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/interfaces"
)

type logEmailSender struct {
	logger *zap.Logger
}

// NewLogEmailSender creates an email sender that only logs deliveries.
func NewLogEmailSender(logger *zap.Logger) interfaces.EmailSender {
	return &logEmailSender{logger: logger.With(zap.String("component", "log_email_sender"))}
}

func (s *logEmailSender) SendSetupVerificationCode(ctx context.Context, to string, code string, expiryMinutes int, appName string) error {
	s.logger.Info("verification code email (not delivered)",
		zap.String("to", to), zap.Int("expiry_minutes", expiryMinutes), zap.String("app_name", appName))
	return nil
}

func (s *logEmailSender) SendSecurityNotification(ctx context.Context, to string, eventType string, details string, occurredAt time.Time, ipAddress string, appName string) error {
	s.logger.Info("security notification email (not delivered)",
		zap.String("to", to), zap.String("event_type", eventType),
		zap.String("details", details), zap.String("app_name", appName))
	return nil
}

type logPushSender struct {
	logger *zap.Logger
}

// NewLogPushSender creates a push sender that only logs deliveries.
func NewLogPushSender(logger *zap.Logger) interfaces.PushSender {
	return &logPushSender{logger: logger.With(zap.String("component", "log_push_sender"))}
}

func (s *logPushSender) SendPushNotification(ctx context.Context, token string, title string, body string, data map[string]string) error {
	s.logger.Info("push notification (not delivered)",
		zap.String("title", title), zap.String("body", body))
	return nil
}

func (s *logPushSender) ValidateToken(ctx context.Context, token string, platform entity.PushPlatform) error {
	if strings.TrimSpace(token) == "" {
		return domainErrors.ErrInvalidRequest
	}
	switch platform {
	case entity.PushPlatformIOS, entity.PushPlatformAndroid:
		return nil
	}
	return domainErrors.ErrInvalidRequest
}
