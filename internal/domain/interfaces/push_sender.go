package interfaces

import (
	"context"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/entity"
)

// PushSender delivers approval prompts to enrolled devices via the platform
// push gateway (APNs/FCM behind one facade).
type PushSender interface {
	// SendPushNotification pushes a prompt with structured data to the
	// device identified by its transport token.
	SendPushNotification(ctx context.Context, token string, title string, body string, data map[string]string) error
	// ValidateToken checks that a device token is well-formed for the
	// platform before a device is registered.
	ValidateToken(ctx context.Context, token string, platform entity.PushPlatform) error
}
