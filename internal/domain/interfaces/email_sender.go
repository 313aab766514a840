package interfaces

import (
	"context"
	"time"
)

// EmailSender delivers MFA-related mail through the platform notification
// pipeline. Implementations live outside this service; send failures are
// reported back as soft results, never as aborted setups.
type EmailSender interface {
	// SendSetupVerificationCode delivers a short-lived code used to prove
	// ownership of an address during email method setup or login. appName
	// brands the mail with the issuing product.
	SendSetupVerificationCode(ctx context.Context, to string, code string, expiryMinutes int, appName string) error
	// SendSecurityNotification informs the user about a security-relevant
	// change, such as a method being removed or recovery codes regenerated.
	SendSecurityNotification(ctx context.Context, to string, eventType string, details string, occurredAt time.Time, ipAddress string, appName string) error
}
