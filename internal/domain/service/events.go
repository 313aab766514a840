package service

import "context"

// Event types published to the mfa-events topic.
const (
	EventMethodSetupStarted       = "identity.mfa.method.setup_started"
	EventMethodActivated          = "identity.mfa.method.activated"
	EventMethodRemoved            = "identity.mfa.method.removed"
	EventRecoveryCodesRegenerated = "identity.mfa.recovery_codes.regenerated"
	EventChallengeCreated         = "identity.mfa.challenge.created"
	EventChallengeCompleted       = "identity.mfa.challenge.completed"
	EventChallengeExhausted       = "identity.mfa.challenge.exhausted"
	EventSignCountRegression      = "identity.mfa.webauthn.sign_count_regression"
	EventPushResponded            = "identity.mfa.push.responded"
)

// EventPublisher publishes lifecycle and security events. Publishing is
// best-effort: implementations and callers log failures, they never fail the
// operation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
}
