package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/errors"
	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/utils/random"
)

// PushChallengeStatus is the lifecycle state of a push approval request.
type PushChallengeStatus string

const (
	PushChallengePending  PushChallengeStatus = "pending"
	PushChallengeApproved PushChallengeStatus = "approved"
	PushChallengeDenied   PushChallengeStatus = "denied"
	PushChallengeExpired  PushChallengeStatus = "expired"
	PushChallengeConsumed PushChallengeStatus = "consumed"
)

// Push challenge expiry bounds, validated at creation.
const (
	MinPushChallengeTTL = 1 * time.Minute
	MaxPushChallengeTTL = 30 * time.Minute
)

const pushChallengeCodeBytes = 32

// MFAPushChallenge is a per-login approval request sent to one registered
// device, mapping to the "mfa_push_challenges" table. Session, IP and user
// agent are carried for display on the device.
type MFAPushChallenge struct {
	ID            uuid.UUID           `db:"id"`
	DeviceID      uuid.UUID           `db:"device_id"`
	UserID        uuid.UUID           `db:"user_id"`
	ChallengeCode string              `db:"challenge_code"`
	SessionID     string              `db:"session_id"`
	IPAddress     string              `db:"ip_address"`
	UserAgent     string              `db:"user_agent"`
	Status        PushChallengeStatus `db:"status"`
	Signature     *string             `db:"signature"`
	CreatedAt     time.Time           `db:"created_at"`
	ExpiresAt     time.Time           `db:"expires_at"`
	RespondedAt   *time.Time          `db:"responded_at"`
}

// NewMFAPushChallenge creates a pending push challenge with a server-side
// random challenge code. The expiry window must be between 1 and 30 minutes.
func NewMFAPushChallenge(deviceID, userID uuid.UUID, sessionID, ipAddress, userAgent string, ttl time.Duration, now time.Time) (*MFAPushChallenge, error) {
	if ttl < MinPushChallengeTTL || ttl > MaxPushChallengeTTL {
		return nil, domainErrors.ErrInvalidRequest
	}
	code, err := random.GenerateURLSafeToken(pushChallengeCodeBytes)
	if err != nil {
		return nil, err
	}
	return &MFAPushChallenge{
		ID:            uuid.New(),
		DeviceID:      deviceID,
		UserID:        userID,
		ChallengeCode: code,
		SessionID:     sessionID,
		IPAddress:     ipAddress,
		UserAgent:     userAgent,
		Status:        PushChallengePending,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}, nil
}

// IsExpired reports whether the challenge is past its validity window.
func (c *MFAPushChallenge) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

func (c *MFAPushChallenge) respond(status PushChallengeStatus, signature string, now time.Time) error {
	if strings.TrimSpace(signature) == "" {
		return domainErrors.ErrPushSignatureMissing
	}
	if c.Status != PushChallengePending {
		return domainErrors.ErrPushAlreadyResponded
	}
	if c.IsExpired(now) {
		return domainErrors.ErrPushChallengeExpired
	}
	c.Status = status
	c.Signature = &signature
	respondedAt := now
	c.RespondedAt = &respondedAt
	return nil
}

// Approve records a signed approval from the device. Responding twice, or
// after expiry, is rejected with a state-transition error that distinguishes
// the two cases.
func (c *MFAPushChallenge) Approve(signature string, now time.Time) error {
	return c.respond(PushChallengeApproved, signature, now)
}

// Deny records a signed denial from the device.
func (c *MFAPushChallenge) Deny(signature string, now time.Time) error {
	return c.respond(PushChallengeDenied, signature, now)
}

// MarkExpired transitions a pending challenge past its window to the expired
// state. Legal only from pending.
func (c *MFAPushChallenge) MarkExpired() error {
	if c.Status != PushChallengePending {
		return domainErrors.ErrPushAlreadyResponded
	}
	c.Status = PushChallengeExpired
	return nil
}

// MarkConsumed records that the approval has been exchanged for a session
// and cannot be replayed. Legal only from approved.
func (c *MFAPushChallenge) MarkConsumed() error {
	switch c.Status {
	case PushChallengeApproved:
		c.Status = PushChallengeConsumed
		return nil
	case PushChallengeConsumed:
		return domainErrors.ErrPushAlreadyConsumed
	default:
		return domainErrors.ErrPushNotApproved
	}
}
