package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/entity"
)

// TOTPSetupResponse carries the enrollment material returned by StartTOTPSetup.
// Field names are a stable contract with clients.
type TOTPSetupResponse struct {
	MFAMethodID     uuid.UUID `json:"mfa_method_id"`
	Secret          string    `json:"secret"`
	FormattedSecret string    `json:"formatted_secret"`
	QrCodeUri       string    `json:"qr_code_uri"`
	QrCodeImage     string    `json:"qr_code_image"` // base64 PNG data URI
	IssuerName      string    `json:"issuer_name"`
	AccountName     string    `json:"account_name"`
}

// EmailSetupResponse confirms (or soft-fails) the setup code delivery.
type EmailSetupResponse struct {
	MFAMethodID   uuid.UUID `json:"mfa_method_id"`
	Email         string    `json:"email"`
	CodeSent      bool      `json:"code_sent"`
	ExpiryMinutes int       `json:"expiry_minutes"`
}

// PushSetupResponse confirms device registration under a push method. The
// challenge must be approved on the device before VerifyPushSetup can
// complete the enrollment.
type PushSetupResponse struct {
	MFAMethodID uuid.UUID `json:"mfa_method_id"`
	DeviceID    uuid.UUID `json:"device_id"`
	ChallengeID uuid.UUID `json:"challenge_id"`
	PushSent    bool      `json:"push_sent"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SetupCompleteResponse is returned once by a successful VerifyXSetup. The
// plaintext recovery codes exist only in this value and are never
// retrievable again.
type SetupCompleteResponse struct {
	MFAMethodID     uuid.UUID `json:"mfa_method_id"`
	RecoveryCodes   []string  `json:"recovery_codes"`
	IsDefault       bool      `json:"is_default"`
	SecurityMessage string    `json:"security_message"`
}

// MethodSummary is the client-facing view of one registered method.
type MethodSummary struct {
	ID                  uuid.UUID      `json:"id"`
	Type                entity.MFAType `json:"type"`
	Name                string         `json:"name"`
	IsEnabled           bool           `json:"is_enabled"`
	IsDefault           bool           `json:"is_default"`
	CreatedAt           time.Time      `json:"created_at"`
	VerifiedAt          *time.Time     `json:"verified_at,omitempty"`
	LastUsedAt          *time.Time     `json:"last_used_at,omitempty"`
	UnusedRecoveryCodes int            `json:"unused_recovery_codes"`
}

// MFAOverview summarizes a user's MFA posture.
type MFAOverview struct {
	HasEnabledMFA  bool             `json:"has_enabled_mfa"`
	TotalMethods   int              `json:"total_methods"`
	EnabledMethods int              `json:"enabled_methods"`
	Methods        []MethodSummary  `json:"methods"`
	AvailableTypes []entity.MFAType `json:"available_types"`
}

// RemoveMethodResult reports the outcome of a removal request. When removing
// the last enabled method, Removed is false and the warning explains that
// proceeding would disable MFA entirely.
type RemoveMethodResult struct {
	Removed         bool   `json:"removed"`
	WouldDisableMFA bool   `json:"would_disable_mfa"`
	Warning         string `json:"warning,omitempty"`
}

// ChallengeResponse is the client view of a freshly created login challenge.
type ChallengeResponse struct {
	ChallengeToken    string         `json:"challenge_token"`
	Type              entity.MFAType `json:"type"`
	ExpiresAt         time.Time      `json:"expires_at"`
	AttemptsRemaining int            `json:"attempts_remaining"`
}

// VerificationResult reports a challenge verification outcome. On failure
// AttemptsRemaining tells the client how much budget is left.
type VerificationResult struct {
	Verified          bool `json:"verified"`
	AttemptsRemaining int  `json:"attempts_remaining"`
}

// PushDeviceRegistration carries the device details supplied at push setup.
type PushDeviceRegistration struct {
	Name        string              `json:"name"`
	Platform    entity.PushPlatform `json:"platform"`
	DeviceToken string              `json:"device_token"`
	PublicKey   string              `json:"public_key"`
	IPAddress   string              `json:"ip_address"`
	UserAgent   string              `json:"user_agent"`
}

// PushChallengeView carries the context displayed on the device.
type PushChallengeView struct {
	ID            uuid.UUID `json:"id"`
	ChallengeCode string    `json:"challenge_code"`
	SessionID     string    `json:"session_id"`
	IPAddress     string    `json:"ip_address"`
	UserAgent     string    `json:"user_agent"`
	ExpiresAt     time.Time `json:"expires_at"`
}
