package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/aurora-interactive/identity-platform/services/mfa-service/internal/domain/errors"
)

// MFAType defines the type of an MFA method.
type MFAType string

const (
	MFATypeTOTP     MFAType = "totp"
	MFATypeWebAuthn MFAType = "webauthn"
	MFATypeEmail    MFAType = "email"
	MFATypePush     MFAType = "push"
)

// AllMFATypes lists every registrable method type.
var AllMFATypes = []MFAType{MFATypeTOTP, MFATypeWebAuthn, MFATypeEmail, MFATypePush}

// IsValid reports whether t is a known method type.
func (t MFAType) IsValid() bool {
	switch t {
	case MFATypeTOTP, MFATypeWebAuthn, MFATypeEmail, MFATypePush:
		return true
	}
	return false
}

// TOTPMetadata holds the code-derivation parameters for a TOTP method.
type TOTPMetadata struct {
	Algorithm string `json:"algorithm"`
	Digits    int    `json:"digits"`
	Period    int    `json:"period"`
}

// WebAuthnMetadata holds registration data for a WebAuthn method. The live
// signature counter is tracked on the WebAuthnCredential record.
type WebAuthnMetadata struct {
	CredentialID string   `json:"credential_id"`
	PublicKey    string   `json:"public_key"`
	Transports   []string `json:"transports,omitempty"`
}

// SetupVerificationCode is the transient, explicitly-expiring code used while
// an email method is still unverified. Only the hash is ever stored.
type SetupVerificationCode struct {
	CodeHash  string    `json:"code_hash"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EmailMetadata holds the delivery address for an email method.
type EmailMetadata struct {
	EmailAddress string                 `json:"email_address"`
	SetupCode    *SetupVerificationCode `json:"setup_code,omitempty"`
}

// PushMetadata lists the devices registered under a push method.
type PushMetadata struct {
	DeviceIDs []uuid.UUID `json:"device_ids,omitempty"`
}

// MethodMetadata is the type-keyed payload of an MFAMethod. Exactly one of
// the sub-records is set, matching the method's Type tag.
type MethodMetadata struct {
	TOTP     *TOTPMetadata     `json:"totp,omitempty"`
	WebAuthn *WebAuthnMetadata `json:"webauthn,omitempty"`
	Email    *EmailMetadata    `json:"email,omitempty"`
	Push     *PushMetadata     `json:"push,omitempty"`
}

// MFAMethod represents a registered second factor, mapping to the
// "mfa_methods" table. Recovery codes are owned children of the method.
type MFAMethod struct {
	ID            uuid.UUID          `db:"id"`
	UserID        uuid.UUID          `db:"user_id"`
	Type          MFAType            `db:"type"`
	Secret        *string            `db:"secret"` // TOTP secret or WebAuthn credential id; nil for email/push
	Metadata      MethodMetadata     `db:"metadata"`
	Name          string             `db:"name"`
	IsEnabled     bool               `db:"is_enabled"`
	IsDefault     bool               `db:"is_default"`
	CreatedAt     time.Time          `db:"created_at"`
	VerifiedAt    *time.Time         `db:"verified_at"`
	LastUsedAt    *time.Time         `db:"last_used_at"`
	UpdatedAt     time.Time          `db:"updated_at"`
	RecoveryCodes []*MFARecoveryCode `db:"-"`
}

// NewMFAMethod creates an unverified method record. WebAuthn methods are
// enabled at creation: registration itself proves possession. All other
// types start disabled and are enabled only through Verify.
func NewMFAMethod(userID uuid.UUID, mfaType MFAType, name string, now time.Time) *MFAMethod {
	m := &MFAMethod{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      mfaType,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if mfaType == MFATypeWebAuthn {
		m.IsEnabled = true
		verifiedAt := now
		m.VerifiedAt = &verifiedAt
	}
	return m
}

// Verify transitions an unverified method to enabled. It fails if the method
// is already enabled.
func (m *MFAMethod) Verify(now time.Time) error {
	if m.IsEnabled {
		return domainErrors.ErrMFAAlreadyEnabled
	}
	m.IsEnabled = true
	verifiedAt := now
	m.VerifiedAt = &verifiedAt
	m.UpdatedAt = now
	return nil
}

// Disable turns an enabled method off. A disabled method loses its default
// flag so the at-most-one-enabled-default invariant holds.
func (m *MFAMethod) Disable(now time.Time) error {
	if !m.IsEnabled {
		return domainErrors.ErrMFANotEnabled
	}
	m.IsEnabled = false
	m.IsDefault = false
	m.UpdatedAt = now
	return nil
}

// SetAsDefault marks the method as the user's default factor. Only enabled
// methods may be default; the orchestrator clears every other flag first.
func (m *MFAMethod) SetAsDefault(now time.Time) error {
	if !m.IsEnabled {
		return domainErrors.ErrMFANotEnabled
	}
	m.IsDefault = true
	m.UpdatedAt = now
	return nil
}

// RemoveDefault clears the default flag.
func (m *MFAMethod) RemoveDefault(now time.Time) {
	m.IsDefault = false
	m.UpdatedAt = now
}

// Rename sets the user-facing display name.
func (m *MFAMethod) Rename(name string, now time.Time) error {
	if strings.TrimSpace(name) == "" {
		return domainErrors.ErrInvalidRequest
	}
	m.Name = name
	m.UpdatedAt = now
	return nil
}

// RecordUsage stamps a successful verification with this method.
func (m *MFAMethod) RecordUsage(now time.Time) {
	usedAt := now
	m.LastUsedAt = &usedAt
	m.UpdatedAt = now
}

// StoreSetupVerificationCode stores the hashed, expiring setup code for an
// email method. Legal only before the method is enabled.
func (m *MFAMethod) StoreSetupVerificationCode(codeHash string, expiresAt time.Time, now time.Time) error {
	if m.Type != MFATypeEmail {
		return domainErrors.ErrInvalidRequest
	}
	if m.IsEnabled {
		return domainErrors.ErrMFAAlreadyEnabled
	}
	if m.Metadata.Email == nil {
		m.Metadata.Email = &EmailMetadata{}
	}
	m.Metadata.Email.SetupCode = &SetupVerificationCode{CodeHash: codeHash, ExpiresAt: expiresAt}
	m.UpdatedAt = now
	return nil
}

// GetSetupVerificationCode returns the stored setup code hash. An expired
// code reads back as absent.
func (m *MFAMethod) GetSetupVerificationCode(now time.Time) (string, bool) {
	if m.Metadata.Email == nil || m.Metadata.Email.SetupCode == nil {
		return "", false
	}
	sc := m.Metadata.Email.SetupCode
	if now.After(sc.ExpiresAt) {
		return "", false
	}
	return sc.CodeHash, true
}

// ClearSetupVerificationCode discards any stored setup code.
func (m *MFAMethod) ClearSetupVerificationCode(now time.Time) {
	if m.Metadata.Email != nil {
		m.Metadata.Email.SetupCode = nil
		m.UpdatedAt = now
	}
}

// UnusedRecoveryCodeCount returns how many recovery codes remain usable.
func (m *MFAMethod) UnusedRecoveryCodeCount() int {
	count := 0
	for _, rc := range m.RecoveryCodes {
		if !rc.IsUsed {
			count++
		}
	}
	return count
}

// UnusedRecoveryCodes returns the recovery codes that have not been consumed.
func (m *MFAMethod) UnusedRecoveryCodes() []*MFARecoveryCode {
	codes := make([]*MFARecoveryCode, 0, len(m.RecoveryCodes))
	for _, rc := range m.RecoveryCodes {
		if !rc.IsUsed {
			codes = append(codes, rc)
		}
	}
	return codes
}

// TryUseRecoveryCode consumes the recovery code with the given id. It returns
// false if the code does not exist or was already used; on success it also
// records usage of the method.
func (m *MFAMethod) TryUseRecoveryCode(codeID uuid.UUID, now time.Time) bool {
	for _, rc := range m.RecoveryCodes {
		if rc.ID == codeID {
			if !rc.MarkUsed(now) {
				return false
			}
			m.RecordUsage(now)
			return true
		}
	}
	return false
}

// SetRecoveryCodes replaces the unused recovery codes with a fresh batch.
// Previously used codes are always preserved for the audit trail; unused
// ones are invalidated immediately.
func (m *MFAMethod) SetRecoveryCodes(codes []*MFARecoveryCode, now time.Time) {
	kept := make([]*MFARecoveryCode, 0, len(m.RecoveryCodes)+len(codes))
	for _, rc := range m.RecoveryCodes {
		if rc.IsUsed {
			kept = append(kept, rc)
		}
	}
	m.RecoveryCodes = append(kept, codes...)
	m.UpdatedAt = now
}
