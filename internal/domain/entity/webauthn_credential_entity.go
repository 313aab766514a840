package entity

import (
	"time"

	"github.com/google/uuid"
)

// WebAuthnCredential represents a registered public-key authenticator bound
// to an MFA method, mapping to the "webauthn_credentials" table.
type WebAuthnCredential struct {
	ID              uuid.UUID  `db:"id"`
	MethodID        uuid.UUID  `db:"method_id"`
	UserID          uuid.UUID  `db:"user_id"`
	CredentialID    []byte     `db:"credential_id"`
	PublicKey       []byte     `db:"public_key"`
	AttestationType string     `db:"attestation_type"`
	AAGUID          []byte     `db:"aaguid"`
	SignCount       uint32     `db:"sign_count"`
	Transports      []string   `db:"transports"`
	IsActive        bool       `db:"is_active"`
	CreatedAt       time.Time  `db:"created_at"`
	LastUsedAt      *time.Time `db:"last_used_at"`
}

// NewWebAuthnCredential creates an active credential with the counter
// reported during registration.
func NewWebAuthnCredential(methodID, userID uuid.UUID, credentialID, publicKey []byte, signCount uint32, transports []string, now time.Time) *WebAuthnCredential {
	return &WebAuthnCredential{
		ID:           uuid.New(),
		MethodID:     methodID,
		UserID:       userID,
		CredentialID: credentialID,
		PublicKey:    publicKey,
		SignCount:    signCount,
		Transports:   transports,
		IsActive:     true,
		CreatedAt:    now,
	}
}

// UpdateSignCount records the counter reported by an authentication
// response. A reported counter lower than the stored one indicates a cloned
// authenticator: the update is rejected without mutating any state and the
// caller must treat it as a security event, not a verification failure.
func (c *WebAuthnCredential) UpdateSignCount(newCount uint32, now time.Time) bool {
	if newCount < c.SignCount {
		return false
	}
	c.SignCount = newCount
	usedAt := now
	c.LastUsedAt = &usedAt
	return true
}

// Deactivate revokes the credential, e.g. after a counter regression.
func (c *WebAuthnCredential) Deactivate() {
	c.IsActive = false
}
