package entity

import (
	"time"

	"github.com/google/uuid"
)

// MFARecoveryCode represents a single one-time backup code, mapping to the
// "mfa_recovery_codes" table. Only the salted hash is ever persisted; the
// plaintext exists solely in the generation result returned to the user.
type MFARecoveryCode struct {
	ID         uuid.UUID  `db:"id"`
	MethodID   uuid.UUID  `db:"method_id"`
	HashedCode string     `db:"hashed_code"`
	IsUsed     bool       `db:"is_used"`
	UsedAt     *time.Time `db:"used_at"`
	CreatedAt  time.Time  `db:"created_at"`
}

// NewMFARecoveryCode creates an unused recovery code for a method.
func NewMFARecoveryCode(methodID uuid.UUID, hashedCode string, now time.Time) *MFARecoveryCode {
	return &MFARecoveryCode{
		ID:         uuid.New(),
		MethodID:   methodID,
		HashedCode: hashedCode,
		CreatedAt:  now,
	}
}

// MarkUsed consumes the code. It returns false if the code was already used,
// so a second consumption attempt with the same id can never succeed.
func (c *MFARecoveryCode) MarkUsed(now time.Time) bool {
	if c.IsUsed {
		return false
	}
	c.IsUsed = true
	usedAt := now
	c.UsedAt = &usedAt
	return true
}
