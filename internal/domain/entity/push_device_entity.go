package entity

import (
	"time"

	"github.com/google/uuid"
)

// PushPlatform identifies the mobile platform a device token belongs to.
type PushPlatform string

const (
	PushPlatformIOS     PushPlatform = "ios"
	PushPlatformAndroid PushPlatform = "android"
)

// MFAPushDevice represents a mobile device registered to receive approval
// requests, mapping to the "mfa_push_devices" table.
type MFAPushDevice struct {
	ID          uuid.UUID    `db:"id"`
	MethodID    uuid.UUID    `db:"method_id"`
	UserID      uuid.UUID    `db:"user_id"`
	Name        string       `db:"name"`
	Platform    PushPlatform `db:"platform"`
	DeviceToken string       `db:"device_token"`
	PublicKey   string       `db:"public_key"` // verifies device-side response signatures
	IsActive    bool         `db:"is_active"`
	CreatedAt   time.Time    `db:"created_at"`
	LastUsedAt  *time.Time   `db:"last_used_at"`
}

// NewMFAPushDevice registers an active device under a push method.
func NewMFAPushDevice(methodID, userID uuid.UUID, name string, platform PushPlatform, deviceToken, publicKey string, now time.Time) *MFAPushDevice {
	return &MFAPushDevice{
		ID:          uuid.New(),
		MethodID:    methodID,
		UserID:      userID,
		Name:        name,
		Platform:    platform,
		DeviceToken: deviceToken,
		PublicKey:   publicKey,
		IsActive:    true,
		CreatedAt:   now,
	}
}

// RecordUsage stamps a successful approval through this device.
func (d *MFAPushDevice) RecordUsage(now time.Time) {
	usedAt := now
	d.LastUsedAt = &usedAt
}

// Deactivate stops the device from receiving further challenges.
func (d *MFAPushDevice) Deactivate() {
	d.IsActive = false
}
