// Package models defines the core data structures for booth devices
// and photo sessions.
package models

import "time"

// Device is a shared-device login record. The plaintext password is
// never stored.
type Device struct {
	// ID is the record identifier.
	ID string `json:"id"`
	// DeviceID is the unique login name of the device.
	DeviceID string `json:"deviceId"`
	// PasswordHash is the bcrypt hash of the device password.
	PasswordHash []byte `json:"-"`
	// DeviceName is the display name shown after login.
	DeviceName string `json:"deviceName"`
	// IsActive gates login. Inactive devices keep their history.
	IsActive bool `json:"isActive"`
	// CreatedAt is when the record was created.
	CreatedAt time.Time `json:"createdAt"`
	// LastLoginAt is the last successful login, nil if never.
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}
