package models

import (
	"time"
)

// BaseToken is the record shared by every single-use action token.
// ExpiresAt is fixed at issue time; Valid flips to false when the token is consumed.
type BaseToken struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Token     string    `gorm:"uniqueIndex;not null" json:"-"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	Valid     bool      `json:"valid"`
}

// Base gives generic stores access to the shared fields.
func (t *BaseToken) Base() *BaseToken { return t }

// EmailVerificationToken confirms ownership of a registered email address.
type EmailVerificationToken struct {
	BaseToken
}

// ChangePasswordToken authorizes a password change by an authenticated user.
type ChangePasswordToken struct {
	BaseToken
}

// ForgotPasswordToken authorizes an anonymous password reset.
type ForgotPasswordToken struct {
	BaseToken
}

// RevokedSession marks a login session as terminated before its JWT expires.
type RevokedSession struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
}
