package tokens

import (
	"time"

	"github.com/mikepea/mms/pkg/mms/auth"
	"github.com/mikepea/mms/pkg/mms/models"
)

// Kind identifies a token kind
type Kind string

const (
	KindEmailVerification Kind = "email_verification"
	KindChangePassword    Kind = "change_password"
	KindForgotPassword    Kind = "forgot_password"
)

// Expiration windows, measured from issuance
const (
	EmailVerificationWindow = 2 * time.Minute
	ChangePasswordWindow    = 3 * time.Minute
	ForgotPasswordWindow    = 3 * time.Minute
)

// PasswordChange is a request to complete a password action with a token.
// OldPassword is only consulted by the change-password kind.
type PasswordChange struct {
	Token           string
	OldPassword     string
	NewPassword     string
	ConfirmPassword string
}

// Policy is the per-kind capability set the shared lifecycle is
// instantiated with.
type Policy struct {
	Kind   Kind
	Window time.Duration
	// ValidatePassword is checked before the token is consumed.
	ValidatePassword func(user *models.User, change PasswordChange) bool
	// TerminateSession ends the caller's session after a completed action.
	TerminateSession bool
}

// EmailVerificationPolicy tokens confirm an email address and never
// authorize a password change.
func EmailVerificationPolicy() Policy {
	return Policy{
		Kind:   KindEmailVerification,
		Window: EmailVerificationWindow,
		ValidatePassword: func(*models.User, PasswordChange) bool {
			return false
		},
	}
}

// ChangePasswordPolicy requires the current password and logs the caller out.
func ChangePasswordPolicy() Policy {
	return Policy{
		Kind:   KindChangePassword,
		Window: ChangePasswordWindow,
		ValidatePassword: func(user *models.User, change PasswordChange) bool {
			return newPasswordAcceptable(change) &&
				auth.CheckPassword(change.OldPassword, user.PasswordHash)
		},
		TerminateSession: true,
	}
}

// ForgotPasswordPolicy only requires the confirmation to match.
func ForgotPasswordPolicy() Policy {
	return Policy{
		Kind:   KindForgotPassword,
		Window: ForgotPasswordWindow,
		ValidatePassword: func(_ *models.User, change PasswordChange) bool {
			return newPasswordAcceptable(change)
		},
	}
}

func newPasswordAcceptable(change PasswordChange) bool {
	return change.NewPassword == change.ConfirmPassword &&
		auth.ValidatePasswordLength(change.NewPassword) == nil
}
