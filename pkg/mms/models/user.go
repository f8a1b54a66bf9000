package models

import (
	"time"
)

// Global role names. Company-scoped roles are minted per company and never
// share these names.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// User represents an account in the system.
// Email is the natural key for lookups; ID is the surrogate key used by all joins.
type User struct {
	ID               uint      `gorm:"primarykey" json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	FirstName        string    `gorm:"not null" json:"first_name"`
	LastName         string    `gorm:"not null" json:"last_name"`
	Email            string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash     string    `gorm:"not null" json:"-"`
	Enabled          bool      `json:"enabled"`            // email verified
	AccountNonLocked bool      `json:"account_non_locked"` // false once an admin locks the account
}

// FullName returns the display name of the user
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Role is a named authority. Global roles (ADMIN, USER) and company roles
// are stored identically.
type Role struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
}

// UserRole grants a role to a user. The composite key makes grants set-valued.
type UserRole struct {
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	RoleID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}
