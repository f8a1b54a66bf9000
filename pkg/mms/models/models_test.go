package models

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate failed: %v", err)
	}
	return db
}

func TestAutoMigrate(t *testing.T) {
	db := setupTestDB(t)

	tables := []string{
		"users", "roles", "user_roles", "companies", "company_roles", "company_employees",
		"job_applications", "machines", "machine_parts",
		"email_verification_tokens", "change_password_tokens", "forgot_password_tokens",
		"revoked_sessions",
	}
	for _, table := range tables {
		if !db.Migrator().HasTable(table) {
			t.Errorf("Expected table %s to exist", table)
		}
	}
}

func TestUserEmailUnique(t *testing.T) {
	db := setupTestDB(t)

	user := User{Email: "test@example.com", PasswordHash: "hash", FirstName: "Test"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	if user.ID == 0 {
		t.Error("Expected user ID to be set after create")
	}

	dup := User{Email: "test@example.com", PasswordHash: "other", FirstName: "Other"}
	if err := db.Create(&dup).Error; err == nil {
		t.Error("Expected error when creating user with duplicate email")
	}
}

func TestUserRoleIsSetValued(t *testing.T) {
	db := setupTestDB(t)

	user := User{Email: "test@example.com", PasswordHash: "hash", FirstName: "Test"}
	db.Create(&user)
	role := Role{Name: RoleUser}
	db.Create(&role)

	if err := db.Create(&UserRole{UserID: user.ID, RoleID: role.ID}).Error; err != nil {
		t.Fatalf("Failed to grant role: %v", err)
	}
	if err := db.Create(&UserRole{UserID: user.ID, RoleID: role.ID}).Error; err == nil {
		t.Error("Expected error when granting the same role twice")
	}
}

func TestTokenKindsHaveSeparateTables(t *testing.T) {
	db := setupTestDB(t)
	expires := time.Now().Add(time.Minute)

	verification := EmailVerificationToken{BaseToken{Token: "same", UserID: 1, ExpiresAt: expires, Valid: true}}
	if err := db.Create(&verification).Error; err != nil {
		t.Fatalf("Failed to create verification token: %v", err)
	}
	forgot := ForgotPasswordToken{BaseToken{Token: "same", UserID: 1, ExpiresAt: expires, Valid: true}}
	if err := db.Create(&forgot).Error; err != nil {
		t.Fatalf("Failed to create forgot-password token: %v", err)
	}

	if forgot.Base().Token != "same" || !forgot.Base().Valid {
		t.Errorf("Expected base fields to be reachable through Base(), got %+v", forgot.Base())
	}
}

func TestFullName(t *testing.T) {
	u := User{FirstName: "Ada", LastName: "Lovelace"}
	if u.FullName() != "Ada Lovelace" {
		t.Errorf("Expected 'Ada Lovelace', got %q", u.FullName())
	}
	u.LastName = ""
	if u.FullName() != "Ada" {
		t.Errorf("Expected 'Ada', got %q", u.FullName())
	}
}
