package users

import (
	"context"
	"errors"
	"strings"

	"github.com/mikepea/mms/pkg/mms/apperr"
	"github.com/mikepea/mms/pkg/mms/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists users and their global and company role grants.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new user store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a store bound to tx
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// DB exposes the underlying handle for callers composing transactions.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(what)
	}
	return err
}

// FindByEmail looks a user up by its natural key
func (s *Store) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

// ExistsByEmail reports whether an account uses the email
func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", normalizeEmail(email)).Count(&count).Error
	return count > 0, err
}

// FindByID loads a user by id
func (s *Store) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

// FindAllByID loads the users with the given ids; missing ids are skipped.
func (s *Store) FindAllByID(ctx context.Context, ids []uint) ([]models.User, error) {
	var users []models.User
	if len(ids) == 0 {
		return users, nil
	}
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&users).Error
	return users, err
}

// Save creates or updates a user. Emails are stored normalized.
func (s *Store) Save(ctx context.Context, user *models.User) error {
	user.Email = normalizeEmail(user.Email)
	return s.db.WithContext(ctx).Save(user).Error
}

// UpdatePassword replaces the stored hash
func (s *Store) UpdatePassword(ctx context.Context, userID uint, hash string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

// Enable marks the user's email as verified
func (s *Store) Enable(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("enabled", true).Error
}

// FindByRole returns every user holding the named role
func (s *Store) FindByRole(ctx context.Context, roleName string) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Joins("JOIN user_roles ON user_roles.user_id = users.id").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("roles.name = ?", roleName).
		Order("users.id").
		Find(&users).Error
	return users, err
}

// FindWorkplacesByEmail returns the companies the user is employed by
func (s *Store) FindWorkplacesByEmail(ctx context.Context, email string) ([]models.Company, error) {
	var companies []models.Company
	err := s.db.WithContext(ctx).
		Joins("JOIN company_employees ON company_employees.company_id = companies.id").
		Joins("JOIN users ON users.id = company_employees.user_id").
		Where("users.email = ?", normalizeEmail(email)).
		Order("companies.id").
		Find(&companies).Error
	return companies, err
}

// Delete removes the user row and its role grants
func (s *Store) Delete(ctx context.Context, userID uint) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("user_id = ?", userID).Delete(&models.UserRole{}).Error; err != nil {
		return err
	}
	res := db.Delete(&models.User{}, userID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

// ListFilter narrows List results
type ListFilter struct {
	Query string
	Role  string
}

// List returns users, newest first
func (s *Store) List(ctx context.Context, f ListFilter) ([]models.User, error) {
	query := s.db.WithContext(ctx).Model(&models.User{}).Order("users.created_at DESC")
	if f.Query != "" {
		like := "%" + f.Query + "%"
		query = query.Where("users.email LIKE ? OR users.first_name LIKE ? OR users.last_name LIKE ?", like, like, like)
	}
	if f.Role != "" {
		query = query.
			Joins("JOIN user_roles ON user_roles.user_id = users.id").
			Joins("JOIN roles ON roles.id = user_roles.role_id").
			Where("roles.name = ?", f.Role)
	}
	var users []models.User
	err := query.Find(&users).Error
	return users, err
}

// onConflictIgnore keeps set-valued inserts idempotent.
var onConflictIgnore = clause.OnConflict{DoNothing: true}
