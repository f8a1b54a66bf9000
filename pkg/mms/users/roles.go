package users

import (
	"context"
	"errors"

	"github.com/mikepea/mms/pkg/mms/apperr"
	"github.com/mikepea/mms/pkg/mms/models"
	"gorm.io/gorm"
)

// FindRoleByName loads a role by its unique name
func (s *Store) FindRoleByName(ctx context.Context, name string) (*models.Role, error) {
	var role models.Role
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&role).Error; err != nil {
		return nil, notFound(err, "role")
	}
	return &role, nil
}

// CreateRole inserts a new role. Names are globally unique.
func (s *Store) CreateRole(ctx context.Context, name string) (*models.Role, error) {
	role := models.Role{Name: name}
	if err := s.db.WithContext(ctx).Create(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

// EnsureRole returns the named role, creating it when missing
func (s *Store) EnsureRole(ctx context.Context, name string) (*models.Role, error) {
	role, err := s.FindRoleByName(ctx, name)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	return s.CreateRole(ctx, name)
}

// DeleteRole removes a role and every grant of it
func (s *Store) DeleteRole(ctx context.Context, roleID uint) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("role_id = ?", roleID).Delete(&models.UserRole{}).Error; err != nil {
		return err
	}
	return db.Delete(&models.Role{}, roleID).Error
}

// Grant gives a role to a user. Granting a held role is a no-op.
func (s *Store) Grant(ctx context.Context, userID, roleID uint) error {
	grant := models.UserRole{UserID: userID, RoleID: roleID}
	return s.db.WithContext(ctx).Clauses(onConflictIgnore).Create(&grant).Error
}

// Revoke removes a role from a user
func (s *Store) Revoke(ctx context.Context, userID, roleID uint) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Delete(&models.UserRole{}).Error
}

// RevokeFromAll strips a role from every holder
func (s *Store) RevokeFromAll(ctx context.Context, roleID uint) error {
	return s.db.WithContext(ctx).Where("role_id = ?", roleID).Delete(&models.UserRole{}).Error
}

// RolesOf lists the roles held by a user
func (s *Store) RolesOf(ctx context.Context, userID uint) ([]models.Role, error) {
	var roles []models.Role
	err := s.db.WithContext(ctx).
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Order("roles.id").
		Find(&roles).Error
	return roles, err
}

// RoleNamesOf lists the names of the roles held by a user
func (s *Store) RoleNamesOf(ctx context.Context, userID uint) ([]string, error) {
	roles, err := s.RolesOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.Name
	}
	return names, nil
}

// HasRole reports whether the user holds the named role
func (s *Store) HasRole(ctx context.Context, userID uint, roleName string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.UserRole{}).
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id = ? AND roles.name = ?", userID, roleName).
		Count(&count).Error
	return count > 0, err
}

// SetGlobalRoles replaces the user's global roles with the named ones.
// Company role grants are left untouched. Unknown names are rejected.
func (s *Store) SetGlobalRoles(ctx context.Context, userID uint, names []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := s.WithTx(tx)
		if _, err := store.FindByID(ctx, userID); err != nil {
			return err
		}

		var wanted []models.Role
		if len(names) > 0 {
			if err := tx.Where("name IN ?", names).Find(&wanted).Error; err != nil {
				return err
			}
		}
		if len(wanted) != len(uniq(names)) {
			return apperr.InvalidArgument("unknown role in %v", names)
		}
		for _, r := range wanted {
			if !IsGlobalRole(r.Name) {
				return apperr.InvalidArgument("role %s is not a global role", r.Name)
			}
		}

		var global []models.Role
		if err := tx.Where("name IN ?", []string{models.RoleAdmin, models.RoleUser}).Find(&global).Error; err != nil {
			return err
		}
		for _, r := range global {
			if err := store.Revoke(ctx, userID, r.ID); err != nil {
				return err
			}
		}
		for _, r := range wanted {
			if err := store.Grant(ctx, userID, r.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// IsGlobalRole reports whether name is one of the built-in roles
func IsGlobalRole(name string) bool {
	return name == models.RoleAdmin || name == models.RoleUser
}

func uniq(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := names[:0:0]
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
