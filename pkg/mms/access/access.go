// Package access decides who may see a company and its machines.
//
// A user reaches a company only through a role bound to it by a
// CompanyRole row. Global roles such as ADMIN are not consulted by
// CompanyAccess; admin bypass happens at the routing layer.
package access

import (
	"context"
	"errors"
	"slices"

	"github.com/mikepea/mms/pkg/mms/apperr"
	"github.com/mikepea/mms/pkg/mms/models"
	"github.com/mikepea/mms/pkg/mms/users"
	"gorm.io/gorm"
)

// Evaluator answers access questions against the role graph
type Evaluator struct {
	db    *gorm.DB
	users *users.Store
}

// NewEvaluator creates a new evaluator
func NewEvaluator(db *gorm.DB, userStore *users.Store) *Evaluator {
	return &Evaluator{db: db, users: userStore}
}

// WithTx returns the evaluator bound to tx
func (e *Evaluator) WithTx(tx *gorm.DB) *Evaluator {
	return &Evaluator{db: tx, users: e.users.WithTx(tx)}
}

// ReachableCompanyIDs walks user roles to company roles to companies.
func (e *Evaluator) ReachableCompanyIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := e.db.WithContext(ctx).
		Model(&models.CompanyRole{}).
		Joins("JOIN user_roles ON user_roles.role_id = company_roles.role_id").
		Where("user_roles.user_id = ?", userID).
		Distinct().
		Order("company_roles.company_id").
		Pluck("company_roles.company_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// CompanyAccess returns an AccessDenied error unless one of the user's
// roles is bound to the company.
func (e *Evaluator) CompanyAccess(ctx context.Context, userID, companyID uint) error {
	ids, err := e.ReachableCompanyIDs(ctx, userID)
	if err != nil {
		return err
	}
	if !slices.Contains(ids, companyID) {
		return apperr.AccessDenied("no access to company %d", companyID)
	}
	return nil
}

// MachineAccess applies CompanyAccess to the machine's company. Inactive
// machines additionally require the ADMIN role.
func (e *Evaluator) MachineAccess(ctx context.Context, userID uint, machine *models.Machine) error {
	if err := e.CompanyAccess(ctx, userID, machine.CompanyID); err != nil {
		return apperr.AccessDenied("no access to machine %d", machine.ID)
	}
	if machine.Active {
		return nil
	}
	isAdmin, err := e.users.HasRole(ctx, userID, models.RoleAdmin)
	if err != nil {
		return err
	}
	if !isAdmin {
		return apperr.AccessDenied("machine %d is inactive", machine.ID)
	}
	return nil
}

// IsLeaderOrDeputy reports whether the user owns the company or is its
// deputy leader.
func IsLeaderOrDeputy(userID uint, company *models.Company) bool {
	if company.OwnerID == userID {
		return true
	}
	return company.DeputyLeaderID != nil && *company.DeputyLeaderID == userID
}

// EmployeeSetExcluding returns the company's employees without userID and,
// when andOwner is set, without the owner.
func (e *Evaluator) EmployeeSetExcluding(ctx context.Context, companyID, userID uint, andOwner bool) ([]models.User, error) {
	var company models.Company
	if err := e.db.WithContext(ctx).First(&company, companyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("company")
		}
		return nil, err
	}

	excluded := []uint{userID}
	if andOwner {
		excluded = append(excluded, company.OwnerID)
	}

	var employees []models.User
	err := e.db.WithContext(ctx).
		Joins("JOIN company_employees ON company_employees.user_id = users.id").
		Where("company_employees.company_id = ?", companyID).
		Where("users.id NOT IN ?", excluded).
		Order("users.id").
		Find(&employees).Error
	if err != nil {
		return nil, err
	}
	return employees, nil
}
