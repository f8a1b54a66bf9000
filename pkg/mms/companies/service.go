package companies

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mikepea/mms/pkg/mms/access"
	"github.com/mikepea/mms/pkg/mms/apperr"
	"github.com/mikepea/mms/pkg/mms/models"
	"gorm.io/gorm"
)

func applyInput(company *models.Company, in CompanyInput) {
	company.Name = in.Name
	company.Description = in.Description
	company.Country = in.Country
	company.Location = in.Location
	company.Street = in.Street
	company.PostCode = in.PostCode
	company.IdentificationNumber = in.IdentificationNumber
	company.TaxNumber = in.TaxNumber
	company.VATNumber = in.VATNumber
}

// Get loads a company
func (s *Service) Get(ctx context.Context, companyID uint) (*models.Company, error) {
	return s.findCompany(ctx, companyID)
}

// Update replaces the editable details. The role name keeps the name and
// country the company was created with.
func (s *Service) Update(ctx context.Context, companyID uint, in CompanyInput) (*models.Company, error) {
	if err := in.Validate(); err != nil {
		return nil, apperr.InvalidArgument("%s", err.Error())
	}
	company, err := s.findCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	applyInput(company, in)
	if err := s.db.WithContext(ctx).Save(company).Error; err != nil {
		return nil, err
	}
	s.logger.Info("company updated", slog.Uint64("company_id", uint64(companyID)))
	return company, nil
}

// UpdateDeputy sets the deputy leader. A nil deputyID clears it.
func (s *Service) UpdateDeputy(ctx context.Context, companyID uint, deputyID *uint) (*models.Company, error) {
	company, err := s.findCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if deputyID != nil {
		if _, err := s.users.FindByID(ctx, *deputyID); err != nil {
			return nil, err
		}
	}
	if err := s.db.WithContext(ctx).Model(company).Update("deputy_leader_id", deputyID).Error; err != nil {
		return nil, err
	}
	company.DeputyLeaderID = deputyID

	attrs := []any{slog.Uint64("company_id", uint64(companyID))}
	if deputyID != nil {
		attrs = append(attrs, slog.Uint64("deputy_id", uint64(*deputyID)))
	}
	s.logger.Info("deputy leader changed", attrs...)
	return company, nil
}

// ListForUser returns every company to admins and the reachable companies
// to everyone else.
func (s *Service) ListForUser(ctx context.Context, userID uint) ([]models.Company, error) {
	var companies []models.Company
	isAdmin, err := s.users.HasRole(ctx, userID, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if isAdmin {
		err := s.db.WithContext(ctx).Order("id").Find(&companies).Error
		return companies, err
	}

	ids, err := s.access.ReachableCompanyIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return companies, nil
	}
	err = s.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&companies).Error
	return companies, err
}

// Employees lists the company's employees
func (s *Service) Employees(ctx context.Context, companyID uint) ([]models.User, error) {
	if _, err := s.findCompany(ctx, companyID); err != nil {
		return nil, err
	}
	var employees []models.User
	err := s.db.WithContext(ctx).
		Joins("JOIN company_employees ON company_employees.user_id = users.id").
		Where("company_employees.company_id = ?", companyID).
		Order("users.id").
		Find(&employees).Error
	return employees, err
}

// PendingApplications lists applications not yet accepted
func (s *Service) PendingApplications(ctx context.Context, companyID uint) ([]models.JobApplication, error) {
	if _, err := s.findCompany(ctx, companyID); err != nil {
		return nil, err
	}
	var applications []models.JobApplication
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND accepted = ?", companyID, false).
		Order("id").
		Find(&applications).Error
	return applications, err
}

// RequireLeaderOrDeputy loads the company and checks the user leads it
func (s *Service) RequireLeaderOrDeputy(ctx context.Context, userID, companyID uint) (*models.Company, error) {
	company, err := s.findCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if !access.IsLeaderOrDeputy(userID, company) {
		return nil, apperr.AccessDenied("only the leader or deputy leader may manage company %d", companyID)
	}
	return company, nil
}

func (s *Service) isEmployee(ctx context.Context, companyID, userID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.CompanyEmployee{}).
		Where("company_id = ? AND user_id = ?", companyID, userID).
		Count(&count).Error
	return count > 0, err
}

// IsEmployeeOrOwner reports whether the user works for or owns the company
func (s *Service) IsEmployeeOrOwner(ctx context.Context, userID, companyID uint) (bool, error) {
	company, err := s.findCompany(ctx, companyID)
	if err != nil {
		return false, err
	}
	if company.OwnerID == userID {
		return true, nil
	}
	return s.isEmployee(ctx, companyID, userID)
}

// FindApplication loads a job application
func (s *Service) FindApplication(ctx context.Context, applicationID uint) (*models.JobApplication, error) {
	var application models.JobApplication
	if err := s.db.WithContext(ctx).First(&application, applicationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("job application")
		}
		return nil, err
	}
	return &application, nil
}
