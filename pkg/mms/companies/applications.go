package companies

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mikepea/mms/pkg/mms/apperr"
	"github.com/mikepea/mms/pkg/mms/models"
	"gorm.io/gorm"
)

// Apply records a pending application of the user to the company
func (s *Service) Apply(ctx context.Context, userID, companyID uint) (*models.JobApplication, error) {
	if _, err := s.findCompany(ctx, companyID); err != nil {
		return nil, err
	}

	var existing models.JobApplication
	err := s.db.WithContext(ctx).Where("user_id = ? AND company_id = ?", userID, companyID).First(&existing).Error
	if err == nil {
		return nil, apperr.AlreadyApplied("already applied to company %d", companyID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	application := models.JobApplication{UserID: userID, CompanyID: companyID}
	if err := s.db.WithContext(ctx).Create(&application).Error; err != nil {
		return nil, err
	}
	s.logger.Info("applied to company",
		slog.Uint64("company_id", uint64(companyID)),
		slog.Uint64("user_id", uint64(userID)))
	return &application, nil
}

// Withdraw deletes the user's own application
func (s *Service) Withdraw(ctx context.Context, userID, applicationID uint) error {
	application, err := s.FindApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	if application.UserID != userID {
		return apperr.AccessDenied("application %d belongs to another user", applicationID)
	}
	if err := s.db.WithContext(ctx).Delete(application).Error; err != nil {
		return err
	}
	s.logger.Info("application withdrawn",
		slog.Uint64("company_id", uint64(application.CompanyID)),
		slog.Uint64("user_id", uint64(userID)))
	return nil
}

// RejectApplication deletes an application
func (s *Service) RejectApplication(ctx context.Context, applicationID uint) error {
	application, err := s.FindApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(application).Error; err != nil {
		return err
	}
	s.logger.Info("application rejected",
		slog.Uint64("company_id", uint64(application.CompanyID)),
		slog.Uint64("user_id", uint64(application.UserID)))
	return nil
}

// ApplicationsOf lists the user's applications
func (s *Service) ApplicationsOf(ctx context.Context, userID uint) ([]models.JobApplication, error) {
	var applications []models.JobApplication
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&applications).Error
	return applications, err
}

// CompaniesICanJoin lists companies the user neither owns nor has an
// application with.
func (s *Service) CompaniesICanJoin(ctx context.Context, userID uint) ([]models.Company, error) {
	applied := s.db.Model(&models.JobApplication{}).Select("company_id").Where("user_id = ?", userID)

	var companies []models.Company
	err := s.db.WithContext(ctx).
		Where("owner_id <> ?", userID).
		Where("id NOT IN (?)", applied).
		Order("id").
		Find(&companies).Error
	return companies, err
}
