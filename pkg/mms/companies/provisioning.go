// Package companies provisions per-company roles and manages companies,
// their employees and job applications.
package companies

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mikepea/mms/pkg/mms/access"
	"github.com/mikepea/mms/pkg/mms/apperr"
	"github.com/mikepea/mms/pkg/mms/auth"
	"github.com/mikepea/mms/pkg/mms/logging"
	"github.com/mikepea/mms/pkg/mms/metrics"
	"github.com/mikepea/mms/pkg/mms/models"
	"github.com/mikepea/mms/pkg/mms/users"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service owns company state and the company roles derived from it
type Service struct {
	db            *gorm.DB
	users         *users.Store
	access        *access.Evaluator
	fallbackEmail string
	logger        *slog.Logger
}

// NewService creates a company service. fallbackEmail names the account
// that takes over a company whose leader leaves it.
func NewService(db *gorm.DB, userStore *users.Store, evaluator *access.Evaluator, fallbackEmail string, logger *slog.Logger) *Service {
	return &Service{
		db:            db,
		users:         userStore,
		access:        evaluator,
		fallbackEmail: fallbackEmail,
		logger:        logging.OrDefault(logger),
	}
}

func (s *Service) withTx(tx *gorm.DB) *Service {
	cp := *s
	cp.db = tx
	cp.users = s.users.WithTx(tx)
	cp.access = s.access.WithTx(tx)
	return &cp
}

// RoleName is the name of the role standing for membership of a company.
// The id prefix keeps companies with the same name and country apart.
func RoleName(companyID uint, name, country string) string {
	return fmt.Sprintf("%d_%s_%s", companyID, strings.ToUpper(name), strings.ToUpper(country))
}

// wrapStep keeps classified errors and wraps anything else as internal
func wrapStep(err error, format string, args ...any) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Internal(err, format, args...)
}

func (s *Service) findCompany(ctx context.Context, id uint) (*models.Company, error) {
	var company models.Company
	if err := s.db.WithContext(ctx).First(&company, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("company")
		}
		return nil, err
	}
	return &company, nil
}

// companyRoleID returns the role bound to the company
func (s *Service) companyRoleID(ctx context.Context, companyID uint) (uint, error) {
	var binding models.CompanyRole
	if err := s.db.WithContext(ctx).Where("company_id = ?", companyID).First(&binding).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperr.NotFound("company role")
		}
		return 0, err
	}
	return binding.RoleID, nil
}

// Create persists a company owned and deputy-led by ownerID, creates its
// role, grants it to the owner and binds it to the company. Nothing is
// stored unless every step succeeds.
func (s *Service) Create(ctx context.Context, ownerID uint, in CompanyInput) (*models.Company, error) {
	if err := in.Validate(); err != nil {
		return nil, apperr.InvalidArgument("%s", err.Error())
	}

	var company *models.Company
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txs := s.withTx(tx)
		owner, err := txs.users.FindByID(ctx, ownerID)
		if err != nil {
			return err
		}

		company = &models.Company{OwnerID: owner.ID, DeputyLeaderID: &owner.ID}
		applyInput(company, in)
		if err := tx.Create(company).Error; err != nil {
			return wrapStep(err, "create company")
		}

		role, err := txs.users.CreateRole(ctx, RoleName(company.ID, company.Name, company.Country))
		if err != nil {
			return wrapStep(err, "create company role")
		}
		if err := txs.users.Grant(ctx, owner.ID, role.ID); err != nil {
			return wrapStep(err, "grant company role")
		}
		if err := tx.Create(&models.CompanyRole{CompanyID: company.ID, RoleID: role.ID}).Error; err != nil {
			return wrapStep(err, "bind company role")
		}

		s.logger.Info("company created",
			slog.Uint64("company_id", uint64(company.ID)),
			slog.String("role", role.Name),
			slog.Uint64("user_id", uint64(owner.ID)))
		return nil
	})
	metrics.ObserveProvisioning("create_company", err)
	if err != nil {
		return nil, err
	}
	return company, nil
}

// AcceptApplication marks the application accepted, adds the applicant to
// the employees and grants the company role. The accepted flag is not
// checked on entry, so accepting twice repeats every step.
func (s *Service) AcceptApplication(ctx context.Context, applicationID uint) (*models.JobApplication, error) {
	var application models.JobApplication
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txs := s.withTx(tx)
		if err := tx.First(&application, applicationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("job application")
			}
			return err
		}

		roleID, err := txs.companyRoleID(ctx, application.CompanyID)
		if err != nil {
			return err
		}

		application.Accepted = true
		if err := tx.Model(&application).Update("accepted", true).Error; err != nil {
			return wrapStep(err, "accept application")
		}
		employee := models.CompanyEmployee{CompanyID: application.CompanyID, UserID: application.UserID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&employee).Error; err != nil {
			return wrapStep(err, "add employee")
		}
		if err := txs.users.Grant(ctx, application.UserID, roleID); err != nil {
			return wrapStep(err, "grant company role")
		}

		s.logger.Info("application accepted",
			slog.Uint64("company_id", uint64(application.CompanyID)),
			slog.Uint64("user_id", uint64(application.UserID)))
		return nil
	})
	metrics.ObserveProvisioning("accept_application", err)
	if err != nil {
		return nil, err
	}
	return &application, nil
}

// detach revokes the company role from the user, removes the employee row
// and deletes the user's applications to the company.
func (s *Service) detach(ctx context.Context, tx *gorm.DB, companyID, userID uint) error {
	roleID, err := s.companyRoleID(ctx, companyID)
	if err != nil {
		return err
	}
	if err := s.users.Revoke(ctx, userID, roleID); err != nil {
		return wrapStep(err, "revoke company role")
	}
	if err := tx.Where("company_id = ? AND user_id = ?", companyID, userID).Delete(&models.CompanyEmployee{}).Error; err != nil {
		return wrapStep(err, "remove employee")
	}
	if err := tx.Where("company_id = ? AND user_id = ?", companyID, userID).Delete(&models.JobApplication{}).Error; err != nil {
		return wrapStep(err, "delete applications")
	}
	return nil
}

// RemoveEmployee dismisses an employee. Removing a user who is not
// employed by the company does nothing.
func (s *Service) RemoveEmployee(ctx context.Context, companyID, userID uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txs := s.withTx(tx)
		if _, err := txs.findCompany(ctx, companyID); err != nil {
			return err
		}
		if _, err := txs.users.FindByID(ctx, userID); err != nil {
			return err
		}

		employed, err := txs.isEmployee(ctx, companyID, userID)
		if err != nil {
			return err
		}
		if !employed {
			s.logger.Warn("user is not an employee",
				slog.Uint64("company_id", uint64(companyID)),
				slog.Uint64("user_id", uint64(userID)))
			return nil
		}

		if err := txs.detach(ctx, tx, companyID, userID); err != nil {
			return err
		}
		s.logger.Info("employee removed",
			slog.Uint64("company_id", uint64(companyID)),
			slog.Uint64("user_id", uint64(userID)))
		return nil
	})
	metrics.ObserveProvisioning("remove_employee", err)
	return err
}

// Leave detaches the session's user from the company. A leaving owner or
// deputy leader hands both positions to the fallback account, which also
// receives the company role. The session is terminated afterwards.
func (s *Service) Leave(ctx context.Context, session auth.Session, companyID uint) error {
	if session == nil || session.IsAnonymous() {
		return apperr.Unauthorized("authentication required")
	}
	userID := session.UserID()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txs := s.withTx(tx)
		if _, err := txs.users.FindByID(ctx, userID); err != nil {
			return err
		}
		company, err := txs.findCompany(ctx, companyID)
		if err != nil {
			return err
		}

		if err := txs.detach(ctx, tx, companyID, userID); err != nil {
			return err
		}

		if access.IsLeaderOrDeputy(userID, company) {
			fallback, err := txs.users.FindByEmail(ctx, s.fallbackEmail)
			if err != nil {
				return wrapStep(err, "find fallback account")
			}
			err = tx.Model(company).Updates(map[string]any{
				"owner_id":         fallback.ID,
				"deputy_leader_id": fallback.ID,
			}).Error
			if err != nil {
				return wrapStep(err, "reassign leadership")
			}
			roleID, err := txs.companyRoleID(ctx, companyID)
			if err != nil {
				return err
			}
			if err := txs.users.Grant(ctx, fallback.ID, roleID); err != nil {
				return wrapStep(err, "grant company role")
			}
			s.logger.Info("leadership fell back",
				slog.Uint64("company_id", uint64(companyID)),
				slog.Uint64("user_id", uint64(userID)),
				slog.Uint64("fallback_id", uint64(fallback.ID)))
		}
		return nil
	})
	metrics.ObserveProvisioning("leave_company", err)
	if err != nil {
		return err
	}

	if err := session.Terminate(ctx); err != nil {
		return apperr.Internal(err, "terminate session")
	}
	s.logger.Info("user left company",
		slog.Uint64("company_id", uint64(companyID)),
		slog.Uint64("user_id", uint64(userID)))
	return nil
}

// Delete removes the company with its applications, employees, machines
// and role. Holders of the role lose it.
func (s *Service) Delete(ctx context.Context, companyID uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txs := s.withTx(tx)
		company, err := txs.findCompany(ctx, companyID)
		if err != nil {
			return err
		}

		var roleIDs []uint
		if err := tx.Model(&models.CompanyRole{}).Where("company_id = ?", companyID).Pluck("role_id", &roleIDs).Error; err != nil {
			return wrapStep(err, "load company roles")
		}

		if err := tx.Where("company_id = ?", companyID).Delete(&models.JobApplication{}).Error; err != nil {
			return wrapStep(err, "delete applications")
		}
		for _, roleID := range roleIDs {
			if err := txs.users.RevokeFromAll(ctx, roleID); err != nil {
				return wrapStep(err, "revoke company role")
			}
		}
		if err := tx.Where("company_id = ?", companyID).Delete(&models.CompanyRole{}).Error; err != nil {
			return wrapStep(err, "delete company role binding")
		}
		for _, roleID := range roleIDs {
			if err := txs.users.DeleteRole(ctx, roleID); err != nil {
				return wrapStep(err, "delete company role")
			}
		}
		if err := tx.Where("company_id = ?", companyID).Delete(&models.CompanyEmployee{}).Error; err != nil {
			return wrapStep(err, "delete employees")
		}

		machines := tx.Model(&models.Machine{}).Select("id").Where("company_id = ?", companyID)
		if err := tx.Where("machine_id IN (?)", machines).Delete(&models.MachinePart{}).Error; err != nil {
			return wrapStep(err, "delete machine parts")
		}
		if err := tx.Where("company_id = ?", companyID).Delete(&models.Machine{}).Error; err != nil {
			return wrapStep(err, "delete machines")
		}
		if err := tx.Delete(company).Error; err != nil {
			return wrapStep(err, "delete company")
		}

		s.logger.Info("company deleted", slog.Uint64("company_id", uint64(companyID)))
		return nil
	})
	metrics.ObserveProvisioning("delete_company", err)
	return err
}
