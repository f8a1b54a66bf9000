// Package accounts handles registration, account administration and the
// administrative bootstrap account.
package accounts

import (
	"context"
	"errors"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/mikepea/mms/pkg/mms/apperr"
	"github.com/mikepea/mms/pkg/mms/auth"
	"github.com/mikepea/mms/pkg/mms/logging"
	"github.com/mikepea/mms/pkg/mms/models"
	"github.com/mikepea/mms/pkg/mms/tokens"
	"github.com/mikepea/mms/pkg/mms/users"
	"gorm.io/gorm"
)

// RegistrationOutcome is the result of a registration attempt
type RegistrationOutcome string

const (
	RegistrationSuccess            RegistrationOutcome = "success"
	RegistrationExists             RegistrationOutcome = "exist"
	RegistrationInvalidEmailFormat RegistrationOutcome = "invalid_email_format"
	RegistrationEmailSendingError  RegistrationOutcome = "email_sending_error"
)

// RegistrationRequest is the sign-up payload
type RegistrationRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Validate checks the payload
func (r RegistrationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.By(func(v interface{}) error {
			return auth.ValidatePasswordLength(v.(string))
		})),
	)
}

// ProfileInput carries the names a user may change on their own profile
type ProfileInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Validate checks the payload
func (p ProfileInput) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&p.LastName, validation.Required, validation.Length(1, 100)),
	)
}

// Service manages user accounts
type Service struct {
	db         *gorm.DB
	users      *users.Store
	dispatcher *tokens.Dispatcher
	lifecycles []*tokens.Lifecycle
	logger     *slog.Logger
}

// NewService creates an account service. lifecycles lists every token kind
// whose tokens must go when a user is deleted.
func NewService(db *gorm.DB, userStore *users.Store, dispatcher *tokens.Dispatcher, lifecycles []*tokens.Lifecycle, logger *slog.Logger) *Service {
	return &Service{
		db:         db,
		users:      userStore,
		dispatcher: dispatcher,
		lifecycles: lifecycles,
		logger:     logging.OrDefault(logger),
	}
}

func emailInvalid(err error) bool {
	var errs validation.Errors
	if errors.As(err, &errs) {
		_, bad := errs["email"]
		return bad
	}
	return false
}

// Register creates a disabled account holding the USER role and mails it a
// verification link rooted at baseURL. A failed mail leaves the account in
// place.
func (s *Service) Register(ctx context.Context, req RegistrationRequest, baseURL string) (RegistrationOutcome, *models.User, error) {
	if err := req.Validate(); err != nil {
		if emailInvalid(err) {
			s.logger.Warn("registration with invalid email", slog.String("email", req.Email))
			return RegistrationInvalidEmailFormat, nil, nil
		}
		return "", nil, apperr.InvalidArgument("%s", err.Error())
	}

	exists, err := s.users.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return "", nil, err
	}
	if exists {
		s.logger.Warn("registration for existing email", slog.String("email", req.Email))
		return RegistrationExists, nil, nil
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return "", nil, apperr.Internal(err, "hash password")
	}
	user := &models.User{
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Email:            req.Email,
		PasswordHash:     hash,
		AccountNonLocked: true,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := s.users.WithTx(tx)
		if err := store.Save(ctx, user); err != nil {
			return err
		}
		role, err := store.EnsureRole(ctx, models.RoleUser)
		if err != nil {
			return err
		}
		return store.Grant(ctx, user.ID, role.ID)
	})
	if err != nil {
		return "", nil, err
	}
	s.logger.Info("user registered", slog.Uint64("user_id", uint64(user.ID)))

	if err := s.dispatcher.SendVerification(ctx, user, baseURL); err != nil {
		if errors.Is(err, apperr.ErrMessaging) {
			s.logger.Error("verification mail failed", slog.Uint64("user_id", uint64(user.ID)), slog.String("error", err.Error()))
			return RegistrationEmailSendingError, user, nil
		}
		return "", nil, err
	}
	return RegistrationSuccess, user, nil
}

// Get loads a user with their role names
func (s *Service) Get(ctx context.Context, userID uint) (*models.User, []string, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	roles, err := s.users.RoleNamesOf(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return user, roles, nil
}

// ListUsers lists accounts, newest first
func (s *Service) ListUsers(ctx context.Context, filter users.ListFilter) ([]models.User, error) {
	return s.users.List(ctx, filter)
}

// Workplaces lists the companies employing the user with this email
func (s *Service) Workplaces(ctx context.Context, email string) ([]models.Company, error) {
	return s.users.FindWorkplacesByEmail(ctx, email)
}

// ToggleLock flips the account lock
func (s *Service) ToggleLock(ctx context.Context, userID uint) (*models.User, error) {
	var user *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := s.users.WithTx(tx).FindByID(ctx, userID)
		if err != nil {
			return err
		}
		u.AccountNonLocked = !u.AccountNonLocked
		if err := tx.Model(u).Update("account_non_locked", u.AccountNonLocked).Error; err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("account lock toggled",
		slog.Uint64("user_id", uint64(userID)),
		slog.Bool("locked", !user.AccountNonLocked))
	return user, nil
}

// UpdateRoles replaces the user's global roles
func (s *Service) UpdateRoles(ctx context.Context, userID uint, roles []string) error {
	if err := s.users.SetGlobalRoles(ctx, userID, roles); err != nil {
		return err
	}
	s.logger.Info("global roles updated", slog.Uint64("user_id", uint64(userID)), slog.Any("roles", roles))
	return nil
}

// UpdateProfile changes the names on the caller's own account
func (s *Service) UpdateProfile(ctx context.Context, callerID, userID uint, in ProfileInput) (*models.User, error) {
	if callerID != userID {
		return nil, apperr.AccessDenied("cannot edit another user's profile")
	}
	if err := in.Validate(); err != nil {
		return nil, apperr.InvalidArgument("%s", err.Error())
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.FirstName = in.FirstName
	user.LastName = in.LastName
	err = s.db.WithContext(ctx).Model(user).Updates(map[string]any{
		"first_name": user.FirstName,
		"last_name":  user.LastName,
	}).Error
	if err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser removes an account with its memberships, applications, role
// grants and tokens of every kind. Owners must hand over or delete their
// companies first.
func (s *Service) DeleteUser(ctx context.Context, userID uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := s.users.WithTx(tx)
		if _, err := store.FindByID(ctx, userID); err != nil {
			return err
		}

		var owned int64
		if err := tx.Model(&models.Company{}).Where("owner_id = ?", userID).Count(&owned).Error; err != nil {
			return err
		}
		if owned > 0 {
			return apperr.New(apperr.KindConflict, "user %d still owns %d companies", userID, owned)
		}

		if err := tx.Model(&models.Company{}).Where("deputy_leader_id = ?", userID).Update("deputy_leader_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.CompanyEmployee{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.JobApplication{}).Error; err != nil {
			return err
		}
		for _, lc := range s.lifecycles {
			if err := lc.WithTx(tx).DeleteAllForUser(ctx, userID); err != nil {
				return err
			}
		}
		return store.Delete(ctx, userID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("user deleted", slog.Uint64("user_id", uint64(userID)))
	return nil
}

// Bootstrap creates the global roles and the fallback administrator when
// they are missing. An existing administrator account is left untouched.
func (s *Service) Bootstrap(ctx context.Context, adminEmail, adminPassword string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := s.users.WithTx(tx)
		adminRole, err := store.EnsureRole(ctx, models.RoleAdmin)
		if err != nil {
			return err
		}
		userRole, err := store.EnsureRole(ctx, models.RoleUser)
		if err != nil {
			return err
		}

		exists, err := store.ExistsByEmail(ctx, adminEmail)
		if err != nil || exists {
			return err
		}
		hash, err := auth.HashPassword(adminPassword)
		if err != nil {
			return apperr.Internal(err, "hash password")
		}
		admin := &models.User{
			FirstName:        "System",
			LastName:         "Administrator",
			Email:            adminEmail,
			PasswordHash:     hash,
			Enabled:          true,
			AccountNonLocked: true,
		}
		if err := store.Save(ctx, admin); err != nil {
			return err
		}
		for _, role := range []*models.Role{adminRole, userRole} {
			if err := store.Grant(ctx, admin.ID, role.ID); err != nil {
				return err
			}
		}
		s.logger.Info("administrator account created", slog.String("email", admin.Email))
		return nil
	})
}
