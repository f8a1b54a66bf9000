package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/mikepea/mms/pkg/mms/apperr"
	"github.com/mikepea/mms/pkg/mms/models"
	"gorm.io/gorm"
)

// Store persists the tokens of one kind.
type Store interface {
	Create(ctx context.Context, userID uint, raw string, expiresAt time.Time) (*models.BaseToken, error)
	FindByToken(ctx context.Context, raw string) (*models.BaseToken, error)
	FindByUserID(ctx context.Context, userID uint) ([]models.BaseToken, error)
	// Consume flips valid to false if it is still true and reports whether
	// this call did the flip.
	Consume(ctx context.Context, raw string) (bool, error)
	DeleteByUserID(ctx context.Context, userID uint) error
	WithTx(tx *gorm.DB) Store
}

// Record is satisfied by pointers to the concrete token models.
type Record[T any] interface {
	*T
	Base() *models.BaseToken
}

// GormStore is a Store for one concrete token model.
type GormStore[T any, PT Record[T]] struct {
	db *gorm.DB
}

// NewGormStore creates a store for the token model T
func NewGormStore[T any, PT Record[T]](db *gorm.DB) *GormStore[T, PT] {
	return &GormStore[T, PT]{db: db}
}

func (s *GormStore[T, PT]) WithTx(tx *gorm.DB) Store {
	return &GormStore[T, PT]{db: tx}
}

func (s *GormStore[T, PT]) Create(ctx context.Context, userID uint, raw string, expiresAt time.Time) (*models.BaseToken, error) {
	rec := PT(new(T))
	base := rec.Base()
	base.Token = raw
	base.UserID = userID
	base.ExpiresAt = expiresAt
	base.Valid = true
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return base, nil
}

func (s *GormStore[T, PT]) FindByToken(ctx context.Context, raw string) (*models.BaseToken, error) {
	rec := PT(new(T))
	if err := s.db.WithContext(ctx).Where("token = ?", raw).First(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("token")
		}
		return nil, err
	}
	return rec.Base(), nil
}

func (s *GormStore[T, PT]) FindByUserID(ctx context.Context, userID uint) ([]models.BaseToken, error) {
	var recs []T
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]models.BaseToken, len(recs))
	for i := range recs {
		out[i] = *PT(&recs[i]).Base()
	}
	return out, nil
}

func (s *GormStore[T, PT]) Consume(ctx context.Context, raw string) (bool, error) {
	res := s.db.WithContext(ctx).Model(PT(new(T))).
		Where("token = ? AND valid = ?", raw, true).
		Update("valid", false)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore[T, PT]) DeleteByUserID(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(PT(new(T))).Error
}

// Concrete stores for the three token kinds
func NewEmailVerificationStore(db *gorm.DB) Store {
	return NewGormStore[models.EmailVerificationToken](db)
}

func NewChangePasswordStore(db *gorm.DB) Store {
	return NewGormStore[models.ChangePasswordToken](db)
}

func NewForgotPasswordStore(db *gorm.DB) Store {
	return NewGormStore[models.ForgotPasswordToken](db)
}
