// Package machines manages the repair jobs of a company and their parts.
package machines

import (
	"context"
	"errors"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/mikepea/mms/pkg/mms/access"
	"github.com/mikepea/mms/pkg/mms/apperr"
	"github.com/mikepea/mms/pkg/mms/companies"
	"github.com/mikepea/mms/pkg/mms/logging"
	"github.com/mikepea/mms/pkg/mms/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MachineInput carries the editable machine details
type MachineInput struct {
	Brand         string  `json:"brand"`
	Model         string  `json:"model"`
	Description   string  `json:"description"`
	TaxInPercent  float64 `json:"tax_in_percent"`
	ChargedAmount int64   `json:"charged_amount"`
}

// Validate checks the payload
func (in MachineInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Brand, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.Model, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.Description, validation.Length(0, 1024)),
		validation.Field(&in.TaxInPercent, validation.Min(0.0), validation.Max(100.0)),
		validation.Field(&in.ChargedAmount, validation.Min(int64(0))),
	)
}

// PartInput describes a part to bill against a machine
type PartInput struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// Validate checks the payload
func (in PartInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.Price, validation.Min(int64(0))),
	)
}

// Service manages machines
type Service struct {
	db        *gorm.DB
	access    *access.Evaluator
	companies *companies.Service
	logger    *slog.Logger
}

// NewService creates a machine service
func NewService(db *gorm.DB, evaluator *access.Evaluator, companySvc *companies.Service, logger *slog.Logger) *Service {
	return &Service{db: db, access: evaluator, companies: companySvc, logger: logging.OrDefault(logger)}
}

func (s *Service) find(ctx context.Context, db *gorm.DB, machineID uint) (*models.Machine, error) {
	var machine models.Machine
	err := db.WithContext(ctx).
		Preload("Parts", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&machine, machineID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("machine")
		}
		return nil, err
	}
	return &machine, nil
}

// recalc refreshes the parts sum and profit from the stored parts
func recalc(ctx context.Context, tx *gorm.DB, machine *models.Machine) error {
	var partsSum int64
	err := tx.WithContext(ctx).Model(&models.MachinePart{}).
		Where("machine_id = ?", machine.ID).
		Select("COALESCE(SUM(price_with_tax), 0)").
		Scan(&partsSum).Error
	if err != nil {
		return err
	}
	machine.PartsSum = partsSum
	machine.Profit = machine.ChargedAmount - partsSum
	return tx.WithContext(ctx).Model(machine).Omit(clause.Associations).Updates(map[string]any{
		"parts_sum": machine.PartsSum,
		"profit":    machine.Profit,
	}).Error
}

// Add creates an active machine for the company. The caller must work for
// or own the company.
func (s *Service) Add(ctx context.Context, userID, companyID uint, in MachineInput) (*models.Machine, error) {
	if err := in.Validate(); err != nil {
		return nil, apperr.InvalidArgument("%s", err.Error())
	}
	member, err := s.companies.IsEmployeeOrOwner(ctx, userID, companyID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperr.AccessDenied("no permission to add machines to company %d", companyID)
	}

	machine := models.Machine{
		CompanyID:     companyID,
		Brand:         in.Brand,
		Model:         in.Model,
		Description:   in.Description,
		TaxInPercent:  in.TaxInPercent,
		ChargedAmount: in.ChargedAmount,
		Profit:        in.ChargedAmount,
		Active:        true,
	}
	if err := s.db.WithContext(ctx).Create(&machine).Error; err != nil {
		return nil, err
	}
	s.logger.Info("machine added",
		slog.Uint64("company_id", uint64(companyID)),
		slog.Uint64("machine_id", uint64(machine.ID)),
		slog.Uint64("user_id", uint64(userID)))
	return &machine, nil
}

// Get loads a machine with its parts
func (s *Service) Get(ctx context.Context, machineID uint) (*models.Machine, error) {
	return s.find(ctx, s.db, machineID)
}

// GetForUser loads a machine the user may see
func (s *Service) GetForUser(ctx context.Context, userID, machineID uint) (*models.Machine, error) {
	machine, err := s.find(ctx, s.db, machineID)
	if err != nil {
		return nil, err
	}
	if err := s.access.MachineAccess(ctx, userID, machine); err != nil {
		return nil, err
	}
	return machine, nil
}

// ListForCompany lists the company's active machines, newest first
func (s *Service) ListForCompany(ctx context.Context, companyID uint) ([]models.Machine, error) {
	var machines []models.Machine
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND active = ?", companyID, true).
		Order("created_at DESC, id DESC").
		Find(&machines).Error
	return machines, err
}

// ListInactive lists deactivated machines of every company
func (s *Service) ListInactive(ctx context.Context) ([]models.Machine, error) {
	var machines []models.Machine
	err := s.db.WithContext(ctx).Where("active = ?", false).Order("id").Find(&machines).Error
	return machines, err
}

// Update replaces the machine details and recomputes its totals
func (s *Service) Update(ctx context.Context, machineID uint, in MachineInput) (*models.Machine, error) {
	if err := in.Validate(); err != nil {
		return nil, apperr.InvalidArgument("%s", err.Error())
	}
	var machine *models.Machine
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.find(ctx, tx, machineID)
		if err != nil {
			return err
		}
		m.Brand = in.Brand
		m.Model = in.Model
		m.Description = in.Description
		m.ChargedAmount = in.ChargedAmount
		err = tx.Model(m).Omit(clause.Associations).Updates(map[string]any{
			"brand":          m.Brand,
			"model":          m.Model,
			"description":    m.Description,
			"charged_amount": m.ChargedAmount,
		}).Error
		if err != nil {
			return err
		}
		machine = m
		return recalc(ctx, tx, m)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("machine updated", slog.Uint64("machine_id", uint64(machineID)))
	return machine, nil
}

// Deactivate hides a machine from its company
func (s *Service) Deactivate(ctx context.Context, machineID uint) error {
	res := s.db.WithContext(ctx).Model(&models.Machine{}).Where("id = ?", machineID).Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("machine")
	}
	s.logger.Info("machine deactivated", slog.Uint64("machine_id", uint64(machineID)))
	return nil
}

// DeleteInactive permanently removes a deactivated machine and its parts
func (s *Service) DeleteInactive(ctx context.Context, machineID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		machine, err := s.find(ctx, tx, machineID)
		if err != nil {
			return err
		}
		if machine.Active {
			return apperr.New(apperr.KindConflict, "machine %d is still active", machineID)
		}
		if err := tx.Where("machine_id = ?", machineID).Delete(&models.MachinePart{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(machine).Error; err != nil {
			return err
		}
		s.logger.Info("machine deleted", slog.Uint64("machine_id", uint64(machineID)))
		return nil
	})
}

// UpdateTax sets the machine's tax rate and reprices every part with it
func (s *Service) UpdateTax(ctx context.Context, machineID uint, pct float64) (*models.Machine, error) {
	if !ValidTaxPercent(pct) {
		return nil, apperr.InvalidArgument("invalid tax rate: %v", pct)
	}
	var machine *models.Machine
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.find(ctx, tx, machineID)
		if err != nil {
			return err
		}
		for i := range m.Parts {
			p := &m.Parts[i]
			p.TaxInPercent = pct
			p.UnitTax = UnitTax(p.Price, pct)
			p.PriceWithTax = p.Price + p.UnitTax
			err := tx.Model(p).Updates(map[string]any{
				"tax_in_percent": p.TaxInPercent,
				"unit_tax":       p.UnitTax,
				"price_with_tax": p.PriceWithTax,
			}).Error
			if err != nil {
				return err
			}
		}
		m.TaxInPercent = pct
		if err := tx.Model(m).Omit(clause.Associations).Update("tax_in_percent", pct).Error; err != nil {
			return err
		}
		machine = m
		return recalc(ctx, tx, m)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("machine tax updated", slog.Uint64("machine_id", uint64(machineID)), slog.Float64("tax_in_percent", pct))
	return machine, nil
}

// AddPart bills a part at the machine's current tax rate
func (s *Service) AddPart(ctx context.Context, machineID uint, in PartInput) (*models.MachinePart, error) {
	if err := in.Validate(); err != nil {
		return nil, apperr.InvalidArgument("%s", err.Error())
	}
	var part models.MachinePart
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		machine, err := s.find(ctx, tx, machineID)
		if err != nil {
			return err
		}
		part = models.MachinePart{
			MachineID:    machine.ID,
			Name:         in.Name,
			Price:        in.Price,
			TaxInPercent: machine.TaxInPercent,
			UnitTax:      UnitTax(in.Price, machine.TaxInPercent),
		}
		part.PriceWithTax = part.Price + part.UnitTax
		if err := tx.Create(&part).Error; err != nil {
			return err
		}
		return recalc(ctx, tx, machine)
	})
	if err != nil {
		return nil, err
	}
	return &part, nil
}

// DeletePart removes a part of the machine
func (s *Service) DeletePart(ctx context.Context, machineID, partID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		machine, err := s.find(ctx, tx, machineID)
		if err != nil {
			return err
		}
		res := tx.Where("id = ? AND machine_id = ?", partID, machineID).Delete(&models.MachinePart{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("machine part")
		}
		return recalc(ctx, tx, machine)
	})
}

// MonthlySummary totals the active machines registered in one month
type MonthlySummary struct {
	Year          int   `json:"year"`
	Month         int   `json:"month"`
	Machines      int   `json:"machines"`
	PartsSum      int64 `json:"parts_sum"`
	ChargedAmount int64 `json:"charged_amount"`
	Profit        int64 `json:"profit"`
}

// Summary totals the active machines of the given companies created in
// year/month (UTC).
func (s *Service) Summary(ctx context.Context, year, month int, companyIDs []uint) (*MonthlySummary, error) {
	if month < 1 || month > 12 {
		return nil, apperr.InvalidArgument("invalid month: %d", month)
	}
	summary := &MonthlySummary{Year: year, Month: month}
	if len(companyIDs) == 0 {
		return summary, nil
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	var machines []models.Machine
	err := s.db.WithContext(ctx).
		Where("company_id IN ? AND active = ?", companyIDs, true).
		Where("created_at >= ? AND created_at < ?", from, to).
		Find(&machines).Error
	if err != nil {
		return nil, err
	}
	for _, m := range machines {
		summary.Machines++
		summary.PartsSum += m.PartsSum
		summary.ChargedAmount += m.ChargedAmount
		summary.Profit += m.ChargedAmount - m.PartsSum
	}
	return summary, nil
}
