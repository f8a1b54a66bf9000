package models

import (
	"time"
)

// Machine is a repair job owned by a company. Monetary amounts are in cents.
type Machine struct {
	ID            uint          `gorm:"primarykey" json:"id"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	CompanyID     uint          `gorm:"not null;index" json:"company_id"`
	Brand         string        `gorm:"not null" json:"brand"`
	Model         string        `gorm:"not null" json:"model"`
	Description   string        `gorm:"size:1024" json:"description"`
	Active        bool          `gorm:"index" json:"active"`
	TaxInPercent  float64       `json:"tax_in_percent"`
	ChargedAmount int64         `json:"charged_amount"`
	PartsSum      int64         `json:"parts_sum"`
	Profit        int64         `json:"profit"`
	Parts         []MachinePart `gorm:"foreignKey:MachineID" json:"parts,omitempty"`
}

// MachinePart is a part billed against a machine.
type MachinePart struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	MachineID    uint      `gorm:"not null;index" json:"machine_id"`
	Name         string    `gorm:"not null" json:"name"`
	Price        int64     `json:"price"`
	TaxInPercent float64   `json:"tax_in_percent"`
	UnitTax      int64     `json:"unit_tax"`
	PriceWithTax int64     `json:"price_with_tax"`
}
