package models

import (
	"time"
)

// Company is a tenant. Access to a company's data is granted solely through
// the company role bound to it by CompanyRole.
type Company struct {
	ID                   uint      `gorm:"primarykey" json:"id"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
	Name                 string    `gorm:"not null" json:"name"`
	Description          string    `gorm:"size:1024" json:"description"`
	Country              string    `gorm:"not null" json:"country"`
	Location             string    `json:"location"`
	Street               string    `json:"street"`
	PostCode             int       `json:"post_code"`
	IdentificationNumber int64     `json:"identification_number"`
	TaxNumber            int64     `json:"tax_number"`
	VATNumber            string    `json:"vat_number"`
	OwnerID              uint      `gorm:"not null;index" json:"owner_id"`
	DeputyLeaderID       *uint     `gorm:"index" json:"deputy_leader_id,omitempty"`
}

// CompanyRole binds exactly one company to exactly one role.
type CompanyRole struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	CompanyID uint      `gorm:"not null;uniqueIndex" json:"company_id"`
	RoleID    uint      `gorm:"not null;uniqueIndex" json:"role_id"`
}

// CompanyEmployee records that a user works for a company.
type CompanyEmployee struct {
	CompanyID uint      `gorm:"primaryKey;autoIncrement:false" json:"company_id"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// JobApplication links an applicant to a company until it is accepted,
// rejected or withdrawn.
type JobApplication struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_application_user_company" json:"user_id"`
	CompanyID uint      `gorm:"not null;uniqueIndex:idx_application_user_company;index" json:"company_id"`
	Accepted  bool      `json:"accepted"`
}
