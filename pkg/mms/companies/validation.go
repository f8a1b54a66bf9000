package companies

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// CompanyInput carries the editable company details
type CompanyInput struct {
	Name                 string `json:"name"`
	Description          string `json:"description"`
	Country              string `json:"country"`
	Location             string `json:"location"`
	Street               string `json:"street"`
	PostCode             int    `json:"post_code"`
	IdentificationNumber int64  `json:"identification_number"`
	TaxNumber            int64  `json:"tax_number"`
	VATNumber            string `json:"vat_number"`
}

// Validate checks the payload before it reaches the database
func (in CompanyInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.Description, validation.Length(0, 1024)),
		validation.Field(&in.Country, validation.Required, validation.Length(2, 60)),
		validation.Field(&in.Location, validation.Length(0, 100)),
		validation.Field(&in.Street, validation.Length(0, 200)),
		validation.Field(&in.PostCode, validation.Min(0)),
		validation.Field(&in.IdentificationNumber, validation.Min(int64(0))),
		validation.Field(&in.TaxNumber, validation.Min(int64(0))),
		validation.Field(&in.VATNumber, validation.Length(0, 20), is.Alphanumeric),
	)
}
