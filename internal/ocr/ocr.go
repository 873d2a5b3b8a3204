package ocr

import (
	"context"
	"errors"
)

// ErrMissingCredentials is returned when the document analysis endpoint or key is not configured
var ErrMissingCredentials = errors.New("document intelligence credentials not found")

// Analyzer defines the interface for the document analysis service
type Analyzer interface {
	// Analyze sends a single document to the service and returns the analyzed result
	Analyze(ctx context.Context, data []byte, contentType string) (*Result, error)
}

// Result is the output of one analyze call
type Result struct {
	// Content is the full recognized text of the document
	Content   string     `json:"content"`
	Documents []Document `json:"documents"`
}

// Document is one analyzed document inside a Result
type Document struct {
	DocType    string           `json:"docType"`
	Fields     map[string]Field `json:"fields"`
	Confidence float64          `json:"confidence"`
}

// Currency is the compound monetary value of a currency field
type Currency struct {
	Amount         float64 `json:"amount"`
	CurrencySymbol string  `json:"currencySymbol,omitempty"`
	CurrencyCode   string  `json:"currencyCode,omitempty"`
}

// Address is the structured value of an address field
type Address struct {
	HouseNumber   string `json:"houseNumber,omitempty"`
	Road          string `json:"road,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	PostalCode    string `json:"postalCode,omitempty"`
	CountryRegion string `json:"countryRegion,omitempty"`
	StreetAddress string `json:"streetAddress,omitempty"`
}

// Field is a single recognized field. Only the value member matching Type is set.
type Field struct {
	Type       string   `json:"type"`
	Content    string   `json:"content,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`

	ValueString        *string          `json:"valueString,omitempty"`
	ValueNumber        *float64         `json:"valueNumber,omitempty"`
	ValueInteger       *int64           `json:"valueInteger,omitempty"`
	ValueDate          *string          `json:"valueDate,omitempty"`
	ValueTime          *string          `json:"valueTime,omitempty"`
	ValuePhoneNumber   *string          `json:"valuePhoneNumber,omitempty"`
	ValueCountryRegion *string          `json:"valueCountryRegion,omitempty"`
	ValueCurrency      *Currency        `json:"valueCurrency,omitempty"`
	ValueAddress       *Address         `json:"valueAddress,omitempty"`
	ValueArray         []Field          `json:"valueArray,omitempty"`
	ValueObject        map[string]Field `json:"valueObject,omitempty"`
}

// Value returns the typed value of the field, or nil when the service recognized
// the field but could not normalize it
func (f Field) Value() any {
	switch {
	case f.ValueCurrency != nil:
		return *f.ValueCurrency
	case f.ValueString != nil:
		return *f.ValueString
	case f.ValueNumber != nil:
		return *f.ValueNumber
	case f.ValueInteger != nil:
		return *f.ValueInteger
	case f.ValueDate != nil:
		return *f.ValueDate
	case f.ValueTime != nil:
		return *f.ValueTime
	case f.ValuePhoneNumber != nil:
		return *f.ValuePhoneNumber
	case f.ValueCountryRegion != nil:
		return *f.ValueCountryRegion
	case f.ValueAddress != nil:
		return *f.ValueAddress
	case f.ValueArray != nil:
		return f.ValueArray
	case f.ValueObject != nil:
		return f.ValueObject
	}
	return nil
}
