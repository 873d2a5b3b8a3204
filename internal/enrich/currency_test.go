package enrich

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-enricher/internal/ocr"
)

var _ = Describe("ResolveCurrency", func() {
	var (
		src    PlainMap
		gstin  string
		symbol string
	)

	total := func(code, content string) RawField {
		return RawField{Value: Money{Amount: decimal.NewFromInt(10), CurrencyCode: code}, Content: content}
	}

	BeforeEach(func() {
		src = PlainMap{}
		gstin = ""
	})

	JustBeforeEach(func() {
		symbol = ResolveCurrency(src, gstin)
	})

	When("the total carries an explicit code", func() {
		BeforeEach(func() {
			src["Total"] = total("INR", "450.00")
			src["MerchantAddress"] = "500 Market St, San Francisco, USA"
			src["CountryRegion"] = "USA"
		})

		It("should prefer the explicit code over weaker signals", func() {
			Expect(symbol).To(Equal(SymbolRupee))
		})
	})

	When("the code only appears in the total's text", func() {
		BeforeEach(func() {
			src["Total"] = total("", "EUR 12,00")
			src["CountryRegion"] = "USA"
		})

		It("should use the embedded code", func() {
			Expect(symbol).To(Equal(SymbolEuro))
		})
	})

	When("an unknown explicit code is given", func() {
		BeforeEach(func() {
			src["Total"] = total("XXX", "12.00")
			src["CountryRegion"] = "GBR"
		})

		It("should fall through to the country", func() {
			Expect(symbol).To(Equal(SymbolPound))
		})
	})

	When("only a GSTIN is known", func() {
		BeforeEach(func() {
			gstin = "29ABCDE1234F1Z5"
			src["MerchantAddress"] = "1 Main St, USA"
		})

		It("should resolve to rupees", func() {
			Expect(symbol).To(Equal(SymbolRupee))
		})
	})

	When("the address mentions India", func() {
		BeforeEach(func() {
			src["MerchantAddress"] = "MG Road, Bengaluru, India"
		})

		It("should resolve to rupees", func() {
			Expect(symbol).To(Equal(SymbolRupee))
		})
	})

	When("nothing is known", func() {
		It("should return the default symbol", func() {
			Expect(symbol).To(Equal(DefaultCurrency))
		})
	})

	When("the document comes from the structured OCR shape", func() {
		It("should read the currency code and country region", func() {
			doc := FieldMap{
				"Total":         {Type: "currency", ValueCurrency: &ocr.Currency{Amount: 5, CurrencyCode: "JPY"}},
				"CountryRegion": {Type: "countryRegion", ValueCountryRegion: str("USA")},
			}
			Expect(ResolveCurrency(doc, "")).To(Equal(SymbolYen))

			delete(doc, "Total")
			Expect(ResolveCurrency(doc, "")).To(Equal(SymbolDollar))
		})

		It("should read the address content", func() {
			doc := FieldMap{
				"MerchantAddress": {Type: "address", Content: "Koramangala, Bangalore, IND", ValueAddress: &ocr.Address{City: "Bangalore"}},
			}
			Expect(ResolveCurrency(doc, "")).To(Equal(SymbolRupee))
		})
	})

	It("should tolerate a nil source", func() {
		Expect(ResolveCurrency(nil, "")).To(Equal(DefaultCurrency))
	})
})
