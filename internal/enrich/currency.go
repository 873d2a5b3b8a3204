package enrich

import (
	"strings"
)

// Currency symbols produced by the resolver
const (
	SymbolRupee  = "₹"
	SymbolDollar = "$"
	SymbolEuro   = "€"
	SymbolPound  = "£"
	SymbolYen    = "¥"
	SymbolDirham = "AED"

	DefaultCurrency = SymbolDollar
)

// currencySymbols maps ISO 4217 codes to display symbols
var currencySymbols = map[string]string{
	"INR": SymbolRupee,
	"USD": SymbolDollar,
	"CAD": SymbolDollar,
	"AUD": SymbolDollar,
	"SGD": SymbolDollar,
	"EUR": SymbolEuro,
	"GBP": SymbolPound,
	"JPY": SymbolYen,
	"CNY": SymbolYen,
	"AED": SymbolDirham,
}

// currencyCodes fixes the order in which codes are searched for inside text
var currencyCodes = []string{"INR", "USD", "EUR", "GBP", "JPY", "CNY", "AUD", "CAD", "SGD", "AED"}

// countrySymbols maps ISO 3166-1 alpha-3 country/region codes to symbols
var countrySymbols = map[string]string{
	"IND": SymbolRupee,
	"USA": SymbolDollar,
	"CAN": SymbolDollar,
	"AUS": SymbolDollar,
	"SGP": SymbolDollar,
	"GBR": SymbolPound,
	"DEU": SymbolEuro,
	"FRA": SymbolEuro,
	"ITA": SymbolEuro,
	"ESP": SymbolEuro,
	"NLD": SymbolEuro,
	"IRL": SymbolEuro,
	"JPN": SymbolYen,
	"CHN": SymbolYen,
	"ARE": SymbolDirham,
}

// ResolveCurrency infers the currency symbol of a document. Structured
// signals are tried before text heuristics; the first that resolves wins.
func ResolveCurrency(src FieldSource, gstin string) string {
	var total, country, address RawField
	if src != nil {
		total, _ = src.Get("Total")
		country, _ = src.Get("CountryRegion")
		address, _ = src.Get("MerchantAddress")
	}

	// 1. explicit code on the total
	if money, ok := total.Value.(Money); ok {
		if symbol, ok := currencySymbols[strings.ToUpper(strings.TrimSpace(money.CurrencyCode))]; ok {
			return symbol
		}
	}

	// 2. code absorbed into the total's recognized text
	if content := strings.ToUpper(total.Content); content != "" {
		for _, code := range currencyCodes {
			if strings.Contains(content, code) {
				return currencySymbols[code]
			}
		}
	}

	// 3. recognized country/region
	if code, ok := country.Value.(string); ok {
		if symbol, ok := countrySymbols[strings.ToUpper(strings.TrimSpace(code))]; ok {
			return symbol
		}
	}

	// 4. Indian GSTIN shape
	if IsIndianGSTIN(gstin) {
		return SymbolRupee
	}

	// 5. address keyword; "IND" also covers "INDIA"
	addressText, _ := address.Value.(string)
	if addressText == "" {
		addressText = address.Content
	}
	if strings.Contains(strings.ToUpper(addressText), "IND") {
		return SymbolRupee
	}

	return DefaultCurrency
}
