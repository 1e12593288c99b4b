package models

import "strings"

const DefaultCurrency = "EUR"

// SupportedCurrencies lists the currencies options and memberships may be priced in.
var SupportedCurrencies = []string{"EUR", "CHF", "USD", "GBP"}

var currencySymbols = map[string]string{
	"EUR": "€",
	"CHF": "CHF ",
	"USD": "$",
	"GBP": "£",
}

// NormalizeCurrency upper-cases code and rejects anything outside SupportedCurrencies.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency, nil
	}
	for _, c := range SupportedCurrencies {
		if c == code {
			return code, nil
		}
	}
	return "", NewValidationError("currency", "%q is not supported", code)
}

func CurrencySymbol(code string) string {
	if s, ok := currencySymbols[code]; ok {
		return s
	}
	return code + " "
}
