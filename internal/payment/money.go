package payment

import (
	"math"
	"strings"
)

// Currencies the card processor charges in whole units.
var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true,
	"KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// Currencies with three decimals; the processor wants the last digit to be 0.
var threeDecimalCurrencies = map[string]bool{
	"BHD": true, "JOD": true, "KWD": true, "OMR": true, "TND": true,
}

func decimals(currency string) int {
	currency = strings.ToUpper(currency)
	switch {
	case zeroDecimalCurrencies[currency]:
		return 0
	case threeDecimalCurrencies[currency]:
		return 3
	default:
		return 2
	}
}

// ToMinorUnits converts amount to the integer the card processor expects.
func ToMinorUnits(currency string, amount float64) int64 {
	d := decimals(currency)
	minor := int64(math.Round(amount * math.Pow10(d)))
	if d == 3 {
		minor = int64(math.Round(float64(minor)/10)) * 10
	}
	return minor
}

// FromMinorUnits is the amount actually charged for minor.
func FromMinorUnits(currency string, minor int64) float64 {
	return float64(minor) / math.Pow10(decimals(currency))
}
