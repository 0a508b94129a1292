package core

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const defaultCurrencyExponent = 2

// ISO 4217 minor-unit exponents for currencies that differ from the default
// or are commonly settled through the provider.
var currencyExponents = map[string]int32{
	"BGN": 2,
	"EUR": 2,
	"USD": 2,
	"GBP": 2,
	"CHF": 2,
	"RON": 2,
	"JPY": 0,
	"KRW": 0,
	"ISK": 0,
	"BHD": 3,
	"JOD": 3,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
}

func CurrencyExponent(currency string) int32 {
	if exp, ok := currencyExponents[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return exp
	}
	return defaultCurrencyExponent
}

// ToMinorUnits converts a decimal amount to integral minor units. Amounts
// carrying more precision than the currency allows are rejected.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	if !amount.IsPositive() {
		return 0, &InvalidInputError{Field: "amount", Reason: "must be positive"}
	}
	shifted := amount.Shift(CurrencyExponent(currency))
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, &InvalidInputError{Field: "amount", Reason: "has more precision than " + strings.ToUpper(currency) + " allows"}
	}
	if shifted.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, &InvalidInputError{Field: "amount", Reason: "is too large"}
	}
	return shifted.IntPart(), nil
}

func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -CurrencyExponent(currency))
}

func formatMinor(minor int64) string {
	return strconv.FormatInt(minor, 10)
}
