package model

import (
	"strconv"
	"strings"

	"khqr-payment-bot/internal/domain"
)

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyKHR Currency = "KHR"
)

// NumericCode returns the ISO 4217 numeric code used in the KHQR payload.
func (c Currency) NumericCode() string {
	switch c {
	case CurrencyKHR:
		return "116"
	default:
		return "840"
	}
}

// Exponent is the number of minor-unit digits.
func (c Currency) Exponent() int {
	if c == CurrencyKHR {
		return 0
	}
	return 2
}

func ParseCurrency(s string) (Currency, error) {
	switch Currency(strings.ToUpper(strings.TrimSpace(s))) {
	case CurrencyUSD:
		return CurrencyUSD, nil
	case CurrencyKHR:
		return CurrencyKHR, nil
	}
	return "", domain.ErrUnsupportedCurrency
}

// MaxAmountLength is the longest decimal rendering a KHQR amount field (tag 54) accepts.
const MaxAmountLength = 13

// Money is an amount in minor units (cents for USD, riel for KHR).
type Money struct {
	Minor    int64
	Currency Currency
}

// Decimal renders the amount without grouping, e.g. "2.50" or "10000".
func (m Money) Decimal() string {
	exp := m.Currency.Exponent()
	if exp == 0 {
		return strconv.FormatInt(m.Minor, 10)
	}
	whole, frac := splitMinor(m.Minor, exp)
	return whole + "." + frac
}

// String renders the amount with thousands separators and currency, e.g. "10,000 KHR".
func (m Money) String() string {
	exp := m.Currency.Exponent()
	if exp == 0 {
		return group(strconv.FormatInt(m.Minor, 10)) + " " + string(m.Currency)
	}
	whole, frac := splitMinor(m.Minor, exp)
	return group(whole) + "." + frac + " " + string(m.Currency)
}

func splitMinor(v int64, exp int) (string, string) {
	s := strconv.FormatInt(v, 10)
	for len(s) <= exp {
		s = "0" + s
	}
	return s[:len(s)-exp], s[len(s)-exp:]
}

func group(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	var b strings.Builder
	pre := n % 3
	if pre == 0 {
		pre = 3
	}
	b.WriteString(s[:pre])
	for i := pre; i < n; i += 3 {
		b.WriteString(",")
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
