package usecase

import (
	"math"
	"strconv"
	"strings"

	"khqr-payment-bot/internal/domain"
	"khqr-payment-bot/internal/domain/model"
)

const maxMinorUnits = 1e15

// ParseAmount reads "<amount> [KHR]" from a chat message. Thousands separators
// are allowed; riel amounts are truncated to whole units, dollars rounded to cents.
// Any second token other than KHR leaves the currency at USD. Amounts too long
// for a KHQR code are invalid.
func ParseAmount(text string) (model.Money, error) {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return model.Money{}, domain.ErrInvalidAmount
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(parts[0], ",", ""), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return model.Money{}, domain.ErrInvalidAmount
	}

	m := model.Money{Currency: model.CurrencyUSD}
	var minor float64
	if len(parts) > 1 && strings.EqualFold(parts[1], string(model.CurrencyKHR)) {
		m.Currency = model.CurrencyKHR
		minor = math.Trunc(f)
	} else {
		minor = math.Round(f * 100)
	}
	if minor <= 0 {
		return model.Money{}, domain.ErrNonPositiveAmount
	}
	// bound before the int64 conversion, which is undefined out of range
	if minor >= maxMinorUnits {
		return model.Money{}, domain.ErrInvalidAmount
	}
	m.Minor = int64(minor)
	if len(m.Decimal()) > model.MaxAmountLength {
		return model.Money{}, domain.ErrInvalidAmount
	}
	return m, nil
}
