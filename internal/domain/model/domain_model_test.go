//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"khqr-payment-bot/internal/domain"
)

func TestMoneyFormatting(t *testing.T) {
	cases := []struct {
		m       Money
		str     string
		decimal string
	}{
		{Money{Minor: 250, Currency: CurrencyUSD}, "2.50 USD", "2.50"},
		{Money{Minor: 5, Currency: CurrencyUSD}, "0.05 USD", "0.05"},
		{Money{Minor: 123456789, Currency: CurrencyUSD}, "1,234,567.89 USD", "1234567.89"},
		{Money{Minor: 10000, Currency: CurrencyKHR}, "10,000 KHR", "10000"},
		{Money{Minor: 999, Currency: CurrencyKHR}, "999 KHR", "999"},
	}
	for _, c := range cases {
		if got := c.m.String(); got != c.str {
			t.Errorf("String(%+v) = %q, want %q", c.m, got, c.str)
		}
		if got := c.m.Decimal(); got != c.decimal {
			t.Errorf("Decimal(%+v) = %q, want %q", c.m, got, c.decimal)
		}
	}
}

func TestParseCurrency(t *testing.T) {
	if c, err := ParseCurrency(" khr "); err != nil || c != CurrencyKHR {
		t.Fatalf("expected KHR, got %q err=%v", c, err)
	}
	if _, err := ParseCurrency("EUR"); !errors.Is(err, domain.ErrUnsupportedCurrency) {
		t.Fatalf("expected ErrUnsupportedCurrency, got %v", err)
	}
	if CurrencyKHR.NumericCode() != "116" || CurrencyUSD.NumericCode() != "840" {
		t.Fatal("unexpected numeric currency codes")
	}
}

func TestNewPaymentCheck(t *testing.T) {
	t.Run("should create a pending check", func(t *testing.T) {
		amt := Money{Minor: 250, Currency: CurrencyUSD}
		p, err := NewPaymentCheck(42, 7, "000201", "abc", amt, 36, 6*time.Minute)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if p.ID == "" {
			t.Error("expected an ID")
		}
		if p.Status != CheckStatusPending {
			t.Errorf("expected pending, got %s", p.Status)
		}
		if p.BillNumber != "ORD-42-7" {
			t.Errorf("unexpected bill number %q", p.BillNumber)
		}
		if p.ExpiresAt.Sub(p.CreatedAt) != 6*time.Minute {
			t.Errorf("expected 6m window, got %s", p.ExpiresAt.Sub(p.CreatedAt))
		}
	})

	t.Run("should clamp max attempts to one", func(t *testing.T) {
		p, err := NewPaymentCheck(1, 1, "q", "m", Money{Minor: 1, Currency: CurrencyKHR}, 0, time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.MaxAttempts != 1 {
			t.Fatalf("expected 1, got %d", p.MaxAttempts)
		}
		p.Attempt = 1
		if !p.Exhausted() {
			t.Fatal("expected exhausted after one attempt")
		}
	})

	t.Run("should reject non-positive amounts", func(t *testing.T) {
		_, err := NewPaymentCheck(1, 1, "q", "m", Money{Currency: CurrencyUSD}, 3, time.Minute)
		if !errors.Is(err, domain.ErrNonPositiveAmount) {
			t.Fatalf("expected ErrNonPositiveAmount, got %v", err)
		}
	})

	t.Run("should reject a missing hash", func(t *testing.T) {
		_, err := NewPaymentCheck(1, 1, "q", "", Money{Minor: 1, Currency: CurrencyUSD}, 3, time.Minute)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestCheckStatusTerminal(t *testing.T) {
	if CheckStatusPending.Terminal() {
		t.Error("pending must not be terminal")
	}
	if !CheckStatusPaid.Terminal() || !CheckStatusExpired.Terminal() {
		t.Error("paid and expired must be terminal")
	}
}
