package model

import (
	"fmt"
	"time"

	"khqr-payment-bot/internal/domain"

	"github.com/google/uuid"
)

type CheckStatus string

const (
	CheckStatusPending CheckStatus = "pending" // QR shown; waiting for the backend to report it paid
	CheckStatusPaid    CheckStatus = "paid"    // backend confirmed the transaction
	CheckStatusExpired CheckStatus = "expired" // attempts exhausted without a payment
)

func (s CheckStatus) Terminal() bool { return s == CheckStatusPaid || s == CheckStatusExpired }

// CheckOutcome is the result of one scheduled status check.
type CheckOutcome string

const (
	OutcomeRetry   CheckOutcome = "retry"
	OutcomePaid    CheckOutcome = "paid"
	OutcomeExpired CheckOutcome = "expired"
	OutcomeSettled CheckOutcome = "settled" // record was already terminal; nothing done
)

// PaymentCheck is the in-flight record behind one displayed payment code.
type PaymentCheck struct {
	ID          string // UUID
	ChatID      int64  // where the code was shown and where outcomes are reported
	MessageID   int
	BillNumber  string // ORD-<chat>-<message>
	QR          string // raw KHQR payload
	MD5         string // hash the backend is queried by
	Amount      Money
	Attempt     int
	MaxAttempts int
	Status      CheckStatus
	RefHash     string // backend transaction hash once paid
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   time.Time
	SettledAt   *time.Time
}

// NewPaymentCheck validates the inputs and returns a pending check.
func NewPaymentCheck(chatID int64, messageID int, qr, md5 string, amount Money, maxAttempts int, window time.Duration) (*PaymentCheck, error) {
	if chatID == 0 || qr == "" || md5 == "" {
		return nil, domain.ErrInvalidArgument
	}
	if amount.Minor <= 0 {
		return nil, domain.ErrNonPositiveAmount
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	now := time.Now()
	return &PaymentCheck{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		MessageID:   messageID,
		BillNumber:  BillNumber(chatID, messageID),
		QR:          qr,
		MD5:         md5,
		Amount:      amount,
		MaxAttempts: maxAttempts,
		Status:      CheckStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(window),
	}, nil
}

// BillNumber is the merchant reference embedded in the QR.
func BillNumber(chatID int64, messageID int) string {
	return fmt.Sprintf("ORD-%d-%d", chatID, messageID)
}

// Exhausted reports whether the current attempt count has used up the window.
func (p *PaymentCheck) Exhausted() bool { return p.Attempt >= p.MaxAttempts }
