package adapter

import (
	"context"
	"time"

	"khqr-payment-bot/internal/domain/model"
)

// QRRequest carries the per-payment fields of a merchant-presented code.
// Merchant identity (account, name, city, labels) is provider configuration.
type QRRequest struct {
	Amount     model.Money
	BillNumber string
	ExpiresAt  time.Time
}

// QRCode is the generated payload and the hash the backend indexes it by.
type QRCode struct {
	Payload string
	MD5     string
}

// TransactionStatus is what the backend knows about a payment code.
type TransactionStatus struct {
	Paid           bool
	Hash           string // backend transaction hash
	FromAccount    string
	Amount         float64
	Currency       string
	AcknowledgedAt *time.Time
}

// PaymentProvider is the hex port for the payment-code backend.
type PaymentProvider interface {
	Name() string
	// GenerateQR builds a scannable payload for the configured merchant.
	GenerateQR(ctx context.Context, req QRRequest) (QRCode, error)
	// CheckPayment asks the backend whether the code identified by md5 has been paid.
	CheckPayment(ctx context.Context, md5 string) (TransactionStatus, error)
}

// QRRenderer turns a payload into an image.
type QRRenderer interface {
	RenderPNG(payload string) ([]byte, error)
}
