package bakong

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"khqr-payment-bot/internal/domain/ports/adapter"
)

var _ adapter.PaymentProvider = (*NoopProvider)(nil)

// NoopProvider builds real payloads but never calls Bakong. With paidAfter > 0
// a code reports paid on its paidAfter-th check; with 0 it never settles.
type NoopProvider struct {
	merchant  Merchant
	paidAfter int
	logger    *zerolog.Logger

	mu     sync.Mutex
	checks map[string]int
}

func NewNoopProvider(merchant Merchant, paidAfter int, logger *zerolog.Logger) *NoopProvider {
	l := logger.With().Str("component", "bakong-noop").Logger()
	return &NoopProvider{
		merchant:  merchant,
		paidAfter: paidAfter,
		logger:    &l,
		checks:    make(map[string]int),
	}
}

func (n *NoopProvider) Name() string { return "noop" }

func (n *NoopProvider) GenerateQR(ctx context.Context, req adapter.QRRequest) (adapter.QRCode, error) {
	payload, err := EncodeKHQR(n.merchant, Payment{
		Amount:     req.Amount,
		BillNumber: req.BillNumber,
		CreatedAt:  time.Now(),
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		return adapter.QRCode{}, err
	}
	md5 := MD5(payload)
	n.logger.Info().Str("bill", req.BillNumber).Str("md5", md5).Msg("noop qr generated")
	return adapter.QRCode{Payload: payload, MD5: md5}, nil
}

func (n *NoopProvider) CheckPayment(ctx context.Context, md5 string) (adapter.TransactionStatus, error) {
	n.mu.Lock()
	n.checks[md5]++
	count := n.checks[md5]
	n.mu.Unlock()

	if n.paidAfter <= 0 || count < n.paidAfter {
		return adapter.TransactionStatus{}, nil
	}
	hash := md5
	if len(hash) > 8 {
		hash = hash[:8]
	}
	now := time.Now()
	return adapter.TransactionStatus{
		Paid:           true,
		Hash:           "noop-" + hash,
		FromAccount:    "noop@dev",
		AcknowledgedAt: &now,
	}, nil
}
