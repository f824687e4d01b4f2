package repository

import (
	"context"
	"time"

	"khqr-payment-bot/internal/domain/model"
)

// -----------------------------
// Payment checks
// -----------------------------

type PaymentCheckRepository interface {
	Save(ctx context.Context, tx Tx, p *model.PaymentCheck) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PaymentCheck, error)
	FindByMD5(ctx context.Context, tx Tx, md5 string) (*model.PaymentCheck, error)
	// UpdateAttempt records the attempt counter of a still-pending check.
	UpdateAttempt(ctx context.Context, tx Tx, id string, attempt int) error
	// SettleIfPending moves a pending check to a terminal status; false means it was already settled.
	SettleIfPending(ctx context.Context, tx Tx, id string, status model.CheckStatus, attempt int, refHash string, settledAt time.Time) (bool, error)
	// ListPending returns pending checks oldest first; limit <= 0 returns all of them.
	ListPending(ctx context.Context, tx Tx, limit int) ([]*model.PaymentCheck, error)
}
