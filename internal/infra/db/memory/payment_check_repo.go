// Package memory holds process-local repositories used when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"khqr-payment-bot/internal/domain"
	"khqr-payment-bot/internal/domain/model"
	"khqr-payment-bot/internal/domain/ports/repository"
)

var (
	_ repository.PaymentCheckRepository = (*PaymentCheckRepo)(nil)
	_ repository.TransactionManager     = (*TxManager)(nil)
)

type PaymentCheckRepo struct {
	mu    sync.RWMutex
	byID  map[string]*model.PaymentCheck
	byMD5 map[string]string
}

func NewPaymentCheckRepo() *PaymentCheckRepo {
	return &PaymentCheckRepo{
		byID:  make(map[string]*model.PaymentCheck),
		byMD5: make(map[string]string),
	}
}

func (r *PaymentCheckRepo) Save(ctx context.Context, _ repository.Tx, p *model.PaymentCheck) error {
	if p == nil || p.ID == "" {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byMD5[p.MD5]; ok && id != p.ID {
		return domain.ErrAlreadyExists
	}
	cp := *p
	r.byID[p.ID] = &cp
	r.byMD5[p.MD5] = p.ID
	return nil
}

func (r *PaymentCheckRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.PaymentCheck, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *PaymentCheckRepo) FindByMD5(ctx context.Context, tx repository.Tx, md5 string) (*model.PaymentCheck, error) {
	r.mu.RLock()
	id, ok := r.byMD5[md5]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.FindByID(ctx, tx, id)
}

func (r *PaymentCheckRepo) UpdateAttempt(ctx context.Context, _ repository.Tx, id string, attempt int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status != model.CheckStatusPending {
		return domain.ErrAlreadySettled
	}
	p.Attempt = attempt
	p.UpdatedAt = time.Now()
	return nil
}

func (r *PaymentCheckRepo) SettleIfPending(ctx context.Context, _ repository.Tx, id string, status model.CheckStatus, attempt int, refHash string, settledAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Status != model.CheckStatusPending {
		return false, nil
	}
	p.Status = status
	p.Attempt = attempt
	p.RefHash = refHash
	t := settledAt
	p.SettledAt = &t
	p.UpdatedAt = time.Now()
	return true, nil
}

func (r *PaymentCheckRepo) ListPending(ctx context.Context, _ repository.Tx, limit int) ([]*model.PaymentCheck, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.PaymentCheck
	for _, p := range r.byID {
		if p.Status == model.CheckStatusPending {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TxManager runs fn directly; the in-memory repository is already serialised.
type TxManager struct{}

func (TxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}
