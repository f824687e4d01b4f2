package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"khqr-payment-bot/internal/domain"
	"khqr-payment-bot/internal/domain/model"
	"khqr-payment-bot/internal/domain/ports/repository"
)

var _ repository.PaymentCheckRepository = (*paymentCheckRepo)(nil)

type paymentCheckRepo struct{ pool *pgxpool.Pool }

func NewPaymentCheckRepo(pool *pgxpool.Pool) *paymentCheckRepo {
	return &paymentCheckRepo{pool: pool}
}

const paymentCheckColumns = `id, chat_id, message_id, bill_number, qr_payload, md5, amount_minor, currency, attempt, max_attempts, status, ref_hash, created_at, updated_at, expires_at, settled_at`

func (r *paymentCheckRepo) Save(ctx context.Context, tx repository.Tx, p *model.PaymentCheck) error {
	const q = `
INSERT INTO payment_checks (` + paymentCheckColumns + `) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
) ON CONFLICT (id) DO UPDATE SET
  attempt=$9, max_attempts=$10, status=$11, ref_hash=$12, updated_at=$14, expires_at=$15, settled_at=$16;`

	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.ChatID, p.MessageID, p.BillNumber, p.QR, p.MD5, p.Amount.Minor, string(p.Amount.Currency),
		p.Attempt, p.MaxAttempts, string(p.Status), p.RefHash, p.CreatedAt, p.UpdatedAt, p.ExpiresAt, p.SettledAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentCheckRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentCheck, error) {
	q := `SELECT ` + paymentCheckColumns + ` FROM payment_checks WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	return r.findOne(ctx, tx, q+";", id)
}

func (r *paymentCheckRepo) FindByMD5(ctx context.Context, tx repository.Tx, md5 string) (*model.PaymentCheck, error) {
	q := `SELECT ` + paymentCheckColumns + ` FROM payment_checks WHERE md5=$1 LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	return r.findOne(ctx, tx, q+";", md5)
}

func (r *paymentCheckRepo) findOne(ctx context.Context, tx repository.Tx, q string, arg interface{}) (*model.PaymentCheck, error) {
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	p, err := scanPaymentCheck(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *paymentCheckRepo) UpdateAttempt(ctx context.Context, tx repository.Tx, id string, attempt int) error {
	const q = `UPDATE payment_checks SET attempt=$2, updated_at=NOW() WHERE id=$1 AND status='pending';`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, attempt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrAlreadySettled
	}
	return nil
}

// SettleIfPending atomically moves a pending check to a terminal status.
func (r *paymentCheckRepo) SettleIfPending(
	ctx context.Context, tx repository.Tx, id string, status model.CheckStatus, attempt int, refHash string, settledAt time.Time,
) (bool, error) {
	const q = `
    UPDATE payment_checks
       SET status = $2,
           attempt = $3,
           ref_hash = $4,
           settled_at = $5,
           updated_at = NOW()
     WHERE id = $1
       AND status = 'pending'`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(status), attempt, refHash, settledAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentCheckRepo) ListPending(ctx context.Context, tx repository.Tx, limit int) ([]*model.PaymentCheck, error) {
	q := `SELECT ` + paymentCheckColumns + ` FROM payment_checks WHERE status='pending' ORDER BY created_at ASC`
	var args []interface{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.PaymentCheck
	for rows.Next() {
		p, err := scanPaymentCheck(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

func scanPaymentCheck(row pgx.Row) (*model.PaymentCheck, error) {
	var (
		p        model.PaymentCheck
		currency string
		status   string
	)
	if err := row.Scan(
		&p.ID, &p.ChatID, &p.MessageID, &p.BillNumber, &p.QR, &p.MD5, &p.Amount.Minor, &currency,
		&p.Attempt, &p.MaxAttempts, &status, &p.RefHash, &p.CreatedAt, &p.UpdatedAt, &p.ExpiresAt, &p.SettledAt,
	); err != nil {
		return nil, err
	}
	p.Amount.Currency = model.Currency(currency)
	p.Status = model.CheckStatus(status)
	return &p, nil
}
