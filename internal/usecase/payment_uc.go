// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"khqr-payment-bot/internal/domain"
	"khqr-payment-bot/internal/domain/model"
	"khqr-payment-bot/internal/domain/ports/adapter"
	"khqr-payment-bot/internal/domain/ports/repository"
	"khqr-payment-bot/internal/infra/i18n"
	"khqr-payment-bot/internal/infra/logging"
	"khqr-payment-bot/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type RequestInput struct {
	ChatID    int64
	MessageID int
	Text      string
}

type PaymentUseCase interface {
	// Request parses the amount, shows the payer a KHQR and records a pending check.
	// The caller schedules the first re-check.
	Request(ctx context.Context, in RequestInput) (*model.PaymentCheck, error)
	// Check performs one status query for a pending check and settles it when paid
	// or when the attempts are used up.
	Check(ctx context.Context, id string) (model.CheckOutcome, error)
	// Pending lists checks that still need polling.
	Pending(ctx context.Context) ([]*model.PaymentCheck, error)
}

type PaymentOptions struct {
	MaxAttempts int
	Window      time.Duration
}

type paymentUC struct {
	checks     repository.PaymentCheckRepository
	provider   adapter.PaymentProvider
	renderer   adapter.QRRenderer
	bot        adapter.TelegramBotAdapter
	tm         repository.TransactionManager
	translator *i18n.Translator
	opts       PaymentOptions
	logger     *zerolog.Logger
	now        func() time.Time
}

func NewPaymentUseCase(
	checks repository.PaymentCheckRepository,
	provider adapter.PaymentProvider,
	renderer adapter.QRRenderer,
	bot adapter.TelegramBotAdapter,
	tm repository.TransactionManager,
	translator *i18n.Translator,
	opts PaymentOptions,
	logger *zerolog.Logger,
) *paymentUC {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	l := logger.With().Str("component", "payment_uc").Logger()
	return &paymentUC{
		checks:     checks,
		provider:   provider,
		renderer:   renderer,
		bot:        bot,
		tm:         tm,
		translator: translator,
		opts:       opts,
		logger:     &l,
		now:        time.Now,
	}
}

func (u *paymentUC) Request(ctx context.Context, in RequestInput) (*model.PaymentCheck, error) {
	defer logging.TraceDuration(u.logger, "PaymentUC.Request")()
	log := logging.With(ctx, u.logger)

	amount, err := ParseAmount(in.Text)
	if err != nil {
		key := "invalid_amount"
		if errors.Is(err, domain.ErrNonPositiveAmount) {
			key = "non_positive_amount"
		}
		metrics.IncPaymentRequest("unknown", "invalid")
		u.reply(ctx, in.ChatID, u.translator.T(key))
		return nil, err
	}
	currency := string(amount.Currency)

	u.reply(ctx, in.ChatID, u.translator.T("generating_qr", amount.String()))

	qr, err := u.provider.GenerateQR(ctx, adapter.QRRequest{
		Amount:     amount,
		BillNumber: model.BillNumber(in.ChatID, in.MessageID),
		ExpiresAt:  u.now().Add(u.opts.Window),
	})
	if err != nil {
		log.Error().Err(err).Str("provider", u.provider.Name()).Msg("QR generation failed")
		metrics.IncPaymentRequest(currency, "failed")
		u.reply(ctx, in.ChatID, u.translator.T("qr_failed"))
		if !errors.Is(err, domain.ErrQRGeneration) {
			err = fmt.Errorf("%w: %v", domain.ErrQRGeneration, err)
		}
		return nil, err
	}

	check, err := model.NewPaymentCheck(in.ChatID, in.MessageID, qr.Payload, qr.MD5, amount, u.opts.MaxAttempts, u.opts.Window)
	if err != nil {
		metrics.IncPaymentRequest(currency, "failed")
		return nil, err
	}

	png, err := u.renderer.RenderPNG(qr.Payload)
	if err != nil {
		log.Error().Err(err).Msg("QR rendering failed")
		metrics.IncPaymentRequest(currency, "failed")
		u.reply(ctx, in.ChatID, u.translator.T("qr_failed"))
		return nil, fmt.Errorf("%w: render: %v", domain.ErrQRGeneration, err)
	}
	photo := adapter.Photo{
		FileName: "qr_" + qr.MD5 + ".png",
		Data:     png,
		Caption:  u.translator.T("qr_caption", amount.String(), qr.MD5),
	}
	if err := u.bot.SendPhoto(ctx, in.ChatID, photo); err != nil {
		metrics.IncPaymentRequest(currency, "failed")
		return nil, fmt.Errorf("send qr: %w", err)
	}

	if err := u.checks.Save(ctx, repository.NoTX, check); err != nil {
		log.Error().Err(err).Str("md5", qr.MD5).Msg("failed to record payment check")
		metrics.IncPaymentRequest(currency, "failed")
		u.reply(ctx, in.ChatID, u.translator.T("internal_error"))
		return nil, err
	}

	metrics.IncPaymentRequest(currency, "issued")
	log.Info().
		Str("check_id", check.ID).
		Str("amount", amount.String()).
		Int("max_attempts", check.MaxAttempts).
		Msg("payment code issued")
	return check, nil
}

func (u *paymentUC) Check(ctx context.Context, id string) (model.CheckOutcome, error) {
	defer logging.TraceDuration(u.logger, "PaymentUC.Check")()
	log := logging.With(logging.WithCheckID(ctx, id), u.logger)

	p, err := u.checks.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return "", err
	}
	if p.Status.Terminal() {
		return model.OutcomeSettled, nil
	}
	attempt := p.Attempt + 1

	st, err := u.provider.CheckPayment(ctx, p.MD5)
	switch {
	case err != nil:
		// An unreachable backend counts as "not paid yet".
		log.Warn().Err(err).Int("attempt", attempt).Msg("payment check failed")
		metrics.IncPaymentCheck("error")
		st = adapter.TransactionStatus{}
	case st.Paid:
		metrics.IncPaymentCheck("paid")
	default:
		metrics.IncPaymentCheck("unpaid")
	}

	var outcome model.CheckOutcome
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		cur, err := u.checks.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status.Terminal() {
			outcome = model.OutcomeSettled
			return nil
		}
		switch {
		case st.Paid:
			outcome = model.OutcomePaid
			return u.settle(ctx, tx, cur, model.CheckStatusPaid, attempt, st.Hash, &outcome)
		case attempt >= cur.MaxAttempts:
			outcome = model.OutcomeExpired
			return u.settle(ctx, tx, cur, model.CheckStatusExpired, attempt, "", &outcome)
		default:
			outcome = model.OutcomeRetry
			if err := u.checks.UpdateAttempt(ctx, tx, id, attempt); err != nil {
				if errors.Is(err, domain.ErrAlreadySettled) {
					outcome = model.OutcomeSettled
					return nil
				}
				return err
			}
			return nil
		}
	})
	if err != nil {
		return "", err
	}

	switch outcome {
	case model.OutcomePaid:
		metrics.IncPaymentOutcome(string(model.CheckStatusPaid))
		metrics.AddPaymentRevenue(string(p.Amount.Currency), p.Amount.Minor)
		log.Info().Str("hash", st.Hash).Str("from", st.FromAccount).Int("attempt", attempt).Msg("payment received")
		u.notify(ctx, p.ChatID, u.translator.T("payment_received", p.Amount.String()))
	case model.OutcomeExpired:
		metrics.IncPaymentOutcome(string(model.CheckStatusExpired))
		log.Info().Int("attempt", attempt).Msg("payment window expired")
		u.notify(ctx, p.ChatID, u.translator.T("payment_expired", p.Amount.String()))
	case model.OutcomeRetry:
		log.Debug().Int("attempt", attempt).Int("max_attempts", p.MaxAttempts).Msg("not paid yet")
	}
	return outcome, nil
}

// settle downgrades outcome to settled when another worker got there first.
func (u *paymentUC) settle(ctx context.Context, tx repository.Tx, p *model.PaymentCheck, status model.CheckStatus, attempt int, refHash string, outcome *model.CheckOutcome) error {
	ok, err := u.checks.SettleIfPending(ctx, tx, p.ID, status, attempt, refHash, u.now())
	if err != nil {
		return err
	}
	if !ok {
		*outcome = model.OutcomeSettled
	}
	return nil
}

func (u *paymentUC) Pending(ctx context.Context) ([]*model.PaymentCheck, error) {
	return u.checks.ListPending(ctx, repository.NoTX, 0)
}

func (u *paymentUC) reply(ctx context.Context, chatID int64, text string) {
	if err := u.bot.SendMessage(ctx, chatID, text); err != nil {
		logging.With(ctx, u.logger).Warn().Err(err).Msg("failed to send reply")
	}
}

func (u *paymentUC) notify(ctx context.Context, chatID int64, text string) {
	if err := u.bot.SendMessage(ctx, chatID, text); err != nil {
		logging.With(ctx, u.logger).Error().Err(err).Int64("chat_id", chatID).Msg("failed to deliver payment notification")
	}
}
