package telegram

import (
	"context"
	"errors"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"khqr-payment-bot/internal/config"
	"khqr-payment-bot/internal/domain"
	"khqr-payment-bot/internal/domain/model"
	"khqr-payment-bot/internal/domain/ports/adapter"
	"khqr-payment-bot/internal/infra/i18n"
	"khqr-payment-bot/internal/infra/logging"
	"khqr-payment-bot/internal/infra/metrics"
	red "khqr-payment-bot/internal/infra/redis"
	"khqr-payment-bot/internal/usecase"
)

var _ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)

// botAPI is the subset of *tgbotapi.BotAPI the adapter uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

// Scheduler arms the first status re-check of a freshly issued payment code.
type Scheduler interface {
	Schedule(check *model.PaymentCheck)
}

const (
	pollTimeoutSeconds = 60
	pollRetryDelay     = 3 * time.Second
	messagesPerMinute  = 20
)

// RealTelegramBotAdapter long-polls Telegram and turns amount messages into payment codes.
type RealTelegramBotAdapter struct {
	bot         botAPI
	cfg         *config.BotConfig
	payments    usecase.PaymentUseCase
	scheduler   Scheduler
	rateLimiter *red.RateLimiter
	translator  *i18n.Translator
	log         *zerolog.Logger

	window        time.Duration
	adminIDsMap   map[int64]struct{}
	updateWorkers int
	retryDelay    time.Duration

	mu            sync.Mutex
	cancelPolling context.CancelFunc
}

// NewRealTelegramBotAdapter connects to the Bot API. window is the payment window shown in /help.
func NewRealTelegramBotAdapter(cfg *config.BotConfig, window time.Duration, rateLimiter *red.RateLimiter, translator *i18n.Translator, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	return newAdapter(bot, cfg, window, rateLimiter, translator, logger), nil
}

func newAdapter(bot botAPI, cfg *config.BotConfig, window time.Duration, rateLimiter *red.RateLimiter, translator *i18n.Translator, logger *zerolog.Logger) *RealTelegramBotAdapter {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	adminMap := map[int64]struct{}{}
	for _, id := range cfg.AdminIDs {
		adminMap[id] = struct{}{}
	}
	l := logger.With().Str("component", "telegram").Logger()
	return &RealTelegramBotAdapter{
		bot:           bot,
		cfg:           cfg,
		rateLimiter:   rateLimiter,
		translator:    translator,
		log:           &l,
		window:        window,
		adminIDsMap:   adminMap,
		updateWorkers: workers,
		retryDelay:    pollRetryDelay,
	}
}

// Attach wires the handlers; the use case needs this adapter to reply, so it is
// built afterwards.
func (r *RealTelegramBotAdapter) Attach(payments usecase.PaymentUseCase, scheduler Scheduler) {
	r.payments = payments
	r.scheduler = scheduler
}

// CheckConflict fails with domain.ErrConflict when another process is already
// long-polling with the same token.
func (r *RealTelegramBotAdapter) CheckConflict() error {
	_, err := r.bot.GetUpdates(tgbotapi.UpdateConfig{Offset: 0, Limit: 1, Timeout: 0})
	if isConflict(err) {
		return domain.ErrConflict
	}
	return err
}

// StartPolling blocks until ctx is cancelled or Telegram reports a conflicting poller.
func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	if r.payments == nil || r.scheduler == nil {
		return errors.New("telegram adapter not attached to payment handlers")
	}
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancelPolling = cancel
	r.mu.Unlock()
	defer cancel()

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)
	for i := 0; i < r.updateWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for up := range updateChan {
				if err := r.handleUpdate(ctx, up); err != nil {
					r.log.Error().Err(err).Int("worker", id).Msg("update handling failed")
				}
			}
		}(i)
	}

	err := r.poll(ctx, updateChan)
	close(updateChan)
	wg.Wait()
	return err
}

func (r *RealTelegramBotAdapter) poll(ctx context.Context, out chan<- tgbotapi.Update) error {
	offset := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		updates, err := r.bot.GetUpdates(tgbotapi.UpdateConfig{Offset: offset, Timeout: pollTimeoutSeconds})
		if err != nil {
			if isConflict(err) {
				r.log.Error().Msg("another instance is polling this bot; shutting down")
				return domain.ErrConflict
			}
			r.log.Warn().Err(err).Dur("retry_in", r.retryDelay).Msg("failed to get updates")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.retryDelay):
			}
			continue
		}
		for _, up := range updates {
			if up.UpdateID >= offset {
				offset = up.UpdateID + 1
			}
			select {
			case out <- up:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (r *RealTelegramBotAdapter) StopPolling() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

func isConflict(err error) bool {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return tgErr.Code == 409
	}
	var tgVal tgbotapi.Error
	if errors.As(err, &tgVal) {
		return tgVal.Code == 409
	}
	return false
}

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return nil
	}
	chatID := msg.Chat.ID
	ctx = logging.WithTraceID(ctx, logging.NewTraceID())
	ctx = logging.WithChatID(ctx, chatID)

	if r.rateLimiter != nil {
		allowed, err := r.rateLimiter.Allow(ctx, red.UserCommandKey(chatID, "msg"), messagesPerMinute, time.Minute)
		if err != nil {
			logging.With(ctx, r.log).Warn().Err(err).Msg("rate limiter unavailable")
		} else if !allowed {
			metrics.IncTelegramRateLimitTriggered()
			return r.SendMessage(ctx, chatID, r.translator.T("rate_limited"))
		}
	}

	if msg.IsCommand() {
		return r.handleCommand(ctx, msg)
	}
	metrics.IncTelegramCommand("amount")
	return r.handleAmount(ctx, msg)
}

// handleAmount is the payment entry point: issue a code, then arm its first check.
func (r *RealTelegramBotAdapter) handleAmount(ctx context.Context, msg *tgbotapi.Message) error {
	check, err := r.payments.Request(ctx, usecase.RequestInput{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Text:      msg.Text,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAmount) || errors.Is(err, domain.ErrNonPositiveAmount) {
			return nil
		}
		return err
	}
	r.scheduler.Schedule(check)
	return nil
}

// SendMessage sends plain text.
func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := r.bot.Send(tgbotapi.NewMessage(chatID, text))
	metrics.IncTelegramMessage("text", err)
	return err
}

// SendPhoto uploads an in-memory image.
func (r *RealTelegramBotAdapter) SendPhoto(ctx context.Context, chatID int64, photo adapter.Photo) error {
	cfg := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: photo.FileName, Bytes: photo.Data})
	cfg.Caption = photo.Caption
	_, err := r.bot.Send(cfg)
	metrics.IncTelegramMessage("photo", err)
	return err
}

// SetMenuCommands publishes the command menu shown by Telegram clients.
func (r *RealTelegramBotAdapter) SetMenuCommands(ctx context.Context) error {
	cmds := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "How to request a payment"},
		tgbotapi.BotCommand{Command: "help", Description: "Usage and payment window"},
	)
	_, err := r.bot.Request(cmds)
	return err
}

func (r *RealTelegramBotAdapter) isAdmin(userID int64) bool {
	_, ok := r.adminIDsMap[userID]
	return ok
}
