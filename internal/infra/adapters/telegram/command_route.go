package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"khqr-payment-bot/internal/infra/metrics"
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

func (r *RealTelegramBotAdapter) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start": r.handleStartCommand,
		"help":  r.handleHelpCommand,

		"pending": r.adminOnly(r.handlePendingCommand),
	}
}

func (r *RealTelegramBotAdapter) adminOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		if message.From == nil || !r.isAdmin(message.From.ID) {
			// unknown to regular users
			return r.handleStartCommand(ctx, message)
		}
		return next(ctx, message)
	}
}

func (r *RealTelegramBotAdapter) handleCommand(ctx context.Context, message *tgbotapi.Message) error {
	cmd := message.Command()
	handler, ok := r.commandRoutes()[cmd]
	if !ok {
		metrics.IncTelegramCommand("unknown")
		return r.handleStartCommand(ctx, message)
	}
	metrics.IncTelegramCommand("/" + cmd)
	return handler(ctx, message)
}

func (r *RealTelegramBotAdapter) handleStartCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.SendMessage(ctx, message.Chat.ID, r.translator.T("start"))
}

func (r *RealTelegramBotAdapter) handleHelpCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.SendMessage(ctx, message.Chat.ID, r.translator.T("help", int(r.window/time.Minute)))
}

// handlePendingCommand lists in-flight payment checks for operators.
func (r *RealTelegramBotAdapter) handlePendingCommand(ctx context.Context, message *tgbotapi.Message) error {
	pending, err := r.payments.Pending(ctx)
	if err != nil {
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T("internal_error"))
	}
	if len(pending) == 0 {
		return r.SendMessage(ctx, message.Chat.ID, "No pending payments.")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Pending payments: %d\n", len(pending))
	for i, p := range pending {
		if i == 20 {
			fmt.Fprintf(&b, "... and %d more\n", len(pending)-i)
			break
		}
		fmt.Fprintf(&b, "%s  %s  attempt %d/%d  chat %d\n", p.BillNumber, p.Amount.String(), p.Attempt, p.MaxAttempts, p.ChatID)
	}
	return r.SendMessage(ctx, message.Chat.ID, b.String())
}
