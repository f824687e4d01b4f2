package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"khqr-payment-bot/internal/domain/ports/adapter"
)

var _ adapter.TelegramBotAdapter = (*NoopBotAdapter)(nil)

// NoopBotAdapter logs outgoing messages instead of sending them. Used with bot.mode=noop.
type NoopBotAdapter struct {
	log *zerolog.Logger
}

func NewNoopBotAdapter(logger *zerolog.Logger) *NoopBotAdapter {
	l := logger.With().Str("component", "noop-telegram").Logger()
	return &NoopBotAdapter{log: &l}
}

func (b *NoopBotAdapter) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.log.Info().Int64("chat_id", chatID).Str("text", text).Msg("send message")
	return nil
}

func (b *NoopBotAdapter) SendPhoto(ctx context.Context, chatID int64, photo adapter.Photo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.log.Info().
		Int64("chat_id", chatID).
		Str("file", photo.FileName).
		Int("bytes", len(photo.Data)).
		Str("caption", photo.Caption).
		Msg("send photo")
	return nil
}
