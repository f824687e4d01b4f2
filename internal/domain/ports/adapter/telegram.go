// File: internal/domain/ports/adapter/telegram.go
package adapter

import "context"

// Photo is an in-memory image delivered to a chat.
type Photo struct {
	FileName string
	Data     []byte
	Caption  string
}

type TelegramBotAdapter interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, photo Photo) error
}
