// Package notify sends operator alerts.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const maxMessageRunes = 4000

type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Noop drops every alert.
type Noop struct{}

func (Noop) Notify(context.Context, string) {}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts alerts to a single chat. Send failures are logged, never returned.
type Telegram struct {
	api    sender
	chatID int64
	log    *slog.Logger
}

func NewTelegram(token string, chatID int64, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{api: api, chatID: chatID, log: log}, nil
}

func (t *Telegram) Notify(ctx context.Context, text string) {
	if ctx.Err() != nil {
		return
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		text = string([]rune(text)[:maxMessageRunes]) + "…"
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil && t.log != nil {
		t.log.Error("send alert", "err", err)
	}
}
