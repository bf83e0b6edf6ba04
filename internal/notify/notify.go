// Package notify delivers fire-and-forget notifications about trading
// events. Delivery failures are logged and never block or retry trading
// logic.
package notify

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Notifier is the sink consumed by the trading engine.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// Telegram sends messages to a single chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	l      *zap.Logger
}

func NewTelegram(token string, chatID int64, l *zap.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}
	return &Telegram{bot: bot, chatID: chatID, l: l}, nil
}

// Notify sends asynchronously so a slow Telegram API cannot stall an
// evaluation cycle.
func (t *Telegram) Notify(_ context.Context, message string) {
	go func() {
		if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, message)); err != nil {
			t.l.Warn("telegram notification failed", zap.Error(err))
		}
	}()
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, string) {}
