package notify

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier delivers over Telegram. Owners are chat IDs in decimal
// form.
type TelegramNotifier struct {
	api *tgbotapi.BotAPI
}

func NewTelegramNotifier(token string) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram api: %w", err)
	}
	return &TelegramNotifier{api: api}, nil
}

func (n *TelegramNotifier) Send(_ context.Context, owner, message string) error {
	chatID, err := strconv.ParseInt(owner, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram owner %q is not a chat id: %w", owner, err)
	}
	if _, err := n.api.Send(tgbotapi.NewMessage(chatID, message)); err != nil {
		return fmt.Errorf("telegram send to %s: %w", owner, err)
	}
	return nil
}
