package dispatch

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// TelegramRelay fans alert text out to a static set of Telegram chats.
type TelegramRelay struct {
	bot     *tgbotapi.BotAPI
	chatIDs []int64
}

// NewTelegramRelay creates the relay and verifies the token against the
// Telegram API.
func NewTelegramRelay(token string, chatIDs []int64, debug bool) (*TelegramRelay, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}
	bot.Debug = debug

	log.Infof("🚀 telegram relay authorized as @%s (%d chats)", bot.Self.UserName, len(chatIDs))
	return &TelegramRelay{bot: bot, chatIDs: chatIDs}, nil
}

// Relay sends the text to every configured chat. A failed chat does not stop
// the others.
func (t *TelegramRelay) Relay(text string) {
	for _, chatID := range t.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.DisableWebPagePreview = true
		if _, err := t.bot.Send(msg); err != nil {
			log.Errorf("❌ could not send telegram message to chat %d: %v", chatID, err)
		}
	}
}
