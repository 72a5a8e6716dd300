package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

type messageSender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Telegram posts notifications to one chat through the Bot API.
type Telegram struct {
	sender messageSender
	chat   telego.ChatID
}

// NewTelegram creates a notifier for chatID, which may be a numeric id or
// an @channel username.
func NewTelegram(botToken, chatID string) (*Telegram, error) {
	if botToken == "" || chatID == "" {
		return nil, fmt.Errorf("telegram: bot token and chat id are required")
	}
	bot, err := telego.NewBot(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return newTelegram(bot, chatID), nil
}

func newTelegram(sender messageSender, chatID string) *Telegram {
	return &Telegram{sender: sender, chat: parseChatID(chatID)}
}

func parseChatID(s string) telego.ChatID {
	s = strings.TrimSpace(s)
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return tu.ID(id)
	}
	if !strings.HasPrefix(s, "@") {
		s = "@" + s
	}
	return tu.Username(s)
}

func (t *Telegram) Notify(ctx context.Context, message string) error {
	if _, err := t.sender.SendMessage(ctx, tu.Message(t.chat, message)); err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}
