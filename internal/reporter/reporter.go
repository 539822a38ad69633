// Package reporter forwards ingest failures to a Telegram admin chat.
package reporter

import (
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram rejects messages longer than this.
const maxMessageLen = 4096

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Reporter sends short error notifications to an admin chat.
// It is nil-safe: if adminID is 0 or the receiver is nil, Notify is a no-op.
type Reporter struct {
	bot     sender
	adminID int64
	prefix  string
}

func New(bot *tgbotapi.BotAPI, adminID int64) *Reporter {
	return &Reporter{bot: bot, adminID: adminID, prefix: "cryptonews"}
}

// FromToken builds a Reporter from a bot token. An empty token or admin id
// yields a nil Reporter.
func FromToken(token string, adminID int64) (*Reporter, error) {
	if token == "" || adminID == 0 {
		return nil, nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return New(bot, adminID), nil
}

func (r *Reporter) Notify(msg string) {
	if r == nil || r.adminID == 0 || r.bot == nil {
		return
	}

	text := fmt.Sprintf("[%s] %s", r.prefix, strings.TrimSpace(msg))
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen-3] + "..."
	}

	if _, err := r.bot.Send(tgbotapi.NewMessage(r.adminID, text)); err != nil {
		slog.Error("failed to send error notification", "err", err)
	}
}

func (r *Reporter) Notifyf(format string, args ...any) {
	r.Notify(fmt.Sprintf(format, args...))
}
