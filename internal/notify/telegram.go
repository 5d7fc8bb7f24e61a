package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/models"
)

// Sender is the subset of *tgbotapi.BotAPI used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts each milestone to a channel.
type Telegram struct {
	bot       Sender
	channelID int64
}

// NewTelegram authenticates with token and posts to channelID.
func NewTelegram(token string, channelID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return NewTelegramWithSender(bot, channelID), nil
}

func NewTelegramWithSender(bot Sender, channelID int64) *Telegram {
	return &Telegram{bot: bot, channelID: channelID}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Deliver(ctx context.Context, milestones []models.Milestone) (int, error) {
	sent := 0
	var errs []error
	for _, m := range milestones {
		if err := ctx.Err(); err != nil {
			errs = append(errs, &NotifyError{Channel: t.Name(), Recipient: m.Name, Err: err})
			continue
		}
		msg := tgbotapi.NewMessage(t.channelID, FormatTelegram(m))
		msg.ParseMode = tgbotapi.ModeMarkdownV2
		if _, err := t.bot.Send(msg); err != nil {
			errs = append(errs, &NotifyError{Channel: t.Name(), Recipient: m.Name, Err: err})
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// FormatTelegram renders a milestone as a MarkdownV2 post.
func FormatTelegram(m models.Milestone) string {
	escape := func(s string) string { return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, s) }

	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", escape(m.Name))
	meta := strings.ToUpper(m.Importance)
	if m.Date != "" {
		meta += " · " + m.Date
	}
	fmt.Fprintf(&b, "_%s_\n", escape(meta))
	if m.Detail != "" {
		fmt.Fprintf(&b, "\n%s\n", escape(m.Detail))
	}
	fmt.Fprintf(&b, "\n%s", escape(m.Link))
	return b.String()
}
