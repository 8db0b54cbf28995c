package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/custos-io/custos/internal/config"
	"github.com/custos-io/custos/internal/domain"
)

// Bot API calls get a hard client timeout so a stuck endpoint cannot hold a
// dispatch worker past its attempt budget.
const apiTimeout = 30 * time.Second

// Channel delivers notification jobs as Telegram messages. Bot API calls go
// over the network, so every failure is treated as transient.
type Channel struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewChannel(cfg config.TelegramConfig) (*Channel, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, tgbotapi.APIEndpoint, &http.Client{Timeout: apiTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	var chatID int64
	if _, err := fmt.Sscanf(cfg.ChatID, "%d", &chatID); err != nil {
		return nil, fmt.Errorf("invalid telegram chat_id %q: %w", cfg.ChatID, err)
	}

	return &Channel{bot: bot, chatID: chatID}, nil
}

func (c *Channel) Deliver(ctx context.Context, job domain.NotificationJob) error {
	msg := tgbotapi.NewMessage(c.chatID, render(job))
	if _, err := c.bot.Send(msg); err != nil {
		return domain.MarkTransient(fmt.Errorf("failed to send telegram message: %w", err))
	}
	return nil
}

func render(job domain.NotificationJob) string {
	var b strings.Builder

	switch job.Kind {
	case domain.KindBackupSuccess:
		fmt.Fprintf(&b, "✅ Backup completed: %s\n", job.Payload["database"])
		if artifact := job.Payload["artifact"]; artifact != "" {
			fmt.Fprintf(&b, "📁 %s\n", artifact)
		}
		if size := job.Payload["size"]; size != "" {
			fmt.Fprintf(&b, "📊 %s\n", size)
		}
		if duration := job.Payload["duration"]; duration != "" {
			fmt.Fprintf(&b, "🕐 %s\n", duration)
		}
	case domain.KindBackupError:
		fmt.Fprintf(&b, "❌ Backup FAILED: %s\n", job.Payload["database"])
		if errMsg := job.Payload["error"]; errMsg != "" {
			fmt.Fprintf(&b, "%s\n", errMsg)
		}
	default:
		if title := job.Payload["title"]; title != "" {
			fmt.Fprintf(&b, "%s\n", title)
		}
		if msg := job.Payload["message"]; msg != "" {
			fmt.Fprintf(&b, "%s\n", msg)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
