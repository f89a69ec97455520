package alerts

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// TelegramAlerter sends alerts to a Telegram chat.
type TelegramAlerter struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramAlerter creates a Telegram-based alerter.
func NewTelegramAlerter(botToken string, chatID int64) (*TelegramAlerter, error) {
	if botToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	log.Info().
		Str("bot_username", api.Self.UserName).
		Int64("chat_id", chatID).
		Msg("Telegram alerter initialized")

	return &TelegramAlerter{api: api, chatID: chatID}, nil
}

// Send delivers one alert to the configured chat.
func (t *TelegramAlerter) Send(ctx context.Context, alert Alert) error {
	msg := tgbotapi.NewMessage(t.chatID, formatAlert(alert))
	msg.ParseMode = "Markdown"

	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram alert: %w", err)
	}
	return nil
}

func formatAlert(alert Alert) string {
	icon := "ℹ️"
	switch alert.Severity {
	case SeverityCritical:
		icon = "🚨"
	case SeverityWarning:
		icon = "⚠️"
	}

	text := fmt.Sprintf("%s *%s*\n%s", icon, alert.Title, alert.Message)
	for key, value := range alert.Metadata {
		text += fmt.Sprintf("\n`%s`: %v", key, value)
	}
	return text
}
