// Package telegram pushes moderation events to a Telegram channel where the
// on-call moderators live.
package telegram

import (
	"fmt"
	"log"

	"resonate/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier sends report notifications to a fixed moderation chat.
type Notifier struct {
	BotAPI *tgbotapi.BotAPI
	ChatID int64
}

// NewNotifier authenticates the bot and targets the given chat.
func NewNotifier(token string, chatID int64) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	log.Printf("Moderation bot authorized on account %s", bot.Self.UserName)

	return &Notifier{BotAPI: bot, ChatID: chatID}, nil
}

// NotifyReport posts a freshly filed report to the moderation chat.
func (n *Notifier) NotifyReport(report *models.Report, reported *models.User) error {
	text := fmt.Sprintf(
		"New report #%d\nSeverity: %s\nReported: %s (reputation %d)\nReporter: %s\nReason: %s",
		report.ID, report.Severity, reported.ID, reported.ReputationScore,
		report.ReporterID, report.Reason,
	)
	msg := tgbotapi.NewMessage(n.ChatID, text)
	if _, err := n.BotAPI.Send(msg); err != nil {
		return fmt.Errorf("failed to send report notification: %w", err)
	}
	return nil
}
