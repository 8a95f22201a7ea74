// Package services holds the operational side services: the telegram
// escalation notifier and the performance monitor.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/sirupsen/logrus"
)

// Notifier delivers escalation alerts to a Telegram chat. Without a
// bot token it degrades to log-only, which keeps escalation usable in
// scan mode and in tests.
type Notifier struct {
	bot    *bot.Bot
	chatID string
	logger *logrus.Logger
}

func NewNotifier(botToken, chatID string, logger *logrus.Logger) *Notifier {
	var telegramBot *bot.Bot
	if botToken != "" {
		created, err := bot.New(botToken)
		if err != nil {
			logger.WithError(err).Warn("Telegram bot unavailable, escalations will be log-only")
		} else {
			telegramBot = created
		}
	}
	return &Notifier{
		bot:    telegramBot,
		chatID: chatID,
		logger: logger,
	}
}

// Escalate reports a condition that needs a human. The log line is
// written unconditionally so an operator tailing logs sees the alert
// even when Telegram delivery fails.
func (n *Notifier) Escalate(ctx context.Context, subject, detail string) {
	n.logger.WithFields(logrus.Fields{
		"subject": subject,
		"detail":  detail,
	}).Error("MANUAL INTERVENTION REQUIRED")

	if n.bot == nil || n.chatID == "" {
		return
	}

	text := fmt.Sprintf("🚨 *%s*\n\n%s\n\n_%s_",
		bot.EscapeMarkdown(subject),
		bot.EscapeMarkdown(detail),
		bot.EscapeMarkdown(time.Now().UTC().Format(time.RFC3339)))

	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      text,
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		n.logger.WithError(err).Error("Failed to deliver telegram escalation")
	}
}
