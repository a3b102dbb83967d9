package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the chat-send interface the pipeline consumes.
type Sender interface {
	// Send posts a message (or a photo with caption when imageURL is set)
	// and returns the created message id.
	Send(ctx context.Context, recipient, text string, silent bool, imageURL string) (int, error)
	// Edit replaces an existing message's text. When the host refuses the
	// edit (message too old or gone), Edit falls back to a fresh send and
	// returns the new message id.
	Edit(ctx context.Context, recipient string, messageID int, text string) (int, error)
}

// BotSender sends through the Telegram Bot API.
type BotSender struct {
	bot    *tgbotapi.BotAPI
	logger *slog.Logger
}

// NewBotSender wraps a connected bot.
func NewBotSender(bot *tgbotapi.BotAPI) *BotSender {
	return &BotSender{bot: bot, logger: slog.With("component", "telegram")}
}

// baseChat resolves "@channelname" or a numeric chat id.
func baseChat(recipient string) tgbotapi.BaseChat {
	if strings.HasPrefix(recipient, "@") {
		return tgbotapi.BaseChat{ChannelUsername: recipient}
	}
	id, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		// Fall through as a channel name; Telegram will reject it loudly.
		return tgbotapi.BaseChat{ChannelUsername: recipient}
	}
	return tgbotapi.BaseChat{ChatID: id}
}

func (s *BotSender) Send(ctx context.Context, recipient, text string, silent bool, imageURL string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var msg tgbotapi.Chattable
	chat := baseChat(recipient)
	chat.DisableNotification = silent

	if imageURL != "" {
		photo := tgbotapi.PhotoConfig{
			BaseFile: tgbotapi.BaseFile{BaseChat: chat, File: tgbotapi.FileURL(imageURL)},
			Caption:  text,
		}
		photo.ParseMode = tgbotapi.ModeHTML
		msg = photo
	} else {
		text := tgbotapi.MessageConfig{BaseChat: chat, Text: text}
		text.ParseMode = tgbotapi.ModeHTML
		msg = text
	}

	sent, err := s.bot.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send to %s: %w", recipient, err)
	}
	return sent.MessageID, nil
}

// editRefusals are API errors that mean the message cannot be edited anymore;
// anything outside the edit window or already deleted. The fallback is a
// fresh send.
var editRefusals = []string{
	"message can't be edited",
	"message to edit not found",
}

func (s *BotSender) Edit(ctx context.Context, recipient string, messageID int, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	chat := baseChat(recipient)
	edit := tgbotapi.EditMessageTextConfig{
		BaseEdit: tgbotapi.BaseEdit{
			ChatID:          chat.ChatID,
			ChannelUsername: chat.ChannelUsername,
			MessageID:       messageID,
		},
		Text: text,
	}
	edit.ParseMode = tgbotapi.ModeHTML

	_, err := s.bot.Send(edit)
	if err == nil {
		return messageID, nil
	}

	for _, refusal := range editRefusals {
		if strings.Contains(err.Error(), refusal) {
			s.logger.Warn("Edit refused by host, sending fresh message",
				"recipient", recipient,
				"message_id", messageID,
				"error", err)
			return s.Send(ctx, recipient, text, true, "")
		}
	}
	return 0, fmt.Errorf("edit %s message %d: %w", recipient, messageID, err)
}
