package telegram

import (
	"context"

	"github.com/NasaVasa/pricewatch/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Handlers answers read-only commands from the chats that receive alerts.
type Handlers struct {
	feed    domain.AlertFeed
	allowed map[int64]struct{}
	logger  *zap.Logger
}

func NewHandlers(feed domain.AlertFeed, chatIDs []int64, logger *zap.Logger) *Handlers {
	allowed := make(map[int64]struct{}, len(chatIDs))
	for _, id := range chatIDs {
		allowed[id] = struct{}{}
	}
	return &Handlers{feed: feed, allowed: allowed, logger: logger}
}

func (h *Handlers) HandleUpdate(ctx context.Context, api Sender, update tgbotapi.Update) {
	if update.Message == nil {
		return
	}
	if update.Message.IsCommand() {
		h.handleCommand(ctx, api, update)
		return
	}
}

func (h *Handlers) handleCommand(ctx context.Context, api Sender, update tgbotapi.Update) {
	command := update.Message.Command()
	args := update.Message.CommandArguments()
	chatID := update.Message.Chat.ID

	h.logger.Info(
		"telegram command received",
		zap.Int64("chat_id", chatID),
		zap.String("command", command),
		zap.String("args", args),
	)

	if _, ok := h.allowed[chatID]; !ok {
		h.reply(api, chatID, "This chat is not subscribed to price alerts.")
		return
	}

	switch command {
	case "start", "help":
		h.reply(api, chatID, HelpText)
	case "alerts":
		limit, err := ParseLimit(args)
		if err != nil {
			h.reply(api, chatID, "Usage: /alerts [n]")
			return
		}
		alerts, err := h.feed.ListRecent(ctx, limit)
		if err != nil {
			h.logger.Warn("alerts command failed", zap.Int64("chat_id", chatID), zap.Error(err))
			h.reply(api, chatID, "Failed to load alerts, try again later.")
			return
		}
		h.reply(api, chatID, FormatAlertList(alerts))
	default:
		h.reply(api, chatID, "Unknown command. Use /help.")
	}
}

func (h *Handlers) reply(api Sender, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := api.Send(msg); err != nil {
		h.logger.Warn("failed to send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
