package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api         *tgbotapi.BotAPI
	handlers    *Handlers
	pollTimeout int
}

func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	return tgbotapi.NewBotAPI(token)
}

func NewBot(api *tgbotapi.BotAPI, handlers *Handlers, pollTimeout int) *Bot {
	return &Bot{api: api, handlers: handlers, pollTimeout: pollTimeout}
}

func (b *Bot) Start(ctx context.Context) error {
	config := tgbotapi.NewUpdate(0)
	config.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(config)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handlers.HandleUpdate(ctx, b.api, update)
		}
	}
}

// Notifier posts alerts at or above its threshold to a fixed set of chats.
type Notifier struct {
	api       Sender
	chatIDs   []int64
	threshold domain.Significance
	logger    *zap.Logger
}

func NewNotifier(api Sender, chatIDs []int64, threshold domain.Significance, logger *zap.Logger) *Notifier {
	return &Notifier{api: api, chatIDs: chatIDs, threshold: threshold, logger: logger}
}

func (n *Notifier) Name() string { return "telegram" }

func (n *Notifier) Deliver(ctx context.Context, alert domain.Alert) error {
	if !n.threshold.Includes(alert.Significance) {
		return nil
	}
	text := FormatAlert(alert)

	var errs []error
	for _, chatID := range n.chatIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n.logger.Info("telegram notify send", zap.Int64("chat_id", chatID), zap.Uint("alert_id", alert.ID))
		if _, err := n.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			n.logger.Warn("failed to notify", zap.Int64("chat_id", chatID), zap.Error(err))
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}
