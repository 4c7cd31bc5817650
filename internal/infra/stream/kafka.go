package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const EventPriceAlert = "price_alert"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 250 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

// AlertEvent is the message published for every new alert.
type AlertEvent struct {
	Type        string       `json:"type"`
	Alert       domain.Alert `json:"alert"`
	PublishedAt time.Time    `json:"published_at"`
}

// AlertPublisher publishes alerts keyed by pair so one series stays on one partition.
type AlertPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

func NewAlertPublisher(writer messageWriter, logger *zap.Logger) *AlertPublisher {
	return &AlertPublisher{writer: writer, logger: logger}
}

func (p *AlertPublisher) Name() string { return "kafka" }

func (p *AlertPublisher) Deliver(ctx context.Context, alert domain.Alert) error {
	key := fmt.Sprintf("%d:%d", alert.ProductID, alert.CompetitorID)
	event := AlertEvent{Type: EventPriceAlert, Alert: alert, PublishedAt: time.Now().UTC()}
	if err := PublishJSON(ctx, p.writer, key, event); err != nil {
		return fmt.Errorf("publish alert %d: %w", alert.ID, err)
	}
	p.logger.Debug("alert published", zap.Uint("alert_id", alert.ID), zap.String("key", key))
	return nil
}

func (p *AlertPublisher) Close() error {
	return p.writer.Close()
}

func PublishJSON(ctx context.Context, writer messageWriter, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: body,
		Time:  time.Now().UTC(),
	})
}
