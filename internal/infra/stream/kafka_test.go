package stream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestAlertPublisher_Deliver(t *testing.T) {
	writer := &fakeWriter{}
	publisher := NewAlertPublisher(writer, zap.NewNop())

	alert := domain.Alert{ID: 5, ProductID: 1, CompetitorID: 2, NewPrice: decimal.NewFromInt(10), Significance: domain.SignificanceHigh}
	if err := publisher.Deliver(context.Background(), alert); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(writer.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(writer.messages))
	}
	msg := writer.messages[0]
	if string(msg.Key) != "1:2" {
		t.Fatalf("unexpected key %q", msg.Key)
	}

	var event AlertEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Type != EventPriceAlert || event.Alert.ID != 5 || event.Alert.Significance != domain.SignificanceHigh {
		t.Fatalf("unexpected event %+v", event)
	}

	if err := publisher.Close(); err != nil || !writer.closed {
		t.Fatalf("Close: %v closed=%v", err, writer.closed)
	}
}

func TestAlertPublisher_DeliverError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	publisher := NewAlertPublisher(writer, zap.NewNop())
	if err := publisher.Deliver(context.Background(), domain.Alert{ID: 1}); !errors.Is(err, writer.err) {
		t.Fatalf("expected broker error, got %v", err)
	}
}
