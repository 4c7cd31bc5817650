package offline

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindLookup      Kind = "LOOKUP"
	KindAlertAck    Kind = "ALERT_ACK"
	KindPriceUpdate Kind = "PRICE_UPDATE"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusFailed     Status = "FAILED"
	// StatusDead items are never replayed automatically; Revive returns them to PENDING.
	StatusDead Status = "DEAD"
)

// Item is one deferred remote operation.
type Item struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Status     Status          `json:"status"`
	RetryCount int             `json:"retry_count"`
	LastError  string          `json:"last_error,omitempty"`
}

type LookupPayload struct {
	Barcode string `json:"barcode"`
}

type AlertAckPayload struct {
	AlertID uint `json:"alert_id"`
}

type PriceUpdatePayload struct {
	ProductID uint            `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
}
