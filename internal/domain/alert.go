package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Alert struct {
	ID               uint            `json:"id"`
	ProductID        uint            `json:"product_id"`
	CompetitorID     uint            `json:"competitor_id"`
	ObservationID    uint            `json:"observation_id"`
	ProductName      string          `json:"product_name,omitempty"`
	CompetitorName   string          `json:"competitor_name,omitempty"`
	OldPrice         decimal.Decimal `json:"old_price"`
	NewPrice         decimal.Decimal `json:"new_price"`
	PercentageChange float64         `json:"percentage_change"`
	Significance     Significance    `json:"significance"`
	Reason           string          `json:"reason"`
	CreatedAt        time.Time       `json:"created_at"`
}

// AlertView is an alert as seen by a consumer, together with its read acknowledgement.
type AlertView struct {
	Alert
	Read   bool       `json:"read"`
	ReadAt *time.Time `json:"read_at,omitempty"`
}
