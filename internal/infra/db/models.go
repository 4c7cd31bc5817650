package db

import (
	"time"

	"github.com/shopspring/decimal"
)

type productModel struct {
	ID        uint             `gorm:"primaryKey"`
	Name      string           `gorm:"not null"`
	SKU       string           `gorm:"uniqueIndex;not null"`
	Category  string           `gorm:""`
	ListPrice *decimal.Decimal `gorm:"type:numeric(14,4)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (productModel) TableName() string { return "products" }

type competitorModel struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Endpoint  string `gorm:"not null"`
	Active    bool   `gorm:"index;not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (competitorModel) TableName() string { return "competitors" }

type listingModel struct {
	ProductID    uint   `gorm:"primaryKey"`
	CompetitorID uint   `gorm:"primaryKey"`
	URL          string `gorm:""`
	CreatedAt    time.Time
}

func (listingModel) TableName() string { return "listings" }

type observationModel struct {
	ID           uint            `gorm:"primaryKey"`
	ProductID    uint            `gorm:"index:idx_observations_pair_time,priority:1;not null"`
	CompetitorID uint            `gorm:"index:idx_observations_pair_time,priority:2;not null"`
	Price        decimal.Decimal `gorm:"type:numeric(14,4);not null"`
	Currency     string          `gorm:""`
	SourceURL    string          `gorm:"not null"`
	ObservedAt   time.Time       `gorm:"index:idx_observations_pair_time,priority:3;not null"`
}

func (observationModel) TableName() string { return "price_observations" }

type alertModel struct {
	ID               uint            `gorm:"primaryKey"`
	IdempotencyKey   string          `gorm:"uniqueIndex;not null"`
	ProductID        uint            `gorm:"index;not null"`
	CompetitorID     uint            `gorm:"index;not null"`
	ObservationID    uint            `gorm:"not null"`
	OldPrice         decimal.Decimal `gorm:"type:numeric(14,4);not null"`
	NewPrice         decimal.Decimal `gorm:"type:numeric(14,4);not null"`
	PercentageChange float64         `gorm:"not null"`
	Significance     string          `gorm:"index;not null"`
	Reason           string          `gorm:"not null"`
	CreatedAt        time.Time       `gorm:"index"`
}

func (alertModel) TableName() string { return "price_alerts" }

type alertReadModel struct {
	AlertID uint      `gorm:"primaryKey"`
	ReadAt  time.Time `gorm:"not null"`
}

func (alertReadModel) TableName() string { return "alert_reads" }

type subscriberModel struct {
	ID              uint   `gorm:"primaryKey"`
	Email           string `gorm:"uniqueIndex;not null"`
	MinSignificance string `gorm:"index;not null;default:HIGH"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (subscriberModel) TableName() string { return "alert_subscribers" }

type jobModel struct {
	ID          string    `gorm:"primaryKey"`
	Type        string    `gorm:"index:idx_jobs_claim,priority:2;not null"`
	Status      string    `gorm:"index:idx_jobs_claim,priority:1;not null"`
	Attempts    int       `gorm:"not null;default:0"`
	MaxAttempts int       `gorm:"not null"`
	RunAfter    time.Time `gorm:"index:idx_jobs_claim,priority:3;not null"`
	LastError   string    `gorm:""`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (jobModel) TableName() string { return "jobs" }
