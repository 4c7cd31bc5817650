package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("not found")

type PriceStore interface {
	// RecentObservations returns up to limit observations for the pair, newest first.
	RecentObservations(ctx context.Context, productID, competitorID uint, limit int) ([]PriceObservation, error)
	AppendObservation(ctx context.Context, observation *PriceObservation) error
	// CreateAlertIfAbsent stores alert under key unless the key is already taken. It returns the
	// stored alert and whether this call created it.
	CreateAlertIfAbsent(ctx context.Context, alert *Alert, key string) (*Alert, bool, error)
	ListActiveCompetitorsWithProducts(ctx context.Context) ([]CompetitorWatch, error)
}

type SubscriberDirectory interface {
	// ListSubscribersAtOrAbove returns the addresses of subscribers whose threshold accepts severity.
	ListSubscribersAtOrAbove(ctx context.Context, severity Significance) ([]string, error)
}

type AlertFeed interface {
	ListRecent(ctx context.Context, limit int) ([]AlertView, error)
	MarkRead(ctx context.Context, alertID uint, at time.Time) error
}

type ProductRepository interface {
	GetBySKU(ctx context.Context, sku string) (*Product, error)
	UpdateListPrice(ctx context.Context, productID uint, price decimal.Decimal) error
}

type JobQueue interface {
	Enqueue(ctx context.Context, job *Job) error
	ClaimNext(ctx context.Context, jobType string) (*Job, error)
	Complete(ctx context.Context, id string) error
	// Fail records a failed attempt. It reports true when the job has exhausted its attempts.
	Fail(ctx context.Context, id string, errMsg string, backoff time.Duration) (bool, error)
	// Recover returns jobs abandoned in the running state to pending.
	Recover(ctx context.Context) (int, error)
}
