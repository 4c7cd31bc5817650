package usecase

import (
	"context"
	"fmt"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"go.uber.org/zap"
)

type AlertEmitter struct {
	store  domain.PriceStore
	logger *zap.Logger
}

func NewAlertEmitter(store domain.PriceStore, logger *zap.Logger) *AlertEmitter {
	return &AlertEmitter{store: store, logger: logger}
}

// IdempotencyKey identifies the single alert a (product, competitor, observation) transition may produce.
func IdempotencyKey(productID, competitorID, observationID uint) string {
	return fmt.Sprintf("%d:%d:%d", productID, competitorID, observationID)
}

// Emit persists alert for observationID unless it was stored before. The returned flag is true only
// when this call created the alert; only then should it be distributed.
func (e *AlertEmitter) Emit(ctx context.Context, alert domain.Alert, observationID uint) (*domain.Alert, bool, error) {
	alert.ObservationID = observationID
	key := IdempotencyKey(alert.ProductID, alert.CompetitorID, observationID)

	stored, created, err := e.store.CreateAlertIfAbsent(ctx, &alert, key)
	if err != nil {
		e.logger.Error(
			"failed to persist alert",
			zap.Uint("product_id", alert.ProductID),
			zap.Uint("competitor_id", alert.CompetitorID),
			zap.Uint("observation_id", observationID),
			zap.Error(err),
		)
		return nil, false, fmt.Errorf("persist alert %s: %w", key, err)
	}

	if !created {
		e.logger.Debug("alert already emitted", zap.String("idempotency_key", key), zap.Uint("alert_id", stored.ID))
		return stored, false, nil
	}

	e.logger.Info(
		"price alert created",
		zap.Uint("alert_id", stored.ID),
		zap.Uint("product_id", stored.ProductID),
		zap.Uint("competitor_id", stored.CompetitorID),
		zap.String("significance", string(stored.Significance)),
	)
	return stored, true, nil
}
