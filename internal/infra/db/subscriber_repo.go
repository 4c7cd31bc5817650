package db

import (
	"context"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"gorm.io/gorm"
)

type SubscriberRepository struct {
	db *gorm.DB
}

func NewSubscriberRepository(db *gorm.DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

func (r *SubscriberRepository) ListSubscribersAtOrAbove(ctx context.Context, severity domain.Significance) ([]string, error) {
	thresholds := severity.AcceptingThresholds()
	if len(thresholds) == 0 {
		return nil, domain.ErrInvalidSignificance
	}
	values := make([]string, 0, len(thresholds))
	for _, threshold := range thresholds {
		values = append(values, string(threshold))
	}

	var emails []string
	err := r.db.WithContext(ctx).
		Model(&subscriberModel{}).
		Where("min_significance IN ?", values).
		Order("id").
		Pluck("email", &emails).Error
	if err != nil {
		return nil, err
	}
	return emails, nil
}
