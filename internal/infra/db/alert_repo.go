package db

import (
	"context"
	"errors"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

type alertRow struct {
	alertModel
	ProductName    string
	CompetitorName string
	ReadAt         *time.Time
}

func (r *AlertRepository) ListRecent(ctx context.Context, limit int) ([]domain.AlertView, error) {
	var rows []alertRow
	err := r.db.WithContext(ctx).
		Table("price_alerts").
		Select("price_alerts.*, products.name AS product_name, competitors.name AS competitor_name, alert_reads.read_at AS read_at").
		Joins("LEFT JOIN products ON products.id = price_alerts.product_id").
		Joins("LEFT JOIN competitors ON competitors.id = price_alerts.competitor_id").
		Joins("LEFT JOIN alert_reads ON alert_reads.alert_id = price_alerts.id").
		Order("price_alerts.created_at DESC, price_alerts.id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	views := make([]domain.AlertView, 0, len(rows))
	for _, row := range rows {
		alert := mapAlertToDomain(row.alertModel)
		alert.ProductName = row.ProductName
		alert.CompetitorName = row.CompetitorName
		views = append(views, domain.AlertView{Alert: alert, Read: row.ReadAt != nil, ReadAt: row.ReadAt})
	}
	return views, nil
}

// MarkRead records the first read acknowledgement of an alert; repeated calls keep the original time.
func (r *AlertRepository) MarkRead(ctx context.Context, alertID uint, at time.Time) error {
	var alert alertModel
	if err := r.db.WithContext(ctx).Select("id").First(&alert, alertID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		return err
	}

	read := alertReadModel{AlertID: alertID, ReadAt: at.UTC()}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&read).Error
}
