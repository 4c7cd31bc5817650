package db

import (
	"context"
	"errors"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PriceRepository struct {
	db *gorm.DB
}

func NewPriceRepository(db *gorm.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

func (r *PriceRepository) RecentObservations(ctx context.Context, productID, competitorID uint, limit int) ([]domain.PriceObservation, error) {
	var models []observationModel
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND competitor_id = ?", productID, competitorID).
		Order("observed_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	observations := make([]domain.PriceObservation, 0, len(models))
	for _, model := range models {
		observations = append(observations, mapObservationToDomain(model))
	}
	return observations, nil
}

func (r *PriceRepository) AppendObservation(ctx context.Context, observation *domain.PriceObservation) error {
	model := observationModel{
		ProductID:    observation.ProductID,
		CompetitorID: observation.CompetitorID,
		Price:        observation.Price,
		Currency:     observation.Currency,
		SourceURL:    observation.SourceURL,
		ObservedAt:   observation.ObservedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	observation.ID = model.ID
	observation.ObservedAt = model.ObservedAt
	return nil
}

func (r *PriceRepository) CreateAlertIfAbsent(ctx context.Context, alert *domain.Alert, key string) (*domain.Alert, bool, error) {
	model := mapAlertToModel(*alert)
	model.IdempotencyKey = key

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "idempotency_key"}}, DoNothing: true}).
		Create(&model)
	if result.Error != nil {
		return nil, false, result.Error
	}

	created := result.RowsAffected > 0
	if !created {
		if err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, false, domain.ErrNotFound
			}
			return nil, false, err
		}
	}

	stored := mapAlertToDomain(model)
	stored.ProductName = alert.ProductName
	stored.CompetitorName = alert.CompetitorName
	return &stored, created, nil
}

type listingRow struct {
	CompetitorID uint
	URL          string
	ProductID    uint
	Name         string
	SKU          string
	Category     string
	ListPrice    *decimal.Decimal
}

func (r *PriceRepository) ListActiveCompetitorsWithProducts(ctx context.Context) ([]domain.CompetitorWatch, error) {
	var competitors []competitorModel
	if err := r.db.WithContext(ctx).Where("active = ?", true).Order("id").Find(&competitors).Error; err != nil {
		return nil, err
	}
	if len(competitors) == 0 {
		return nil, nil
	}

	var rows []listingRow
	err := r.db.WithContext(ctx).
		Table("listings").
		Select("listings.competitor_id, listings.url, products.id AS product_id, products.name, products.sku, products.category, products.list_price").
		Joins("JOIN products ON products.id = listings.product_id").
		Joins("JOIN competitors ON competitors.id = listings.competitor_id").
		Where("competitors.active = ?", true).
		Order("listings.competitor_id, products.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	listings := make(map[uint][]domain.Listing, len(competitors))
	for _, row := range rows {
		listings[row.CompetitorID] = append(listings[row.CompetitorID], domain.Listing{
			Product: domain.Product{
				ID:        row.ProductID,
				Name:      row.Name,
				SKU:       row.SKU,
				Category:  row.Category,
				ListPrice: row.ListPrice,
			},
			URL: row.URL,
		})
	}

	watches := make([]domain.CompetitorWatch, 0, len(competitors))
	for _, competitor := range competitors {
		watches = append(watches, domain.CompetitorWatch{
			Competitor: domain.Competitor{
				ID:       competitor.ID,
				Name:     competitor.Name,
				Endpoint: competitor.Endpoint,
				Active:   competitor.Active,
			},
			Listings: listings[competitor.ID],
		})
	}
	return watches, nil
}

func mapObservationToDomain(model observationModel) domain.PriceObservation {
	return domain.PriceObservation{
		ID:           model.ID,
		ProductID:    model.ProductID,
		CompetitorID: model.CompetitorID,
		Price:        model.Price,
		Currency:     model.Currency,
		SourceURL:    model.SourceURL,
		ObservedAt:   model.ObservedAt,
	}
}

func mapAlertToDomain(model alertModel) domain.Alert {
	return domain.Alert{
		ID:               model.ID,
		ProductID:        model.ProductID,
		CompetitorID:     model.CompetitorID,
		ObservationID:    model.ObservationID,
		OldPrice:         model.OldPrice,
		NewPrice:         model.NewPrice,
		PercentageChange: model.PercentageChange,
		Significance:     domain.Significance(model.Significance),
		Reason:           model.Reason,
		CreatedAt:        model.CreatedAt,
	}
}

func mapAlertToModel(alert domain.Alert) alertModel {
	return alertModel{
		ID:               alert.ID,
		ProductID:        alert.ProductID,
		CompetitorID:     alert.CompetitorID,
		ObservationID:    alert.ObservationID,
		OldPrice:         alert.OldPrice,
		NewPrice:         alert.NewPrice,
		PercentageChange: alert.PercentageChange,
		Significance:     string(alert.Significance),
		Reason:           alert.Reason,
		CreatedAt:        alert.CreatedAt,
	}
}
