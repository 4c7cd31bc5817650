package db

import (
	"context"
	"errors"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	var model productModel
	if err := r.db.WithContext(ctx).Where("sku = ?", sku).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &domain.Product{
		ID:        model.ID,
		Name:      model.Name,
		SKU:       model.SKU,
		Category:  model.Category,
		ListPrice: model.ListPrice,
	}, nil
}

func (r *ProductRepository) UpdateListPrice(ctx context.Context, productID uint, price decimal.Decimal) error {
	result := r.db.WithContext(ctx).Model(&productModel{}).Where("id = ?", productID).Update("list_price", price)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
