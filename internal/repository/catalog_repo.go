package repository

import (
	"context"

	"retailpos/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProductRepository is a read-only view over the catalog.
type ProductRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	// FindByIDs returns the products found, keyed by id; missing ids are absent.
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error)
	// ListWithStockMin returns active products that declare a positive
	// minimum-stock threshold.
	ListWithStockMin(ctx context.Context) ([]model.Product, error)
}

type productRepo struct{ db *gorm.DB }

func NewProductRepository(db *gorm.DB) ProductRepository { return &productRepo{db: db} }

func (r *productRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var p model.Product
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, classify(err)
	}
	return &p, nil
}

func (r *productRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error) {
	var products []model.Product
	if len(ids) > 0 {
		if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
			return nil, classify(err)
		}
	}
	out := make(map[uuid.UUID]*model.Product, len(products))
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}

func (r *productRepo) ListWithStockMin(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).
		Where("active = true AND stock_min > 0").
		Order("name ASC").
		Find(&products).Error
	return products, classify(err)
}

// PaymentMethodRepository reads payment-method reference data.
type PaymentMethodRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.PaymentMethod, error)
	// FindDefault returns the active method flagged as default, falling back
	// to the active method named fallbackName.
	FindDefault(ctx context.Context, fallbackName string) (*model.PaymentMethod, error)
	ListActive(ctx context.Context) ([]model.PaymentMethod, error)
}

type paymentMethodRepo struct{ db *gorm.DB }

func NewPaymentMethodRepository(db *gorm.DB) PaymentMethodRepository {
	return &paymentMethodRepo{db: db}
}

func (r *paymentMethodRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.PaymentMethod, error) {
	var pm model.PaymentMethod
	if err := r.db.WithContext(ctx).First(&pm, "id = ?", id).Error; err != nil {
		return nil, classify(err)
	}
	return &pm, nil
}

func (r *paymentMethodRepo) FindDefault(ctx context.Context, fallbackName string) (*model.PaymentMethod, error) {
	var pm model.PaymentMethod
	err := r.db.WithContext(ctx).
		Where("active = true AND (is_default = true OR name = ?)", fallbackName).
		Order("is_default DESC").
		First(&pm).Error
	if err != nil {
		return nil, classify(err)
	}
	return &pm, nil
}

func (r *paymentMethodRepo) ListActive(ctx context.Context) ([]model.PaymentMethod, error) {
	var methods []model.PaymentMethod
	err := r.db.WithContext(ctx).Where("active = true").Order("name ASC").Find(&methods).Error
	return methods, classify(err)
}
