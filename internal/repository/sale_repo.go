package repository

import (
	"context"
	"time"

	"retailpos/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaleFilter defines filters for listing sales. Day is "YYYY-MM-DD"; empty
// means any day.
type SaleFilter struct {
	Status    model.SaleStatus
	Day       string
	CashierID *uuid.UUID
	SessionID *uuid.UUID
	Page      int
	Limit     int
}

type SaleRepository interface {
	// CreateTx inserts the header together with details and payments.
	CreateTx(tx *gorm.DB, s *model.Sale) error
	// NextSequenceTx atomically increments and returns the counter for day.
	// The counter row stays locked until the transaction ends, which
	// serializes concurrent allocations for the same day.
	NextSequenceTx(tx *gorm.DB, day time.Time) (int, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error)
	LockTx(tx *gorm.DB, id uuid.UUID) (*model.Sale, error)
	UpdateStatusTx(tx *gorm.DB, s *model.Sale) error
	List(ctx context.Context, filter SaleFilter) ([]model.Sale, int64, error)
	DB() *gorm.DB
}

type saleRepo struct{ db *gorm.DB }

func NewSaleRepository(db *gorm.DB) SaleRepository { return &saleRepo{db: db} }

func (r *saleRepo) DB() *gorm.DB { return r.db }

func (r *saleRepo) CreateTx(tx *gorm.DB, s *model.Sale) error {
	return classify(tx.Create(s).Error)
}

func (r *saleRepo) NextSequenceTx(tx *gorm.DB, day time.Time) (int, error) {
	var next int
	err := tx.Raw(`
		INSERT INTO sale_counters (day, last_value) VALUES (?, 1)
		ON CONFLICT (day) DO UPDATE SET last_value = sale_counters.last_value + 1
		RETURNING last_value`, day.Format("2006-01-02"),
	).Scan(&next).Error
	return next, classify(err)
}

func (r *saleRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error) {
	var s model.Sale
	err := r.db.WithContext(ctx).
		Preload("Details.Product").
		Preload("Payments.PaymentMethod").
		First(&s, "id = ?", id).Error
	if err != nil {
		return nil, classify(err)
	}
	return &s, nil
}

func (r *saleRepo) LockTx(tx *gorm.DB, id uuid.UUID) (*model.Sale, error) {
	var s model.Sale
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, "id = ?", id).Error
	if err != nil {
		return nil, classify(err)
	}
	return &s, nil
}

func (r *saleRepo) UpdateStatusTx(tx *gorm.DB, s *model.Sale) error {
	return classify(tx.Model(&model.Sale{}).Where("id = ?", s.ID).Updates(map[string]interface{}{
		"status":        s.Status,
		"cancel_reason": s.CancelReason,
		"cancelled_by":  s.CancelledBy,
		"cancelled_at":  s.CancelledAt,
	}).Error)
}

func (r *saleRepo) List(ctx context.Context, filter SaleFilter) ([]model.Sale, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Sale{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Day != "" {
		q = q.Where("DATE(sale_date) = ?", filter.Day)
	}
	if filter.CashierID != nil {
		q = q.Where("cashier_id = ?", *filter.CashierID)
	}
	if filter.SessionID != nil {
		q = q.Where("session_id = ?", *filter.SessionID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, classify(err)
	}

	page, limit := normalizePage(filter.Page, filter.Limit)
	var sales []model.Sale
	err := q.Preload("Details").Preload("Payments").
		Order("sale_date DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&sales).Error
	return sales, total, classify(err)
}
