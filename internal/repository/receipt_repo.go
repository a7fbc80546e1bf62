package repository

import (
	"context"
	"time"

	"retailpos/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReceiptRepository interface {
	// Upsert creates the receipt for a sale or returns the existing one, so a
	// redelivered job never produces a second row.
	Upsert(ctx context.Context, r *model.Receipt) error
	FindBySaleID(ctx context.Context, saleID uuid.UUID) (*model.Receipt, error)
	Update(ctx context.Context, r *model.Receipt) error
	ListPendingRetries(ctx context.Context, now time.Time, limit int) ([]model.Receipt, error)
}

type receiptRepo struct{ db *gorm.DB }

func NewReceiptRepository(db *gorm.DB) ReceiptRepository { return &receiptRepo{db: db} }

func (r *receiptRepo) Upsert(ctx context.Context, rec *model.Receipt) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "sale_id"}}, DoNothing: true}).
		Create(rec).Error
	if err != nil {
		return classify(err)
	}
	return classify(r.db.WithContext(ctx).First(rec, "sale_id = ?", rec.SaleID).Error)
}

func (r *receiptRepo) FindBySaleID(ctx context.Context, saleID uuid.UUID) (*model.Receipt, error) {
	var rec model.Receipt
	if err := r.db.WithContext(ctx).First(&rec, "sale_id = ?", saleID).Error; err != nil {
		return nil, classify(err)
	}
	return &rec, nil
}

func (r *receiptRepo) Update(ctx context.Context, rec *model.Receipt) error {
	return classify(r.db.WithContext(ctx).Save(rec).Error)
}

func (r *receiptRepo) ListPendingRetries(ctx context.Context, now time.Time, limit int) ([]model.Receipt, error) {
	var recs []model.Receipt
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", model.ReceiptFailed, now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&recs).Error
	return recs, classify(err)
}
