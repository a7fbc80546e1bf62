package repository

import (
	"context"
	"time"

	"retailpos/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MovementFilter defines filters for listing inventory movements.
type MovementFilter struct {
	ProductID *uuid.UUID
	Kind      model.MovementKind
	Page      int
	Limit     int
}

// InventoryRepository is the persistence contract of the inventory ledger.
// *Tx methods must run inside the caller's transaction.
type InventoryRepository interface {
	// Find returns ErrNotFound when the (product, location) pair has no row yet.
	Find(ctx context.Context, productID uuid.UUID, locationID *uuid.UUID) (*model.Inventory, error)
	SumByProduct(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error)
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]model.Inventory, error)

	// EnsureTx creates a zero row for the pair if absent; concurrent callers
	// converge on the same row.
	EnsureTx(tx *gorm.DB, productID uuid.UUID, locationID *uuid.UUID) error
	// LockTx reads the row FOR UPDATE.
	LockTx(tx *gorm.DB, productID uuid.UUID, locationID *uuid.UUID) (*model.Inventory, error)
	SetQuantityTx(tx *gorm.DB, inv *model.Inventory) error
	// DecrementTx subtracts qty only when quantity >= qty, in a single
	// statement. ok=false means the guard failed and nothing changed.
	DecrementTx(tx *gorm.DB, productID uuid.UUID, locationID *uuid.UUID, qty decimal.Decimal, actorID uuid.UUID) (inv *model.Inventory, ok bool, err error)
	CreateMovementTx(tx *gorm.DB, m *model.InventoryMovement) error

	ListMovements(ctx context.Context, filter MovementFilter) ([]model.InventoryMovement, int64, error)
	DB() *gorm.DB
}

type inventoryRepo struct{ db *gorm.DB }

func NewInventoryRepository(db *gorm.DB) InventoryRepository { return &inventoryRepo{db: db} }

func (r *inventoryRepo) DB() *gorm.DB { return r.db }

// atLocation scopes a query to one location; nil is the default location.
func atLocation(q *gorm.DB, productID uuid.UUID, locationID *uuid.UUID) *gorm.DB {
	q = q.Where("product_id = ?", productID)
	if locationID == nil {
		return q.Where("location_id IS NULL")
	}
	return q.Where("location_id = ?", *locationID)
}

func (r *inventoryRepo) Find(ctx context.Context, productID uuid.UUID, locationID *uuid.UUID) (*model.Inventory, error) {
	var inv model.Inventory
	err := atLocation(r.db.WithContext(ctx), productID, locationID).First(&inv).Error
	if err != nil {
		return nil, classify(err)
	}
	return &inv, nil
}

func (r *inventoryRepo) SumByProduct(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error) {
	var out struct{ Total decimal.NullDecimal }
	err := r.db.WithContext(ctx).Model(&model.Inventory{}).
		Select("SUM(quantity) AS total").
		Where("product_id = ?", productID).
		Scan(&out).Error
	if err != nil {
		return decimal.Zero, classify(err)
	}
	if !out.Total.Valid {
		return decimal.Zero, nil
	}
	return out.Total.Decimal, nil
}

func (r *inventoryRepo) ListByProduct(ctx context.Context, productID uuid.UUID) ([]model.Inventory, error) {
	var rows []model.Inventory
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).Order("location_id NULLS FIRST").Find(&rows).Error
	return rows, classify(err)
}

func (r *inventoryRepo) EnsureTx(tx *gorm.DB, productID uuid.UUID, locationID *uuid.UUID) error {
	inv := model.Inventory{
		ProductID:   productID,
		LocationID:  locationID,
		Quantity:    decimal.Zero,
		LastUpdated: time.Now(),
	}
	// Bare ON CONFLICT DO NOTHING also covers the expression index on
	// (product_id, COALESCE(location_id, ...)).
	return classify(tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&inv).Error)
}

func (r *inventoryRepo) LockTx(tx *gorm.DB, productID uuid.UUID, locationID *uuid.UUID) (*model.Inventory, error) {
	var inv model.Inventory
	err := atLocation(tx.Clauses(clause.Locking{Strength: "UPDATE"}), productID, locationID).First(&inv).Error
	if err != nil {
		return nil, classify(err)
	}
	return &inv, nil
}

func (r *inventoryRepo) SetQuantityTx(tx *gorm.DB, inv *model.Inventory) error {
	return classify(tx.Model(&model.Inventory{}).Where("id = ?", inv.ID).Updates(map[string]interface{}{
		"quantity":     inv.Quantity,
		"last_updated": inv.LastUpdated,
		"updated_by":   inv.UpdatedBy,
	}).Error)
}

func (r *inventoryRepo) DecrementTx(tx *gorm.DB, productID uuid.UUID, locationID *uuid.UUID, qty decimal.Decimal, actorID uuid.UUID) (*model.Inventory, bool, error) {
	var rows []model.Inventory
	err := tx.Raw(`
		UPDATE inventory
		   SET quantity = quantity - ?, last_updated = ?, updated_by = ?
		 WHERE product_id = ?
		   AND location_id IS NOT DISTINCT FROM ?
		   AND quantity >= ?
		RETURNING *`,
		qty, time.Now(), actorID, productID, nullableUUID(locationID), qty,
	).Scan(&rows).Error
	if err != nil {
		return nil, false, classify(err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return &rows[0], true, nil
}

func (r *inventoryRepo) CreateMovementTx(tx *gorm.DB, m *model.InventoryMovement) error {
	return classify(tx.Create(m).Error)
}

func (r *inventoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]model.InventoryMovement, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.InventoryMovement{})
	if filter.ProductID != nil {
		q = q.Where("product_id = ?", *filter.ProductID)
	}
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, classify(err)
	}

	page, limit := normalizePage(filter.Page, filter.Limit)
	var movements []model.InventoryMovement
	err := q.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&movements).Error
	return movements, total, classify(err)
}

func nullableUUID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

// normalizePage clamps pagination input to page >= 1 and 1 <= limit <= 500.
func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return page, limit
}
