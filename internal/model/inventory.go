package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Location is a physical stock position. A nil location on Inventory means
// the store's default location.
type Location struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name     string    `gorm:"not null"`
	Aisle    *string
	Shelf    *string
	Position *string
	Active   bool `gorm:"not null;default:true"`
}

func (Location) TableName() string { return "locations" }

// Inventory holds the on-hand quantity for one (product, location) pair.
// Quantities are fractional (weight-based goods) and never negative after a
// committed sale.
type Inventory struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	LocationID  *uuid.UUID      `gorm:"type:uuid;index"`
	Quantity    decimal.Decimal `gorm:"type:decimal(14,3);not null;default:0"`
	LastUpdated time.Time       `gorm:"not null"`
	UpdatedBy   *uuid.UUID      `gorm:"type:uuid"`
}

func (Inventory) TableName() string { return "inventory" }

// InventoryMovement is the immutable audit row written with every stock change.
// NewStock == PreviousStock + Kind.Signed(Quantity) always holds.
type InventoryMovement struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProductID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	LocationID        *uuid.UUID      `gorm:"type:uuid"`
	Kind              MovementKind    `gorm:"type:varchar(20);not null;index"`
	Quantity          decimal.Decimal `gorm:"type:decimal(14,3);not null"`
	PreviousStock     decimal.Decimal `gorm:"type:decimal(14,3);not null"`
	NewStock          decimal.Decimal `gorm:"type:decimal(14,3);not null"`
	Reason            *string
	ReferenceDocument *string `gorm:"index"`
	UserID            uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt         time.Time
}

func (InventoryMovement) TableName() string { return "inventory_movements" }

// Signed applies the direction implied by k to a movement quantity.
// Ajuste quantities are already signed deltas.
func (k MovementKind) Signed(q decimal.Decimal) decimal.Decimal {
	switch k {
	case MovSalida, MovVenta:
		return q.Neg()
	}
	return q
}
