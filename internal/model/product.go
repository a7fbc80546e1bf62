package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is owned by catalog management; the POS core only reads it for
// price, tax rate and the low-stock threshold.
type Product struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SKU       string          `gorm:"column:sku;uniqueIndex;not null"`
	Name      string          `gorm:"index;not null"`
	SalePrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CostPrice decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	// TaxRate is an opaque multiplier (0.18 = 18%)
	TaxRate   decimal.Decimal `gorm:"type:decimal(6,4);not null;default:0"`
	StockMin  decimal.Decimal `gorm:"type:decimal(14,3);not null;default:0"`
	Active    bool            `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Product) TableName() string { return "products" }
