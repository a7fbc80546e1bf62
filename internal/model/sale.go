package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sale is the checkout header. Created atomically with its details, payment
// and inventory movements; afterwards only Status (and the cancellation
// metadata) may change.
type Sale struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleNumber     string          `gorm:"uniqueIndex;not null"`
	SaleDate       time.Time       `gorm:"not null;index"`
	CashierID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	CashRegisterID uuid.UUID       `gorm:"type:uuid;not null"`
	SessionID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	CustomerID     *uuid.UUID      `gorm:"type:uuid"`
	CustomerEmail  *string
	Subtotal       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status         SaleStatus      `gorm:"type:varchar(20);not null;default:'completada'"`
	Notes          *string
	CancelReason   *string
	CancelledBy    *uuid.UUID `gorm:"type:uuid"`
	CancelledAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Details  []SaleDetail  `gorm:"foreignKey:SaleID"`
	Payments []SalePayment `gorm:"foreignKey:SaleID"`
}

func (Sale) TableName() string { return "sales" }

// SaleDetail is one priced line.
// Total == Subtotal - DiscountAmount + TaxAmount.
type SaleDetail struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleID             uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID          uuid.UUID       `gorm:"type:uuid;not null;index"`
	Quantity           decimal.Decimal `gorm:"type:decimal(14,3);not null"`
	UnitPrice          decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DiscountPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	DiscountAmount     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Subtotal           decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TaxRate            decimal.Decimal `gorm:"type:decimal(6,4);not null;default:0"`
	TaxAmount          decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Total              decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	Product *Product `gorm:"foreignKey:ProductID"`
}

func (SaleDetail) TableName() string { return "sale_details" }

type SalePayment struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleID          uuid.UUID       `gorm:"type:uuid;not null;index"`
	PaymentMethodID uuid.UUID       `gorm:"type:uuid;not null"`
	Amount          decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ReferenceNumber *string

	PaymentMethod *PaymentMethod `gorm:"foreignKey:PaymentMethodID"`
}

func (SalePayment) TableName() string { return "sale_payments" }

// SaleCounter is the per-day serializing counter behind sale numbers.
type SaleCounter struct {
	Day       time.Time `gorm:"type:date;primaryKey"`
	LastValue int       `gorm:"not null"`
}

func (SaleCounter) TableName() string { return "sale_counters" }
