package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CashRegister is a physical till. Static reference data.
type CashRegister struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RegisterNumber string    `gorm:"uniqueIndex;not null"`
	Location       string    `gorm:"not null;default:''"`
	Active         bool      `gorm:"not null;default:true"`
	CreatedAt      time.Time
}

func (CashRegister) TableName() string { return "cash_registers" }

// CashRegisterSession is one operator shift on one register.
// At most one session per register (and per operator) may be abierta; both
// rules are enforced by partial unique indexes (see infra.applySchemaPatches).
type CashRegisterSession struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CashRegisterID uuid.UUID       `gorm:"type:uuid;not null;index"`
	UserID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	OpeningAmount  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	// Expected/Actual/Difference stay at zero until close.
	ExpectedClosingAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	ActualClosingAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Difference            decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Status                SessionStatus   `gorm:"type:varchar(20);not null;default:'abierta'"`
	Notes                 *string
	OpenedAt              time.Time  `gorm:"not null"`
	ClosedAt              *time.Time
	UpdatedAt             time.Time

	Register *CashRegister `gorm:"foreignKey:CashRegisterID"`
}

func (CashRegisterSession) TableName() string { return "cash_register_sessions" }

func (s *CashRegisterSession) IsOpen() bool { return s.Status == SessionOpen }

// PaymentMethod is reference data; IsDefault marks the fallback used when a
// sale or cash posting does not name a method.
type PaymentMethod struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name              string    `gorm:"uniqueIndex;not null"`
	RequiresReference bool      `gorm:"not null;default:false"`
	IsDefault         bool      `gorm:"not null;default:false"`
	Active            bool      `gorm:"not null;default:true"`
	CreatedAt         time.Time
}

func (PaymentMethod) TableName() string { return "payment_methods" }

// CashTransaction is an append-only posting inside a session.
// Amount is always a positive magnitude; Kind decides its effect.
type CashTransaction struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	Kind            TransactionKind `gorm:"type:varchar(20);not null"`
	Amount          decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	PaymentMethodID uuid.UUID       `gorm:"type:uuid;not null"`
	ReferenceNumber *string
	Description     *string
	// SaleID links venta postings to their originating sale.
	SaleID    *uuid.UUID `gorm:"type:uuid;index"`
	CreatedBy uuid.UUID  `gorm:"type:uuid;not null"`
	CreatedAt time.Time

	PaymentMethod *PaymentMethod `gorm:"foreignKey:PaymentMethodID"`
}

func (CashTransaction) TableName() string { return "cash_transactions" }

// CashCount is a mid-shift drawer count by denomination. It never changes the
// session's expected amount.
type CashCount struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	CountedBy      uuid.UUID       `gorm:"type:uuid;not null"`
	ExpectedAmount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CountedAmount  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Difference     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Notes          *string
	CountedAt      time.Time `gorm:"not null"`

	Details []CashCountDetail `gorm:"foreignKey:CashCountID"`
}

func (CashCount) TableName() string { return "cash_counts" }

type CashCountDetail struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CashCountID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	Denomination decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Quantity     int             `gorm:"not null"`
	Total        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}

func (CashCountDetail) TableName() string { return "cash_count_details" }
