package model

import (
	"time"

	"github.com/google/uuid"
)

// Receipt tracks the printable ticket generated asynchronously for a sale,
// and its optional email delivery.
type Receipt struct {
	ID         uuid.UUID     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleID     uuid.UUID     `gorm:"type:uuid;uniqueIndex;not null"`
	SaleNumber string        `gorm:"not null"`
	Status     ReceiptStatus `gorm:"type:varchar(20);not null;default:'pendiente'"`
	// PDFPath is absolute, under PDF_STORAGE_PATH
	PDFPath *string `gorm:"column:pdf_path"`
	Email   *string
	SentAt  *time.Time
	// Retry fields, driven by worker.StartRetryCron
	RetryCount  int        `gorm:"not null;default:0"`
	NextRetryAt *time.Time `gorm:"column:next_retry_at"`
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Receipt) TableName() string { return "receipts" }
