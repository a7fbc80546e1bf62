package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type OpenSessionRequest struct {
	CashRegisterID string          `json:"cash_register_id" validate:"required,uuid"`
	OpeningAmount  decimal.Decimal `json:"opening_amount"   validate:"min=0"`
	Notes          *string         `json:"notes"            validate:"omitempty,max=500"`
}

type CloseSessionRequest struct {
	ActualClosingAmount decimal.Decimal `json:"actual_closing_amount" validate:"min=0"`
	Notes               *string         `json:"notes"                 validate:"omitempty,max=500"`
}

// CashTransactionRequest accepts the legacy aliases deposito/retiro for kind.
type CashTransactionRequest struct {
	Kind            string          `json:"kind"              validate:"required,oneof=venta ingreso egreso arqueo deposito retiro"`
	Amount          decimal.Decimal `json:"amount"            validate:"required,gt=0"`
	PaymentMethodID *string         `json:"payment_method_id" validate:"omitempty,uuid"`
	ReferenceNumber *string         `json:"reference_number"  validate:"omitempty,max=100"`
	Description     *string         `json:"description"       validate:"omitempty,max=500"`
}

type CashCountLine struct {
	Denomination decimal.Decimal `json:"denomination" validate:"required,gt=0"`
	Quantity     int             `json:"quantity"     validate:"min=0"`
}

type CashCountRequest struct {
	Details []CashCountLine `json:"details" validate:"required,min=1,dive"`
	Notes   *string         `json:"notes"   validate:"omitempty,max=500"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type SessionResponse struct {
	ID                    string          `json:"id"`
	CashRegisterID        string          `json:"cash_register_id"`
	RegisterNumber        string          `json:"register_number,omitempty"`
	UserID                string          `json:"user_id"`
	Status                string          `json:"status"`
	OpeningAmount         decimal.Decimal `json:"opening_amount"`
	ExpectedClosingAmount decimal.Decimal `json:"expected_closing_amount"`
	ActualClosingAmount   decimal.Decimal `json:"actual_closing_amount"`
	Difference            decimal.Decimal `json:"difference"`
	Notes                 *string         `json:"notes"`
	OpenedAt              time.Time       `json:"opened_at"`
	ClosedAt              *time.Time      `json:"closed_at"`
}

type SessionListResponse struct {
	Data  []SessionResponse `json:"data"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

type CashTransactionResponse struct {
	ID                string          `json:"id"`
	SessionID         string          `json:"session_id"`
	Kind              string          `json:"kind"`
	Amount            decimal.Decimal `json:"amount"`
	PaymentMethodID   string          `json:"payment_method_id"`
	PaymentMethodName string          `json:"payment_method_name,omitempty"`
	ReferenceNumber   *string         `json:"reference_number"`
	Description       *string         `json:"description"`
	SaleID            *string         `json:"sale_id,omitempty"`
	CreatedBy         string          `json:"created_by"`
	CreatedAt         time.Time       `json:"created_at"`
}

type CashCountResponse struct {
	ID             string          `json:"id"`
	SessionID      string          `json:"session_id"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	CountedAmount  decimal.Decimal `json:"counted_amount"`
	Difference     decimal.Decimal `json:"difference"`
	Notes          *string         `json:"notes"`
	CountedAt      time.Time       `json:"counted_at"`
}

type PaymentMethodResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	RequiresReference bool   `json:"requires_reference"`
	IsDefault         bool   `json:"is_default"`
}
