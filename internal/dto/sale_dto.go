package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

// SaleItemRequest: UnitPrice and TaxRate default to the catalog values when
// omitted.
type SaleItemRequest struct {
	ProductID          string           `json:"product_id"          validate:"required,uuid"`
	Quantity           decimal.Decimal  `json:"quantity"            validate:"required,gt=0"`
	UnitPrice          *decimal.Decimal `json:"unit_price"          validate:"omitempty,min=0"`
	DiscountPercentage decimal.Decimal  `json:"discount_percentage" validate:"min=0,max=100"`
	TaxRate            *decimal.Decimal `json:"tax_rate"            validate:"omitempty,min=0"`
	LocationID         *string          `json:"location_id"         validate:"omitempty,uuid"`
}

type CreateSaleRequest struct {
	// CashRegisterID is accepted for compatibility and ignored: the register
	// always comes from the cashier's open session.
	CashRegisterID  *string           `json:"cash_register_id"  validate:"omitempty,uuid"`
	CustomerID      *string           `json:"customer_id"       validate:"omitempty,uuid"`
	CustomerEmail   *string           `json:"customer_email"    validate:"omitempty,email"`
	PaymentMethodID *string           `json:"payment_method_id" validate:"omitempty,uuid"`
	PaymentRef      *string           `json:"payment_reference" validate:"omitempty,max=100"`
	Items           []SaleItemRequest `json:"items"             validate:"required,min=1,dive"`
	Notes           *string           `json:"notes"             validate:"omitempty,max=500"`
}

type CancelSaleRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type SaleDetailResponse struct {
	ProductID          string          `json:"product_id"`
	ProductName        string          `json:"product_name,omitempty"`
	Quantity           decimal.Decimal `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	TaxRate            decimal.Decimal `json:"tax_rate"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	Total              decimal.Decimal `json:"total"`
}

type SalePaymentResponse struct {
	PaymentMethodID string          `json:"payment_method_id"`
	Method          string          `json:"method,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	ReferenceNumber *string         `json:"reference_number"`
}

type SaleResponse struct {
	ID             string                `json:"id"`
	SaleNumber     string                `json:"sale_number"`
	SaleDate       time.Time             `json:"sale_date"`
	CashierID      string                `json:"cashier_id"`
	CashRegisterID string                `json:"cash_register_id"`
	SessionID      string                `json:"session_id"`
	CustomerID     *string               `json:"customer_id"`
	Subtotal       decimal.Decimal       `json:"subtotal"`
	DiscountAmount decimal.Decimal       `json:"discount_amount"`
	TaxAmount      decimal.Decimal       `json:"tax_amount"`
	TotalAmount    decimal.Decimal       `json:"total_amount"`
	Status         string                `json:"status"`
	Notes          *string               `json:"notes"`
	CancelReason   *string               `json:"cancel_reason,omitempty"`
	CancelledAt    *time.Time            `json:"cancelled_at,omitempty"`
	Items          []SaleDetailResponse  `json:"items"`
	Payments       []SalePaymentResponse `json:"payments"`
}

type SaleListResponse struct {
	Data  []SaleResponse `json:"data"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

type SaleFilter struct {
	Status string `form:"status"`
	Day    string `form:"day"`
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
}
