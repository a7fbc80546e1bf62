package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type AdjustInventoryRequest struct {
	ProductID   string          `json:"product_id"   validate:"required,uuid"`
	LocationID  *string         `json:"location_id"  validate:"omitempty,uuid"`
	NewQuantity decimal.Decimal `json:"new_quantity" validate:"min=0"`
	Reason      string          `json:"reason"       validate:"required,min=3,max=500"`
}

type ReceiveStockRequest struct {
	ProductID         string          `json:"product_id"         validate:"required,uuid"`
	LocationID        *string         `json:"location_id"        validate:"omitempty,uuid"`
	Quantity          decimal.Decimal `json:"quantity"           validate:"required,gt=0"`
	Kind              string          `json:"kind"               validate:"omitempty,oneof=entrada recepcion"`
	Reason            *string         `json:"reason"             validate:"omitempty,max=500"`
	ReferenceDocument *string         `json:"reference_document" validate:"omitempty,max=100"`
}

type MovementFilter struct {
	ProductID string `form:"product_id"`
	Kind      string `form:"kind"`
	Page      int    `form:"page"`
	Limit     int    `form:"limit"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type InventoryResponse struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	LocationID  *string         `json:"location_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	LastUpdated time.Time       `json:"last_updated"`
}

type MovementResponse struct {
	ID                string          `json:"id"`
	ProductID         string          `json:"product_id"`
	LocationID        *string         `json:"location_id"`
	Kind              string          `json:"kind"`
	Quantity          decimal.Decimal `json:"quantity"`
	PreviousStock     decimal.Decimal `json:"previous_stock"`
	NewStock          decimal.Decimal `json:"new_stock"`
	Reason            *string         `json:"reason"`
	ReferenceDocument *string         `json:"reference_document"`
	UserID            string          `json:"user_id"`
	CreatedAt         time.Time       `json:"created_at"`
}

type AdjustInventoryResponse struct {
	Inventory InventoryResponse `json:"inventory"`
	Movement  MovementResponse  `json:"movement"`
}

type MovementListResponse struct {
	Data  []MovementResponse `json:"data"`
	Total int64              `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

type StockResponse struct {
	ProductID string              `json:"product_id"`
	Quantity  decimal.Decimal     `json:"quantity"`
	Total     decimal.Decimal     `json:"total_across_locations"`
	Locations []InventoryResponse `json:"locations"`
}

type StockAlertResponse struct {
	ProductID    string          `json:"product_id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	StockMin     decimal.Decimal `json:"stock_min"`
	Shortfall    decimal.Decimal `json:"shortfall"`
}
