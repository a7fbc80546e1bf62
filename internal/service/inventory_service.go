package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"retailpos/internal/dto"
	"retailpos/internal/metrics"
	"retailpos/internal/model"
	"retailpos/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryService is the inventory ledger: on-hand quantities per
// (product, location) plus the append-only movement log.
type InventoryService interface {
	GetQuantity(ctx context.Context, productID uuid.UUID, locationID *uuid.UUID) (decimal.Decimal, error)
	GetTotalAcrossLocations(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error)
	GetStock(ctx context.Context, productID uuid.UUID) (*dto.StockResponse, error)

	Adjust(ctx context.Context, actor Actor, req dto.AdjustInventoryRequest) (*dto.AdjustInventoryResponse, error)
	Receive(ctx context.Context, actor Actor, req dto.ReceiveStockRequest) (*dto.AdjustInventoryResponse, error)

	// ReserveAndDeductTx is reserved for the sale processor and must run inside
	// its transaction.
	ReserveAndDeductTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, locationID *uuid.UUID, qty decimal.Decimal, referenceDocument string, actorID uuid.UUID) (*model.InventoryMovement, error)

	ListMovements(ctx context.Context, filter dto.MovementFilter) (*dto.MovementListResponse, error)
	LowStockAlerts(ctx context.Context) ([]dto.StockAlertResponse, error)
}

type inventoryService struct {
	repo     repository.InventoryRepository
	products repository.ProductRepository
	metrics  *metrics.Metrics
}

func NewInventoryService(repo repository.InventoryRepository, products repository.ProductRepository, m *metrics.Metrics) InventoryService {
	return &inventoryService{repo: repo, products: products, metrics: m}
}

// ── Queries ───────────────────────────────────────────────────────────────────

func (s *inventoryService) GetQuantity(ctx context.Context, productID uuid.UUID, locationID *uuid.UUID) (decimal.Decimal, error) {
	inv, err := s.repo.Find(ctx, productID, locationID)
	if errors.Is(err, repository.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, persistenceError("consultar stock", err)
	}
	return inv.Quantity, nil
}

func (s *inventoryService) GetTotalAcrossLocations(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error) {
	total, err := s.repo.SumByProduct(ctx, productID)
	if err != nil {
		return decimal.Zero, persistenceError("sumar stock", err)
	}
	return total, nil
}

func (s *inventoryService) GetStock(ctx context.Context, productID uuid.UUID) (*dto.StockResponse, error) {
	rows, err := s.repo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, persistenceError("consultar stock", err)
	}
	resp := &dto.StockResponse{
		ProductID: productID.String(),
		Quantity:  decimal.Zero,
		Total:     decimal.Zero,
		Locations: make([]dto.InventoryResponse, 0, len(rows)),
	}
	for i := range rows {
		if rows[i].LocationID == nil {
			resp.Quantity = rows[i].Quantity
		}
		resp.Total = resp.Total.Add(rows[i].Quantity)
		resp.Locations = append(resp.Locations, inventoryToResponse(&rows[i]))
	}
	return resp, nil
}

// ── Adjust ────────────────────────────────────────────────────────────────────
// Administrative correction to an absolute quantity. The row is created on
// first touch and locked before the read so concurrent adjustments serialize.

func (s *inventoryService) Adjust(ctx context.Context, actor Actor, req dto.AdjustInventoryRequest) (*dto.AdjustInventoryResponse, error) {
	if err := authorize(actor, stockManagers...); err != nil {
		return nil, err
	}
	productID, locationID, err := s.parseTarget(ctx, req.ProductID, req.LocationID)
	if err != nil {
		return nil, err
	}
	if req.NewQuantity.IsNegative() {
		return nil, invalid("new_quantity", "no puede ser negativa")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, invalid("reason", "es obligatorio")
	}
	newQty := req.NewQuantity.Round(3)

	var inv *model.Inventory
	var mov *model.InventoryMovement
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		var err error
		inv, err = s.lockOrCreateTx(tx, productID, locationID)
		if err != nil {
			return err
		}
		previous := inv.Quantity
		inv.Quantity = newQty
		inv.LastUpdated = time.Now()
		inv.UpdatedBy = &actor.ID
		if err := s.repo.SetQuantityTx(tx, inv); err != nil {
			return err
		}
		mov = &model.InventoryMovement{
			ProductID:     productID,
			LocationID:    locationID,
			Kind:          model.MovAjuste,
			Quantity:      newQty.Sub(previous),
			PreviousStock: previous,
			NewStock:      newQty,
			Reason:        &reason,
			UserID:        actor.ID,
		}
		return s.repo.CreateMovementTx(tx, mov)
	})
	if txErr != nil {
		return nil, persistenceError("ajustar inventario", txErr)
	}

	s.metrics.RecordInventoryMovement(string(model.MovAjuste))
	log.Info().
		Str("product_id", productID.String()).
		Str("previous", mov.PreviousStock.String()).
		Str("new", mov.NewStock.String()).
		Str("actor", actor.ID.String()).
		Msg("inventario ajustado")

	return &dto.AdjustInventoryResponse{
		Inventory: inventoryToResponse(inv),
		Movement:  movementToResponse(mov),
	}, nil
}

// ── Receive ───────────────────────────────────────────────────────────────────
// Goods in: supplier delivery (recepcion) or any other positive entry.

func (s *inventoryService) Receive(ctx context.Context, actor Actor, req dto.ReceiveStockRequest) (*dto.AdjustInventoryResponse, error) {
	if err := authorize(actor, stockManagers...); err != nil {
		return nil, err
	}
	productID, locationID, err := s.parseTarget(ctx, req.ProductID, req.LocationID)
	if err != nil {
		return nil, err
	}
	if !req.Quantity.IsPositive() {
		return nil, invalid("quantity", "debe ser mayor a cero")
	}
	kind := model.MovEntrada
	if req.Kind != "" {
		k, err := model.ParseMovementKind(req.Kind)
		if err != nil || (k != model.MovEntrada && k != model.MovRecepcion) {
			return nil, invalid("kind", "debe ser entrada o recepcion")
		}
		kind = k
	}
	qty := req.Quantity.Round(3)

	var inv *model.Inventory
	var mov *model.InventoryMovement
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		var err error
		inv, err = s.lockOrCreateTx(tx, productID, locationID)
		if err != nil {
			return err
		}
		previous := inv.Quantity
		inv.Quantity = previous.Add(qty)
		inv.LastUpdated = time.Now()
		inv.UpdatedBy = &actor.ID
		if err := s.repo.SetQuantityTx(tx, inv); err != nil {
			return err
		}
		mov = &model.InventoryMovement{
			ProductID:         productID,
			LocationID:        locationID,
			Kind:              kind,
			Quantity:          qty,
			PreviousStock:     previous,
			NewStock:          inv.Quantity,
			Reason:            req.Reason,
			ReferenceDocument: req.ReferenceDocument,
			UserID:            actor.ID,
		}
		return s.repo.CreateMovementTx(tx, mov)
	})
	if txErr != nil {
		return nil, persistenceError("registrar entrada", txErr)
	}

	s.metrics.RecordInventoryMovement(string(kind))
	log.Info().
		Str("product_id", productID.String()).
		Str("kind", string(kind)).
		Str("quantity", qty.String()).
		Msg("entrada de inventario registrada")

	return &dto.AdjustInventoryResponse{
		Inventory: inventoryToResponse(inv),
		Movement:  movementToResponse(mov),
	}, nil
}

func (s *inventoryService) lockOrCreateTx(tx *gorm.DB, productID uuid.UUID, locationID *uuid.UUID) (*model.Inventory, error) {
	if err := s.repo.EnsureTx(tx, productID, locationID); err != nil {
		return nil, err
	}
	return s.repo.LockTx(tx, productID, locationID)
}

// ── ReserveAndDeductTx ────────────────────────────────────────────────────────
// A single conditional UPDATE: the stock check and the decrement cannot be
// split by a concurrent sale of the same product.

func (s *inventoryService) ReserveAndDeductTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, locationID *uuid.UUID, qty decimal.Decimal, referenceDocument string, actorID uuid.UUID) (*model.InventoryMovement, error) {
	if !qty.IsPositive() {
		return nil, invalid("quantity", "debe ser mayor a cero")
	}
	inv, ok, err := s.repo.DecrementTx(tx, productID, locationID, qty, actorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		available, qerr := s.GetQuantity(ctx, productID, locationID)
		if qerr != nil {
			return nil, qerr
		}
		s.metrics.RecordInsufficientStock("commit")
		return nil, &InsufficientStockError{ProductID: productID, Requested: qty, Available: available}
	}

	ref := referenceDocument
	mov := &model.InventoryMovement{
		ProductID:         productID,
		LocationID:        locationID,
		Kind:              model.MovSalida,
		Quantity:          qty,
		PreviousStock:     inv.Quantity.Add(qty),
		NewStock:          inv.Quantity,
		ReferenceDocument: &ref,
		UserID:            actorID,
	}
	if err := s.repo.CreateMovementTx(tx, mov); err != nil {
		return nil, err
	}
	return mov, nil
}

// ── ListMovements / LowStockAlerts ───────────────────────────────────────────

func (s *inventoryService) ListMovements(ctx context.Context, filter dto.MovementFilter) (*dto.MovementListResponse, error) {
	f := repository.MovementFilter{Page: filter.Page, Limit: filter.Limit}
	if filter.ProductID != "" {
		id, err := uuid.Parse(filter.ProductID)
		if err != nil {
			return nil, invalid("product_id", "uuid invalido")
		}
		f.ProductID = &id
	}
	if filter.Kind != "" {
		k, err := model.ParseMovementKind(filter.Kind)
		if err != nil {
			return nil, invalid("kind", err.Error())
		}
		f.Kind = k
	}

	movs, total, err := s.repo.ListMovements(ctx, f)
	if err != nil {
		return nil, persistenceError("listar movimientos", err)
	}
	page, limit := pageBounds(filter.Page, filter.Limit)
	resp := &dto.MovementListResponse{
		Data:  make([]dto.MovementResponse, 0, len(movs)),
		Total: total,
		Page:  page,
		Limit: limit,
	}
	for i := range movs {
		resp.Data = append(resp.Data, movementToResponse(&movs[i]))
	}
	return resp, nil
}

// LowStockAlerts returns active products whose stock across all locations is
// below their configured minimum.
func (s *inventoryService) LowStockAlerts(ctx context.Context) ([]dto.StockAlertResponse, error) {
	products, err := s.products.ListWithStockMin(ctx)
	if err != nil {
		return nil, persistenceError("listar productos", err)
	}
	alerts := make([]dto.StockAlertResponse, 0)
	for _, p := range products {
		total, err := s.GetTotalAcrossLocations(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if total.LessThan(p.StockMin) {
			alerts = append(alerts, dto.StockAlertResponse{
				ProductID:    p.ID.String(),
				SKU:          p.SKU,
				Name:         p.Name,
				CurrentStock: total,
				StockMin:     p.StockMin,
				Shortfall:    p.StockMin.Sub(total),
			})
		}
	}
	return alerts, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func (s *inventoryService) parseTarget(ctx context.Context, rawProduct string, rawLocation *string) (uuid.UUID, *uuid.UUID, error) {
	productID, err := uuid.Parse(rawProduct)
	if err != nil {
		return uuid.Nil, nil, invalid("product_id", "uuid invalido")
	}
	if _, err := s.products.FindByID(ctx, productID); err != nil {
		return uuid.Nil, nil, persistenceError("buscar producto", err)
	}
	locationID, err := parseOptionalUUID("location_id", rawLocation)
	if err != nil {
		return uuid.Nil, nil, err
	}
	return productID, locationID, nil
}

func parseOptionalUUID(field string, raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, invalid(field, "uuid invalido")
	}
	return &id, nil
}

// pageBounds mirrors the repository's pagination clamp for the response echo.
func pageBounds(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return page, limit
}

func inventoryToResponse(inv *model.Inventory) dto.InventoryResponse {
	return dto.InventoryResponse{
		ID:          inv.ID.String(),
		ProductID:   inv.ProductID.String(),
		LocationID:  uuidPtrString(inv.LocationID),
		Quantity:    inv.Quantity,
		LastUpdated: inv.LastUpdated,
	}
}

func movementToResponse(m *model.InventoryMovement) dto.MovementResponse {
	return dto.MovementResponse{
		ID:                m.ID.String(),
		ProductID:         m.ProductID.String(),
		LocationID:        uuidPtrString(m.LocationID),
		Kind:              string(m.Kind),
		Quantity:          m.Quantity,
		PreviousStock:     m.PreviousStock,
		NewStock:          m.NewStock,
		Reason:            m.Reason,
		ReferenceDocument: m.ReferenceDocument,
		UserID:            m.UserID.String(),
		CreatedAt:         m.CreatedAt,
	}
}

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
