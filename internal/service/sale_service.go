package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"retailpos/internal/dto"
	"retailpos/internal/metrics"
	"retailpos/internal/model"
	"retailpos/internal/repository"
	"retailpos/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type SaleService interface {
	CreateSale(ctx context.Context, actor Actor, req dto.CreateSaleRequest) (*dto.SaleResponse, error)
	CancelSale(ctx context.Context, actor Actor, saleID uuid.UUID, reason string) (*dto.SaleResponse, error)
	GetSale(ctx context.Context, saleID uuid.UUID) (*dto.SaleResponse, error)
	ListSales(ctx context.Context, filter dto.SaleFilter) (*dto.SaleListResponse, error)
}

type saleService struct {
	repo         repository.SaleRepository
	products     repository.ProductRepository
	inventory    InventoryService
	cash         CashService
	dispatcher   *worker.Dispatcher
	metrics      *metrics.Metrics
	numberPrefix string
	now          func() time.Time
}

func NewSaleService(
	repo repository.SaleRepository,
	products repository.ProductRepository,
	inventory InventoryService,
	cash CashService,
	dispatcher *worker.Dispatcher,
	m *metrics.Metrics,
	numberPrefix string,
) SaleService {
	if numberPrefix == "" {
		numberPrefix = "V"
	}
	return &saleService{
		repo:         repo,
		products:     products,
		inventory:    inventory,
		cash:         cash,
		dispatcher:   dispatcher,
		metrics:      m,
		numberPrefix: numberPrefix,
		now:          time.Now,
	}
}

// stockKey identifies one inventory row touched by a sale.
type stockKey struct {
	productID  uuid.UUID
	locationID uuid.UUID // uuid.Nil for the default location
}

func (k stockKey) location() *uuid.UUID {
	if k.locationID == uuid.Nil {
		return nil
	}
	id := k.locationID
	return &id
}

type resolvedLine struct {
	key     stockKey
	detail  model.SaleDetail
	product *model.Product
}

// ── CreateSale ────────────────────────────────────────────────────────────────
// Business rules are checked before any write:
//   1. cashier's open session (the register always comes from it)
//   2. payment method (supplied or default)
//   3. stock per product/location, duplicate lines aggregated
//   4. line pricing
// Then one transaction: session re-check, sale number, header + details +
// payment, conditional stock decrements in product order, cash posting.

func (s *saleService) CreateSale(ctx context.Context, actor Actor, req dto.CreateSaleRequest) (*dto.SaleResponse, error) {
	if err := authorize(actor, cashOperators...); err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, invalid("items", "la venta debe tener al menos un item")
	}
	customerID, err := parseOptionalUUID("customer_id", req.CustomerID)
	if err != nil {
		return nil, err
	}
	pmID, err := parseOptionalUUID("payment_method_id", req.PaymentMethodID)
	if err != nil {
		return nil, err
	}

	session, err := s.cash.ResolveOpenSession(ctx, actor.ID)
	if err != nil {
		log.Warn().Str("cashier", actor.ID.String()).Err(err).Msg("venta rechazada")
		return nil, err
	}

	pm, err := s.cash.ResolvePaymentMethod(ctx, pmID)
	if err != nil {
		return nil, err
	}
	if pm.RequiresReference && (req.PaymentRef == nil || strings.TrimSpace(*req.PaymentRef) == "") {
		return nil, invalid("payment_reference", "el metodo de pago "+pm.Name+" requiere referencia")
	}

	lines, err := s.resolveLines(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	required, keys := aggregateStock(lines)
	for _, k := range keys {
		available, err := s.inventory.GetQuantity(ctx, k.productID, k.location())
		if err != nil {
			return nil, err
		}
		if available.LessThan(required[k]) {
			s.metrics.RecordInsufficientStock("precheck")
			log.Warn().
				Str("product_id", k.productID.String()).
				Str("requested", required[k].String()).
				Str("available", available.String()).
				Msg("venta rechazada por stock insuficiente")
			return nil, &InsufficientStockError{ProductID: k.productID, Requested: required[k], Available: available}
		}
	}

	saleDate := s.now()
	sale := &model.Sale{
		ID:             uuid.New(),
		SaleDate:       saleDate,
		CashierID:      actor.ID,
		CashRegisterID: session.CashRegisterID,
		SessionID:      session.ID,
		CustomerID:     customerID,
		CustomerEmail:  req.CustomerEmail,
		Status:         model.SaleCompleted,
		Notes:          req.Notes,
	}
	for _, l := range lines {
		sale.Details = append(sale.Details, l.detail)
	}
	applyTotals(sale)
	sale.Payments = []model.SalePayment{{
		PaymentMethodID: pm.ID,
		Amount:          sale.TotalAmount,
		ReferenceNumber: req.PaymentRef,
	}}

	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if err := s.cash.EnsureOpenTx(tx, session.ID); err != nil {
			return err
		}
		seq, err := s.repo.NextSequenceTx(tx, saleDate)
		if err != nil {
			return err
		}
		sale.SaleNumber = formatSaleNumber(s.numberPrefix, saleDate, seq)

		if err := s.repo.CreateTx(tx, sale); err != nil {
			return err
		}
		for _, k := range keys {
			if _, err := s.inventory.ReserveAndDeductTx(ctx, tx, k.productID, k.location(), required[k], sale.SaleNumber, actor.ID); err != nil {
				return err
			}
		}

		// Cash amounts must be strictly positive; a fully discounted sale
		// posts nothing.
		if !sale.TotalAmount.IsPositive() {
			return nil
		}
		ref := sale.SaleNumber
		desc := "Venta " + sale.SaleNumber
		saleID := sale.ID
		return s.cash.PostTx(tx, session.ID, &model.CashTransaction{
			Kind:            model.TxVenta,
			Amount:          sale.TotalAmount,
			PaymentMethodID: pm.ID,
			ReferenceNumber: &ref,
			Description:     &desc,
			SaleID:          &saleID,
			CreatedBy:       actor.ID,
		})
	})
	if txErr != nil {
		return nil, persistenceError("registrar venta", txErr)
	}

	s.metrics.RecordSaleCreated(sale.TotalAmount)
	for range keys {
		s.metrics.RecordInventoryMovement(string(model.MovSalida))
	}
	log.Info().
		Str("sale_id", sale.ID.String()).
		Str("sale_number", sale.SaleNumber).
		Str("session_id", session.ID.String()).
		Str("total", sale.TotalAmount.String()).
		Msg("venta registrada")

	// Receipt generation is best effort; a failed enqueue never undoes the sale.
	if s.dispatcher != nil {
		payload := worker.ReceiptJobPayload{SaleID: sale.ID.String(), CustomerEmail: req.CustomerEmail}
		if err := s.dispatcher.EnqueueReceipt(ctx, payload); err != nil {
			log.Warn().Err(err).Str("sale_id", sale.ID.String()).Msg("no se pudo encolar el ticket")
		}
	}

	for i := range sale.Details {
		sale.Details[i].Product = lines[i].product
	}
	sale.Payments[0].PaymentMethod = pm
	return saleToResponse(sale), nil
}

// resolveLines validates every item and prices it. Unit price and tax rate
// fall back to the catalog when the request omits them.
func (s *saleService) resolveLines(ctx context.Context, items []dto.SaleItemRequest) ([]resolvedLine, error) {
	ids := make([]uuid.UUID, 0, len(items))
	parsed := make([]uuid.UUID, len(items))
	for i, item := range items {
		id, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, invalid(fmt.Sprintf("items[%d].product_id", i), "uuid invalido")
		}
		parsed[i] = id
		ids = append(ids, id)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, persistenceError("buscar productos", err)
	}

	lines := make([]resolvedLine, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)
		p, ok := products[parsed[i]]
		if !ok || !p.Active {
			return nil, fmt.Errorf("producto %s: %w", parsed[i], ErrNotFound)
		}
		if !item.Quantity.IsPositive() {
			return nil, invalid(field+".quantity", "debe ser mayor a cero")
		}
		if item.DiscountPercentage.IsNegative() || item.DiscountPercentage.GreaterThan(hundred) {
			return nil, invalid(field+".discount_percentage", "debe estar entre 0 y 100")
		}
		unitPrice := p.SalePrice
		if item.UnitPrice != nil {
			if item.UnitPrice.IsNegative() {
				return nil, invalid(field+".unit_price", "no puede ser negativo")
			}
			unitPrice = *item.UnitPrice
		}
		taxRate := p.TaxRate
		if item.TaxRate != nil {
			if item.TaxRate.IsNegative() {
				return nil, invalid(field+".tax_rate", "no puede ser negativo")
			}
			taxRate = *item.TaxRate
		}
		locationID, err := parseOptionalUUID(field+".location_id", item.LocationID)
		if err != nil {
			return nil, err
		}

		detail := priceLine(item.Quantity, unitPrice, item.DiscountPercentage, taxRate)
		detail.ProductID = p.ID
		key := stockKey{productID: p.ID}
		if locationID != nil {
			key.locationID = *locationID
		}
		lines = append(lines, resolvedLine{key: key, detail: detail, product: p})
	}
	return lines, nil
}

// priceLine computes one line. Monetary parts are rounded to cents first and
// the total is derived from the rounded parts, so
// total == subtotal - discount + tax holds exactly.
func priceLine(qty, unitPrice, discountPct, taxRate decimal.Decimal) model.SaleDetail {
	qty = qty.Round(3)
	unitPrice = roundMoney(unitPrice)
	subtotal := roundMoney(qty.Mul(unitPrice))
	discount := roundMoney(subtotal.Mul(discountPct).Div(hundred))
	tax := roundMoney(subtotal.Sub(discount).Mul(taxRate))
	return model.SaleDetail{
		Quantity:           qty,
		UnitPrice:          unitPrice,
		DiscountPercentage: discountPct,
		DiscountAmount:     discount,
		Subtotal:           subtotal,
		TaxRate:            taxRate,
		TaxAmount:          tax,
		Total:              subtotal.Sub(discount).Add(tax),
	}
}

// applyTotals sets the header to the sums of the line fields.
func applyTotals(sale *model.Sale) {
	sale.Subtotal = decimal.Zero
	sale.DiscountAmount = decimal.Zero
	sale.TaxAmount = decimal.Zero
	for _, d := range sale.Details {
		sale.Subtotal = sale.Subtotal.Add(d.Subtotal)
		sale.DiscountAmount = sale.DiscountAmount.Add(d.DiscountAmount)
		sale.TaxAmount = sale.TaxAmount.Add(d.TaxAmount)
	}
	sale.TotalAmount = sale.Subtotal.Sub(sale.DiscountAmount).Add(sale.TaxAmount)
}

// aggregateStock sums requested quantities per inventory row and returns the
// rows in a stable order (product id, then location id). Every sale locks
// rows in this order, which keeps concurrent sales from deadlocking.
func aggregateStock(lines []resolvedLine) (map[stockKey]decimal.Decimal, []stockKey) {
	required := make(map[stockKey]decimal.Decimal)
	keys := make([]stockKey, 0, len(lines))
	for _, l := range lines {
		q, seen := required[l.key]
		if !seen {
			keys = append(keys, l.key)
			q = decimal.Zero
		}
		required[l.key] = q.Add(l.detail.Quantity)
	}
	sort.Slice(keys, func(i, j int) bool {
		if c := bytes.Compare(keys[i].productID[:], keys[j].productID[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(keys[i].locationID[:], keys[j].locationID[:]) < 0
	})
	return required, keys
}

func formatSaleNumber(prefix string, day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, day.Format("20060102"), seq)
}

// ── CancelSale ────────────────────────────────────────────────────────────────
// Status-only transition. Deducted stock is not restored and no cash reversal
// is posted.

func (s *saleService) CancelSale(ctx context.Context, actor Actor, saleID uuid.UUID, reason string) (*dto.SaleResponse, error) {
	if err := authorize(actor, saleVoiders...); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("reason", "es obligatorio")
	}

	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		sale, err := s.repo.LockTx(tx, saleID)
		if err != nil {
			return err
		}
		if sale.Status != model.SaleCompleted {
			return ErrAlreadyCancelled
		}
		now := s.now()
		sale.Status = model.SaleCancelled
		sale.CancelReason = &reason
		sale.CancelledBy = &actor.ID
		sale.CancelledAt = &now
		return s.repo.UpdateStatusTx(tx, sale)
	})
	if txErr != nil {
		return nil, persistenceError("cancelar venta", txErr)
	}

	s.metrics.RecordSaleCancelled()
	log.Info().
		Str("sale_id", saleID.String()).
		Str("actor", actor.ID.String()).
		Str("reason", reason).
		Msg("venta cancelada")
	return s.GetSale(ctx, saleID)
}

// ── Queries ───────────────────────────────────────────────────────────────────

func (s *saleService) GetSale(ctx context.Context, saleID uuid.UUID) (*dto.SaleResponse, error) {
	sale, err := s.repo.FindByID(ctx, saleID)
	if err != nil {
		return nil, persistenceError("buscar venta", err)
	}
	return saleToResponse(sale), nil
}

func (s *saleService) ListSales(ctx context.Context, filter dto.SaleFilter) (*dto.SaleListResponse, error) {
	f := repository.SaleFilter{Page: filter.Page, Limit: filter.Limit}
	if filter.Status != "" {
		st, err := model.ParseSaleStatus(filter.Status)
		if err != nil {
			return nil, invalid("status", err.Error())
		}
		f.Status = st
	}
	if filter.Day != "" {
		if _, err := time.Parse("2006-01-02", filter.Day); err != nil {
			return nil, invalid("day", "formato esperado YYYY-MM-DD")
		}
		f.Day = filter.Day
	}

	sales, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, persistenceError("listar ventas", err)
	}
	page, limit := pageBounds(filter.Page, filter.Limit)
	resp := &dto.SaleListResponse{
		Data:  make([]dto.SaleResponse, 0, len(sales)),
		Total: total,
		Page:  page,
		Limit: limit,
	}
	for i := range sales {
		resp.Data = append(resp.Data, *saleToResponse(&sales[i]))
	}
	return resp, nil
}

// ── Mapping ───────────────────────────────────────────────────────────────────

func saleToResponse(s *model.Sale) *dto.SaleResponse {
	resp := &dto.SaleResponse{
		ID:             s.ID.String(),
		SaleNumber:     s.SaleNumber,
		SaleDate:       s.SaleDate,
		CashierID:      s.CashierID.String(),
		CashRegisterID: s.CashRegisterID.String(),
		SessionID:      s.SessionID.String(),
		CustomerID:     uuidPtrString(s.CustomerID),
		Subtotal:       s.Subtotal,
		DiscountAmount: s.DiscountAmount,
		TaxAmount:      s.TaxAmount,
		TotalAmount:    s.TotalAmount,
		Status:         string(s.Status),
		Notes:          s.Notes,
		CancelReason:   s.CancelReason,
		CancelledAt:    s.CancelledAt,
		Items:          make([]dto.SaleDetailResponse, 0, len(s.Details)),
		Payments:       make([]dto.SalePaymentResponse, 0, len(s.Payments)),
	}
	for _, d := range s.Details {
		item := dto.SaleDetailResponse{
			ProductID:          d.ProductID.String(),
			Quantity:           d.Quantity,
			UnitPrice:          d.UnitPrice,
			DiscountPercentage: d.DiscountPercentage,
			DiscountAmount:     d.DiscountAmount,
			Subtotal:           d.Subtotal,
			TaxRate:            d.TaxRate,
			TaxAmount:          d.TaxAmount,
			Total:              d.Total,
		}
		if d.Product != nil {
			item.ProductName = d.Product.Name
		}
		resp.Items = append(resp.Items, item)
	}
	for _, p := range s.Payments {
		pay := dto.SalePaymentResponse{
			PaymentMethodID: p.PaymentMethodID.String(),
			Amount:          p.Amount,
			ReferenceNumber: p.ReferenceNumber,
		}
		if p.PaymentMethod != nil {
			pay.Method = p.PaymentMethod.Name
		}
		resp.Payments = append(resp.Payments, pay)
	}
	return resp
}
