package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"retailpos/internal/model"
	"retailpos/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

// ── Stubs ─────────────────────────────────────────────────────────────────────
// One in-memory store shared by every stub repository, so the sale processor,
// cash manager and inventory ledger observe each other's writes as they
// would through Postgres. DB() returns nil, which makes runTx call the
// closure directly.

type memStore struct {
	mu sync.Mutex

	products  map[uuid.UUID]*model.Product
	inventory map[stockKey]*model.Inventory
	movements []model.InventoryMovement

	registers    map[uuid.UUID]*model.CashRegister
	sessions     map[uuid.UUID]*model.CashRegisterSession
	transactions []model.CashTransaction
	counts       []model.CashCount
	methods      map[uuid.UUID]*model.PaymentMethod

	sales    map[uuid.UUID]*model.Sale
	counters map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		products:  make(map[uuid.UUID]*model.Product),
		inventory: make(map[stockKey]*model.Inventory),
		registers: make(map[uuid.UUID]*model.CashRegister),
		sessions:  make(map[uuid.UUID]*model.CashRegisterSession),
		methods:   make(map[uuid.UUID]*model.PaymentMethod),
		sales:     make(map[uuid.UUID]*model.Sale),
		counters:  make(map[string]int),
	}
}

func keyOf(productID uuid.UUID, locationID *uuid.UUID) stockKey {
	k := stockKey{productID: productID}
	if locationID != nil {
		k.locationID = *locationID
	}
	return k
}

// ── inventory ─────────────────────────────────────────────────────────────────

type stubInventoryRepo struct{ *memStore }

func (r stubInventoryRepo) Find(_ context.Context, productID uuid.UUID, locationID *uuid.UUID) (*model.Inventory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.inventory[keyOf(productID, locationID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r stubInventoryRepo) SumByProduct(_ context.Context, productID uuid.UUID) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := decimal.Zero
	for k, inv := range r.inventory {
		if k.productID == productID {
			total = total.Add(inv.Quantity)
		}
	}
	return total, nil
}

func (r stubInventoryRepo) ListByProduct(_ context.Context, productID uuid.UUID) ([]model.Inventory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Inventory
	for k, inv := range r.inventory {
		if k.productID == productID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r stubInventoryRepo) EnsureTx(_ *gorm.DB, productID uuid.UUID, locationID *uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := keyOf(productID, locationID)
	if _, ok := r.inventory[k]; !ok {
		r.inventory[k] = &model.Inventory{ID: uuid.New(), ProductID: productID, LocationID: locationID, Quantity: decimal.Zero}
	}
	return nil
}

func (r stubInventoryRepo) LockTx(tx *gorm.DB, productID uuid.UUID, locationID *uuid.UUID) (*model.Inventory, error) {
	return r.Find(context.Background(), productID, locationID)
}

func (r stubInventoryRepo) SetQuantityTx(_ *gorm.DB, inv *model.Inventory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.inventory[keyOf(inv.ProductID, inv.LocationID)]
	if !ok {
		return repository.ErrNotFound
	}
	stored.Quantity = inv.Quantity
	stored.LastUpdated = inv.LastUpdated
	stored.UpdatedBy = inv.UpdatedBy
	return nil
}

func (r stubInventoryRepo) DecrementTx(_ *gorm.DB, productID uuid.UUID, locationID *uuid.UUID, qty decimal.Decimal, actorID uuid.UUID) (*model.Inventory, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.inventory[keyOf(productID, locationID)]
	if !ok || inv.Quantity.LessThan(qty) {
		return nil, false, nil
	}
	inv.Quantity = inv.Quantity.Sub(qty)
	inv.UpdatedBy = &actorID
	cp := *inv
	return &cp, true, nil
}

func (r stubInventoryRepo) CreateMovementTx(_ *gorm.DB, m *model.InventoryMovement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	r.movements = append(r.movements, *m)
	return nil
}

func (r stubInventoryRepo) ListMovements(_ context.Context, f repository.MovementFilter) ([]model.InventoryMovement, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.InventoryMovement
	for _, m := range r.movements {
		if f.ProductID != nil && m.ProductID != *f.ProductID {
			continue
		}
		if f.Kind != "" && m.Kind != f.Kind {
			continue
		}
		out = append(out, m)
	}
	return out, int64(len(out)), nil
}

func (r stubInventoryRepo) DB() *gorm.DB { return nil }

// ── catalog ───────────────────────────────────────────────────────────────────

type stubProductRepo struct{ *memStore }

func (r stubProductRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r stubProductRepo) FindByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uuid.UUID]*model.Product)
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (r stubProductRepo) ListWithStockMin(context.Context) ([]model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Product
	for _, p := range r.products {
		if p.Active && p.StockMin.IsPositive() {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type stubPaymentMethodRepo struct{ *memStore }

func (r stubPaymentMethodRepo) FindByID(_ context.Context, id uuid.UUID) (*model.PaymentMethod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pm, ok := r.methods[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *pm
	return &cp, nil
}

func (r stubPaymentMethodRepo) FindDefault(_ context.Context, fallbackName string) (*model.PaymentMethod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var byName *model.PaymentMethod
	for _, pm := range r.methods {
		if !pm.Active {
			continue
		}
		if pm.IsDefault {
			cp := *pm
			return &cp, nil
		}
		if pm.Name == fallbackName {
			byName = pm
		}
	}
	if byName == nil {
		return nil, repository.ErrNotFound
	}
	cp := *byName
	return &cp, nil
}

func (r stubPaymentMethodRepo) ListActive(context.Context) ([]model.PaymentMethod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.PaymentMethod
	for _, pm := range r.methods {
		if pm.Active {
			out = append(out, *pm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ── cash ──────────────────────────────────────────────────────────────────────

type stubCashRepo struct{ *memStore }

func (r stubCashRepo) FindRegister(_ context.Context, id uuid.UUID) (*model.CashRegister, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.registers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *reg
	return &cp, nil
}

func (r stubCashRepo) LockRegisterTx(_ *gorm.DB, id uuid.UUID) (*model.CashRegister, error) {
	return r.FindRegister(context.Background(), id)
}

func (r stubCashRepo) CountOpenSessionsTx(_ *gorm.DB, registerID, userID uuid.UUID) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var byRegister, byOperator int64
	for _, s := range r.sessions {
		if !s.IsOpen() {
			continue
		}
		if s.CashRegisterID == registerID {
			byRegister++
		}
		if s.UserID == userID {
			byOperator++
		}
	}
	return byRegister, byOperator, nil
}

func (r stubCashRepo) CreateSessionTx(_ *gorm.DB, s *model.CashRegisterSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = uuid.New()
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r stubCashRepo) LockSessionTx(_ *gorm.DB, id uuid.UUID, _ string) (*model.CashRegisterSession, error) {
	return r.FindSessionByID(context.Background(), id)
}

func (r stubCashRepo) UpdateSessionTx(_ *gorm.DB, s *model.CashRegisterSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r stubCashRepo) FindSessionByID(_ context.Context, id uuid.UUID) (*model.CashRegisterSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r stubCashRepo) findOpen(match func(*model.CashRegisterSession) bool) (*model.CashRegisterSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.IsOpen() && match(s) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r stubCashRepo) FindOpenSessionByRegister(_ context.Context, registerID uuid.UUID) (*model.CashRegisterSession, error) {
	return r.findOpen(func(s *model.CashRegisterSession) bool { return s.CashRegisterID == registerID })
}

func (r stubCashRepo) FindOpenSessionByOperator(_ context.Context, userID uuid.UUID) (*model.CashRegisterSession, error) {
	return r.findOpen(func(s *model.CashRegisterSession) bool { return s.UserID == userID })
}

func (r stubCashRepo) ListSessions(_ context.Context, f repository.SessionFilter) ([]model.CashRegisterSession, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CashRegisterSession
	for _, s := range r.sessions {
		if f.RegisterID != nil && s.CashRegisterID != *f.RegisterID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		out = append(out, *s)
	}
	return out, int64(len(out)), nil
}

func (r stubCashRepo) CreateTransactionTx(_ *gorm.DB, t *model.CashTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	r.transactions = append(r.transactions, *t)
	return nil
}

func (r stubCashRepo) ListTransactions(_ context.Context, sessionID uuid.UUID) ([]model.CashTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CashTransaction
	for _, t := range r.transactions {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r stubCashRepo) SumByKindTx(_ *gorm.DB, sessionID uuid.UUID) (map[model.TransactionKind]decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sums := make(map[model.TransactionKind]decimal.Decimal)
	for _, t := range r.transactions {
		if t.SessionID == sessionID {
			sums[t.Kind] = sums[t.Kind].Add(t.Amount)
		}
	}
	return sums, nil
}

func (r stubCashRepo) CreateCountTx(_ *gorm.DB, c *model.CashCount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = uuid.New()
	r.counts = append(r.counts, *c)
	return nil
}

func (r stubCashRepo) DB() *gorm.DB { return nil }

// ── sales ─────────────────────────────────────────────────────────────────────

type stubSaleRepo struct{ *memStore }

func (r stubSaleRepo) CreateTx(_ *gorm.DB, s *model.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.sales {
		if existing.SaleNumber == s.SaleNumber {
			return &repository.ConstraintError{Kind: repository.ErrUniqueViolation, Constraint: "idx_sales_sale_number"}
		}
	}
	cp := *s
	cp.Details = append([]model.SaleDetail(nil), s.Details...)
	cp.Payments = append([]model.SalePayment(nil), s.Payments...)
	r.sales[s.ID] = &cp
	return nil
}

func (r stubSaleRepo) NextSequenceTx(_ *gorm.DB, day time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := day.Format("2006-01-02")
	r.counters[k]++
	return r.counters[k], nil
}

func (r stubSaleRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sales[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r stubSaleRepo) LockTx(_ *gorm.DB, id uuid.UUID) (*model.Sale, error) {
	return r.FindByID(context.Background(), id)
}

func (r stubSaleRepo) UpdateStatusTx(_ *gorm.DB, s *model.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sales[s.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.Status = s.Status
	stored.CancelReason = s.CancelReason
	stored.CancelledBy = s.CancelledBy
	stored.CancelledAt = s.CancelledAt
	return nil
}

func (r stubSaleRepo) List(_ context.Context, f repository.SaleFilter) ([]model.Sale, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Sale
	for _, s := range r.sales {
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if f.Day != "" && s.SaleDate.Format("2006-01-02") != f.Day {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SaleNumber < out[j].SaleNumber })
	return out, int64(len(out)), nil
}

func (r stubSaleRepo) DB() *gorm.DB { return nil }

var (
	_ repository.InventoryRepository     = stubInventoryRepo{}
	_ repository.ProductRepository       = stubProductRepo{}
	_ repository.PaymentMethodRepository = stubPaymentMethodRepo{}
	_ repository.CashRepository          = stubCashRepo{}
	_ repository.SaleRepository          = stubSaleRepo{}
)

// ── Fixture ───────────────────────────────────────────────────────────────────

type fixture struct {
	store     *memStore
	inventory InventoryService
	cash      CashService
	sales     SaleService

	register   *model.CashRegister
	register2  *model.CashRegister
	cashMethod *model.PaymentMethod
	cardMethod *model.PaymentMethod

	cashier    Actor
	cashier2   Actor
	supervisor Actor
	admin      Actor
}

var saleClock = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := newMemStore()
	f := &fixture{
		store:      st,
		register:   &model.CashRegister{ID: uuid.New(), RegisterNumber: "CAJA-01", Active: true},
		register2:  &model.CashRegister{ID: uuid.New(), RegisterNumber: "CAJA-02", Active: true},
		cashMethod: &model.PaymentMethod{ID: uuid.New(), Name: "Efectivo", IsDefault: true, Active: true},
		cardMethod: &model.PaymentMethod{ID: uuid.New(), Name: "Tarjeta de Crédito", RequiresReference: true, Active: true},
		cashier:    Actor{ID: uuid.New(), Role: model.RoleCajero},
		cashier2:   Actor{ID: uuid.New(), Role: model.RoleCajero},
		supervisor: Actor{ID: uuid.New(), Role: model.RoleSupervisor},
		admin:      Actor{ID: uuid.New(), Role: model.RoleAdministrador},
	}
	st.registers[f.register.ID] = f.register
	st.registers[f.register2.ID] = f.register2
	st.methods[f.cashMethod.ID] = f.cashMethod
	st.methods[f.cardMethod.ID] = f.cardMethod

	f.inventory = NewInventoryService(stubInventoryRepo{st}, stubProductRepo{st}, nil)
	f.cash = NewCashService(stubCashRepo{st}, stubPaymentMethodRepo{st}, "Efectivo", nil)
	svc := NewSaleService(stubSaleRepo{st}, stubProductRepo{st}, f.inventory, f.cash, nil, nil, "V").(*saleService)
	svc.now = func() time.Time { return saleClock }
	f.sales = svc
	return f
}

// addProduct registers an active product with stock at the default location.
func (f *fixture) addProduct(name, price, taxRate, stock string) *model.Product {
	p := &model.Product{
		ID:        uuid.New(),
		SKU:       "SKU-" + name,
		Name:      name,
		SalePrice: decimal.RequireFromString(price),
		TaxRate:   decimal.RequireFromString(taxRate),
		Active:    true,
	}
	f.store.products[p.ID] = p
	if stock != "" {
		f.setStock(p.ID, nil, stock)
	}
	return p
}

func (f *fixture) setStock(productID uuid.UUID, locationID *uuid.UUID, qty string) {
	f.store.inventory[keyOf(productID, locationID)] = &model.Inventory{
		ID:         uuid.New(),
		ProductID:  productID,
		LocationID: locationID,
		Quantity:   decimal.RequireFromString(qty),
	}
}

func (f *fixture) stock(productID uuid.UUID, locationID *uuid.UUID) decimal.Decimal {
	inv, ok := f.store.inventory[keyOf(productID, locationID)]
	if !ok {
		return decimal.Zero
	}
	return inv.Quantity
}

func (f *fixture) openSession(t *testing.T, actor Actor, register *model.CashRegister, amount string) uuid.UUID {
	t.Helper()
	resp, err := f.cash.Open(context.Background(), actor, openReq(register, amount))
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	return uuid.MustParse(resp.ID)
}

// ── helpers ───────────────────────────────────────────────────────────────────

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func strPtr(s string) *string { return &s }

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	if !dec(want).Equal(got) {
		assert.Fail(t, "decimal mismatch", append([]interface{}{"want " + want + ", got " + got.String()}, msgAndArgs...)...)
	}
}
