//go:build integration

package router

// End-to-end tests through the HTTP surface with real Postgres and Redis.
// Run with: go test -tags integration ./internal/router/... -v

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"retailpos/internal/apierror"
	"retailpos/internal/infra"
	"retailpos/internal/metrics"
	"retailpos/internal/model"
	"retailpos/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ── Helpers ──────────────────────────────────────────────────────────────────

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func do(t *testing.T, srv *httptest.Server, method, path string, body *bytes.Buffer, token string) *http.Response {
	t.Helper()
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequest(method, srv.URL+path, body)
	} else {
		req, err = http.NewRequest(method, srv.URL+path, nil)
	}
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

// ── Environment ──────────────────────────────────────────────────────────────

type e2eEnv struct {
	server   *httptest.Server
	db       *gorm.DB
	rdb      *redis.Client
	register *model.CashRegister
}

const e2ePassword = "e2e-pass-1234"

func setupE2E(t *testing.T) *e2eEnv {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("retailpos_e2e"),
		tcpostgres.WithUsername("retailpos"),
		tcpostgres.WithPassword("retailpos"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, pgC)
	require.NoError(t, err)
	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rdC, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, rdC)
	require.NoError(t, err)
	rdURL, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, infra.RunMigrations(db))

	rdb, err := infra.NewRedis(rdURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(e2ePassword), bcrypt.MinCost)
	require.NoError(t, err)
	for _, u := range []model.User{
		{Username: "admin", FullName: "Admin E2E", PasswordHash: string(hash), Role: model.RoleAdministrador, Active: true},
		{Username: "caja1", FullName: "Cajero E2E", PasswordHash: string(hash), Role: model.RoleCajero, Active: true},
	} {
		u := u
		require.NoError(t, db.Create(&u).Error)
	}
	require.NoError(t, db.Create(&model.PaymentMethod{Name: "Efectivo", IsDefault: true, Active: true}).Error)
	register := &model.CashRegister{RegisterNumber: "CAJA-01", Active: true}
	require.NoError(t, db.Create(register).Error)

	cfg := testConfig()
	cfg.RedisURL = rdURL
	cfg.DatabaseURL = dsn

	r := New(cfg, Deps{
		DB:         db,
		Redis:      rdb,
		Metrics:    metrics.New(metrics.DefaultConfig()),
		Dispatcher: worker.NewDispatcher(rdb),
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &e2eEnv{server: srv, db: db, rdb: rdb, register: register}
}

func (e *e2eEnv) login(t *testing.T, username string) string {
	t.Helper()
	resp := do(t, e.server, http.MethodPost, "/v1/auth/login",
		jsonBody(t, map[string]string{"username": username, "password": e2ePassword}), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		AccessToken string `json:"access_token"`
	}
	decodeJSON(t, resp, &body)
	require.NotEmpty(t, body.AccessToken)
	return body.AccessToken
}

func (e *e2eEnv) product(t *testing.T, price, taxRate, stock string) *model.Product {
	t.Helper()
	p := &model.Product{
		SKU:       "E2E-" + price + "-" + stock,
		Name:      "Gaseosa 500ml",
		SalePrice: decimal.RequireFromString(price),
		TaxRate:   decimal.RequireFromString(taxRate),
		Active:    true,
	}
	require.NoError(t, e.db.Create(p).Error)
	require.NoError(t, e.db.Create(&model.Inventory{
		ProductID:   p.ID,
		Quantity:    decimal.RequireFromString(stock),
		LastUpdated: time.Now(),
	}).Error)
	return p
}

// ── Tests ────────────────────────────────────────────────────────────────────

func TestE2E_Health(t *testing.T) {
	env := setupE2E(t)

	resp := do(t, env.server, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	decodeJSON(t, resp, &body)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "connected", body["redis"])
}

func TestE2E_FullSaleCycle(t *testing.T) {
	env := setupE2E(t)
	cashier := env.login(t, "caja1")
	admin := env.login(t, "admin")
	prod := env.product(t, "10.00", "0.18", "5")

	// 1. Open session
	resp := do(t, env.server, http.MethodPost, "/v1/caja/sesiones",
		jsonBody(t, map[string]any{"cash_register_id": env.register.ID.String(), "opening_amount": "100.00"}),
		cashier)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var session struct {
		ID string `json:"id"`
	}
	decodeJSON(t, resp, &session)

	// 2. Sell two units
	resp = do(t, env.server, http.MethodPost, "/v1/ventas",
		jsonBody(t, map[string]any{
			"items": []map[string]any{{"product_id": prod.ID.String(), "quantity": "2"}},
		}),
		cashier)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sale struct {
		ID          string          `json:"id"`
		SaleNumber  string          `json:"sale_number"`
		Status      string          `json:"status"`
		TotalAmount decimal.Decimal `json:"total_amount"`
	}
	decodeJSON(t, resp, &sale)
	assert.True(t, strings.HasPrefix(sale.SaleNumber, "V-"), sale.SaleNumber)
	assert.Equal(t, "completada", sale.Status)
	assert.True(t, decimal.RequireFromString("23.60").Equal(sale.TotalAmount), sale.TotalAmount.String())

	// 3. Stock went down
	resp = do(t, env.server, http.MethodGet, "/v1/inventario/"+prod.ID.String(), nil, cashier)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stock struct {
		Quantity decimal.Decimal `json:"quantity"`
	}
	decodeJSON(t, resp, &stock)
	assert.True(t, decimal.NewFromInt(3).Equal(stock.Quantity), stock.Quantity.String())

	// 4. Oversell is rejected with the shortfall details
	resp = do(t, env.server, http.MethodPost, "/v1/ventas",
		jsonBody(t, map[string]any{
			"items": []map[string]any{{"product_id": prod.ID.String(), "quantity": "10"}},
		}),
		cashier)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var apiErr apierror.APIError
	decodeJSON(t, resp, &apiErr)
	assert.Equal(t, apierror.CodeInsufficientStock, apiErr.Code)

	// 5. Close the session; the drawer holds opening + sale
	resp = do(t, env.server, http.MethodPost, "/v1/caja/sesiones/"+session.ID+"/cerrar",
		jsonBody(t, map[string]any{"actual_closing_amount": "123.60"}),
		cashier)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var closed struct {
		Status     string          `json:"status"`
		Difference decimal.Decimal `json:"difference"`
	}
	decodeJSON(t, resp, &closed)
	assert.Equal(t, "cerrada", closed.Status)
	assert.True(t, closed.Difference.IsZero(), closed.Difference.String())

	// 6. Only an administrator cancels, and only once
	cancelPath := "/v1/ventas/" + sale.ID + "/cancelar"
	resp = do(t, env.server, http.MethodPost, cancelPath, jsonBody(t, map[string]string{"reason": "cliente desistio"}), cashier)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, env.server, http.MethodPost, cancelPath, jsonBody(t, map[string]string{"reason": "cliente desistio"}), admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &sale)
	assert.Equal(t, "cancelada", sale.Status)

	resp = do(t, env.server, http.MethodPost, cancelPath, jsonBody(t, map[string]string{"reason": "otra vez"}), admin)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestE2E_SecondOpenSessionConflicts(t *testing.T) {
	env := setupE2E(t)
	cashier := env.login(t, "caja1")

	body := map[string]any{"cash_register_id": env.register.ID.String(), "opening_amount": "50"}
	resp := do(t, env.server, http.MethodPost, "/v1/caja/sesiones", jsonBody(t, body), cashier)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, env.server, http.MethodPost, "/v1/caja/sesiones", jsonBody(t, body), cashier)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestE2E_SaleQueuesReceiptJob(t *testing.T) {
	env := setupE2E(t)
	cashier := env.login(t, "caja1")
	prod := env.product(t, "4.50", "0", "10")

	resp := do(t, env.server, http.MethodPost, "/v1/caja/sesiones",
		jsonBody(t, map[string]any{"cash_register_id": env.register.ID.String(), "opening_amount": "0"}), cashier)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, env.server, http.MethodPost, "/v1/ventas",
		jsonBody(t, map[string]any{
			"items": []map[string]any{{"product_id": prod.ID.String(), "quantity": "1"}},
		}),
		cashier)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	n, err := env.rdb.LLen(context.Background(), worker.QueueReceipt).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
