package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"retailpos/internal/dto"
	"retailpos/internal/infra"
	"retailpos/internal/middleware"
	"retailpos/internal/model"
	"retailpos/internal/repository"
	"retailpos/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "handler-test-secret"

func init() { gin.SetMode(gin.TestMode) }

// ── Stubs ─────────────────────────────────────────────────────────────────────
// Each stub embeds the service interface and overrides only what the test
// touches; anything else panics on the nil embedded value.

type stubSales struct {
	service.SaleService
	gotActor service.Actor
	gotReq   dto.CreateSaleRequest
	err      error
}

func (s *stubSales) CreateSale(_ context.Context, actor service.Actor, req dto.CreateSaleRequest) (*dto.SaleResponse, error) {
	s.gotActor, s.gotReq = actor, req
	if s.err != nil {
		return nil, s.err
	}
	return &dto.SaleResponse{ID: uuid.NewString(), SaleNumber: "V-20260315-0001", Status: "completada"}, nil
}

func (s *stubSales) CancelSale(_ context.Context, actor service.Actor, _ uuid.UUID, _ string) (*dto.SaleResponse, error) {
	s.gotActor = actor
	if s.err != nil {
		return nil, s.err
	}
	return &dto.SaleResponse{Status: "cancelada"}, nil
}

type stubCash struct {
	service.CashService
	open *dto.SessionResponse
	err  error
}

func (s *stubCash) Open(context.Context, service.Actor, dto.OpenSessionRequest) (*dto.SessionResponse, error) {
	return s.open, s.err
}

func (s *stubCash) GetOpenSessionForOperator(context.Context, uuid.UUID) (*dto.SessionResponse, error) {
	return s.open, s.err
}

func (s *stubCash) ListSessions(_ context.Context, f repository.SessionFilter) (*dto.SessionListResponse, error) {
	return &dto.SessionListResponse{Total: 0, Page: f.Page, Limit: f.Limit}, nil
}

type stubAuth struct{ err error }

func (s stubAuth) Login(context.Context, dto.LoginRequest) (*dto.LoginResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.LoginResponse{AccessToken: "a", RefreshToken: "r", TokenType: "bearer"}, nil
}

func (s stubAuth) Refresh(context.Context, string) (*dto.LoginResponse, error) { return nil, s.err }

var (
	_ service.SaleService = (*stubSales)(nil)
	_ service.CashService = (*stubCash)(nil)
	_ service.AuthService = stubAuth{}
)

// ── Helpers ───────────────────────────────────────────────────────────────────

var cashierID = uuid.MustParse("6f1c2b1e-1111-4d4d-9a9a-000000000001")

func token(t *testing.T, rol string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  cashierID.String(),
		"username": "ana",
		"rol":      rol,
		"typ":      "access",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func engine(sales service.SaleService, cash service.CashService) *gin.Engine {
	r := gin.New()
	v1 := r.Group("/v1", middleware.JWTAuth(secret))
	sh := NewSalesHandler(sales)
	ch := NewCashHandler(cash)
	v1.POST("/ventas", sh.CreateSale)
	v1.POST("/ventas/:id/cancelar", middleware.RequireRole("administrador"), sh.CancelSale)
	v1.POST("/caja/sesiones", ch.OpenSession)
	v1.GET("/caja/sesiones", ch.ListSessions)
	v1.GET("/caja/sesiones/activa", ch.ActiveSession)
	return r
}

func do(r http.Handler, method, path, tok string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    string          `json:"code"`
	Detail  string          `json:"detail"`
	Details json.RawMessage `json:"details"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var e envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e), w.Body.String())
	return e
}

func saleBody() map[string]interface{} {
	return map[string]interface{}{
		"items": []map[string]interface{}{
			{"product_id": uuid.NewString(), "quantity": "2", "discount_percentage": "10"},
		},
	}
}

// ── Sales ─────────────────────────────────────────────────────────────────────

func TestCreateSale_Created(t *testing.T) {
	sales := &stubSales{}
	r := engine(sales, &stubCash{})

	w := do(r, http.MethodPost, "/v1/ventas", token(t, "cajero"), saleBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	assert.Equal(t, cashierID, sales.gotActor.ID)
	assert.Equal(t, model.RoleCajero, sales.gotActor.Role)
	require.Len(t, sales.gotReq.Items, 1)
	assert.True(t, sales.gotReq.Items[0].Quantity.Equal(decimal.NewFromInt(2)))
}

func TestCreateSale_ValidationUsesJSONNames(t *testing.T) {
	r := engine(&stubSales{}, &stubCash{})

	body := map[string]interface{}{"items": []map[string]interface{}{{"product_id": "nope", "quantity": "0"}}}
	w := do(r, http.MethodPost, "/v1/ventas", token(t, "cajero"), body)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	e := decodeEnvelope(t, w)
	assert.Equal(t, "VALIDATION_ERROR", e.Code)
	var fields map[string]string
	require.NoError(t, json.Unmarshal(e.Details, &fields))
	assert.Equal(t, "uuid", fields["items[0].product_id"])
	assert.Equal(t, "required", fields["items[0].quantity"])
}

func TestCreateSale_MalformedJSON(t *testing.T) {
	r := engine(&stubSales{}, &stubCash{})

	req := httptest.NewRequest(http.MethodPost, "/v1/ventas", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+token(t, "cajero"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateSale_ErrorMapping(t *testing.T) {
	productID := uuid.New()
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"insufficient stock", &service.InsufficientStockError{ProductID: productID, Requested: decimal.NewFromInt(5), Available: decimal.NewFromInt(2)}, 400, "INSUFFICIENT_STOCK"},
		{"no open session", service.ErrNoOpenSession, 400, "NO_OPEN_SESSION"},
		{"no payment method", service.ErrNoPaymentMethodConfigured, 400, "NO_PAYMENT_METHOD_CONFIGURED"},
		{"wrapped not found", errors.Join(errors.New("producto x"), service.ErrNotFound), 404, "NOT_FOUND"},
		{"forbidden", service.ErrForbidden, 403, "FORBIDDEN"},
		{"validation", &service.ValidationError{Fields: map[string]string{"payment_reference": "requerido"}}, 422, "VALIDATION_ERROR"},
		{"transient", &service.ConsistencyError{Op: "registrar venta", Err: repository.ErrTransient}, 503, "TRANSIENT_FAILURE"},
		{"integrity", &service.IntegrityError{Op: "registrar venta", Constraint: "idx_sales_sale_number", Err: repository.ErrUniqueViolation}, 500, "INTERNAL_ERROR"},
		{"unknown", errors.New("pq: something internal"), 500, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := engine(&stubSales{err: tc.err}, &stubCash{})
			w := do(r, http.MethodPost, "/v1/ventas", token(t, "cajero"), saleBody())

			assert.Equal(t, tc.status, w.Code)
			e := decodeEnvelope(t, w)
			assert.Equal(t, tc.code, e.Code)
			assert.NotContains(t, w.Body.String(), "pq:")
		})
	}
}

func TestCreateSale_InsufficientStockDetails(t *testing.T) {
	productID := uuid.New()
	err := &service.InsufficientStockError{ProductID: productID, Requested: decimal.NewFromInt(5), Available: decimal.NewFromInt(2)}
	r := engine(&stubSales{err: err}, &stubCash{})

	w := do(r, http.MethodPost, "/v1/ventas", token(t, "cajero"), saleBody())
	e := decodeEnvelope(t, w)
	assert.JSONEq(t, `{"product_id":"`+productID.String()+`","requested":"5","available":"2"}`, string(e.Details))
}

func TestCreateSale_TransientSetsRetryAfter(t *testing.T) {
	r := engine(&stubSales{err: &service.ConsistencyError{Op: "x", Err: repository.ErrTransient}}, &stubCash{})

	w := do(r, http.MethodPost, "/v1/ventas", token(t, "cajero"), saleBody())
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestCancelSale(t *testing.T) {
	sales := &stubSales{}
	r := engine(sales, &stubCash{})
	path := "/v1/ventas/" + uuid.NewString() + "/cancelar"

	w := do(r, http.MethodPost, path, token(t, "cajero"), map[string]string{"reason": "error de cobro"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodPost, path, token(t, "administrador"), map[string]string{"reason": "error de cobro"})
	assert.Equal(t, http.StatusOK, w.Code)

	sales.err = service.ErrAlreadyCancelled
	w = do(r, http.MethodPost, path, token(t, "administrador"), map[string]string{"reason": "error de cobro"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_CANCELLED", decodeEnvelope(t, w).Code)

	w = do(r, http.MethodPost, "/v1/ventas/not-a-uuid/cancelar", token(t, "administrador"), map[string]string{"reason": "xyz"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

// ── Cash ──────────────────────────────────────────────────────────────────────

func TestOpenSession_Conflict(t *testing.T) {
	r := engine(&stubSales{}, &stubCash{err: service.ErrSessionAlreadyOpen})

	w := do(r, http.MethodPost, "/v1/caja/sesiones", token(t, "cajero"),
		map[string]interface{}{"cash_register_id": uuid.NewString(), "opening_amount": "100"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SESSION_ALREADY_OPEN", decodeEnvelope(t, w).Code)
}

func TestOpenSession_NegativeAmount(t *testing.T) {
	r := engine(&stubSales{}, &stubCash{})

	w := do(r, http.MethodPost, "/v1/caja/sesiones", token(t, "cajero"),
		map[string]interface{}{"cash_register_id": uuid.NewString(), "opening_amount": "-5"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestActiveSession(t *testing.T) {
	cash := &stubCash{}
	r := engine(&stubSales{}, cash)

	w := do(r, http.MethodGet, "/v1/caja/sesiones/activa", token(t, "cajero"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NO_OPEN_SESSION", decodeEnvelope(t, w).Code)

	cash.open = &dto.SessionResponse{ID: uuid.NewString(), Status: "abierta"}
	w = do(r, http.MethodGet, "/v1/caja/sesiones/activa", token(t, "cajero"), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListSessions_QueryParsing(t *testing.T) {
	r := engine(&stubSales{}, &stubCash{})

	w := do(r, http.MethodGet, "/v1/caja/sesiones?status=abierta&page=2&limit=10", token(t, "supervisor"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.SessionListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 10, resp.Limit)

	w = do(r, http.MethodGet, "/v1/caja/sesiones?status=pendiente", token(t, "supervisor"), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(r, http.MethodGet, "/v1/caja/sesiones?register_id=x", token(t, "supervisor"), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

// ── Auth ──────────────────────────────────────────────────────────────────────

func TestLogin(t *testing.T) {
	r := gin.New()
	r.POST("/login", NewAuthHandler(stubAuth{}).Login)

	w := do(r, http.MethodPost, "/login", "", dto.LoginRequest{Username: "ana", Password: "caja1234"})
	assert.Equal(t, http.StatusOK, w.Code)

	r = gin.New()
	r.POST("/login", NewAuthHandler(stubAuth{err: service.ErrInvalidCredentials}).Login)
	w = do(r, http.MethodPost, "/login", "", dto.LoginRequest{Username: "ana", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeEnvelope(t, w).Code)
}

// ── Health ────────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: refused") }
	cb := infra.NewCircuitBreaker(infra.DefaultCBConfig("smtp"))

	r := gin.New()
	r.GET("/ok", Health(ok, ok, cb))
	r.GET("/down", Health(ok, down, nil))

	w := do(r, http.MethodGet, "/ok", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"db":"connected","redis":"connected","smtp":"closed"}`, w.Body.String())

	w = do(r, http.MethodGet, "/down", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "refused")
}
