// Package apierror provides the error envelope returned on every 4xx/5xx
// response. Clients switch on Code; Detail is for humans. Internal details
// (stack traces, SQL, driver messages) never go in here.
package apierror

// Stable error codes.
const (
	CodeValidation                = "VALIDATION_ERROR"
	CodeNotFound                  = "NOT_FOUND"
	CodeForbidden                 = "FORBIDDEN"
	CodeUnauthorized              = "UNAUTHORIZED"
	CodeInsufficientStock         = "INSUFFICIENT_STOCK"
	CodeNoOpenSession             = "NO_OPEN_SESSION"
	CodeSessionAlreadyOpen        = "SESSION_ALREADY_OPEN"
	CodeSessionNotOpen            = "SESSION_NOT_OPEN"
	CodeRegisterNotFound          = "REGISTER_NOT_FOUND"
	CodeNoPaymentMethodConfigured = "NO_PAYMENT_METHOD_CONFIGURED"
	CodeAlreadyCancelled          = "ALREADY_CANCELLED"
	CodeTransientFailure          = "TRANSIENT_FAILURE"
	CodeInternal                  = "INTERNAL_ERROR"
	CodeRateLimited               = "RATE_LIMITED"
)

// APIError is the canonical error envelope.
type APIError struct {
	Code    string      `json:"code"`
	Detail  string      `json:"detail"`
	Details interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string { return e.Code + ": " + e.Detail }

func New(code, msg string) *APIError {
	return &APIError{Code: code, Detail: msg}
}

// WithDetails attaches structured context (e.g. requested vs available stock).
func (e *APIError) WithDetails(details interface{}) *APIError {
	e.Details = details
	return e
}

// NewValidation wraps per-field messages.
func NewValidation(fields map[string]string) *APIError {
	return &APIError{Code: CodeValidation, Detail: "Error de validacion", Details: fields}
}

func Internal() *APIError {
	return New(CodeInternal, "Error interno del servidor")
}

// StockDetails is the details payload of INSUFFICIENT_STOCK.
type StockDetails struct {
	ProductID string `json:"product_id"`
	Requested string `json:"requested"`
	Available string `json:"available"`
}
