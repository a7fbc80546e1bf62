package handler

import (
	"context"
	"errors"
	"net/http"

	"retailpos/internal/apierror"
	"retailpos/internal/middleware"
	"retailpos/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var sentinelStatus = []struct {
	err    error
	status int
	code   string
}{
	{service.ErrNoOpenSession, http.StatusBadRequest, apierror.CodeNoOpenSession},
	{service.ErrSessionNotOpen, http.StatusBadRequest, apierror.CodeSessionNotOpen},
	{service.ErrRegisterNotFound, http.StatusBadRequest, apierror.CodeRegisterNotFound},
	{service.ErrNoPaymentMethodConfigured, http.StatusBadRequest, apierror.CodeNoPaymentMethodConfigured},
	{service.ErrSessionAlreadyOpen, http.StatusConflict, apierror.CodeSessionAlreadyOpen},
	{service.ErrAlreadyCancelled, http.StatusConflict, apierror.CodeAlreadyCancelled},
	{service.ErrNotFound, http.StatusNotFound, apierror.CodeNotFound},
	{service.ErrForbidden, http.StatusForbidden, apierror.CodeForbidden},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, apierror.CodeUnauthorized},
	{service.ErrInvalidToken, http.StatusUnauthorized, apierror.CodeUnauthorized},
}

// respondError maps a service error onto the HTTP status and envelope.
// Anything unrecognised is a 500 with a generic message.
func respondError(c *gin.Context, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(verr.Fields))
		return
	}

	var stockErr *service.InsufficientStockError
	if errors.As(err, &stockErr) {
		c.JSON(http.StatusBadRequest, apierror.New(apierror.CodeInsufficientStock, stockErr.Error()).
			WithDetails(apierror.StockDetails{
				ProductID: stockErr.ProductID.String(),
				Requested: stockErr.Requested.String(),
				Available: stockErr.Available.String(),
			}))
		return
	}

	for _, s := range sentinelStatus {
		if errors.Is(err, s.err) {
			c.JSON(s.status, apierror.New(s.code, s.err.Error()))
			return
		}
	}

	var cerr *service.ConsistencyError
	if errors.As(err, &cerr) || errors.Is(err, context.DeadlineExceeded) {
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable,
			apierror.New(apierror.CodeTransientFailure, "Operacion revertida por un conflicto transitorio, reintente"))
		return
	}

	log.Error().
		Err(err).
		Str("request_id", c.GetString(middleware.RequestIDKey)).
		Str("path", c.FullPath()).
		Msg("request failed")
	c.JSON(http.StatusInternalServerError, apierror.Internal())
}
