package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"retailpos/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Business-rule violations. Callers can recover from all of them.
var (
	ErrNoOpenSession             = errors.New("el operador no tiene una sesion de caja abierta")
	ErrSessionAlreadyOpen        = errors.New("ya existe una sesion abierta para esta caja u operador")
	ErrSessionNotOpen            = errors.New("la sesion de caja no esta abierta")
	ErrRegisterNotFound          = errors.New("caja no encontrada o inactiva")
	ErrNoPaymentMethodConfigured = errors.New("no hay metodo de pago configurado")
	ErrNotFound                  = errors.New("recurso no encontrado")
	ErrAlreadyCancelled          = errors.New("la venta ya fue cancelada o anulada")
	ErrForbidden                 = errors.New("permisos insuficientes para esta operacion")
)

// InsufficientStockError carries enough context for the client to correct
// the request.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock insuficiente para el producto %s: solicitado %s, disponible %s",
		e.ProductID, e.Requested.String(), e.Available.String())
}

// ValidationError collects per-field messages for malformed input that got
// past the transport layer.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "datos invalidos: " + strings.Join(parts, "; ")
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// ConsistencyError means the unit of work was rolled back for a transient
// reason (serialization failure, deadlock, lock timeout, deadline). Safe to
// retry as a whole.
type ConsistencyError struct {
	Op  string
	Err error
}

func (e *ConsistencyError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *ConsistencyError) Unwrap() error { return e.Err }

// IntegrityError is a constraint violation that should never happen in
// normal operation. Not retried.
type IntegrityError struct {
	Op         string
	Constraint string
	Err        error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: violacion de integridad (%s): %v", e.Op, e.Constraint, e.Err)
}
func (e *IntegrityError) Unwrap() error { return e.Err }

// persistenceError turns whatever came out of a unit of work into one of the
// error kinds above. Business errors raised inside the closure pass through
// untouched.
func persistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isBusinessError(err) {
		return err
	}
	err = repository.Classify(err)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrTransient),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		log.Warn().Err(err).Str("op", op).Msg("unidad de trabajo revertida por fallo transitorio")
		return &ConsistencyError{Op: op, Err: err}
	case errors.Is(err, repository.ErrUniqueViolation),
		errors.Is(err, repository.ErrForeignKeyViolation):
		constraint := repository.ConstraintName(err)
		log.Error().Err(err).Str("op", op).Str("constraint", constraint).Msg("violacion de integridad")
		return &IntegrityError{Op: op, Constraint: constraint, Err: err}
	}
	log.Error().Err(err).Str("op", op).Msg("error de persistencia")
	return fmt.Errorf("%s: %w", op, err)
}

func isBusinessError(err error) bool {
	for _, target := range []error{
		ErrNoOpenSession, ErrSessionAlreadyOpen, ErrSessionNotOpen, ErrRegisterNotFound,
		ErrNoPaymentMethodConfigured, ErrNotFound, ErrAlreadyCancelled, ErrForbidden,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	var stock *InsufficientStockError
	var verr *ValidationError
	var cerr *ConsistencyError
	var ierr *IntegrityError
	return errors.As(err, &stock) || errors.As(err, &verr) || errors.As(err, &cerr) || errors.As(err, &ierr)
}
