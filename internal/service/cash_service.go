package service

import (
	"context"
	"errors"
	"strconv"
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

// Partial unique indexes behind the open-session rules (see infra/database.go).
const (
	constraintOpenRegister = "uq_sessions_open_register"
	constraintOpenOperator = "uq_sessions_open_operator"
)

type CashService interface {
	Open(ctx context.Context, actor Actor, req dto.OpenSessionRequest) (*dto.SessionResponse, error)
	RecordTransaction(ctx context.Context, actor Actor, sessionID uuid.UUID, req dto.CashTransactionRequest) (*dto.CashTransactionResponse, error)
	Close(ctx context.Context, actor Actor, sessionID uuid.UUID, req dto.CloseSessionRequest) (*dto.SessionResponse, error)
	RecordCount(ctx context.Context, actor Actor, sessionID uuid.UUID, req dto.CashCountRequest) (*dto.CashCountResponse, error)

	// GetOpenSessionForRegister and GetOpenSessionForOperator return nil, nil
	// when there is no open session.
	GetOpenSessionForRegister(ctx context.Context, registerID uuid.UUID) (*dto.SessionResponse, error)
	GetOpenSessionForOperator(ctx context.Context, operatorID uuid.UUID) (*dto.SessionResponse, error)
	GetSession(ctx context.Context, sessionID uuid.UUID) (*dto.SessionResponse, error)
	ListSessions(ctx context.Context, filter repository.SessionFilter) (*dto.SessionListResponse, error)
	ListTransactions(ctx context.Context, sessionID uuid.UUID) ([]dto.CashTransactionResponse, error)
	ListPaymentMethods(ctx context.Context) ([]dto.PaymentMethodResponse, error)

	// Used by SaleService.
	ResolveOpenSession(ctx context.Context, operatorID uuid.UUID) (*model.CashRegisterSession, error)
	ResolvePaymentMethod(ctx context.Context, id *uuid.UUID) (*model.PaymentMethod, error)
	EnsureOpenTx(tx *gorm.DB, sessionID uuid.UUID) error
	PostTx(tx *gorm.DB, sessionID uuid.UUID, t *model.CashTransaction) error
}

type cashService struct {
	repo           repository.CashRepository
	paymentMethods repository.PaymentMethodRepository
	defaultMethod  string
	metrics        *metrics.Metrics
}

func NewCashService(repo repository.CashRepository, paymentMethods repository.PaymentMethodRepository, defaultMethod string, m *metrics.Metrics) CashService {
	return &cashService{repo: repo, paymentMethods: paymentMethods, defaultMethod: defaultMethod, metrics: m}
}

// ── Open ──────────────────────────────────────────────────────────────────────
// The register row is locked so concurrent opens for the same till queue up
// behind each other; the partial unique indexes catch everything else.

func (s *cashService) Open(ctx context.Context, actor Actor, req dto.OpenSessionRequest) (*dto.SessionResponse, error) {
	if err := authorize(actor, cashOperators...); err != nil {
		return nil, err
	}
	registerID, err := uuid.Parse(req.CashRegisterID)
	if err != nil {
		return nil, invalid("cash_register_id", "uuid invalido")
	}
	if req.OpeningAmount.IsNegative() {
		return nil, invalid("opening_amount", "no puede ser negativo")
	}

	var session *model.CashRegisterSession
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		reg, err := s.repo.LockRegisterTx(tx, registerID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRegisterNotFound
		}
		if err != nil {
			return err
		}
		if !reg.Active {
			return ErrRegisterNotFound
		}

		byRegister, byOperator, err := s.repo.CountOpenSessionsTx(tx, registerID, actor.ID)
		if err != nil {
			return err
		}
		if byRegister > 0 || byOperator > 0 {
			return ErrSessionAlreadyOpen
		}

		session = &model.CashRegisterSession{
			CashRegisterID:        registerID,
			UserID:                actor.ID,
			OpeningAmount:         roundMoney(req.OpeningAmount),
			ExpectedClosingAmount: decimal.Zero,
			ActualClosingAmount:   decimal.Zero,
			Difference:            decimal.Zero,
			Status:                model.SessionOpen,
			Notes:                 req.Notes,
			OpenedAt:              time.Now(),
			Register:              reg,
		}
		return s.repo.CreateSessionTx(tx, session)
	})
	if txErr != nil {
		if c := repository.ConstraintName(txErr); c == constraintOpenRegister || c == constraintOpenOperator {
			return nil, ErrSessionAlreadyOpen
		}
		return nil, persistenceError("abrir caja", txErr)
	}

	s.metrics.RecordSessionOpened()
	log.Info().
		Str("session_id", session.ID.String()).
		Str("register_id", registerID.String()).
		Str("operator", actor.ID.String()).
		Str("opening_amount", session.OpeningAmount.String()).
		Msg("sesion de caja abierta")
	return sessionToResponse(session), nil
}

// ── RecordTransaction ─────────────────────────────────────────────────────────
// Manual postings. Amounts are magnitudes; the kind decides the sign.

func (s *cashService) RecordTransaction(ctx context.Context, actor Actor, sessionID uuid.UUID, req dto.CashTransactionRequest) (*dto.CashTransactionResponse, error) {
	if err := authorize(actor, cashOperators...); err != nil {
		return nil, err
	}
	kind, err := model.ParseTransactionKind(req.Kind)
	if err != nil {
		return nil, invalid("kind", err.Error())
	}
	if !req.Amount.IsPositive() {
		return nil, invalid("amount", "debe ser mayor a cero")
	}
	pmID, err := parseOptionalUUID("payment_method_id", req.PaymentMethodID)
	if err != nil {
		return nil, err
	}
	if err := s.checkOwnership(ctx, actor, sessionID); err != nil {
		return nil, err
	}
	pm, err := s.ResolvePaymentMethod(ctx, pmID)
	if err != nil {
		return nil, err
	}
	if pm.RequiresReference && (req.ReferenceNumber == nil || strings.TrimSpace(*req.ReferenceNumber) == "") {
		return nil, invalid("reference_number", "el metodo de pago "+pm.Name+" requiere referencia")
	}

	t := &model.CashTransaction{
		Kind:            kind,
		Amount:          roundMoney(req.Amount),
		PaymentMethodID: pm.ID,
		ReferenceNumber: req.ReferenceNumber,
		Description:     req.Description,
		CreatedBy:       actor.ID,
	}
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		return s.PostTx(tx, sessionID, t)
	})
	if txErr != nil {
		return nil, persistenceError("registrar transaccion", txErr)
	}
	t.PaymentMethod = pm

	log.Info().
		Str("session_id", sessionID.String()).
		Str("kind", string(kind)).
		Str("amount", t.Amount.String()).
		Msg("transaccion de caja registrada")
	resp := transactionToResponse(t)
	return &resp, nil
}

// EnsureOpenTx holds the session row FOR SHARE until the transaction ends, so
// a concurrent Close, which needs it FOR UPDATE, waits for the caller.
func (s *cashService) EnsureOpenTx(tx *gorm.DB, sessionID uuid.UUID) error {
	session, err := s.repo.LockSessionTx(tx, sessionID, repository.LockShare)
	if err != nil {
		return err
	}
	if !session.IsOpen() {
		return ErrSessionNotOpen
	}
	return nil
}

// PostTx appends t to the session.
func (s *cashService) PostTx(tx *gorm.DB, sessionID uuid.UUID, t *model.CashTransaction) error {
	if err := s.EnsureOpenTx(tx, sessionID); err != nil {
		return err
	}
	t.SessionID = sessionID
	return s.repo.CreateTransactionTx(tx, t)
}

// ── Close ─────────────────────────────────────────────────────────────────────
// One-way transition. A discrepancy never blocks the close; it is recorded
// in Difference.

func (s *cashService) Close(ctx context.Context, actor Actor, sessionID uuid.UUID, req dto.CloseSessionRequest) (*dto.SessionResponse, error) {
	if err := authorize(actor, cashOperators...); err != nil {
		return nil, err
	}
	if req.ActualClosingAmount.IsNegative() {
		return nil, invalid("actual_closing_amount", "no puede ser negativo")
	}
	if err := s.checkOwnership(ctx, actor, sessionID); err != nil {
		return nil, err
	}

	var session *model.CashRegisterSession
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		var err error
		session, err = s.repo.LockSessionTx(tx, sessionID, repository.LockUpdate)
		if err != nil {
			return err
		}
		if !session.IsOpen() {
			return ErrSessionNotOpen
		}
		expected, err := s.expectedTx(tx, session)
		if err != nil {
			return err
		}

		now := time.Now()
		actual := roundMoney(req.ActualClosingAmount)
		session.ExpectedClosingAmount = expected
		session.ActualClosingAmount = actual
		session.Difference = actual.Sub(expected)
		session.Status = model.SessionClosed
		session.ClosedAt = &now
		if req.Notes != nil {
			session.Notes = req.Notes
		}
		return s.repo.UpdateSessionTx(tx, session)
	})
	if txErr != nil {
		return nil, persistenceError("cerrar caja", txErr)
	}

	s.metrics.RecordSessionClosed(session.Difference)
	ev := log.Info()
	if !session.Difference.IsZero() {
		ev = log.Warn()
	}
	ev.Str("session_id", sessionID.String()).
		Str("expected", session.ExpectedClosingAmount.String()).
		Str("actual", session.ActualClosingAmount.String()).
		Str("difference", session.Difference.String()).
		Msg("sesion de caja cerrada")
	return sessionToResponse(session), nil
}

// expectedTx folds the session's postings:
// opening + Σ(venta, ingreso) − Σ(egreso). Arqueo rows are neutral.
func (s *cashService) expectedTx(tx *gorm.DB, session *model.CashRegisterSession) (decimal.Decimal, error) {
	sums, err := s.repo.SumByKindTx(tx, session.ID)
	if err != nil {
		return decimal.Zero, err
	}
	expected := session.OpeningAmount
	for kind, total := range sums {
		switch kind.Sign() {
		case 1:
			expected = expected.Add(total)
		case -1:
			expected = expected.Sub(total)
		}
	}
	return roundMoney(expected), nil
}

// ── RecordCount ───────────────────────────────────────────────────────────────
// Partial drawer count by denomination. The session stays open.

func (s *cashService) RecordCount(ctx context.Context, actor Actor, sessionID uuid.UUID, req dto.CashCountRequest) (*dto.CashCountResponse, error) {
	if err := authorize(actor, cashOperators...); err != nil {
		return nil, err
	}
	if len(req.Details) == 0 {
		return nil, invalid("details", "se requiere al menos una denominacion")
	}
	if err := s.checkOwnership(ctx, actor, sessionID); err != nil {
		return nil, err
	}

	count := &model.CashCount{
		SessionID:     sessionID,
		CountedBy:     actor.ID,
		CountedAmount: decimal.Zero,
		Notes:         req.Notes,
		CountedAt:     time.Now(),
	}
	for i, d := range req.Details {
		if !d.Denomination.IsPositive() || d.Quantity < 0 {
			return nil, invalid("details", "denominacion o cantidad invalida en la linea "+strconv.Itoa(i+1))
		}
		total := roundMoney(d.Denomination.Mul(decimal.NewFromInt(int64(d.Quantity))))
		count.Details = append(count.Details, model.CashCountDetail{
			Denomination: roundMoney(d.Denomination),
			Quantity:     d.Quantity,
			Total:        total,
		})
		count.CountedAmount = count.CountedAmount.Add(total)
	}

	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		session, err := s.repo.LockSessionTx(tx, sessionID, repository.LockShare)
		if err != nil {
			return err
		}
		if !session.IsOpen() {
			return ErrSessionNotOpen
		}
		expected, err := s.expectedTx(tx, session)
		if err != nil {
			return err
		}
		count.ExpectedAmount = expected
		count.Difference = count.CountedAmount.Sub(expected)
		return s.repo.CreateCountTx(tx, count)
	})
	if txErr != nil {
		return nil, persistenceError("registrar arqueo", txErr)
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Str("counted", count.CountedAmount.String()).
		Str("difference", count.Difference.String()).
		Msg("arqueo registrado")
	return &dto.CashCountResponse{
		ID:             count.ID.String(),
		SessionID:      sessionID.String(),
		ExpectedAmount: count.ExpectedAmount,
		CountedAmount:  count.CountedAmount,
		Difference:     count.Difference,
		Notes:          count.Notes,
		CountedAt:      count.CountedAt,
	}, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

func (s *cashService) GetOpenSessionForRegister(ctx context.Context, registerID uuid.UUID) (*dto.SessionResponse, error) {
	session, err := s.repo.FindOpenSessionByRegister(ctx, registerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, persistenceError("buscar sesion abierta", err)
	}
	return sessionToResponse(session), nil
}

func (s *cashService) GetOpenSessionForOperator(ctx context.Context, operatorID uuid.UUID) (*dto.SessionResponse, error) {
	session, err := s.repo.FindOpenSessionByOperator(ctx, operatorID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, persistenceError("buscar sesion abierta", err)
	}
	return sessionToResponse(session), nil
}

func (s *cashService) ResolveOpenSession(ctx context.Context, operatorID uuid.UUID) (*model.CashRegisterSession, error) {
	session, err := s.repo.FindOpenSessionByOperator(ctx, operatorID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoOpenSession
	}
	if err != nil {
		return nil, persistenceError("buscar sesion abierta", err)
	}
	return session, nil
}

func (s *cashService) GetSession(ctx context.Context, sessionID uuid.UUID) (*dto.SessionResponse, error) {
	session, err := s.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, persistenceError("buscar sesion", err)
	}
	return sessionToResponse(session), nil
}

func (s *cashService) ListSessions(ctx context.Context, filter repository.SessionFilter) (*dto.SessionListResponse, error) {
	sessions, total, err := s.repo.ListSessions(ctx, filter)
	if err != nil {
		return nil, persistenceError("listar sesiones", err)
	}
	page, limit := pageBounds(filter.Page, filter.Limit)
	resp := &dto.SessionListResponse{
		Data:  make([]dto.SessionResponse, 0, len(sessions)),
		Total: total,
		Page:  page,
		Limit: limit,
	}
	for i := range sessions {
		resp.Data = append(resp.Data, *sessionToResponse(&sessions[i]))
	}
	return resp, nil
}

func (s *cashService) ListTransactions(ctx context.Context, sessionID uuid.UUID) ([]dto.CashTransactionResponse, error) {
	if _, err := s.repo.FindSessionByID(ctx, sessionID); err != nil {
		return nil, persistenceError("buscar sesion", err)
	}
	txs, err := s.repo.ListTransactions(ctx, sessionID)
	if err != nil {
		return nil, persistenceError("listar transacciones", err)
	}
	out := make([]dto.CashTransactionResponse, 0, len(txs))
	for i := range txs {
		out = append(out, transactionToResponse(&txs[i]))
	}
	return out, nil
}

func (s *cashService) ListPaymentMethods(ctx context.Context) ([]dto.PaymentMethodResponse, error) {
	methods, err := s.paymentMethods.ListActive(ctx)
	if err != nil {
		return nil, persistenceError("listar metodos de pago", err)
	}
	out := make([]dto.PaymentMethodResponse, 0, len(methods))
	for _, m := range methods {
		out = append(out, dto.PaymentMethodResponse{
			ID:                m.ID.String(),
			Name:              m.Name,
			RequiresReference: m.RequiresReference,
			IsDefault:         m.IsDefault,
		})
	}
	return out, nil
}

// ResolvePaymentMethod returns the requested method, or the configured
// default when id is nil.
func (s *cashService) ResolvePaymentMethod(ctx context.Context, id *uuid.UUID) (*model.PaymentMethod, error) {
	if id != nil {
		pm, err := s.paymentMethods.FindByID(ctx, *id)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, invalid("payment_method_id", "metodo de pago inexistente")
		}
		if err != nil {
			return nil, persistenceError("buscar metodo de pago", err)
		}
		if !pm.Active {
			return nil, invalid("payment_method_id", "metodo de pago inactivo")
		}
		return pm, nil
	}
	pm, err := s.paymentMethods.FindDefault(ctx, s.defaultMethod)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoPaymentMethodConfigured
	}
	if err != nil {
		return nil, persistenceError("buscar metodo de pago", err)
	}
	return pm, nil
}

// checkOwnership: cashiers may only operate their own session.
func (s *cashService) checkOwnership(ctx context.Context, actor Actor, sessionID uuid.UUID) error {
	if actor.Privileged() {
		return nil
	}
	session, err := s.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		return persistenceError("buscar sesion", err)
	}
	if session.UserID != actor.ID {
		return ErrForbidden
	}
	return nil
}

// ── Mapping ───────────────────────────────────────────────────────────────────

func sessionToResponse(s *model.CashRegisterSession) *dto.SessionResponse {
	resp := &dto.SessionResponse{
		ID:                    s.ID.String(),
		CashRegisterID:        s.CashRegisterID.String(),
		UserID:                s.UserID.String(),
		Status:                string(s.Status),
		OpeningAmount:         s.OpeningAmount,
		ExpectedClosingAmount: s.ExpectedClosingAmount,
		ActualClosingAmount:   s.ActualClosingAmount,
		Difference:            s.Difference,
		Notes:                 s.Notes,
		OpenedAt:              s.OpenedAt,
		ClosedAt:              s.ClosedAt,
	}
	if s.Register != nil {
		resp.RegisterNumber = s.Register.RegisterNumber
	}
	return resp
}

func transactionToResponse(t *model.CashTransaction) dto.CashTransactionResponse {
	resp := dto.CashTransactionResponse{
		ID:              t.ID.String(),
		SessionID:       t.SessionID.String(),
		Kind:            string(t.Kind),
		Amount:          t.Amount,
		PaymentMethodID: t.PaymentMethodID.String(),
		ReferenceNumber: t.ReferenceNumber,
		Description:     t.Description,
		SaleID:          uuidPtrString(t.SaleID),
		CreatedBy:       t.CreatedBy.String(),
		CreatedAt:       t.CreatedAt,
	}
	if t.PaymentMethod != nil {
		resp.PaymentMethodName = t.PaymentMethod.Name
	}
	return resp
}

// roundMoney rounds half away from zero to cents.
func roundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(2) }
