package handler

import (
	"net/http"

	"retailpos/internal/apierror"
	"retailpos/internal/dto"
	"retailpos/internal/model"
	"retailpos/internal/repository"
	"retailpos/internal/service"

	"github.com/gin-gonic/gin"
)

type CashHandler struct{ svc service.CashService }

func NewCashHandler(svc service.CashService) *CashHandler { return &CashHandler{svc: svc} }

// OpenSession godoc
// @Summary Abre una sesion de caja
// @Tags caja
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.OpenSessionRequest true "Datos de apertura"
// @Success 201 {object} dto.SessionResponse
// @Failure 400 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/caja/sesiones [post]
func (h *CashHandler) OpenSession(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req dto.OpenSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Open(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// CloseSession godoc
// @Summary Cierra la sesion y concilia el efectivo
// @Tags caja
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID de sesion"
// @Param body body dto.CloseSessionRequest true "Monto contado"
// @Success 200 {object} dto.SessionResponse
// @Failure 400 {object} apierror.APIError
// @Router /v1/caja/sesiones/{id}/cerrar [post]
func (h *CashHandler) CloseSession(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req dto.CloseSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Close(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RecordTransaction godoc
// @Summary Registra un movimiento de caja (ingreso, egreso, arqueo)
// @Tags caja
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID de sesion"
// @Param body body dto.CashTransactionRequest true "Movimiento"
// @Success 201 {object} dto.CashTransactionResponse
// @Failure 400 {object} apierror.APIError
// @Router /v1/caja/sesiones/{id}/transacciones [post]
func (h *CashHandler) RecordTransaction(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req dto.CashTransactionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.RecordTransaction(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *CashHandler) RecordCount(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req dto.CashCountRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.RecordCount(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *CashHandler) GetSession(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.GetSession(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListSessions supports ?register_id=&status=&page=&limit=
func (h *CashHandler) ListSessions(c *gin.Context) {
	registerID, ok := queryUUID(c, "register_id")
	if !ok {
		return
	}
	filter := repository.SessionFilter{
		RegisterID: registerID,
		Page:       queryInt(c, "page"),
		Limit:      queryInt(c, "limit"),
	}
	if raw := c.Query("status"); raw != "" {
		st := model.SessionStatus(raw)
		if st != model.SessionOpen && st != model.SessionClosed {
			c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(map[string]string{"status": "oneof=abierta cerrada"}))
			return
		}
		filter.Status = st
	}
	resp, err := h.svc.ListSessions(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *CashHandler) ListTransactions(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.ListTransactions(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ActiveSession returns the caller's open session.
func (h *CashHandler) ActiveSession(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	resp, err := h.svc.GetOpenSessionForOperator(c.Request.Context(), actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if resp == nil {
		c.JSON(http.StatusNotFound, apierror.New(apierror.CodeNoOpenSession, "Sin sesion activa"))
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *CashHandler) RegisterOpenSession(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.GetOpenSessionForRegister(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if resp == nil {
		c.JSON(http.StatusNotFound, apierror.New(apierror.CodeNoOpenSession, "La caja no tiene sesion abierta"))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListPaymentMethods godoc
// @Summary Lista los metodos de pago activos
// @Tags caja
// @Produce json
// @Security BearerAuth
// @Success 200 {array} dto.PaymentMethodResponse
// @Router /v1/metodos-pago [get]
func (h *CashHandler) ListPaymentMethods(c *gin.Context) {
	resp, err := h.svc.ListPaymentMethods(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
