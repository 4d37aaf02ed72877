package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rail-service/txengine/internal/domain/entities"
	"github.com/rail-service/txengine/internal/domain/services/session"
)

// SessionManager drives transaction sessions
type SessionManager interface {
	Start(ctx context.Context, guid string, source entities.SourceAccount, target entities.TransactionTarget) (session.View, error)
	Get(guid, id string) (session.View, error)
	UpdateAmount(ctx context.Context, guid, id string, amount entities.MoneyValue) (session.View, error)
	UpdateFeeLevel(ctx context.Context, guid, id string, level entities.FeeLevel, custom *entities.MoneyValue) (session.View, error)
	UpdateOption(ctx context.Context, guid, id string, option entities.Confirmation) (session.View, error)
	BuildConfirmations(ctx context.Context, guid, id string) (session.View, error)
	Validate(ctx context.Context, guid, id string) (session.View, error)
	Retarget(ctx context.Context, guid, id string, target entities.TransactionTarget) (session.View, error)
	Execute(ctx context.Context, guid, id, secondPassword string) (entities.TransactionResult, error)
	Executions(ctx context.Context, guid, id string) ([]entities.ExecutedTransaction, error)
	Stop(guid, id string) error
	StopAll(guid string) int
}

// SettlementPoller waits for a buy order to settle
type SettlementPoller interface {
	AwaitSettlement(ctx context.Context, guid, orderID string) (entities.BuyOrder, error)
}

// TransactionHandlers exposes the transaction session lifecycle
type TransactionHandlers struct {
	sessions SessionManager
	orders   SettlementPoller
}

func NewTransactionHandlers(sessions SessionManager, orders SettlementPoller) *TransactionHandlers {
	registerValidators()
	return &TransactionHandlers{sessions: sessions, orders: orders}
}

type startRequest struct {
	Source sourceRequest `json:"source" binding:"required"`
	Target targetRequest `json:"target" binding:"required"`
}

type feeLevelRequest struct {
	Level        entities.FeeLevel `json:"level" binding:"required,oneof=none regular priority custom"`
	CustomAmount *moneyRequest     `json:"customAmount"`
}

type optionRequest struct {
	Type         entities.ConfirmationType `json:"type" binding:"required"`
	Memo         *entities.Memo            `json:"memo"`
	Acknowledged bool                      `json:"acknowledged"`
}

type executeRequest struct {
	SecondPassword string `json:"secondPassword"`
}

// sessionCall binds the wallet guid and session id of a request
func sessionCall(c *gin.Context) (guid, id string, ok bool) {
	guid, err := getGUID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error(), nil)
		return "", "", false
	}
	return guid, c.Param("id"), true
}

func (h *TransactionHandlers) respondView(c *gin.Context, status int, view session.View, err error) {
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(status, view)
}

// Start handles POST /api/v1/transactions
func (h *TransactionHandlers) Start(c *gin.Context) {
	guid, err := getGUID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error(), nil)
		return
	}
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	source, err := req.Source.toAccount()
	if err != nil {
		respondBadRequest(c, ErrCodeInvalidCurrency, err.Error())
		return
	}
	target, err := req.Target.toTarget()
	if err != nil {
		respondBadRequest(c, ErrCodeInvalidCurrency, err.Error())
		return
	}

	view, err := h.sessions.Start(c.Request.Context(), guid, source, target)
	h.respondView(c, http.StatusCreated, view, err)
}

// Get handles GET /api/v1/transactions/:id
func (h *TransactionHandlers) Get(c *gin.Context) {
	guid, id, ok := sessionCall(c)
	if !ok {
		return
	}
	view, err := h.sessions.Get(guid, id)
	h.respondView(c, http.StatusOK, view, err)
}

// UpdateAmount handles PUT /api/v1/transactions/:id/amount
func (h *TransactionHandlers) UpdateAmount(c *gin.Context) {
	guid, id, ok := sessionCall(c)
	if !ok {
		return
	}
	var req moneyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	amount, err := req.toMoney()
	if err != nil {
		respondBadRequest(c, ErrCodeInvalidAmount, err.Error())
		return
	}
	view, err := h.sessions.UpdateAmount(c.Request.Context(), guid, id, amount)
	h.respondView(c, http.StatusOK, view, err)
}

// UpdateFeeLevel handles PUT /api/v1/transactions/:id/fee-level
func (h *TransactionHandlers) UpdateFeeLevel(c *gin.Context) {
	guid, id, ok := sessionCall(c)
	if !ok {
		return
	}
	var req feeLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	var custom *entities.MoneyValue
	if req.CustomAmount != nil {
		amount, err := req.CustomAmount.toMoney()
		if err != nil {
			respondBadRequest(c, ErrCodeInvalidAmount, err.Error())
			return
		}
		custom = &amount
	}
	if req.Level == entities.FeeLevelCustom && custom == nil {
		respondBadRequest(c, ErrCodeInvalidAmount, "custom fee level requires customAmount")
		return
	}
	view, err := h.sessions.UpdateFeeLevel(c.Request.Context(), guid, id, req.Level, custom)
	h.respondView(c, http.StatusOK, view, err)
}

// UpdateOption handles PUT /api/v1/transactions/:id/options
func (h *TransactionHandlers) UpdateOption(c *gin.Context) {
	guid, id, ok := sessionCall(c)
	if !ok {
		return
	}
	var req optionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	option := entities.Confirmation{Type: req.Type, Memo: req.Memo, Acknowledged: req.Acknowledged}
	view, err := h.sessions.UpdateOption(c.Request.Context(), guid, id, option)
	h.respondView(c, http.StatusOK, view, err)
}

// Retarget handles PUT /api/v1/transactions/:id/target
func (h *TransactionHandlers) Retarget(c *gin.Context) {
	guid, id, ok := sessionCall(c)
	if !ok {
		return
	}
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	target, err := req.toTarget()
	if err != nil {
		respondBadRequest(c, ErrCodeInvalidCurrency, err.Error())
		return
	}
	view, err := h.sessions.Retarget(c.Request.Context(), guid, id, target)
	h.respondView(c, http.StatusOK, view, err)
}

// BuildConfirmations handles POST /api/v1/transactions/:id/confirmations
func (h *TransactionHandlers) BuildConfirmations(c *gin.Context) {
	guid, id, ok := sessionCall(c)
	if !ok {
		return
	}
	view, err := h.sessions.BuildConfirmations(c.Request.Context(), guid, id)
	h.respondView(c, http.StatusOK, view, err)
}

// Validate handles POST /api/v1/transactions/:id/validate. A failed validation is
// still a 422 carrying the state.
func (h *TransactionHandlers) Validate(c *gin.Context) {
	guid, id, ok := sessionCall(c)
	if !ok {
		return
	}
	view, err := h.sessions.Validate(c.Request.Context(), guid, id)
	h.respondView(c, http.StatusOK, view, err)
}

// Execute handles POST /api/v1/transactions/:id/execute
func (h *TransactionHandlers) Execute(c *gin.Context) {
	guid, id, ok := sessionCall(c)
	if !ok {
		return
	}
	var req executeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}
	result, err := h.sessions.Execute(c.Request.Context(), guid, id, req.SecondPassword)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Executions handles GET /api/v1/transactions/:id/executions
func (h *TransactionHandlers) Executions(c *gin.Context) {
	guid, id, ok := sessionCall(c)
	if !ok {
		return
	}
	executions, err := h.sessions.Executions(c.Request.Context(), guid, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": executions})
}

// Stop handles DELETE /api/v1/transactions/:id
func (h *TransactionHandlers) Stop(c *gin.Context) {
	guid, id, ok := sessionCall(c)
	if !ok {
		return
	}
	if err := h.sessions.Stop(guid, id); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Settlement handles GET /api/v1/orders/:id/settlement. It blocks until the order
// reaches a final state or polling gives up.
func (h *TransactionHandlers) Settlement(c *gin.Context) {
	guid, orderID, ok := sessionCall(c)
	if !ok {
		return
	}
	order, err := h.orders.AwaitSettlement(c.Request.Context(), guid, orderID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
