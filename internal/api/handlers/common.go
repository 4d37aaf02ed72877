package handlers

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rail-service/txengine/internal/api/middleware"
	"github.com/rail-service/txengine/internal/domain/entities"
)

// getGUID extracts the wallet guid set by the authentication middleware
func getGUID(c *gin.Context) (string, error) {
	guid := c.GetString(middleware.ContextGUID)
	if guid == "" {
		return "", fmt.Errorf("wallet guid not found in context")
	}
	return guid, nil
}

// getRequestID extracts request ID from context
func getRequestID(c *gin.Context) string {
	if reqID, exists := c.Get("request_id"); exists {
		if id, ok := reqID.(string); ok {
			return id
		}
	}
	return ""
}

// requestLogger returns the per-request logger set by the logging middleware
func requestLogger(c *gin.Context) *zap.SugaredLogger {
	if l, ok := c.Get("logger"); ok {
		if sugared, ok := l.(*zap.SugaredLogger); ok {
			return sugared
		}
	}
	return zap.NewNop().Sugar()
}

// moneyRequest is an amount as sent by clients: a decimal string and a currency code
type moneyRequest struct {
	Amount   string `json:"amount" binding:"required"`
	Currency string `json:"currency" binding:"required,currency"`
}

func (m moneyRequest) toMoney() (entities.MoneyValue, error) {
	currency, err := entities.CurrencyByCode(m.Currency)
	if err != nil {
		return entities.MoneyValue{}, err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(m.Amount))
	if err != nil {
		return entities.MoneyValue{}, fmt.Errorf("invalid amount %q", m.Amount)
	}
	if amount.Exponent() < -currency.Precision {
		return entities.MoneyValue{}, fmt.Errorf("%s supports %d decimal places", currency.Code, currency.Precision)
	}
	return entities.NewMoneyValue(amount, currency), nil
}

type paymentMethodRequest struct {
	ID       string                     `json:"id" binding:"required"`
	Type     entities.PaymentMethodType `json:"type" binding:"required,oneof=PAYMENT_CARD BANK_TRANSFER FUNDS"`
	Label    string                     `json:"label"`
	Currency string                     `json:"currency" binding:"required,currency"`
	Min      *moneyRequest              `json:"min"`
	Max      *moneyRequest              `json:"max"`
}

type sourceRequest struct {
	ID            string                `json:"id" binding:"required"`
	Label         string                `json:"label"`
	Kind          entities.AccountKind  `json:"kind" binding:"required,oneof=non_custodial custodial payment_method"`
	Currency      string                `json:"currency" binding:"required,currency"`
	Network       string                `json:"network"`
	Address       string                `json:"address"`
	PaymentMethod *paymentMethodRequest `json:"paymentMethod"`
}

func (r sourceRequest) toAccount() (entities.SourceAccount, error) {
	currency, err := entities.CurrencyByCode(r.Currency)
	if err != nil {
		return entities.SourceAccount{}, err
	}
	account := entities.SourceAccount{
		ID:       r.ID,
		Label:    r.Label,
		Kind:     r.Kind,
		Currency: currency,
		Network:  r.Network,
		Address:  r.Address,
	}
	if r.PaymentMethod == nil {
		return account, nil
	}

	pm := r.PaymentMethod
	pmCurrency, err := entities.CurrencyByCode(pm.Currency)
	if err != nil {
		return entities.SourceAccount{}, err
	}
	method := &entities.PaymentMethod{
		ID:       pm.ID,
		Type:     pm.Type,
		Label:    pm.Label,
		Currency: pmCurrency,
		Min:      entities.Zero(pmCurrency),
		Max:      entities.Zero(pmCurrency),
	}
	if pm.Min != nil {
		if method.Min, err = pm.Min.toMoney(); err != nil {
			return entities.SourceAccount{}, err
		}
	}
	if pm.Max != nil {
		if method.Max, err = pm.Max.toMoney(); err != nil {
			return entities.SourceAccount{}, err
		}
	}
	account.PaymentMethod = method
	return account, nil
}

type targetRequest struct {
	Kind      entities.TargetKind `json:"kind" binding:"required,oneof=address custodial_account"`
	Label     string              `json:"label"`
	Currency  string              `json:"currency" binding:"required,currency"`
	Network   string              `json:"network"`
	Address   string              `json:"address"`
	AccountID string              `json:"accountId"`
	Memo      *entities.Memo      `json:"memo"`
}

func (r targetRequest) toTarget() (entities.TransactionTarget, error) {
	currency, err := entities.CurrencyByCode(r.Currency)
	if err != nil {
		return entities.TransactionTarget{}, err
	}
	return entities.TransactionTarget{
		Kind:      r.Kind,
		Label:     r.Label,
		Currency:  currency,
		Network:   r.Network,
		Address:   strings.TrimSpace(r.Address),
		AccountID: r.AccountID,
		Memo:      r.Memo,
	}, nil
}
