package nabu

import (
	"encoding/json"
	"time"
)

type jwtResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Error   string `json:"error,omitempty"`
}

type createUserRequest struct {
	JWT string `json:"jwt"`
}

type createUserResponse struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

type sessionResponse struct {
	Token     string     `json:"token"`
	UserID    string     `json:"userId"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// conflictBody is sent with 409 when the wallet must restore an existing user
type conflictBody struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	WalletIDHint string `json:"walletIdHint"`
}

type tierDTO struct {
	Index int    `json:"index"`
	State string `json:"state"`
}

type tiersResponse struct {
	Tiers []tierDTO `json:"tiers"`
}

type sddEligibilityResponse struct {
	Eligible bool `json:"eligible"`
	Tier     int  `json:"tier"`
}

type sddVerificationResponse struct {
	Verified     bool `json:"verified"`
	TaskComplete bool `json:"taskComplete"`
}

type createOrderRequest struct {
	Pair            string          `json:"pair"`
	Action          string          `json:"action"`
	Input           quantityDTO     `json:"input"`
	Output          currencyDTO     `json:"output"`
	PaymentMethodID string          `json:"paymentMethodId,omitempty"`
	PaymentType     string          `json:"paymentType"`
	Extra           json.RawMessage `json:"extra,omitempty"`
}

type quantityDTO struct {
	Symbol string `json:"symbol"`
	Amount string `json:"amount"` // minor units
}

type currencyDTO struct {
	Symbol string `json:"symbol"`
}

type orderAction struct {
	Action string `json:"action"`
}

type orderResponse struct {
	ID              string    `json:"id"`
	State           string    `json:"state"`
	InputCurrency   string    `json:"inputCurrency"`
	InputQuantity   string    `json:"inputQuantity"`
	OutputCurrency  string    `json:"outputCurrency"`
	OutputQuantity  string    `json:"outputQuantity"`
	Fee             string    `json:"fee"`
	Price           string    `json:"price"`
	PaymentMethodID string    `json:"paymentMethodId"`
	PaymentType     string    `json:"paymentType"`
	InsertedAt      time.Time `json:"insertedAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
}
