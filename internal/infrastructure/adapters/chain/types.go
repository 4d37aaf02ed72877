package chain

import (
	"time"

	"github.com/shopspring/decimal"
)

type balanceResponse struct {
	Balance string `json:"balance"`
}

type nonceResponse struct {
	Nonce uint64 `json:"nonce"`
}

type pendingResponse struct {
	Pending bool `json:"pending"`
}

type pushRequest struct {
	RawTransaction string `json:"rawTransaction"`
}

type pushResponse struct {
	TxHash string `json:"txHash"`
}

type unspentRequest struct {
	Addresses []string `json:"addresses"`
}

type unspentOutput struct {
	TxHash        string `json:"tx_hash"`
	OutputIndex   uint32 `json:"tx_output_n"`
	Value         int64  `json:"value"`
	Script        string `json:"script"`
	Confirmations int64  `json:"confirmations"`
}

type unspentResponse struct {
	UnspentOutputs []unspentOutput `json:"unspent_outputs"`
}

type stellarAccountResponse struct {
	AccountID     string `json:"account_id"`
	Balance       string `json:"balance"`
	Sequence      string `json:"sequence"`
	SubentryCount uint32 `json:"subentry_count"`
}

type stellarSubmitRequest struct {
	EnvelopeXDR string `json:"tx"`
}

type feeResponse struct {
	Regular  decimal.Decimal `json:"regular"`
	Priority decimal.Decimal `json:"priority"`
	GasLimit uint64          `json:"gasLimit"`
}

type priceResponse struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}
