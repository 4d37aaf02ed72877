// Package signer is the client of the external key custody service. Keys never
// enter this process: unsigned transactions go out, signed ones come back.
package signer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rail-service/txengine/internal/domain/entities"
	"github.com/rail-service/txengine/internal/infrastructure/adapters/apiclient"
	"github.com/rail-service/txengine/pkg/retry"
	"github.com/rail-service/txengine/pkg/security"
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	TLS     security.ClientTLSConfig
}

type Client struct {
	api    *apiclient.Client
	logger *zap.Logger
}

// NewClient fails only when the configured TLS material cannot be loaded
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	apiConfig := apiclient.Config{
		Name:    "signer",
		BaseURL: strings.TrimRight(config.BaseURL, "/"),
		APIKey:  config.APIKey,
		Timeout: config.Timeout,
		// signing is not idempotent from our side, never retry it
		Retry: retry.FixedPolicy(0, 0),
	}
	if config.TLS.Enabled() {
		transport, err := config.TLS.NewClientTransport()
		if err != nil {
			return nil, fmt.Errorf("signer tls: %w", err)
		}
		apiConfig.Transport = transport
	}
	return &Client{
		api:    apiclient.NewClient(apiConfig, logger),
		logger: logger,
	}, nil
}

// PrevOutput is the output an input spends, needed for segwit sighashes
type PrevOutput struct {
	Script string `json:"script"`
	Value  int64  `json:"value"`
}

type BitcoinSignRequest struct {
	AccountID   string       `json:"accountId"`
	UnsignedTx  string       `json:"unsignedTx"`
	PrevOutputs []PrevOutput `json:"prevOutputs"`
}

type EVMSignRequest struct {
	AccountID  string `json:"accountId"`
	Network    string `json:"network"`
	ChainID    int64  `json:"chainId"`
	UnsignedTx string `json:"unsignedTx"`
}

// StellarOperation is the single operation of a stellar payment transaction
type StellarOperation string

const (
	StellarOperationPayment       StellarOperation = "payment"
	StellarOperationCreateAccount StellarOperation = "createAccount"
)

type StellarSignRequest struct {
	AccountID   string           `json:"accountId"`
	Source      string           `json:"source"`
	Operation   StellarOperation `json:"operation"`
	Destination string           `json:"destination"`
	Amount      string           `json:"amount"`
	FeeStroops  int64            `json:"fee"`
	Sequence    int64            `json:"sequence"`
	Memo        *entities.Memo   `json:"memo,omitempty"`
}

type signResponse struct {
	Signed string `json:"signed"`
}

func (c *Client) sign(ctx context.Context, path string, req interface{}, secondPassword string) (string, error) {
	var opts []apiclient.RequestOption
	if secondPassword != "" {
		opts = append(opts, apiclient.WithHeader("X-Second-Password", secondPassword))
	}
	var resp signResponse
	if err := c.api.Post(ctx, path, req, &resp, opts...); err != nil {
		return "", err
	}
	if resp.Signed == "" {
		return "", fmt.Errorf("signer returned an empty payload")
	}
	return resp.Signed, nil
}

// SignBitcoin returns the signed raw transaction in hex
func (c *Client) SignBitcoin(ctx context.Context, req BitcoinSignRequest, secondPassword string) (string, error) {
	return c.sign(ctx, "/sign/btc", req, secondPassword)
}

// SignEVM returns the signed RLP transaction as 0x hex
func (c *Client) SignEVM(ctx context.Context, req EVMSignRequest, secondPassword string) (string, error) {
	return c.sign(ctx, "/sign/evm", req, secondPassword)
}

// SignStellar returns the signed transaction envelope as base64 XDR
func (c *Client) SignStellar(ctx context.Context, req StellarSignRequest, secondPassword string) (string, error) {
	return c.sign(ctx, "/sign/xlm", req, secondPassword)
}
