// Package chain talks to the balance, fee, price and broadcast backend.
package chain

import (
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rail-service/txengine/internal/infrastructure/adapters/apiclient"
)

// Config represents chain backend configuration
type Config struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	RateLimitRPS int
}

// Client is the chain backend client
type Client struct {
	api    *apiclient.Client
	logger *zap.Logger
}

func NewClient(config Config, logger *zap.Logger) *Client {
	return &Client{
		api: apiclient.NewClient(apiclient.Config{
			Name:         "chain",
			BaseURL:      strings.TrimRight(config.BaseURL, "/"),
			APIKey:       config.APIKey,
			Timeout:      config.Timeout,
			RateLimitRPS: config.RateLimitRPS,
		}, logger),
		logger: logger,
	}
}

func seg(s string) string { return url.PathEscape(s) }
