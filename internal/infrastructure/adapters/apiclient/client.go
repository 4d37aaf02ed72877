// Package apiclient is the JSON-over-HTTP client shared by the chain, nabu and
// signer adapters: rate limited, behind a circuit breaker, with retries on
// transient failures.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rail-service/txengine/pkg/metrics"
	"github.com/rail-service/txengine/pkg/retry"
	"github.com/rail-service/txengine/pkg/tracing"
)

const defaultTimeout = 30 * time.Second

// Config represents client configuration
type Config struct {
	Name         string
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	RateLimitRPS int
	Retry        retry.Policy
	Transport    http.RoundTripper // nil uses http.DefaultTransport
}

// Client is a JSON API client
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	rateLimiter    *rate.Limiter
	retrier        *retry.Retrier
	logger         *zap.Logger
}

// RequestOption decorates an outgoing request
type RequestOption func(*http.Request)

// WithBearer sets the Authorization header
func WithBearer(token string) RequestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

// NewClient creates a client; zero values fall back to sane defaults
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RateLimitRPS <= 0 {
		config.RateLimitRPS = 10
	}
	if config.Retry.Multiplier == 0 {
		config.Retry = retry.DefaultPolicy()
	}
	logger = logger.With(zap.String("client", config.Name))

	cbSettings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// client errors say nothing about upstream health
		IsSuccessful: func(err error) bool {
			status := StatusOf(err)
			return err == nil || (status >= 400 && status < 500)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		config:         config,
		httpClient:     &http.Client{Timeout: config.Timeout, Transport: config.Transport},
		circuitBreaker: gobreaker.NewCircuitBreaker(cbSettings),
		rateLimiter:    rate.NewLimiter(rate.Limit(config.RateLimitRPS), config.RateLimitRPS),
		retrier:        retry.NewRetrier(config.Retry, logger),
		logger:         logger,
	}
}

func (c *Client) Get(ctx context.Context, path string, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

func (c *Client) Post(ctx context.Context, path string, body, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, body, out, opts...)
}

func (c *Client) Delete(ctx context.Context, path string, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out, opts...)
}

// Do sends a JSON request and decodes a JSON response into out (when non-nil)
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}, opts ...RequestOption) error {
	ctx, span := tracing.StartSpan(ctx, c.config.Name+" "+method,
		attribute.String("http.method", method),
		attribute.String("http.path", path))

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			tracing.EndSpan(span, err)
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			return nil, c.doOnce(ctx, method, path, payload, out, opts)
		})
		return err
	})
	tracing.EndSpan(span, err)
	return err
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, out interface{}, opts []RequestOption) error {
	started := time.Now()
	status := "error"
	defer func() { metrics.ObserveClient(c.config.Name, status, started) }()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set("X-API-Key", c.config.APIKey)
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		errResp := &ErrorResponse{Client: c.config.Name}
		if json.Unmarshal(respBody, errResp) != nil || errResp.Message == "" {
			errResp.Message = string(respBody)
		}
		errResp.StatusCode = resp.StatusCode
		errResp.Body = respBody
		c.logger.Debug("Upstream returned error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return errResp
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// IsCircuitOpen reports whether err came from an open breaker
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
