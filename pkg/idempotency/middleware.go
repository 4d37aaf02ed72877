package idempotency

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// HeaderIdempotencyKey is the HTTP header for idempotency key
	HeaderIdempotencyKey = "Idempotency-Key"

	// MaxBodySize is the maximum request body size for idempotency (1MB)
	MaxBodySize = 1 << 20
)

// Record is a stored response for one key
type Record struct {
	Key            string
	RequestPath    string
	RequestMethod  string
	RequestHash    string
	UserID         string
	ResponseStatus int
	ResponseBody   []byte
	ExpiresAt      time.Time
}

// Store persists records
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	Create(ctx context.Context, record *Record) error
}

// responseWriter wraps gin.ResponseWriter to capture response
type responseWriter struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Middleware replays the stored response of a repeated Idempotency-Key. Keys are
// scoped per authenticated user.
func Middleware(store Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader(HeaderIdempotencyKey)
		if idempotencyKey == "" {
			c.Next()
			return
		}

		if err := ValidateKey(idempotencyKey); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":      "Invalid idempotency key",
				"message":    err.Error(),
				"request_id": c.GetString("request_id"),
			})
			return
		}

		bodyBytes, err := ReadBody(c.Request.Body, MaxBodySize)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":      "Failed to read request body",
				"request_id": c.GetString("request_id"),
			})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

		userID := c.GetString("user_id")
		scopedKey := userID + ":" + idempotencyKey
		requestHash := HashRequest(append([]byte(c.Request.Method+" "+c.Request.URL.Path+"\n"), bodyBytes...))

		existing, err := store.Get(c.Request.Context(), scopedKey)
		if err != nil {
			// fail open
			logger.Error("Failed to check idempotency key",
				zap.String("idempotency_key", idempotencyKey),
				zap.Error(err))
			c.Next()
			return
		}

		if existing != nil {
			replay, reason := ShouldReplay(existing, requestHash)
			if !replay {
				logger.Warn("Idempotency key conflict",
					zap.String("idempotency_key", idempotencyKey),
					zap.String("reason", reason))
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"error":      "Idempotency key conflict",
					"message":    reason,
					"request_id": c.GetString("request_id"),
				})
				return
			}

			logger.Info("Returning cached response",
				zap.String("idempotency_key", idempotencyKey),
				zap.Int("status", existing.ResponseStatus))
			c.Header("Idempotent-Replayed", "true")
			c.Data(existing.ResponseStatus, "application/json; charset=utf-8", existing.ResponseBody)
			c.Abort()
			return
		}

		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
			status:         http.StatusOK,
		}
		c.Writer = writer

		c.Next()

		record := &Record{
			Key:            scopedKey,
			RequestPath:    c.Request.URL.Path,
			RequestMethod:  c.Request.Method,
			RequestHash:    requestHash,
			UserID:         userID,
			ResponseStatus: writer.status,
			ResponseBody:   writer.body.Bytes(),
			ExpiresAt:      time.Now().Add(DefaultTTL),
		}
		if err := store.Create(c.Request.Context(), record); err != nil {
			logger.Error("Failed to store idempotency key",
				zap.String("idempotency_key", idempotencyKey),
				zap.Error(err))
		}
	}
}

// RequireIdempotency rejects requests without an Idempotency-Key header
func RequireIdempotency() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(HeaderIdempotencyKey) == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":      "Idempotency key required",
				"message":    "This endpoint requires an Idempotency-Key header",
				"request_id": c.GetString("request_id"),
			})
			return
		}
		c.Next()
	}
}
