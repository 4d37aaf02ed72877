package middleware

import (
	"context"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rail-service/txengine/pkg/auth"
	"github.com/rail-service/txengine/pkg/logger"
	"github.com/rail-service/txengine/pkg/metrics"
	"github.com/rail-service/txengine/pkg/ratelimit"
	"github.com/rail-service/txengine/pkg/security"
	"github.com/rail-service/txengine/pkg/tracing"
)

// Context keys set by Authentication
const (
	ContextUserID      = "user_id"
	ContextGUID        = "guid"
	ContextToken       = "token"
	ContextTokenExpiry = "token_expiry"
)

const (
	MaxRequestSize = 1 << 20 // 1MB
)

// TokenRevocations reports revoked bearer tokens
type TokenRevocations interface {
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)
	IsRevokedForUser(ctx context.Context, userID string, issuedAt time.Time) (bool, error)
}

// RequestID adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// RequestSizeLimit limits the size of incoming requests
func RequestSizeLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestSize)
		c.Next()
	}
}

// Tracing opens a server span per request, named after the matched route
func Tracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracing.StartSpan(c.Request.Context(), c.Request.Method+" "+route,
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route))
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
		var err error
		if len(c.Errors) > 0 {
			err = c.Errors.Last()
		}
		tracing.EndSpan(span, err)
	}
}

// Metrics records request latency by route and status
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Logger logs HTTP requests with structured logging. Query values and
// credential headers are masked before they reach the log.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestLogger := log.ForRequest(c.GetString("request_id"), c.Request.Method, c.Request.URL.Path)
		c.Set("logger", requestLogger)

		c.Next()

		fields := []interface{}{
			"status_code", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
			"response_size", c.Writer.Size(),
		}
		if query := c.Request.URL.Query(); len(query) > 0 {
			fields = append(fields, "query", security.MaskMap(flattenQuery(query)))
		}
		if c.Writer.Status() >= http.StatusBadRequest {
			fields = append(fields, "headers", security.RedactHeaders(c.Request.Header))
			if len(c.Errors) > 0 {
				fields = append(fields, "errors", security.MaskString(c.Errors.String()))
			}
		}
		requestLogger.Infow("HTTP Request", fields...)
	}
}

func flattenQuery(query map[string][]string) map[string]interface{} {
	flat := make(map[string]interface{}, len(query))
	for k, v := range query {
		if len(v) > 0 {
			flat[k] = v[0]
		}
	}
	return flat
}

// Recovery handles panics and returns 500 errors
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := c.GetString("request_id")
				log.ForRequest(requestID, c.Request.Method, c.Request.URL.Path).Errorw("Panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":      "Internal server error",
					"request_id": requestID,
				})
			}
		}()
		c.Next()
	}
}

// CORS handles Cross-Origin Resource Sharing
func CORS(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		for _, allowed := range allowedOrigins {
			if allowed == "*" || allowed == origin {
				c.Header("Access-Control-Allow-Origin", origin)
				break
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-OTP, Idempotency-Key")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID, Idempotent-Replayed")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "3600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// SecurityHeaders adds security headers to responses
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'")
		c.Next()
	}
}

// RateLimit applies limiter per client ip and, once authenticated, per user.
// Limiter errors fail open.
func RateLimit(limiter ratelimit.Limiter, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := limiter.Check(c.Request.Context(), c.ClientIP(), c.GetString(ContextUserID), c.FullPath())
		if err != nil {
			log.Warn("Rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":       "RATE_LIMITED",
				"message":    "Rate limit exceeded",
				"limited_by": result.LimitedBy,
				"request_id": c.GetString("request_id"),
			})
			return
		}
		c.Next()
	}
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":       "UNAUTHORIZED",
		"message":    message,
		"request_id": c.GetString("request_id"),
	})
}

// BearerToken extracts the token of an "Authorization: Bearer" header
func BearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Authentication validates the bearer JWT and rejects revoked tokens. The wallet
// guid claim scopes every session operation.
func Authentication(secret string, revocations TokenRevocations, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			unauthorized(c, "Authorization header required")
			return
		}
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			unauthorized(c, "Invalid authorization format")
			return
		}

		claims, err := auth.ValidateToken(token, secret)
		if err != nil {
			unauthorized(c, "Invalid token")
			return
		}
		if claims.GUID == "" {
			unauthorized(c, "Token is not bound to a wallet")
			return
		}

		if revocations != nil {
			revoked, err := revocations.IsRevoked(c.Request.Context(), auth.HashToken(token))
			if err == nil && !revoked && claims.IssuedAt != nil {
				revoked, err = revocations.IsRevokedForUser(c.Request.Context(), claims.UserID, claims.IssuedAt.Time)
			}
			if err != nil {
				log.Error("Token revocation check failed", "error", err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"code":       "SERVICE_UNAVAILABLE",
					"message":    "Unable to verify token",
					"request_id": c.GetString("request_id"),
				})
				return
			}
			if revoked {
				unauthorized(c, "Token has been revoked")
				return
			}
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextGUID, claims.GUID)
		c.Set(ContextToken, token)
		if claims.ExpiresAt != nil {
			c.Set(ContextTokenExpiry, claims.ExpiresAt.Time)
		}
		c.Next()
	}
}
