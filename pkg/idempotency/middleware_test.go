package idempotency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

func (m *memoryStore) Get(_ context.Context, key string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[key], nil
}

func (m *memoryStore) Create(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.Key] = r
	return nil
}

func setupRouter(store Store, calls *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/execute", Middleware(store, zap.NewNop()), func(c *gin.Context) {
		*calls++
		c.JSON(http.StatusOK, gin.H{"txHash": "abc", "n": *calls})
	})
	return r
}

func do(r *gin.Engine, key, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(body))
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_ReplaysResponse(t *testing.T) {
	store := &memoryStore{records: map[string]*Record{}}
	calls := 0
	r := setupRouter(store, &calls)

	first := do(r, "key-12345678", `{"a":1}`)
	require.Equal(t, http.StatusOK, first.Code)

	second := do(r, "key-12345678", `{"a":1}`)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 1, calls)
}

func TestMiddleware_ConflictOnDifferentBody(t *testing.T) {
	store := &memoryStore{records: map[string]*Record{}}
	calls := 0
	r := setupRouter(store, &calls)

	do(r, "key-12345678", `{"a":1}`)
	w := do(r, "key-12345678", `{"a":2}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 1, calls)
}

func TestMiddleware_InvalidKeyAndMissingKey(t *testing.T) {
	store := &memoryStore{records: map[string]*Record{}}
	calls := 0
	r := setupRouter(store, &calls)

	assert.Equal(t, http.StatusBadRequest, do(r, "short", `{}`).Code)
	assert.Equal(t, http.StatusOK, do(r, "", `{}`).Code)
	assert.Equal(t, http.StatusOK, do(r, "", `{}`).Code)
	assert.Equal(t, 2, calls)
}

func TestRequireIdempotency(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &memoryStore{records: map[string]*Record{}}
	calls := 0
	r := gin.New()
	r.POST("/execute", RequireIdempotency(), Middleware(store, zap.NewNop()), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"txHash": "abc"})
	})

	w := do(r, "", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Idempotency key required")
	assert.Equal(t, 0, calls)

	assert.Equal(t, http.StatusOK, do(r, "key-12345678", `{}`).Code)
	w = do(r, "key-12345678", `{}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 1, calls)
}
