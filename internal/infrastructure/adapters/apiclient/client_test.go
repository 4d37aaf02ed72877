package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rail-service/txengine/pkg/retry"
)

func testClient(url string) *Client {
	return NewClient(Config{
		Name:         "test",
		BaseURL:      url,
		APIKey:       "key",
		RateLimitRPS: 100,
		Retry:        retry.FixedPolicy(2, time.Millisecond),
	}, zap.NewNop())
}

func TestClient_GetDecodesJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/balance", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-API-Key"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]string{"balance": "42"})
	}))
	defer server.Close()

	var out struct {
		Balance string `json:"balance"`
	}
	err := testClient(server.URL).Get(context.Background(), "/v1/balance", &out, WithBearer("tok"))
	require.NoError(t, err)
	assert.Equal(t, "42", out.Balance)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	require.NoError(t, testClient(server.URL).Get(context.Background(), "/x", nil))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"TOKEN_EXPIRED","message":"expired"}`))
	}))
	defer server.Close()

	err := testClient(server.URL).Post(context.Background(), "/x", map[string]string{"a": "b"}, nil)
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))

	var resp *ErrorResponse
	require.ErrorAs(t, err, &resp)
	assert.Equal(t, "TOKEN_EXPIRED", resp.Code)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestClient_PlainTextErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("no such account"))
	}))
	defer server.Close()

	err := testClient(server.URL).Get(context.Background(), "/x", nil)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "no such account")
}
