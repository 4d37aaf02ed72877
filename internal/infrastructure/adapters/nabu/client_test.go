package nabu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rail-service/txengine/internal/domain/entities"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{BaseURL: server.URL, RateLimitRPS: 100}, zap.NewNop())
}

func TestSessionToken_SendsWalletHeaders(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth", r.URL.Path)
		assert.Equal(t, "user-1", r.URL.Query().Get("userId"))
		assert.Equal(t, "Bearer offline", r.Header.Get("Authorization"))
		assert.Equal(t, "guid-1", r.Header.Get("X-WALLET-GUID"))
		assert.Equal(t, "a@b.c", r.Header.Get("X-WALLET-EMAIL"))
		json.NewEncoder(w).Encode(map[string]string{"token": "session", "userId": "user-1"})
	})

	token, err := client.SessionToken(context.Background(),
		entities.OfflineToken{UserID: "user-1", Token: "offline"}, "guid-1", "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, "session", token.Token)
}

func TestSessionToken_ConflictCarriesHint(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"CONFLICT","message":"restore wallet","walletIdHint":"abcd-1234"}`))
	})

	_, err := client.SessionToken(context.Background(), entities.OfflineToken{UserID: "u", Token: "t"}, "g", "e")
	var conflict *AlreadyRegisteredError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "abcd-1234", conflict.WalletIDHint)
}

func TestTiers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tiers":[{"index":1,"state":"verified"},{"index":2,"state":"pending"}]}`))
	})

	tiers, err := client.Tiers(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, entities.KYCTierBasic, tiers.LatestApprovedTier())
	assert.False(t, tiers.IsTier2Approved())
}

func TestCreateOrder_MapsMinorUnits(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pending", r.URL.Query().Get("action"))
		var body createOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "10000", body.Input.Amount)
		w.Write([]byte(`{"id":"ord-1","state":"PENDING_CONFIRMATION","inputCurrency":"USD","inputQuantity":"10000",
			"outputCurrency":"BTC","outputQuantity":"160000","fee":"250","price":"60000"}`))
	})

	input, err := entities.MoneyFromString("100", entities.USD)
	require.NoError(t, err)
	order, err := client.CreateOrder(context.Background(), "tok", entities.CreateOrderRequest{
		Pair: "BTC-USD", Action: "BUY", Input: input, OutputCurrency: "BTC",
		PaymentType: entities.PaymentMethodCard, Pending: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", order.ID)
	assert.Equal(t, "2.5", order.Fee.Amount().String())
	assert.Equal(t, "0.0016", order.OutputValue.Amount().String())
	assert.Equal(t, entities.OrderStatePendingConfirmation, order.State)
}
