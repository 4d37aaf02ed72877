package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rail-service/txengine/internal/api/middleware"
	"github.com/rail-service/txengine/internal/domain/entities"
	domainerrors "github.com/rail-service/txengine/internal/domain/errors"
	"github.com/rail-service/txengine/internal/domain/services/nabuauth"
	"github.com/rail-service/txengine/internal/infrastructure/cache"
	"github.com/rail-service/txengine/pkg/auth"
)

type memoryCredentials struct {
	mu      sync.Mutex
	creds   map[string]entities.WalletCredentials
	offline map[string]*entities.OfflineToken
}

func newMemoryCredentials() *memoryCredentials {
	return &memoryCredentials{
		creds:   map[string]entities.WalletCredentials{},
		offline: map[string]*entities.OfflineToken{},
	}
}

func (m *memoryCredentials) Credentials(_ context.Context, guid string) (entities.WalletCredentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[guid]
	if !ok {
		return entities.WalletCredentials{}, domainerrors.ErrNotFound
	}
	return c, nil
}

func (m *memoryCredentials) SaveCredentials(_ context.Context, c entities.WalletCredentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.OTPSecret == "" {
		c.OTPSecret = m.creds[c.GUID].OTPSecret
	}
	m.creds[c.GUID] = c
	return nil
}

func (m *memoryCredentials) OfflineToken(_ context.Context, guid string) (*entities.OfflineToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offline[guid], nil
}

// fakeNabu creates the offline token on first authentication
type fakeNabu struct {
	store     *memoryCredentials
	err       error
	forgotten []string
}

func (f *fakeNabu) Authenticate(ctx context.Context, guid string, call func(ctx context.Context, token string) error) error {
	if f.err != nil {
		return f.err
	}
	f.store.mu.Lock()
	f.store.offline[guid] = &entities.OfflineToken{UserID: "user-" + guid, Token: "offline"}
	f.store.mu.Unlock()
	return call(ctx, "session-token")
}

func (f *fakeNabu) Forget(_ context.Context, guid string) {
	f.forgotten = append(f.forgotten, guid)
}

type memoryRevoker struct {
	revoked     map[string]time.Time
	revokedUser map[string]time.Duration
}

func (m *memoryRevoker) Revoke(_ context.Context, hash string, expiresAt time.Time) error {
	m.revoked[hash] = expiresAt
	return nil
}

func (m *memoryRevoker) RevokeAll(_ context.Context, userID string, ttl time.Duration) error {
	m.revokedUser[userID] = ttl
	return nil
}

type recordingPolls struct{ cancelled []string }

func (r *recordingPolls) Cancel(guid string) { r.cancelled = append(r.cancelled, guid) }

type sessionFixture struct {
	handlers *SessionHandlers
	creds    *memoryCredentials
	nabu     *fakeNabu
	revoker  *memoryRevoker
	sessions *mockSessions
	polls    *recordingPolls
	events   []cache.AuthEvent
	clock    *clock.TestClock
}

func newSessionFixture() *sessionFixture {
	f := &sessionFixture{
		creds:    newMemoryCredentials(),
		revoker:  &memoryRevoker{revoked: map[string]time.Time{}, revokedUser: map[string]time.Duration{}},
		sessions: new(mockSessions),
		polls:    &recordingPolls{},
		clock:    clock.NewTestClock(time.Now().Truncate(time.Second)),
	}
	f.nabu = &fakeNabu{store: f.creds}
	events := cache.NewAuthEvents()
	events.Subscribe(func(ev cache.AuthEvent) { f.events = append(f.events, ev) })
	f.handlers = NewSessionHandlers(SessionConfig{
		JWTSecret: "test-secret",
		JWTIssuer: "txengine",
		AccessTTL: time.Hour,
		OTPIssuer: "txengine",
	}, f.creds, f.nabu, f.revoker, f.sessions, f.polls, events, f.clock, zap.NewNop())
	return f
}

func TestLogin(t *testing.T) {
	f := newSessionFixture()
	r := gin.New()
	r.POST("/login", f.handlers.Login)

	w := send(r, http.MethodPost, "/login", gin.H{
		"guid": "g-1", "sharedKey": "shared", "email": "user@example.com",
	})

	require.Equal(t, http.StatusOK, w.Code)
	var resp loginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "user-g-1", resp.UserID)
	assert.True(t, f.clock.Now().Add(time.Hour).Equal(resp.ExpiresAt))

	claims, err := auth.ValidateToken(resp.AccessToken, "test-secret")
	require.NoError(t, err)
	assert.Equal(t, "g-1", claims.GUID)
	assert.Equal(t, "user-g-1", claims.UserID)

	assert.Equal(t, []string{"g-1"}, f.nabu.forgotten)
	require.Len(t, f.events, 1)
	assert.Equal(t, cache.AuthEventLogin, f.events[0].Kind)
}

func TestLogin_AlreadyRegistered(t *testing.T) {
	f := newSessionFixture()
	f.nabu.err = &nabuauth.Error{Kind: nabuauth.KindAlreadyRegistered, WalletIDHint: "other-wallet"}
	r := gin.New()
	r.POST("/login", f.handlers.Login)

	w := send(r, http.MethodPost, "/login", gin.H{
		"guid": "g-1", "sharedKey": "shared", "email": "user@example.com",
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, ErrCodeAlreadyRegistered, resp.Code)
	assert.Equal(t, "other-wallet", resp.Details["wallet_id_hint"])
	assert.Empty(t, f.events)
}

func TestLogin_RejectsBadEmail(t *testing.T) {
	f := newSessionFixture()
	r := gin.New()
	r.POST("/login", f.handlers.Login)

	w := send(r, http.MethodPost, "/login", gin.H{"guid": "g-1", "sharedKey": "s", "email": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogout(t *testing.T) {
	f := newSessionFixture()
	f.sessions.On("StopAll", "g-1").Return(2)
	expiry := f.clock.Now().Add(20 * time.Minute)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextGUID, "g-1")
		c.Set(middleware.ContextToken, "raw-token")
		c.Set(middleware.ContextTokenExpiry, expiry)
		c.Next()
	})
	r.POST("/logout", f.handlers.Logout)

	w := send(r, http.MethodPost, "/logout", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"stopped_sessions":2`)
	assert.Equal(t, expiry, f.revoker.revoked[auth.HashToken("raw-token")])
	assert.Equal(t, []string{"g-1"}, f.polls.cancelled)
	assert.Equal(t, []string{"g-1"}, f.nabu.forgotten)
	require.Len(t, f.events, 1)
	assert.Equal(t, cache.AuthEventLogout, f.events[0].Kind)
}

func TestLogout_Everywhere(t *testing.T) {
	f := newSessionFixture()
	f.sessions.On("StopAll", "g-1").Return(0)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextGUID, "g-1")
		c.Set(middleware.ContextUserID, "user-g-1")
		c.Set(middleware.ContextToken, "raw-token")
		c.Next()
	})
	r.POST("/logout", f.handlers.Logout)

	w := send(r, http.MethodPost, "/logout?everywhere=true", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Hour, f.revoker.revokedUser["user-g-1"])
	assert.Equal(t, f.clock.Now().Add(time.Hour), f.revoker.revoked[auth.HashToken("raw-token")])
}

func TestEnrollOTP(t *testing.T) {
	f := newSessionFixture()
	require.NoError(t, f.creds.SaveCredentials(context.Background(),
		entities.WalletCredentials{GUID: "g-1", SharedKey: "s", Email: "user@example.com"}))

	r := gin.New()
	r.Use(withWallet("g-1"))
	r.POST("/otp", f.handlers.EnrollOTP)

	w := send(r, http.MethodPost, "/otp", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Secret string `json:"secret"`
		URL    string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Secret)
	assert.Contains(t, resp.URL, "otpauth://totp/")

	stored, err := f.creds.Credentials(context.Background(), "g-1")
	require.NoError(t, err)
	assert.Equal(t, resp.Secret, stored.OTPSecret)

	w = send(r, http.MethodPost, "/otp", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}
