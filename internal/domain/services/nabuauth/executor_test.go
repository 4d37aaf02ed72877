package nabuauth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rail-service/txengine/internal/domain/entities"
	domainerrors "github.com/rail-service/txengine/internal/domain/errors"
	"github.com/rail-service/txengine/internal/infrastructure/adapters/apiclient"
	"github.com/rail-service/txengine/internal/infrastructure/adapters/nabu"
	"github.com/rail-service/txengine/internal/infrastructure/adapters/notifier"
	"github.com/rail-service/txengine/internal/infrastructure/cache"
)

type mockUsers struct{ mock.Mock }

func (m *mockUsers) WalletJWT(ctx context.Context, creds entities.WalletCredentials) (string, error) {
	args := m.Called(ctx, creds)
	return args.String(0), args.Error(1)
}

func (m *mockUsers) CreateUser(ctx context.Context, jwt string) (entities.OfflineToken, error) {
	args := m.Called(ctx, jwt)
	return args.Get(0).(entities.OfflineToken), args.Error(1)
}

func (m *mockUsers) SessionToken(ctx context.Context, offline entities.OfflineToken, guid, email string) (entities.SessionToken, error) {
	args := m.Called(ctx, offline, guid, email)
	return args.Get(0).(entities.SessionToken), args.Error(1)
}

type memoryCredentials struct {
	mu      sync.Mutex
	creds   map[string]entities.WalletCredentials
	offline map[string]entities.OfflineToken
	saveErr error
}

func newMemoryCredentials(creds ...entities.WalletCredentials) *memoryCredentials {
	m := &memoryCredentials{creds: map[string]entities.WalletCredentials{}, offline: map[string]entities.OfflineToken{}}
	for _, c := range creds {
		m.creds[c.GUID] = c
	}
	return m
}

func (m *memoryCredentials) Credentials(_ context.Context, guid string) (entities.WalletCredentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[guid]
	if !ok {
		return c, domainerrors.NotFoundError("wallet credentials")
	}
	return c, nil
}

func (m *memoryCredentials) OfflineToken(_ context.Context, guid string) (*entities.OfflineToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.offline[guid]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *memoryCredentials) SaveOfflineToken(_ context.Context, guid string, token entities.OfflineToken) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline[guid] = token
	return nil
}

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []notifier.Alert
}

func (r *recordingAlerts) Send(_ context.Context, alert notifier.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
}

var (
	walletCreds = entities.WalletCredentials{GUID: "guid-1", SharedKey: "shared", Email: "user@example.com"}
	offline     = entities.OfflineToken{UserID: "user-1", Token: "offline-token"}
)

func newExecutor(t *testing.T, users UserClient, creds CredentialsStore, alerts AlertSender, cfg Config, clk clock.Clock) *Executor {
	t.Helper()
	registry := cache.NewRegistry(cache.RegistryOptions{Logger: zap.NewNop(), Clock: clk})
	return NewExecutor(registry, users, creds, alerts, cfg, zap.NewNop())
}

func unauthorized() error {
	return &apiclient.ErrorResponse{StatusCode: http.StatusUnauthorized, Client: "nabu"}
}

func TestAuthenticate_RetriesOnceAfter401(t *testing.T) {
	users := &mockUsers{}
	creds := newMemoryCredentials(walletCreds)
	creds.offline[walletCreds.GUID] = offline
	users.On("SessionToken", mock.Anything, offline, "guid-1", "user@example.com").
		Return(entities.SessionToken{Token: "t1"}, nil).Once()
	users.On("SessionToken", mock.Anything, offline, "guid-1", "user@example.com").
		Return(entities.SessionToken{Token: "t2"}, nil).Once()

	e := newExecutor(t, users, creds, &recordingAlerts{}, Config{}, nil)
	ctx := context.Background()

	require.NoError(t, e.Authenticate(ctx, "guid-1", func(context.Context, string) error { return nil }))

	var seen []string
	err := e.Authenticate(ctx, "guid-1", func(_ context.Context, token string) error {
		seen = append(seen, token)
		if token == "t1" {
			return unauthorized()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, seen)
	users.AssertNumberOfCalls(t, "SessionToken", 2)
}

func TestAuthenticate_SecondRejectionSurfaces(t *testing.T) {
	users := &mockUsers{}
	creds := newMemoryCredentials(walletCreds)
	creds.offline[walletCreds.GUID] = offline
	users.On("SessionToken", mock.Anything, offline, "guid-1", "user@example.com").
		Return(entities.SessionToken{Token: "t"}, nil)

	e := newExecutor(t, users, creds, &recordingAlerts{}, Config{}, nil)
	calls := 0
	err := e.Authenticate(context.Background(), "guid-1", func(context.Context, string) error {
		calls++
		return unauthorized()
	})
	assert.True(t, apiclient.IsUnauthorized(err))
	assert.Equal(t, 2, calls)
}

func TestAuthenticate_ConcurrentCallersShareOneRefresh(t *testing.T) {
	users := &mockUsers{}
	creds := newMemoryCredentials(walletCreds)
	creds.offline[walletCreds.GUID] = offline
	release := make(chan struct{})
	var refreshes int64
	users.On("SessionToken", mock.Anything, offline, "guid-1", "user@example.com").
		Run(func(mock.Arguments) {
			atomic.AddInt64(&refreshes, 1)
			<-release
		}).
		Return(entities.SessionToken{Token: "shared"}, nil)

	e := newExecutor(t, users, creds, &recordingAlerts{}, Config{}, nil)

	const n = 16
	var wg sync.WaitGroup
	tokens := make([]string, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_ = e.Authenticate(context.Background(), "guid-1", func(_ context.Context, token string) error {
				tokens[i] = token
				return nil
			})
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt64(&refreshes))
	for _, tok := range tokens {
		assert.Equal(t, "shared", tok)
	}
}

func TestRefresh_CreatesUserWhenNoOfflineToken(t *testing.T) {
	users := &mockUsers{}
	creds := newMemoryCredentials(walletCreds)
	users.On("WalletJWT", mock.Anything, walletCreds).Return("wallet-jwt", nil).Once()
	users.On("CreateUser", mock.Anything, "wallet-jwt").Return(offline, nil).Once()
	users.On("SessionToken", mock.Anything, offline, "guid-1", "user@example.com").
		Return(entities.SessionToken{Token: "s"}, nil).Once()

	e := newExecutor(t, users, creds, &recordingAlerts{}, Config{}, nil)
	token, err := Do(context.Background(), e, "guid-1", func(_ context.Context, token string) (string, error) {
		return token, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "s", token)

	stored, _ := creds.OfflineToken(context.Background(), "guid-1")
	require.NotNil(t, stored)
	assert.Equal(t, offline, *stored)
	users.AssertExpectations(t)
}

func TestRefresh_ErrorTaxonomy(t *testing.T) {
	ctx := context.Background()
	noop := func(context.Context, string) error { return nil }

	t.Run("missing credentials", func(t *testing.T) {
		creds := newMemoryCredentials(entities.WalletCredentials{GUID: "guid-1", SharedKey: "k"})
		e := newExecutor(t, &mockUsers{}, creds, &recordingAlerts{}, Config{}, nil)
		err := e.Authenticate(ctx, "guid-1", noop)
		require.ErrorIs(t, err, ErrMissingCredentials)
		var authErr *Error
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, "email", authErr.Which)

		err = e.Authenticate(ctx, "unknown", noop)
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, "guid", authErr.Which)
	})

	t.Run("jwt failure", func(t *testing.T) {
		users := &mockUsers{}
		users.On("WalletJWT", mock.Anything, walletCreds).
			Return("", &apiclient.ErrorResponse{StatusCode: http.StatusBadRequest}).Once()
		e := newExecutor(t, users, newMemoryCredentials(walletCreds), &recordingAlerts{}, Config{}, nil)
		assert.Equal(t, KindFailedToRetrieveJWTToken, KindOf(e.Authenticate(ctx, "guid-1", noop)))
	})

	t.Run("create user failure", func(t *testing.T) {
		users := &mockUsers{}
		users.On("WalletJWT", mock.Anything, walletCreds).Return("jwt", nil)
		users.On("CreateUser", mock.Anything, "jwt").
			Return(entities.OfflineToken{}, &apiclient.ErrorResponse{StatusCode: http.StatusInternalServerError}).Once()
		e := newExecutor(t, users, newMemoryCredentials(walletCreds), &recordingAlerts{}, Config{}, nil)
		assert.Equal(t, KindFailedToCreateUser, KindOf(e.Authenticate(ctx, "guid-1", noop)))
	})

	t.Run("offline token not saved", func(t *testing.T) {
		users := &mockUsers{}
		users.On("WalletJWT", mock.Anything, walletCreds).Return("jwt", nil)
		users.On("CreateUser", mock.Anything, "jwt").Return(offline, nil)
		creds := newMemoryCredentials(walletCreds)
		creds.saveErr = errors.New("disk full")
		e := newExecutor(t, users, creds, &recordingAlerts{}, Config{}, nil)
		assert.Equal(t, KindFailedToSaveOfflineToken, KindOf(e.Authenticate(ctx, "guid-1", noop)))
	})

	t.Run("session http failure and transport failure", func(t *testing.T) {
		users := &mockUsers{}
		creds := newMemoryCredentials(walletCreds)
		creds.offline[walletCreds.GUID] = offline
		users.On("SessionToken", mock.Anything, offline, "guid-1", "user@example.com").
			Return(entities.SessionToken{}, &apiclient.ErrorResponse{StatusCode: http.StatusBadGateway}).Once()
		users.On("SessionToken", mock.Anything, offline, "guid-1", "user@example.com").
			Return(entities.SessionToken{}, errors.New("connection reset")).Once()
		e := newExecutor(t, users, creds, &recordingAlerts{}, Config{}, nil)
		assert.Equal(t, KindFailedToGetSessionToken, KindOf(e.Authenticate(ctx, "guid-1", noop)))
		assert.Equal(t, KindCommunicatorError, KindOf(e.Authenticate(ctx, "guid-1", noop)))
	})

	t.Run("timeout", func(t *testing.T) {
		users := &mockUsers{}
		creds := newMemoryCredentials(walletCreds)
		creds.offline[walletCreds.GUID] = offline
		users.On("SessionToken", mock.Anything, offline, "guid-1", "user@example.com").
			Run(func(args mock.Arguments) {
				<-args.Get(0).(context.Context).Done()
			}).
			Return(entities.SessionToken{}, context.DeadlineExceeded)
		e := newExecutor(t, users, creds, &recordingAlerts{}, Config{SessionTimeout: 20 * time.Millisecond}, nil)
		assert.ErrorIs(t, e.Authenticate(ctx, "guid-1", noop), ErrSessionTokenFetchTimedOut)
	})
}

func TestRefresh_AlreadyRegisteredIsBroadcast(t *testing.T) {
	users := &mockUsers{}
	creds := newMemoryCredentials(walletCreds)
	creds.offline[walletCreds.GUID] = offline
	users.On("SessionToken", mock.Anything, offline, "guid-1", "user@example.com").
		Return(entities.SessionToken{}, &nabu.AlreadyRegisteredError{WalletIDHint: "a1b2"})
	alerts := &recordingAlerts{}
	e := newExecutor(t, users, creds, alerts, Config{}, nil)

	err := e.Authenticate(context.Background(), "guid-1", func(context.Context, string) error { return nil })
	require.ErrorIs(t, err, ErrAlreadyRegistered)
	var authErr *Error
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "a1b2", authErr.WalletIDHint)

	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, "a1b2", alerts.alerts[0].WalletIDHint)
	assert.Equal(t, "guid-1", alerts.alerts[0].GUID)
}

func TestAuthenticate_RefreshesExpiringToken(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	clk := clock.NewTestClock(now)
	exp := now.Add(5 * time.Minute)

	users := &mockUsers{}
	creds := newMemoryCredentials(walletCreds)
	creds.offline[walletCreds.GUID] = offline
	users.On("SessionToken", mock.Anything, offline, "guid-1", "user@example.com").
		Return(entities.SessionToken{Token: "t1", ExpiresAt: &exp}, nil).Once()
	later := now.Add(time.Hour)
	users.On("SessionToken", mock.Anything, offline, "guid-1", "user@example.com").
		Return(entities.SessionToken{Token: "t2", ExpiresAt: &later}, nil).Once()

	e := newExecutor(t, users, creds, &recordingAlerts{}, Config{RefreshLeeway: time.Minute}, clk)
	get := func() string {
		tok, err := Do(context.Background(), e, "guid-1", func(_ context.Context, token string) (string, error) {
			return token, nil
		})
		require.NoError(t, err)
		return tok
	}

	assert.Equal(t, "t1", get())
	clk.SetTime(now.Add(3 * time.Minute))
	assert.Equal(t, "t1", get())
	clk.SetTime(now.Add(4*time.Minute + 30*time.Second))
	assert.Equal(t, "t2", get())
	users.AssertExpectations(t)
}
