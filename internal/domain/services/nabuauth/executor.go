// Package nabuauth attaches a valid nabu session token to outbound calls. Tokens
// are refreshed once for all concurrent callers of a wallet, and a call rejected
// with 401 is retried exactly once with a fresh token.
package nabuauth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rail-service/txengine/internal/domain/entities"
	domainerrors "github.com/rail-service/txengine/internal/domain/errors"
	"github.com/rail-service/txengine/internal/infrastructure/adapters/apiclient"
	"github.com/rail-service/txengine/internal/infrastructure/adapters/nabu"
	"github.com/rail-service/txengine/internal/infrastructure/adapters/notifier"
	"github.com/rail-service/txengine/internal/infrastructure/cache"
	"github.com/rail-service/txengine/pkg/auth"
	"github.com/rail-service/txengine/pkg/metrics"
)

// UserClient talks to the nabu user and session endpoints
type UserClient interface {
	WalletJWT(ctx context.Context, creds entities.WalletCredentials) (string, error)
	CreateUser(ctx context.Context, jwt string) (entities.OfflineToken, error)
	SessionToken(ctx context.Context, offline entities.OfflineToken, guid, email string) (entities.SessionToken, error)
}

// CredentialsStore reads wallet credentials and persists the offline token
type CredentialsStore interface {
	Credentials(ctx context.Context, guid string) (entities.WalletCredentials, error)
	OfflineToken(ctx context.Context, guid string) (*entities.OfflineToken, error)
	SaveOfflineToken(ctx context.Context, guid string, token entities.OfflineToken) error
}

// AlertSender surfaces the already-registered condition
type AlertSender interface {
	Send(ctx context.Context, alert notifier.Alert)
}

type Config struct {
	SessionTimeout time.Duration
	RefreshLeeway  time.Duration
}

// Executor caches one session token per wallet guid
type Executor struct {
	cfg    Config
	users  UserClient
	creds  CredentialsStore
	alerts AlertSender
	logger *zap.Logger
	tokens *cache.CachedValue[string, entities.SessionToken]
}

func NewExecutor(registry *cache.Registry, users UserClient, creds CredentialsStore, alerts AlertSender, cfg Config, logger *zap.Logger) *Executor {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 30 * time.Second
	}
	if cfg.RefreshLeeway <= 0 {
		cfg.RefreshLeeway = time.Minute
	}
	e := &Executor{cfg: cfg, users: users, creds: creds, alerts: alerts, logger: logger}
	e.tokens = cache.Register(registry, "nabu_session_token", cache.Perpetual(), e.fetchSessionToken,
		cache.WithValidity[string, entities.SessionToken](func(t entities.SessionToken, now time.Time) bool {
			return !t.RequiresRefresh(now, cfg.RefreshLeeway)
		}))
	return e
}

// Authenticate runs call with the wallet's session token, refreshing and retrying
// once when the token is rejected
func (e *Executor) Authenticate(ctx context.Context, guid string, call func(ctx context.Context, token string) error) error {
	token, err := e.tokens.Get(ctx, guid)
	if err != nil {
		return err
	}
	err = call(ctx, token.Token)
	if !apiclient.IsUnauthorized(err) {
		return err
	}

	e.logger.Info("Session token rejected, refreshing", zap.String("user_id", token.UserID))
	rejected := token.Token
	e.tokens.InvalidateIf(ctx, guid, func(t entities.SessionToken) bool { return t.Token == rejected })

	token, err = e.tokens.Get(ctx, guid)
	if err != nil {
		return err
	}
	return call(ctx, token.Token)
}

// Authenticator runs calls with a wallet's session token
type Authenticator interface {
	Authenticate(ctx context.Context, guid string, call func(ctx context.Context, token string) error) error
}

var _ Authenticator = (*Executor)(nil)

// Do is Authenticate for calls returning a value
func Do[T any](ctx context.Context, a Authenticator, guid string, call func(ctx context.Context, token string) (T, error)) (T, error) {
	var out T
	err := a.Authenticate(ctx, guid, func(ctx context.Context, token string) error {
		v, err := call(ctx, token)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Forget drops the cached session token of a wallet, on logout
func (e *Executor) Forget(ctx context.Context, guid string) {
	e.tokens.Invalidate(ctx, guid)
}

func (e *Executor) fetchSessionToken(ctx context.Context, guid string) (entities.SessionToken, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.SessionTimeout)
	defer cancel()

	token, err := e.refresh(ctx, guid)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = &Error{Kind: KindSessionTokenFetchTimedOut, Err: err}
	}
	if err != nil {
		metrics.AuthRefreshes.WithLabelValues(string(KindOf(err))).Inc()
		e.logger.Warn("Session token refresh failed", zap.String("kind", string(KindOf(err))), zap.Error(err))
		return entities.SessionToken{}, err
	}
	metrics.AuthRefreshes.WithLabelValues("success").Inc()
	return token, nil
}

func (e *Executor) refresh(ctx context.Context, guid string) (entities.SessionToken, error) {
	if guid == "" {
		return entities.SessionToken{}, missing("guid")
	}
	creds, err := e.creds.Credentials(ctx, guid)
	if domainerrors.IsNotFound(err) {
		return entities.SessionToken{}, missing("guid")
	}
	if err != nil {
		return entities.SessionToken{}, &Error{Kind: KindCommunicatorError, Err: err}
	}
	switch {
	case creds.SharedKey == "":
		return entities.SessionToken{}, missing("sharedKey")
	case creds.Email == "":
		return entities.SessionToken{}, missing("email")
	}

	offline, err := e.creds.OfflineToken(ctx, guid)
	if err != nil {
		return entities.SessionToken{}, &Error{Kind: KindCommunicatorError, Err: err}
	}
	if offline == nil {
		if offline, err = e.createUser(ctx, creds); err != nil {
			return entities.SessionToken{}, err
		}
	}

	session, err := e.users.SessionToken(ctx, *offline, creds.GUID, creds.Email)
	if err != nil {
		if conflict := e.alreadyRegistered(ctx, creds, err); conflict != nil {
			return entities.SessionToken{}, conflict
		}
		return entities.SessionToken{}, classify(KindFailedToGetSessionToken, err)
	}
	if session.ExpiresAt == nil {
		if exp, err := auth.ExpiryUnverified(session.Token); err == nil {
			session.ExpiresAt = exp
		}
	}
	return session, nil
}

func (e *Executor) createUser(ctx context.Context, creds entities.WalletCredentials) (*entities.OfflineToken, error) {
	jwt, err := e.users.WalletJWT(ctx, creds)
	if err != nil {
		return nil, classify(KindFailedToRetrieveJWTToken, err)
	}
	offline, err := e.users.CreateUser(ctx, jwt)
	if err != nil {
		if conflict := e.alreadyRegistered(ctx, creds, err); conflict != nil {
			return nil, conflict
		}
		return nil, classify(KindFailedToCreateUser, err)
	}
	if err := e.creds.SaveOfflineToken(ctx, creds.GUID, offline); err != nil {
		return nil, &Error{Kind: KindFailedToSaveOfflineToken, Err: err}
	}
	e.logger.Info("Created nabu user", zap.String("user_id", offline.UserID))
	return &offline, nil
}

// alreadyRegistered broadcasts a 409 and converts it, or returns nil for other errors
func (e *Executor) alreadyRegistered(ctx context.Context, creds entities.WalletCredentials, err error) error {
	var conflict *nabu.AlreadyRegisteredError
	if !errors.As(err, &conflict) {
		return nil
	}
	e.alerts.Send(ctx, notifier.Alert{WalletIDHint: conflict.WalletIDHint, GUID: creds.GUID, Email: creds.Email})
	return &Error{Kind: KindAlreadyRegistered, WalletIDHint: conflict.WalletIDHint, Err: err}
}
