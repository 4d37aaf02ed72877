package di

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rail-service/txengine/internal/domain/entities"
	"github.com/rail-service/txengine/internal/domain/services/fees"
	"github.com/rail-service/txengine/internal/domain/services/kyc"
	"github.com/rail-service/txengine/internal/domain/services/limits"
	"github.com/rail-service/txengine/internal/domain/services/nabuauth"
	"github.com/rail-service/txengine/internal/domain/services/session"
	"github.com/rail-service/txengine/internal/domain/services/txengine"
	"github.com/rail-service/txengine/internal/domain/services/txengine/bitcoin"
	"github.com/rail-service/txengine/internal/domain/services/txengine/buy"
	"github.com/rail-service/txengine/internal/domain/services/txengine/ethereum"
	"github.com/rail-service/txengine/internal/domain/services/txengine/stellar"
	"github.com/rail-service/txengine/internal/infrastructure/adapters/chain"
	"github.com/rail-service/txengine/internal/infrastructure/adapters/nabu"
	"github.com/rail-service/txengine/internal/infrastructure/adapters/notifier"
	"github.com/rail-service/txengine/internal/infrastructure/adapters/signer"
	"github.com/rail-service/txengine/internal/infrastructure/cache"
	"github.com/rail-service/txengine/internal/infrastructure/config"
	"github.com/rail-service/txengine/internal/infrastructure/repositories"
	"github.com/rail-service/txengine/pkg/auth"
	"github.com/rail-service/txengine/pkg/crypto"
	"github.com/rail-service/txengine/pkg/logger"
	"github.com/rail-service/txengine/pkg/ratelimit"
	"github.com/rail-service/txengine/pkg/security"
)

// Container holds every long-lived component of the service
type Container struct {
	Config *config.Config
	Logger *logger.Logger
	ZapLog *zap.Logger
	DB     *sqlx.DB
	Redis  cache.RedisClient
	Clock  clock.Clock

	// Caching
	AuthEvents *cache.AuthEvents
	Registry   *cache.Registry

	// External clients
	ChainClient *chain.Client
	NabuClient  *nabu.Client
	Signer      *signer.Client
	Alerts      *notifier.Broadcaster

	// Repositories
	Credentials     repositories.CredentialsRepository
	Executions      *repositories.ExecutedTransactionRepository
	IdempotencyRepo *repositories.IdempotencyRepository
	UTXOs           *repositories.UTXORepository
	EVMBalances     *repositories.EVMBalanceRepository
	EVMNonces       *repositories.EVMNonceRepository
	StellarAccounts *repositories.StellarAccountRepository

	// Domain services
	NabuAuth    *nabuauth.Executor
	KYC         *kyc.Service
	Limits      *limits.Service
	Fees        *fees.Service
	Sessions    *session.Manager
	OrderPoller *buy.OrderPoller

	// Token and rate limiting
	SessionRevocations *auth.SessionRevocations
	OTPAttempts        *ratelimit.OTPAttemptTracker
	TieredRateLimiter  *ratelimit.TieredLimiter
	LoginRateLimiter   *ratelimit.LocalLimiter
}

// NewContainer wires the service. redis is required: session revocations and OTP
// lockouts live there even when cached values stay in memory.
func NewContainer(cfg *config.Config, db *sqlx.DB, redis cache.RedisClient, log *logger.Logger) (*Container, error) {
	zapLog := log.Zap()
	c := &Container{
		Config: cfg,
		Logger: log,
		ZapLog: zapLog,
		DB:     db,
		Redis:  redis,
		Clock:  clock.NewDefaultClock(),
	}

	fiat, err := entities.CurrencyByCode(strings.ToUpper(cfg.FiatCurrency))
	if err != nil || !fiat.IsFiat() {
		return nil, fmt.Errorf("invalid fiat currency %q", cfg.FiatCurrency)
	}

	// Caching
	c.AuthEvents = cache.NewAuthEvents()
	registryOpts := cache.RegistryOptions{Events: c.AuthEvents, Clock: c.Clock, Logger: zapLog}
	if cfg.Cache.Backend == "redis" {
		registryOpts.Redis = redis
	}
	c.Registry = cache.NewRegistry(registryOpts)

	// External clients
	c.ChainClient = chain.NewClient(chain.Config{
		BaseURL:      cfg.Chain.BaseURL,
		APIKey:       cfg.Chain.APIKey,
		Timeout:      seconds(cfg.Chain.Timeout),
		RateLimitRPS: cfg.Chain.RateLimitRPS,
	}, zapLog)
	c.NabuClient = nabu.NewClient(nabu.Config{
		BaseURL:      cfg.Nabu.BaseURL,
		APIKey:       cfg.Nabu.APIKey,
		Timeout:      seconds(cfg.Nabu.Timeout),
		RateLimitRPS: cfg.Nabu.RateLimitRPS,
	}, zapLog)
	c.Signer, err = signer.NewClient(signer.Config{
		BaseURL: cfg.Signer.BaseURL,
		APIKey:  cfg.Signer.APIKey,
		Timeout: seconds(cfg.Signer.Timeout),
		TLS: security.ClientTLSConfig{
			CAFile:      cfg.Signer.CAFile,
			CertFile:    cfg.Signer.CertFile,
			KeyFile:     cfg.Signer.KeyFile,
			PinnedCerts: cfg.Signer.PinnedCerts,
		},
	}, zapLog)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize signer client: %w", err)
	}
	c.Alerts, err = notifier.NewBroadcaster(notifier.Config{
		Provider:       cfg.Email.Provider,
		APIKey:         cfg.Email.APIKey,
		FromEmail:      cfg.Email.FromEmail,
		FromName:       cfg.Email.FromName,
		AlertRecipient: cfg.Email.AlertRecipient,
	}, zapLog)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize alert broadcaster: %w", err)
	}

	// Repositories
	cipher, err := crypto.NewCipher(cfg.Security.EncryptionKey, "wallet-credentials")
	if err != nil {
		return nil, fmt.Errorf("failed to derive credentials key: %w", err)
	}
	c.Credentials = repositories.NewCredentialsRepository(cfg.Features.NativeWalletEnabled, db, redis, cipher, zapLog)
	c.Executions = repositories.NewExecutedTransactionRepository(db, zapLog)
	c.IdempotencyRepo = repositories.NewIdempotencyRepository(db, zapLog)

	networks, evmCurrencies, err := evmNetworks(cfg.Chain.EVMNetworks)
	if err != nil {
		return nil, err
	}
	c.UTXOs = repositories.NewUTXORepository(c.Registry, c.ChainClient, seconds(cfg.Cache.UTXOTTL), zapLog)
	c.EVMBalances = repositories.NewEVMBalanceRepository(c.Registry, c.ChainClient, evmCurrencies, seconds(cfg.Cache.BalanceTTL), zapLog)
	c.EVMNonces = repositories.NewEVMNonceRepository(c.Registry, c.ChainClient, seconds(cfg.Cache.NonceTTL), zapLog)
	c.StellarAccounts = repositories.NewStellarAccountRepository(c.Registry, c.ChainClient, seconds(cfg.Cache.AccountTTL), zapLog)

	// Domain services
	c.NabuAuth = nabuauth.NewExecutor(c.Registry, c.NabuClient, c.Credentials, c.Alerts, nabuauth.Config{
		SessionTimeout: cfg.Nabu.SessionTimeoutDuration(),
		RefreshLeeway:  cfg.Nabu.RefreshLeewayDuration(),
	}, zapLog)
	c.KYC = kyc.NewService(c.Registry, c.NabuClient, c.NabuAuth, kyc.Config{
		FetchTimeout: seconds(cfg.Polling.KYCTimeout),
		PollInterval: seconds(cfg.Polling.KYCInterval),
	}, log.With("component", "kyc"))
	c.Limits = limits.NewService(c.KYC, c.ChainClient, log.With("component", "limits"))
	c.Fees = fees.NewService(c.Registry, c.ChainClient, seconds(cfg.Cache.FeeTTL), zapLog)
	c.OrderPoller = buy.NewOrderPoller(c.NabuClient, c.NabuAuth,
		seconds(cfg.Polling.OrderInterval), cfg.Polling.OrderMaxAttempts, c.Clock, log.With("component", "order_poller"))

	builders, err := c.engineBuilders(networks, fiat)
	if err != nil {
		return nil, err
	}
	c.Sessions = session.NewManager(session.NewFactory(builders), c.Executions,
		cfg.Server.SessionTTLDuration(), c.Clock, log.With("component", "sessions"))

	// Token and rate limiting
	c.SessionRevocations = auth.NewSessionRevocations(redis.Client(), c.Clock)
	c.OTPAttempts = ratelimit.NewOTPAttemptTracker(redis.Client(), zapLog)
	c.TieredRateLimiter = ratelimit.NewTieredLimiter(redis.Client(), ratelimit.TieredConfig{
		IPLimit:    int64(cfg.Server.RateLimitPerMin),
		IPWindow:   time.Minute,
		UserLimit:  int64(cfg.Server.RateLimitPerMin),
		UserWindow: time.Minute,
		EndpointLimits: map[string]ratelimit.EndpointLimit{
			"/api/v1/transactions/:id/execute": {Limit: 10, Window: time.Minute},
		},
	}, zapLog)
	c.LoginRateLimiter = ratelimit.NewLocalLimiter(10)

	c.Alerts.OnAlert(func(a notifier.Alert) {
		zapLog.Warn("Wallet already registered to another user",
			zap.String("wallet_id_hint", a.WalletIDHint))
	})

	return c, nil
}

// engineBuilders creates one fresh engine per transaction session
func (c *Container) engineBuilders(networks map[string]ethereum.Network, fiat entities.Currency) (map[txengine.Kind]session.Builder, error) {
	cfg := c.Config
	params, err := bitcoin.ParamsForNetwork(cfg.Bitcoin.Network)
	if err != nil {
		return nil, err
	}
	btcConfig := bitcoin.Config{
		Params:               params,
		LargeTransactionFiat: decimal.NewFromFloat(cfg.Bitcoin.LargeTransactionFiat),
	}
	xlmConfig := stellar.Config{
		BaseReserve:       cfg.Stellar.BaseReserveDecimal(),
		BaseFee:           cfg.Stellar.BaseFeeDecimal(),
		ExchangeAddresses: cfg.Stellar.ExchangeAddresses,
	}
	engineLog := func(kind txengine.Kind) *logger.Logger {
		return c.Logger.With("engine", string(kind))
	}

	return map[txengine.Kind]session.Builder{
		txengine.KindBitcoin: func(string) txengine.Engine {
			return bitcoin.NewEngine(btcConfig, c.UTXOs, c.Fees, c.Signer, c.ChainClient,
				c.ChainClient, fiat, engineLog(txengine.KindBitcoin))
		},
		txengine.KindEthereum: func(string) txengine.Engine {
			return ethereum.NewEngine(networks, c.EVMBalances, c.EVMNonces, c.Fees, c.ChainClient,
				c.Signer, c.ChainClient, fiat, engineLog(txengine.KindEthereum))
		},
		txengine.KindStellar: func(string) txengine.Engine {
			return stellar.NewEngine(xlmConfig, c.StellarAccounts, c.Fees, c.Signer, c.ChainClient,
				c.ChainClient, fiat, engineLog(txengine.KindStellar))
		},
		txengine.KindBuy: func(guid string) txengine.Engine {
			return buy.NewEngine(guid, c.NabuClient, c.NabuAuth, c.Limits, c.ChainClient,
				fiat, engineLog(txengine.KindBuy))
		},
	}, nil
}

func evmNetworks(cfg map[string]config.EVMNetworkConfig) (map[string]ethereum.Network, map[string]entities.Currency, error) {
	networks := make(map[string]ethereum.Network, len(cfg))
	currencies := make(map[string]entities.Currency, len(cfg))
	for name, n := range cfg {
		currency, err := entities.CurrencyByCode(strings.ToUpper(n.NativeCurrency))
		if err != nil {
			return nil, nil, fmt.Errorf("evm network %s: %w", name, err)
		}
		networks[name] = ethereum.Network{Name: name, ChainID: n.ChainID, Currency: currency, GasLimit: n.GasLimit}
		currencies[name] = currency
	}
	return networks, currencies, nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
