package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment  string         `mapstructure:"environment"`
	LogLevel     string         `mapstructure:"log_level"`
	FiatCurrency string         `mapstructure:"fiat_currency"`
	Server       ServerConfig   `mapstructure:"server"`
	Database     DatabaseConfig `mapstructure:"database"`
	Redis        RedisConfig    `mapstructure:"redis"`
	JWT          JWTConfig      `mapstructure:"jwt"`
	Security     SecurityConfig `mapstructure:"security"`
	Nabu         NabuConfig     `mapstructure:"nabu"`
	Chain        ChainConfig    `mapstructure:"chain"`
	Bitcoin      BitcoinConfig  `mapstructure:"bitcoin"`
	Stellar      StellarConfig  `mapstructure:"stellar"`
	Signer       SignerConfig   `mapstructure:"signer"`
	Cache        CacheConfig    `mapstructure:"cache"`
	Polling      PollingConfig  `mapstructure:"polling"`
	Email        EmailConfig    `mapstructure:"email"`
	Tracing      TracingConfig  `mapstructure:"tracing"`
	Workers      WorkerConfig   `mapstructure:"workers"`
	Features     FeatureFlags   `mapstructure:"features"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	Host            string   `mapstructure:"host"`
	ReadTimeout     int      `mapstructure:"read_timeout"`
	WriteTimeout    int      `mapstructure:"write_timeout"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	RateLimitPerMin int      `mapstructure:"rate_limit_per_min"`
	SessionTTL      int      `mapstructure:"session_ttl"` // seconds a transaction session stays alive
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	QueryTimeout    int    `mapstructure:"query_timeout"`
	MigrationsPath  string `mapstructure:"migrations_path"`
}

type RedisConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret    string `mapstructure:"secret"`
	AccessTTL int    `mapstructure:"access_token_ttl"`
	Issuer    string `mapstructure:"issuer"`
}

type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
	RequireOTP    bool   `mapstructure:"require_otp"` // demand X-OTP on execute
	OTPIssuer     string `mapstructure:"otp_issuer"`
}

// NabuConfig configures the custodial backend and the session token executor
type NabuConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Timeout        int    `mapstructure:"timeout"`         // per request, seconds
	SessionTimeout int    `mapstructure:"session_timeout"` // token refresh bound, seconds
	RefreshLeeway  int    `mapstructure:"refresh_leeway"`  // seconds before exp a token is refreshed
	RateLimitRPS   int    `mapstructure:"rate_limit_rps"`
}

// ChainConfig points at the balance/fee/price/push backend
type ChainConfig struct {
	BaseURL      string                      `mapstructure:"base_url"`
	APIKey       string                      `mapstructure:"api_key"`
	Timeout      int                         `mapstructure:"timeout"`
	RateLimitRPS int                         `mapstructure:"rate_limit_rps"`
	EVMNetworks  map[string]EVMNetworkConfig `mapstructure:"evm_networks"`
}

type EVMNetworkConfig struct {
	ChainID        int64  `mapstructure:"chain_id"`
	NativeCurrency string `mapstructure:"native_currency"`
	GasLimit       uint64 `mapstructure:"gas_limit"`
}

type BitcoinConfig struct {
	Network              string  `mapstructure:"network"` // mainnet, testnet3, regtest
	LargeTransactionFiat float64 `mapstructure:"large_transaction_fiat"`
}

type StellarConfig struct {
	BaseReserve       string   `mapstructure:"base_reserve"`
	BaseFee           string   `mapstructure:"base_fee"`
	ExchangeAddresses []string `mapstructure:"exchange_addresses"`
}

// BaseReserveDecimal parses the configured reserve, panicking on a bad value
// since validate has already accepted it
func (s StellarConfig) BaseReserveDecimal() decimal.Decimal {
	return decimal.RequireFromString(s.BaseReserve)
}

func (s StellarConfig) BaseFeeDecimal() decimal.Decimal {
	return decimal.RequireFromString(s.BaseFee)
}

type SignerConfig struct {
	BaseURL     string   `mapstructure:"base_url"`
	APIKey      string   `mapstructure:"api_key"`
	Timeout     int      `mapstructure:"timeout"`
	CAFile      string   `mapstructure:"ca_file"`
	CertFile    string   `mapstructure:"cert_file"`
	KeyFile     string   `mapstructure:"key_file"`
	PinnedCerts []string `mapstructure:"pinned_certs"`
}

// CacheConfig holds cached value policies, TTLs in seconds
type CacheConfig struct {
	Backend    string `mapstructure:"backend"` // memory or redis
	BalanceTTL int    `mapstructure:"balance_ttl"`
	NonceTTL   int    `mapstructure:"nonce_ttl"`
	AccountTTL int    `mapstructure:"account_ttl"`
	UTXOTTL    int    `mapstructure:"utxo_ttl"`
	FeeTTL     int    `mapstructure:"fee_ttl"`
}

type PollingConfig struct {
	KYCInterval      int `mapstructure:"kyc_interval"` // seconds
	KYCTimeout       int `mapstructure:"kyc_timeout"`  // semaphore/fetch bound, seconds
	OrderInterval    int `mapstructure:"order_interval"`
	OrderMaxAttempts int `mapstructure:"order_max_attempts"`
}

type EmailConfig struct {
	Provider       string `mapstructure:"provider"` // "sendgrid" or empty to log only
	APIKey         string `mapstructure:"api_key"`
	FromEmail      string `mapstructure:"from_email"`
	FromName       string `mapstructure:"from_name"`
	AlertRecipient string `mapstructure:"alert_recipient"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	CollectorURL string  `mapstructure:"collector_url"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Insecure     bool    `mapstructure:"insecure"`
}

type WorkerConfig struct {
	FeeWarmerSchedule string   `mapstructure:"fee_warmer_schedule"`
	FeeWarmerAssets   []string `mapstructure:"fee_warmer_assets"`
}

type FeatureFlags struct {
	NativeWalletEnabled bool `mapstructure:"native_wallet_enabled"`
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c NabuConfig) SessionTimeoutDuration() time.Duration { return seconds(c.SessionTimeout) }
func (c NabuConfig) RefreshLeewayDuration() time.Duration  { return seconds(c.RefreshLeeway) }
func (c ServerConfig) SessionTTLDuration() time.Duration   { return seconds(c.SessionTTL) }
func (c JWTConfig) AccessTTLDuration() time.Duration       { return seconds(c.AccessTTL) }

// Load reads config.yaml, .env and the environment, in increasing precedence
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	overrideFromEnv(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("fiat_currency", "USD")

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.rate_limit_per_min", 100)
	v.SetDefault("server.session_ttl", 900)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "txengine")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 3600)
	v.SetDefault("database.query_timeout", 30)
	v.SetDefault("database.migrations_path", "migrations")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("jwt.access_token_ttl", 3600)
	v.SetDefault("jwt.issuer", "txengine")

	v.SetDefault("security.require_otp", false)
	v.SetDefault("security.otp_issuer", "txengine")

	// Nabu defaults
	v.SetDefault("nabu.base_url", "https://api.blockchain.info/nabu-gateway")
	v.SetDefault("nabu.timeout", 15)
	v.SetDefault("nabu.session_timeout", 30)
	v.SetDefault("nabu.refresh_leeway", 60)
	v.SetDefault("nabu.rate_limit_rps", 10)

	// Chain defaults
	v.SetDefault("chain.base_url", "https://api.blockchain.info")
	v.SetDefault("chain.timeout", 15)
	v.SetDefault("chain.rate_limit_rps", 20)
	v.SetDefault("chain.evm_networks", map[string]interface{}{
		"ethereum": map[string]interface{}{"chain_id": 1, "native_currency": "ETH", "gas_limit": 21000},
		"polygon":  map[string]interface{}{"chain_id": 137, "native_currency": "MATIC", "gas_limit": 21000},
	})

	v.SetDefault("bitcoin.network", "mainnet")
	v.SetDefault("bitcoin.large_transaction_fiat", 1000)

	// Stellar ledger parameters
	v.SetDefault("stellar.base_reserve", "0.5")
	v.SetDefault("stellar.base_fee", "0.00001")
	v.SetDefault("stellar.exchange_addresses", []string{})

	v.SetDefault("signer.timeout", 20)

	// Cache defaults
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.balance_ttl", 30)
	v.SetDefault("cache.nonce_ttl", 30)
	v.SetDefault("cache.account_ttl", 30)
	v.SetDefault("cache.utxo_ttl", 30)
	v.SetDefault("cache.fee_ttl", 60)

	// Polling defaults
	v.SetDefault("polling.kyc_interval", 1)
	v.SetDefault("polling.kyc_timeout", 30)
	v.SetDefault("polling.order_interval", 2)
	v.SetDefault("polling.order_max_attempts", 60)

	v.SetDefault("email.provider", "")
	v.SetDefault("email.from_email", "no-reply@txengine.local")
	v.SetDefault("email.from_name", "Wallet Support")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.collector_url", "localhost:4317")
	v.SetDefault("tracing.sample_rate", 0.1)

	v.SetDefault("workers.fee_warmer_schedule", "@every 1m")
	v.SetDefault("workers.fee_warmer_assets", []string{"BTC", "ETH@ethereum", "MATIC@polygon", "XLM"})

	v.SetDefault("features.native_wallet_enabled", false)
}

func overrideFromEnv(v *viper.Viper) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			v.Set("server.port", p)
		}
	}

	envKeys := map[string]string{
		"DATABASE_URL":     "database.url",
		"REDIS_PASSWORD":   "redis.password",
		"JWT_SECRET":       "jwt.secret",
		"ENCRYPTION_KEY":   "security.encryption_key",
		"NABU_BASE_URL":    "nabu.base_url",
		"NABU_API_KEY":     "nabu.api_key",
		"CHAIN_BASE_URL":   "chain.base_url",
		"CHAIN_API_KEY":    "chain.api_key",
		"SIGNER_BASE_URL":  "signer.base_url",
		"SIGNER_API_KEY":   "signer.api_key",
		"SIGNER_CA_FILE":   "signer.ca_file",
		"SIGNER_CERT_FILE": "signer.cert_file",
		"SIGNER_KEY_FILE":  "signer.key_file",
		"SENDGRID_API_KEY": "email.api_key",
		"OTEL_COLLECTOR":   "tracing.collector_url",
	}
	for env, key := range envKeys {
		if val := os.Getenv(env); val != "" {
			v.Set(key, val)
		}
	}

	if flag := os.Getenv("NATIVE_WALLET_ENABLED"); flag != "" {
		if enabled, err := strconv.ParseBool(flag); err == nil {
			v.Set("features.native_wallet_enabled", enabled)
		}
	}
}

func validate(config *Config) error {
	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	if config.Security.EncryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}

	if config.Database.URL == "" && (config.Database.Host == "" || config.Database.Name == "") {
		return fmt.Errorf("database configuration is incomplete")
	}

	if _, err := decimal.NewFromString(config.Stellar.BaseReserve); err != nil {
		return fmt.Errorf("invalid stellar base reserve %q: %w", config.Stellar.BaseReserve, err)
	}
	if _, err := decimal.NewFromString(config.Stellar.BaseFee); err != nil {
		return fmt.Errorf("invalid stellar base fee %q: %w", config.Stellar.BaseFee, err)
	}

	switch config.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown cache backend %q", config.Cache.Backend)
	}

	for name, network := range config.Chain.EVMNetworks {
		if network.ChainID <= 0 {
			return fmt.Errorf("evm network %s requires a chain id", name)
		}
	}

	return nil
}
