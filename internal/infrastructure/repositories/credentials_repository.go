package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rail-service/txengine/internal/domain/entities"
	domainerrors "github.com/rail-service/txengine/internal/domain/errors"
	"github.com/rail-service/txengine/internal/infrastructure/cache"
	"github.com/rail-service/txengine/pkg/crypto"
	"github.com/rail-service/txengine/pkg/tracing"
)

// CredentialsRepository stores wallet credentials and the nabu offline token per wallet guid
type CredentialsRepository interface {
	Credentials(ctx context.Context, guid string) (entities.WalletCredentials, error)
	SaveCredentials(ctx context.Context, creds entities.WalletCredentials) error
	OfflineToken(ctx context.Context, guid string) (*entities.OfflineToken, error)
	SaveOfflineToken(ctx context.Context, guid string, token entities.OfflineToken) error
}

// NewCredentialsRepository picks the postgres store for native wallets and the
// legacy redis store otherwise
func NewCredentialsRepository(nativeWalletEnabled bool, db *sqlx.DB, redis cache.RedisClient, cipher *crypto.Cipher, logger *zap.Logger) CredentialsRepository {
	if nativeWalletEnabled {
		return NewPostgresCredentialsRepository(db, cipher, logger)
	}
	return NewRedisCredentialsRepository(redis, cipher, logger)
}

// credentialsRow is the stored form; secrets are encrypted
type credentialsRow struct {
	GUID          string         `db:"guid"`
	SharedKey     string         `db:"shared_key"`
	Email         string         `db:"email"`
	OTPSecret     sql.NullString `db:"otp_secret"`
	OfflineUserID sql.NullString `db:"offline_user_id"`
	OfflineToken  sql.NullString `db:"offline_token"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

// credentialsDocument is the legacy redis form of credentialsRow
type credentialsDocument struct {
	GUID          string    `json:"guid"`
	SharedKey     string    `json:"sharedKey"`
	Email         string    `json:"email"`
	OTPSecret     string    `json:"otpSecret,omitempty"`
	OfflineUserID string    `json:"offlineUserId,omitempty"`
	OfflineToken  string    `json:"offlineToken,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func sealCredentials(cipher *crypto.Cipher, creds entities.WalletCredentials) (sharedKey, otpSecret string, err error) {
	if sharedKey, err = cipher.Encrypt(creds.SharedKey); err != nil {
		return "", "", fmt.Errorf("failed to encrypt shared key: %w", err)
	}
	if creds.OTPSecret != "" {
		if otpSecret, err = cipher.Encrypt(creds.OTPSecret); err != nil {
			return "", "", fmt.Errorf("failed to encrypt otp secret: %w", err)
		}
	}
	return sharedKey, otpSecret, nil
}

func openCredentials(cipher *crypto.Cipher, guid, email, sealedKey, sealedOTP string) (entities.WalletCredentials, error) {
	sharedKey, err := cipher.Decrypt(sealedKey)
	if err != nil {
		return entities.WalletCredentials{}, fmt.Errorf("failed to decrypt shared key: %w", err)
	}
	creds := entities.WalletCredentials{GUID: guid, SharedKey: sharedKey, Email: email}
	if sealedOTP != "" {
		if creds.OTPSecret, err = cipher.Decrypt(sealedOTP); err != nil {
			return entities.WalletCredentials{}, fmt.Errorf("failed to decrypt otp secret: %w", err)
		}
	}
	return creds, nil
}

// PostgresCredentialsRepository is the native wallet store
type PostgresCredentialsRepository struct {
	db     *sqlx.DB
	cipher *crypto.Cipher
	logger *zap.Logger
}

func NewPostgresCredentialsRepository(db *sqlx.DB, cipher *crypto.Cipher, logger *zap.Logger) *PostgresCredentialsRepository {
	return &PostgresCredentialsRepository{db: db, cipher: cipher, logger: logger}
}

func (r *PostgresCredentialsRepository) load(ctx context.Context, guid string) (credentialsRow, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "SELECT", Table: "wallet_credentials"})
	defer span.End()

	var row credentialsRow
	err := r.db.GetContext(ctx, &row, `
		SELECT guid, shared_key, email, otp_secret, offline_user_id, offline_token, updated_at
		FROM wallet_credentials WHERE guid = $1`, guid)
	if errors.Is(err, sql.ErrNoRows) {
		tracing.EndDBSpan(span, nil, 0)
		return row, domainerrors.NotFoundError("wallet credentials")
	}
	tracing.EndDBSpan(span, err, 1)
	if err != nil {
		return row, fmt.Errorf("failed to load wallet credentials: %w", err)
	}
	return row, nil
}

func (r *PostgresCredentialsRepository) Credentials(ctx context.Context, guid string) (entities.WalletCredentials, error) {
	row, err := r.load(ctx, guid)
	if err != nil {
		return entities.WalletCredentials{}, err
	}
	return openCredentials(r.cipher, row.GUID, row.Email, row.SharedKey, row.OTPSecret.String)
}

func (r *PostgresCredentialsRepository) SaveCredentials(ctx context.Context, creds entities.WalletCredentials) error {
	sharedKey, otpSecret, err := sealCredentials(r.cipher, creds)
	if err != nil {
		return err
	}

	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "UPSERT", Table: "wallet_credentials"})
	defer span.End()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO wallet_credentials (guid, shared_key, email, otp_secret, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NOW())
		ON CONFLICT (guid) DO UPDATE SET
			shared_key = EXCLUDED.shared_key,
			email = EXCLUDED.email,
			otp_secret = COALESCE(EXCLUDED.otp_secret, wallet_credentials.otp_secret),
			updated_at = NOW()`,
		creds.GUID, sharedKey, creds.Email, otpSecret)
	tracing.EndDBSpan(span, err, 1)
	if err != nil {
		r.logger.Error("Failed to save wallet credentials", zap.String("guid", creds.GUID), zap.Error(err))
		return fmt.Errorf("failed to save wallet credentials: %w", err)
	}
	return nil
}

func (r *PostgresCredentialsRepository) OfflineToken(ctx context.Context, guid string) (*entities.OfflineToken, error) {
	row, err := r.load(ctx, guid)
	if err != nil {
		return nil, err
	}
	if !row.OfflineToken.Valid || row.OfflineToken.String == "" {
		return nil, nil
	}
	token, err := r.cipher.Decrypt(row.OfflineToken.String)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt offline token: %w", err)
	}
	return &entities.OfflineToken{UserID: row.OfflineUserID.String, Token: token}, nil
}

func (r *PostgresCredentialsRepository) SaveOfflineToken(ctx context.Context, guid string, token entities.OfflineToken) error {
	sealed, err := r.cipher.Encrypt(token.Token)
	if err != nil {
		return fmt.Errorf("failed to encrypt offline token: %w", err)
	}

	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "UPDATE", Table: "wallet_credentials"})
	defer span.End()

	res, err := r.db.ExecContext(ctx, `
		UPDATE wallet_credentials
		SET offline_user_id = $2, offline_token = $3, updated_at = NOW()
		WHERE guid = $1`, guid, token.UserID, sealed)
	var rows int64
	if err == nil {
		rows, _ = res.RowsAffected()
	}
	tracing.EndDBSpan(span, err, rows)
	if err != nil {
		return fmt.Errorf("failed to save offline token: %w", err)
	}
	if rows == 0 {
		return domainerrors.NotFoundError("wallet credentials")
	}
	return nil
}

// RedisCredentialsRepository is the legacy store, one JSON document per wallet
type RedisCredentialsRepository struct {
	redis  cache.RedisClient
	cipher *crypto.Cipher
	logger *zap.Logger
}

func NewRedisCredentialsRepository(redis cache.RedisClient, cipher *crypto.Cipher, logger *zap.Logger) *RedisCredentialsRepository {
	return &RedisCredentialsRepository{redis: redis, cipher: cipher, logger: logger}
}

func credentialsKey(guid string) string { return "credentials:" + guid }

func (r *RedisCredentialsRepository) load(ctx context.Context, guid string) (credentialsDocument, error) {
	var row credentialsDocument
	err := r.redis.Get(ctx, credentialsKey(guid), &row)
	if errors.Is(err, cache.ErrMiss) {
		return row, domainerrors.NotFoundError("wallet credentials")
	}
	if err != nil {
		return row, fmt.Errorf("failed to load wallet credentials: %w", err)
	}
	return row, nil
}

func (r *RedisCredentialsRepository) Credentials(ctx context.Context, guid string) (entities.WalletCredentials, error) {
	row, err := r.load(ctx, guid)
	if err != nil {
		return entities.WalletCredentials{}, err
	}
	return openCredentials(r.cipher, row.GUID, row.Email, row.SharedKey, row.OTPSecret)
}

func (r *RedisCredentialsRepository) SaveCredentials(ctx context.Context, creds entities.WalletCredentials) error {
	sharedKey, otpSecret, err := sealCredentials(r.cipher, creds)
	if err != nil {
		return err
	}
	row, err := r.load(ctx, creds.GUID)
	if err != nil && !domainerrors.IsNotFound(err) {
		return err
	}
	row.GUID = creds.GUID
	row.SharedKey = sharedKey
	row.Email = creds.Email
	if otpSecret != "" {
		row.OTPSecret = otpSecret
	}
	row.UpdatedAt = time.Now().UTC()
	if err := r.redis.Set(ctx, credentialsKey(creds.GUID), row, 0); err != nil {
		r.logger.Error("Failed to save wallet credentials", zap.String("guid", creds.GUID), zap.Error(err))
		return fmt.Errorf("failed to save wallet credentials: %w", err)
	}
	return nil
}

func (r *RedisCredentialsRepository) OfflineToken(ctx context.Context, guid string) (*entities.OfflineToken, error) {
	row, err := r.load(ctx, guid)
	if err != nil {
		return nil, err
	}
	if row.OfflineToken == "" {
		return nil, nil
	}
	token, err := r.cipher.Decrypt(row.OfflineToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt offline token: %w", err)
	}
	return &entities.OfflineToken{UserID: row.OfflineUserID, Token: token}, nil
}

func (r *RedisCredentialsRepository) SaveOfflineToken(ctx context.Context, guid string, token entities.OfflineToken) error {
	row, err := r.load(ctx, guid)
	if err != nil {
		return err
	}
	sealed, err := r.cipher.Encrypt(token.Token)
	if err != nil {
		return fmt.Errorf("failed to encrypt offline token: %w", err)
	}
	row.OfflineUserID = token.UserID
	row.OfflineToken = sealed
	row.UpdatedAt = time.Now().UTC()
	if err := r.redis.Set(ctx, credentialsKey(guid), row, 0); err != nil {
		return fmt.Errorf("failed to save offline token: %w", err)
	}
	return nil
}
