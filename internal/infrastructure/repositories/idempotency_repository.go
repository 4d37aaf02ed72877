package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rail-service/txengine/pkg/idempotency"
	"github.com/rail-service/txengine/pkg/tracing"
)

type idempotencyRow struct {
	Key            string    `db:"idempotency_key"`
	RequestPath    string    `db:"request_path"`
	RequestMethod  string    `db:"request_method"`
	RequestHash    string    `db:"request_hash"`
	UserID         string    `db:"user_id"`
	ResponseStatus int       `db:"response_status"`
	ResponseBody   []byte    `db:"response_body"`
	CreatedAt      time.Time `db:"created_at"`
	ExpiresAt      time.Time `db:"expires_at"`
}

// IdempotencyRepository stores replayable responses of the execute endpoint
type IdempotencyRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

var _ idempotency.Store = (*IdempotencyRepository)(nil)

func NewIdempotencyRepository(db *sqlx.DB, logger *zap.Logger) *IdempotencyRepository {
	return &IdempotencyRepository{db: db, logger: logger}
}

// Get returns the unexpired record for key, or nil
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "SELECT", Table: "idempotency_keys"})
	defer span.End()

	var row idempotencyRow
	err := r.db.GetContext(ctx, &row, `
		SELECT idempotency_key, request_path, request_method, request_hash,
		       user_id, response_status, response_body, created_at, expires_at
		FROM idempotency_keys
		WHERE idempotency_key = $1 AND expires_at > NOW()`, key)
	if errors.Is(err, sql.ErrNoRows) {
		tracing.EndDBSpan(span, nil, 0)
		return nil, nil
	}
	tracing.EndDBSpan(span, err, 1)
	if err != nil {
		r.logger.Error("Failed to get idempotency key", zap.String("key", key), zap.Error(err))
		return nil, err
	}

	return &idempotency.Record{
		Key:            row.Key,
		RequestPath:    row.RequestPath,
		RequestMethod:  row.RequestMethod,
		RequestHash:    row.RequestHash,
		UserID:         row.UserID,
		ResponseStatus: row.ResponseStatus,
		ResponseBody:   row.ResponseBody,
		ExpiresAt:      row.ExpiresAt,
	}, nil
}

// Create stores a record. A concurrent insert of the same key keeps the first.
func (r *IdempotencyRepository) Create(ctx context.Context, record *idempotency.Record) error {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "INSERT", Table: "idempotency_keys"})
	defer span.End()

	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO idempotency_keys (
			idempotency_key, request_path, request_method, request_hash,
			user_id, response_status, response_body, expires_at
		) VALUES (
			:idempotency_key, :request_path, :request_method, :request_hash,
			:user_id, :response_status, :response_body, :expires_at
		) ON CONFLICT (idempotency_key) DO NOTHING`,
		idempotencyRow{
			Key:            record.Key,
			RequestPath:    record.RequestPath,
			RequestMethod:  record.RequestMethod,
			RequestHash:    record.RequestHash,
			UserID:         record.UserID,
			ResponseStatus: record.ResponseStatus,
			ResponseBody:   record.ResponseBody,
			ExpiresAt:      record.ExpiresAt,
		})
	var rows int64
	if err == nil {
		rows, _ = res.RowsAffected()
	}
	tracing.EndDBSpan(span, err, rows)
	if err != nil {
		r.logger.Error("Failed to create idempotency key", zap.String("key", record.Key), zap.Error(err))
		return err
	}
	return nil
}

// DeleteExpired removes expired keys
func (r *IdempotencyRepository) DeleteExpired(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "DELETE", Table: "idempotency_keys"})
	defer span.End()

	result, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= NOW()`)
	if err != nil {
		tracing.EndDBSpan(span, err, -1)
		r.logger.Error("Failed to delete expired idempotency keys", zap.Error(err))
		return 0, err
	}

	rowsAffected, _ := result.RowsAffected()
	tracing.EndDBSpan(span, nil, rowsAffected)
	r.logger.Info("Deleted expired idempotency keys", zap.Int64("count", rowsAffected))
	return rowsAffected, nil
}
