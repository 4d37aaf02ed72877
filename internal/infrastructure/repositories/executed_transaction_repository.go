package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rail-service/txengine/internal/domain/entities"
	"github.com/rail-service/txengine/pkg/tracing"
)

// ExecutedTransactionRepository keeps an audit trail of executed transactions
type ExecutedTransactionRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewExecutedTransactionRepository(db *sqlx.DB, logger *zap.Logger) *ExecutedTransactionRepository {
	return &ExecutedTransactionRepository{db: db, logger: logger}
}

func (r *ExecutedTransactionRepository) Create(ctx context.Context, tx *entities.ExecutedTransaction) error {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "INSERT", Table: "executed_transactions"})
	defer span.End()

	rows, err := sqlx.NamedQueryContext(ctx, r.db, `
		INSERT INTO executed_transactions (
			id, session_id, engine, source_account_id, destination, currency,
			amount, fee, result_kind, tx_hash, order_id
		) VALUES (
			:id, :session_id, :engine, :source_account_id, :destination, :currency,
			:amount, :fee, :result_kind, :tx_hash, :order_id
		) RETURNING created_at`, tx)
	if err != nil {
		tracing.EndDBSpan(span, err, 0)
		r.logger.Error("Failed to record executed transaction",
			zap.String("session_id", tx.SessionID), zap.Error(err))
		return fmt.Errorf("failed to record executed transaction: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		err = rows.Scan(&tx.CreatedAt)
	}
	tracing.EndDBSpan(span, err, 1)
	return err
}

// BySession returns the executions of a transaction session, oldest first
func (r *ExecutedTransactionRepository) BySession(ctx context.Context, sessionID string) ([]entities.ExecutedTransaction, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "SELECT", Table: "executed_transactions"})
	defer span.End()

	var out []entities.ExecutedTransaction
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, session_id, engine, source_account_id, destination, currency,
		       amount, fee, result_kind, tx_hash, order_id, created_at
		FROM executed_transactions
		WHERE session_id = $1
		ORDER BY created_at`, sessionID)
	tracing.EndDBSpan(span, err, int64(len(out)))
	if err != nil {
		return nil, fmt.Errorf("failed to list executed transactions: %w", err)
	}
	return out, nil
}
