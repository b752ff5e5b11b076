package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/soulishere/internal/model"
)

// PostgresPaymentOrderRepo はPostgreSQLを使用した決済オーダーリポジトリ。
type PostgresPaymentOrderRepo struct {
	db *sql.DB
}

// NewPostgresPaymentOrderRepo はPostgresPaymentOrderRepoを生成する。
func NewPostgresPaymentOrderRepo(db *sql.DB) *PostgresPaymentOrderRepo {
	return &PostgresPaymentOrderRepo{db: db}
}

// Create はオーダー控えを作成する。
func (r *PostgresPaymentOrderRepo) Create(ctx context.Context, order *model.PaymentOrder) error {
	var memorialID sql.NullString
	if isUUID(order.MemorialID) {
		memorialID = sql.NullString{String: order.MemorialID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_orders (id, gateway_order_id, user_id, memorial_id, amount, currency, receipt, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		order.ID, order.GatewayOrderID, order.UserID, memorialID,
		order.Amount, order.Currency, order.Receipt, order.Status,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment order: %w", err)
	}
	return nil
}

// MarkCompletedByGatewayID は保留中オーダーを完了にし、公開したメモリアルと紐付ける。
func (r *PostgresPaymentOrderRepo) MarkCompletedByGatewayID(ctx context.Context, gatewayOrderID, memorialID string, now time.Time) (bool, error) {
	var memorial sql.NullString
	if isUUID(memorialID) {
		memorial = sql.NullString{String: memorialID, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE payment_orders SET
		    status = 'completed',
		    memorial_id = COALESCE($2, memorial_id),
		    updated_at = $3
		 WHERE gateway_order_id = $1 AND status = 'pending'`,
		gatewayOrderID, memorial, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update payment order: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ExpirePending は期限を過ぎた保留中オーダーを1文で失敗にする。
func (r *PostgresPaymentOrderRepo) ExpirePending(ctx context.Context, createdBefore, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE payment_orders SET status = 'failed', updated_at = $2
		 WHERE status = 'pending' AND created_at < $1`,
		createdBefore, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire payment orders: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ PaymentOrderRepository = (*PostgresPaymentOrderRepo)(nil)
