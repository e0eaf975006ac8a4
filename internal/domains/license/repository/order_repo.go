package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"licensestore-backend/internal/domains/license/model"
)

// =====================================================
// PURCHASE ORDER REPOSITORY IMPLEMENTATION
// =====================================================
type orderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) OrderRepoInterface {
	return &orderRepository{pool: pool}
}

const orderColumns = `
	id, user_id, wallet_id, license_key_id,
	order_code, order_type, duration, amount,
	payment_method, status, created_at
`

func scanOrder(row pgx.Row) (*model.PurchaseOrder, error) {
	var o model.PurchaseOrder
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.WalletID,
		&o.LicenseKeyID,
		&o.OrderCode,
		&o.OrderType,
		&o.Duration,
		&o.Amount,
		&o.PaymentMethod,
		&o.Status,
		&o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, order *model.PurchaseOrder) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO purchase_orders (
			id, user_id, wallet_id, license_key_id,
			order_code, order_type, duration, amount,
			payment_method, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	`,
		order.ID, order.UserID, order.WalletID, order.LicenseKeyID,
		order.OrderCode, order.OrderType, order.Duration, order.Amount,
		order.PaymentMethod, order.Status,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.ErrDuplicateOrderCode
		}
		return fmt.Errorf("failed to create purchase order: %w", err)
	}
	return nil
}

func (r *orderRepository) ListByUserID(ctx context.Context, userID uuid.UUID, page, limit int) ([]*model.PurchaseOrder, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM purchase_orders WHERE user_id = $1", userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count purchase orders: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM purchase_orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, orderColumns)

	rows, err := r.pool.Query(ctx, query, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list purchase orders: %w", err)
	}
	defer rows.Close()

	var orders []*model.PurchaseOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan purchase order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}
