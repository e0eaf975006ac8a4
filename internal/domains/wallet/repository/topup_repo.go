package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"licensestore-backend/internal/domains/wallet/model"
	"licensestore-backend/pkg/database"
)

// =====================================================
// TOPUP REPOSITORY IMPLEMENTATION
// =====================================================
type topupRepository struct {
	pool *pgxpool.Pool
}

func NewTopupRepository(pool *pgxpool.Pool) TopupRepoInterface {
	return &topupRepository{pool: pool}
}

const topupColumns = `
	id, user_id, wallet_id, topup_code, amount,
	payment_method, status,
	gateway_response_code, gateway_txn_no, gateway_bank_code, payment_details,
	ip_address, notes,
	completed_at, failed_at, created_at, updated_at
`

func scanTopup(row pgx.Row) (*model.WalletTopup, error) {
	var t model.WalletTopup
	var detailsJSON []byte

	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.WalletID,
		&t.TopupCode,
		&t.Amount,
		&t.PaymentMethod,
		&t.Status,
		&t.GatewayResponseCode,
		&t.GatewayTxnNo,
		&t.GatewayBankCode,
		&detailsJSON,
		&t.IPAddress,
		&t.Notes,
		&t.CompletedAt,
		&t.FailedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &t.PaymentDetails); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payment_details: %w", err)
		}
	}
	return &t, nil
}

// =====================================================
// TRANSACTION-AWARE METHODS
// =====================================================

// GetByCodeForUpdateWithTx - exclusive lock trên entry row trước khi đọc status.
// Notification trùng nhau serialize tại đây.
func (r *topupRepository) GetByCodeForUpdateWithTx(ctx context.Context, tx pgx.Tx, topupCode string) (*model.WalletTopup, error) {
	query := `
		SELECT ` + topupColumns + `
		FROM wallet_topups
		WHERE topup_code = $1
		FOR UPDATE
	`

	topup, err := scanTopup(tx.QueryRow(ctx, query, topupCode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrTopupNotFound
		}
		return nil, fmt.Errorf("failed to lock topup %s: %w", topupCode, err)
	}
	return topup, nil
}

func (r *topupRepository) MarkCompletedWithTx(ctx context.Context, tx pgx.Tx, topupID uuid.UUID, meta GatewayMeta) error {
	detailsJSON, err := json.Marshal(meta.PaymentDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal payment_details: %w", err)
	}

	query := `
		UPDATE wallet_topups
		SET status = $1,
			gateway_response_code = $2,
			gateway_txn_no = $3,
			gateway_bank_code = $4,
			payment_details = $5,
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $6 AND status = $7
	`

	result, err := tx.Exec(ctx, query,
		model.TopupStatusCompleted,
		meta.ResponseCode,
		meta.GatewayTxnNo,
		meta.BankCode,
		detailsJSON,
		topupID,
		model.TopupStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to mark topup completed: %w", err)
	}
	if result.RowsAffected() == 0 {
		// status guard: entry không còn pending
		return model.ErrTopupAlreadyFinal
	}
	return nil
}

func (r *topupRepository) MarkFailedWithTx(ctx context.Context, tx pgx.Tx, topupID uuid.UUID, meta GatewayMeta) error {
	detailsJSON, err := json.Marshal(meta.PaymentDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal payment_details: %w", err)
	}

	query := `
		UPDATE wallet_topups
		SET status = $1,
			gateway_response_code = $2,
			gateway_txn_no = $3,
			gateway_bank_code = $4,
			payment_details = $5,
			failed_at = NOW(),
			updated_at = NOW()
		WHERE id = $6 AND status = $7
	`

	result, err := tx.Exec(ctx, query,
		model.TopupStatusFailed,
		meta.ResponseCode,
		meta.GatewayTxnNo,
		meta.BankCode,
		detailsJSON,
		topupID,
		model.TopupStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to mark topup failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrTopupAlreadyFinal
	}
	return nil
}

// =====================================================
// STANDALONE METHODS
// =====================================================

func (r *topupRepository) Create(ctx context.Context, topup *model.WalletTopup) error {
	detailsJSON, err := json.Marshal(topup.PaymentDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal payment_details: %w", err)
	}

	query := `
		INSERT INTO wallet_topups (
			id, user_id, wallet_id, topup_code, amount,
			payment_method, status, payment_details, ip_address, notes
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		RETURNING created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		topup.ID,
		topup.UserID,
		topup.WalletID,
		topup.TopupCode,
		topup.Amount,
		topup.PaymentMethod,
		topup.Status,
		detailsJSON,
		topup.IPAddress,
		topup.Notes,
	).Scan(&topup.CreatedAt, &topup.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// unique constraint trên topup_code - caller retry với code mới
			return model.ErrDuplicateTopupCode
		}
		return fmt.Errorf("failed to create topup entry: %w", err)
	}
	return nil
}

func (r *topupRepository) GetByCode(ctx context.Context, topupCode string) (*model.WalletTopup, error) {
	query := `
		SELECT ` + topupColumns + `
		FROM wallet_topups
		WHERE topup_code = $1
	`

	topup, err := scanTopup(r.pool.QueryRow(ctx, query, topupCode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrTopupNotFound
		}
		return nil, fmt.Errorf("failed to get topup %s: %w", topupCode, err)
	}
	return topup, nil
}

func (r *topupRepository) ListByUserID(ctx context.Context, userID uuid.UUID, status string, page, limit int) ([]*model.WalletTopup, int, error) {
	offset := (page - 1) * limit

	countQuery := `SELECT COUNT(*) FROM wallet_topups WHERE user_id = $1`
	listQuery := `
		SELECT ` + topupColumns + `
		FROM wallet_topups
		WHERE user_id = $1
	`
	args := []interface{}{userID}

	if status != "" {
		countQuery += ` AND status = $2`
		listQuery += ` AND status = $2`
		args = append(args, status)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count topups: %w", err)
	}

	listQuery += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list topups: %w", err)
	}
	defer rows.Close()

	var topups []*model.WalletTopup
	for rows.Next() {
		topup, err := scanTopup(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan topup row: %w", err)
		}
		topups = append(topups, topup)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate topup rows: %w", err)
	}

	return topups, total, nil
}

func (r *topupRepository) ListPendingQRByUserID(ctx context.Context, userID uuid.UUID, createdAfter time.Time) ([]*model.WalletTopup, error) {
	query := `
		SELECT ` + topupColumns + `
		FROM wallet_topups
		WHERE user_id = $1
		  AND status = $2
		  AND payment_method = $3
		  AND created_at >= $4
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, userID, model.TopupStatusPending, model.PaymentMethodQRPay, createdAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending QR topups: %w", err)
	}
	defer rows.Close()

	var topups []*model.WalletTopup
	for rows.Next() {
		topup, err := scanTopup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan topup row: %w", err)
		}
		topups = append(topups, topup)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate topup rows: %w", err)
	}

	return topups, nil
}

func (r *topupRepository) MarkCancelled(ctx context.Context, topupID uuid.UUID) error {
	query := `
		UPDATE wallet_topups
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := r.pool.Exec(ctx, query, model.TopupStatusCancelled, topupID, model.TopupStatusPending)
	if err != nil {
		return fmt.Errorf("failed to cancel topup: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrTopupNotCancellable
	}
	return nil
}

func (r *topupRepository) CancelExpiredPending(ctx context.Context, paymentMethod string, olderThan time.Time) (int, error) {
	query := `
		UPDATE wallet_topups
		SET status = $1,
			notes = COALESCE(notes || ' | ', '') || 'auto-cancelled: expired',
			updated_at = NOW()
		WHERE status = $2 AND payment_method = $3 AND created_at < $4
	`

	result, err := r.pool.Exec(ctx, query,
		model.TopupStatusCancelled,
		model.TopupStatusPending,
		paymentMethod,
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel expired topups: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// GetStatistics chạy cả hai aggregate trong một serializable tx để hai
// kết quả đến từ cùng một snapshot (settlements vẫn commit liên tục).
func (r *topupRepository) GetStatistics(ctx context.Context) (*model.TopupStatistics, error) {
	return database.WithSerializableTransactionResult(ctx, r.pool, func(tx pgx.Tx) (*model.TopupStatistics, error) {
		stats := &model.TopupStatistics{
			TotalCompletedAmount: decimal.Zero,
			ByMethod:             make(map[string]int64),
		}

		statusQuery := `
			SELECT status, COUNT(*), COALESCE(SUM(amount), 0)
			FROM wallet_topups
			GROUP BY status
		`

		rows, err := tx.Query(ctx, statusQuery)
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate topup statistics: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var status string
			var count, sum int64
			if err := rows.Scan(&status, &count, &sum); err != nil {
				return nil, fmt.Errorf("failed to scan statistics row: %w", err)
			}

			switch status {
			case model.TopupStatusCompleted:
				stats.CompletedCount = count
				stats.TotalCompletedAmount = decimal.NewFromInt(sum)
			case model.TopupStatusPending:
				stats.PendingCount = count
			case model.TopupStatusFailed:
				stats.FailedCount = count
			case model.TopupStatusCancelled:
				stats.CancelledCount = count
			}
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to iterate statistics rows: %w", err)
		}

		methodQuery := `
			SELECT payment_method, COUNT(*)
			FROM wallet_topups
			WHERE status = $1
			GROUP BY payment_method
		`

		methodRows, err := tx.Query(ctx, methodQuery, model.TopupStatusCompleted)
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate method statistics: %w", err)
		}
		defer methodRows.Close()

		for methodRows.Next() {
			var method string
			var count int64
			if err := methodRows.Scan(&method, &count); err != nil {
				return nil, fmt.Errorf("failed to scan method row: %w", err)
			}
			stats.ByMethod[method] = count
		}
		if err := methodRows.Err(); err != nil {
			return nil, fmt.Errorf("failed to iterate method rows: %w", err)
		}

		return stats, nil
	})
}
