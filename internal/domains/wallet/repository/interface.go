package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"licensestore-backend/internal/domains/wallet/model"
)

// =====================================================
// WALLET REPOSITORY INTERFACE
// =====================================================
type WalletRepoInterface interface {
	// ============================================
	// TRANSACTION-AWARE METHODS
	// ============================================
	// Lock order is TopupEntry FIRST, wallet SECOND - every transaction that
	// touches both rows must follow it or risk deadlock with the purchase flow.

	// GetByUserIDForUpdateWithTx loads the wallet row with FOR UPDATE
	GetByUserIDForUpdateWithTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*model.Wallet, error)

	// GetByIDForUpdateWithTx loads the wallet row by id with FOR UPDATE
	GetByIDForUpdateWithTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (*model.Wallet, error)

	// CreditBalanceWithTx applies balance += amount and bumps last_transaction_at.
	// Caller must already hold the row lock.
	CreditBalanceWithTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64) error

	// DebitBalanceWithTx applies balance -= amount; the balance >= amount check
	// is re-done in SQL so a stale precondition read can never drive the
	// balance negative. Returns ErrInsufficientBalance when the check fails.
	DebitBalanceWithTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64) error

	// ============================================
	// STANDALONE METHODS
	// ============================================

	// GetByUserID gets wallet by owning user
	GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Wallet, error)

	// Create creates a zero-balance wallet
	Create(ctx context.Context, wallet *model.Wallet) error

	// GetOrCreate returns the user's wallet, creating it lazily. Concurrent
	// callers are serialized by the unique constraint on user_id: on conflict
	// the insert is skipped and the existing row re-read.
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*model.Wallet, error)
}

// =====================================================
// TOPUP REPOSITORY INTERFACE
// =====================================================
type TopupRepoInterface interface {
	// ============================================
	// TRANSACTION-AWARE METHODS
	// ============================================

	// GetByCodeForUpdateWithTx loads the topup entry by business code with
	// FOR UPDATE. This lock is taken BEFORE inspecting status - it is the
	// serialization point for duplicate notifications.
	GetByCodeForUpdateWithTx(ctx context.Context, tx pgx.Tx, topupCode string) (*model.WalletTopup, error)

	// MarkCompletedWithTx attaches gateway metadata and flips the entry to
	// completed + completed_at in one statement
	MarkCompletedWithTx(ctx context.Context, tx pgx.Tx, topupID uuid.UUID, meta GatewayMeta) error

	// MarkFailedWithTx attaches gateway metadata and flips to failed + failed_at
	MarkFailedWithTx(ctx context.Context, tx pgx.Tx, topupID uuid.UUID, meta GatewayMeta) error

	// ============================================
	// STANDALONE METHODS
	// ============================================

	// Create persists a new pending entry. Unique violation on topup_code is
	// surfaced as ErrDuplicateTopupCode (retryable).
	Create(ctx context.Context, topup *model.WalletTopup) error

	// GetByCode gets entry by business code (no lock)
	GetByCode(ctx context.Context, topupCode string) (*model.WalletTopup, error)

	// ListByUserID lists a user's topups with pagination, newest first
	ListByUserID(ctx context.Context, userID uuid.UUID, status string, page, limit int) ([]*model.WalletTopup, int, error)

	// ListPendingQRByUserID lists pending qr_pay entries created after the
	// cutoff - the reconciliation candidate set
	ListPendingQRByUserID(ctx context.Context, userID uuid.UUID, createdAfter time.Time) ([]*model.WalletTopup, error)

	// MarkCancelled cancels a pending entry (status guard in SQL)
	MarkCancelled(ctx context.Context, topupID uuid.UUID) error

	// CancelExpiredPending batch-cancels pending entries of the given method
	// older than the cutoff. Housekeeping only.
	CancelExpiredPending(ctx context.Context, paymentMethod string, olderThan time.Time) (int, error)

	// GetStatistics aggregates topup counts/amounts (admin)
	GetStatistics(ctx context.Context) (*model.TopupStatistics, error)
}

// GatewayMeta là metadata attach vào entry đúng lúc transition
type GatewayMeta struct {
	ResponseCode   *string
	GatewayTxnNo   *string
	BankCode       *string
	PaymentDetails map[string]interface{}
}

// =====================================================
// TRANSACTION MANAGER INTERFACE
// =====================================================
type TransactionManager interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// BeginSerializableTx opens a SERIALIZABLE transaction - settlement and
	// purchase both read-check-then-write the same balance field
	BeginSerializableTx(ctx context.Context) (pgx.Tx, error)

	CommitTx(ctx context.Context, tx pgx.Tx) error
	RollbackTx(ctx context.Context, tx pgx.Tx) error
}
