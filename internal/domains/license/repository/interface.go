package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"licensestore-backend/internal/domains/license/model"
)

// =====================================================
// LICENSE KEY REPOSITORY INTERFACE
// =====================================================
type LicenseRepoInterface interface {
	// ============================================
	// TRANSACTION-AWARE METHODS
	// ============================================

	// AllocateOldestUnusedWithTx picks the oldest allocatable key of the
	// duration with FOR UPDATE SKIP LOCKED - concurrent purchases each get a
	// different row instead of queueing on the same one. Returns
	// ErrNoAvailableKey when inventory is drained.
	AllocateOldestUnusedWithTx(ctx context.Context, tx pgx.Tx, duration string) (*model.LicenseKey, error)

	// MarkUsedWithTx flips is_used and attaches the purchaser. The is_used
	// guard is re-stated in SQL so a key can never be sold twice.
	MarkUsedWithTx(ctx context.Context, tx pgx.Tx, keyID, userID uuid.UUID) error

	// ============================================
	// STANDALONE METHODS
	// ============================================

	// Upsert mirrors one upstream key locally. Trả về (created, updated):
	// key mới -> (true, false); key đã có nhưng external id/active đổi ->
	// (false, true); không đổi -> (false, false).
	Upsert(ctx context.Context, key *model.LicenseKey) (created, updated bool, err error)

	// ListByPurchaser lists the keys a user bought, newest purchase first
	ListByPurchaser(ctx context.Context, userID uuid.UUID) ([]*model.LicenseKey, error)

	// List lists keys with admin filters
	List(ctx context.Context, query model.KeyListQuery) ([]*model.LicenseKey, int, error)

	// GetStats aggregates inventory counts overall and per duration
	GetStats(ctx context.Context) (*model.KeyStats, error)
}

// =====================================================
// PURCHASE ORDER REPOSITORY INTERFACE
// =====================================================
type OrderRepoInterface interface {
	// CreateWithTx records the purchase audit entry inside the purchase
	// transaction. Unique violation on order_code -> ErrDuplicateOrderCode.
	CreateWithTx(ctx context.Context, tx pgx.Tx, order *model.PurchaseOrder) error

	// ListByUserID lists a user's purchase orders, newest first
	ListByUserID(ctx context.Context, userID uuid.UUID, page, limit int) ([]*model.PurchaseOrder, int, error)
}
