package service

import (
	"context"

	"github.com/google/uuid"

	"licensestore-backend/internal/domains/license/model"
)

// =====================================================
// LICENSE SERVICE INTERFACE
// =====================================================

// LicenseService bán key từ local mirror và giữ mirror đồng bộ với
// upstream inventory.
type LicenseService interface {
	// PurchaseKey allocates the oldest unused key of the duration and debits
	// the buyer's wallet, atomically. Hai purchase đồng thời trên ví đủ tiền
	// cho đúng một key -> đúng một success.
	PurchaseKey(ctx context.Context, userID uuid.UUID, req model.PurchaseKeyRequest) (*model.PurchaseKeyResponse, error)

	// GetMyKeys lists the keys the user has bought
	GetMyKeys(ctx context.Context, userID uuid.UUID) ([]*model.LicenseKey, error)

	// GetMyOrders lists the user's purchase orders
	GetMyOrders(ctx context.Context, userID uuid.UUID, page, limit int) ([]*model.PurchaseOrder, int, error)

	// GetPrices returns the public duration price table
	GetPrices() []model.PriceInfo

	// SyncKeys mirrors the upstream inventory into the local table (admin)
	SyncKeys(ctx context.Context) (*model.SyncResult, error)

	// GenerateKeys mints new keys upstream and mirrors them locally (admin)
	GenerateKeys(ctx context.Context, req model.GenerateKeysRequest) (*model.GenerateKeysResponse, error)

	// ListKeys lists keys with admin filters
	ListKeys(ctx context.Context, query model.KeyListQuery) ([]*model.LicenseKey, int, error)

	// GetKeyStats aggregates inventory stats (admin)
	GetKeyStats(ctx context.Context) (*model.KeyStats, error)
}
