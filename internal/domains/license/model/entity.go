package model

import (
	"time"

	"github.com/google/uuid"
)

// =====================================================
// LICENSE KEY ENTITY
// =====================================================

// LicenseKey là local mirror của một key trong upstream inventory.
// ExternalID và Key đều unique; key được consume đúng một lần bởi
// purchase flow (isUsed flip + purchaser attach trong cùng transaction
// với wallet debit).
type LicenseKey struct {
	ID         uuid.UUID `json:"id" db:"id"`
	ExternalID string    `json:"external_id" db:"external_id"`
	Key        string    `json:"key" db:"key"`

	Duration string `json:"duration" db:"duration"`
	IsActive bool   `json:"is_active" db:"is_active"`
	IsUsed   bool   `json:"is_used" db:"is_used"`

	PurchasedBy *uuid.UUID `json:"purchased_by,omitempty" db:"purchased_by"`
	PurchasedAt *time.Time `json:"purchased_at,omitempty" db:"purchased_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsAllocatable - key còn bán được không
func (k *LicenseKey) IsAllocatable() bool {
	return k.IsActive && !k.IsUsed
}

// =====================================================
// PURCHASE ORDER ENTITY
// =====================================================

// PurchaseOrder là audit record cho một lần mua key, đối xứng với
// WalletTopup bên credit. OrderCode là business key kiểu ORDER_YYYYMMDD_XXXX.
type PurchaseOrder struct {
	ID           uuid.UUID `json:"id" db:"id"`
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	WalletID     uuid.UUID `json:"wallet_id" db:"wallet_id"`
	LicenseKeyID uuid.UUID `json:"license_key_id" db:"license_key_id"`

	OrderCode string `json:"order_code" db:"order_code"`
	OrderType string `json:"order_type" db:"order_type"`
	Duration  string `json:"duration" db:"duration"`
	Amount    int64  `json:"amount" db:"amount"`

	PaymentMethod string `json:"payment_method" db:"payment_method"`
	Status        string `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
