package model

import (
	"time"

	"github.com/google/uuid"
)

// =====================================================
// WALLET ENTITY
// =====================================================

// Wallet là balance aggregate, 1-1 với user.
// Balance là int64 VND (VND không có đơn vị lẻ) và chỉ được mutate qua
// credit/debit paths của repository - không code nào khác được ghi trực tiếp.
type Wallet struct {
	ID      uuid.UUID `json:"id" db:"id"`
	UserID  uuid.UUID `json:"user_id" db:"user_id"`
	Balance int64     `json:"balance" db:"balance"`

	Currency string `json:"currency" db:"currency"`
	IsActive bool   `json:"is_active" db:"is_active"`

	LastTransactionAt *time.Time `json:"last_transaction_at,omitempty" db:"last_transaction_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// CanSpend checks the precondition only - the real check happens again
// under the row lock inside the purchase transaction
func (w *Wallet) CanSpend(amount int64) bool {
	return w.IsActive && amount > 0 && w.Balance >= amount
}

// =====================================================
// WALLET TOPUP ENTITY
// =====================================================

// WalletTopup là một lần nạp tiền. TopupCode là business key duy nhất,
// đóng vai trò order ref phía gateway (vnp_TxnRef).
// Entry bất biến sau khi đạt terminal status.
type WalletTopup struct {
	ID       uuid.UUID `json:"id" db:"id"`
	UserID   uuid.UUID `json:"user_id" db:"user_id"`
	WalletID uuid.UUID `json:"wallet_id" db:"wallet_id"`

	TopupCode string `json:"topup_code" db:"topup_code"`
	Amount    int64  `json:"amount" db:"amount"`

	PaymentMethod string `json:"payment_method" db:"payment_method"`
	Status        string `json:"status" db:"status"`

	// Gateway metadata - attach đúng lúc transition, không sửa về sau
	GatewayResponseCode *string                `json:"gateway_response_code,omitempty" db:"gateway_response_code"`
	GatewayTxnNo        *string                `json:"gateway_txn_no,omitempty" db:"gateway_txn_no"`
	GatewayBankCode     *string                `json:"gateway_bank_code,omitempty" db:"gateway_bank_code"`
	PaymentDetails      map[string]interface{} `json:"payment_details,omitempty" db:"payment_details"`

	IPAddress *string `json:"ip_address,omitempty" db:"ip_address"`
	Notes     *string `json:"notes,omitempty" db:"notes"`

	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	FailedAt    *time.Time `json:"failed_at,omitempty" db:"failed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the entry reached a terminal status.
// Mọi notification đến sau terminal đều là duplicate.
func (t *WalletTopup) IsTerminal() bool {
	return IsTerminalTopupStatus(t.Status)
}

// CanBeCancelled - chỉ pending mới cancel được
func (t *WalletTopup) CanBeCancelled() bool {
	return t.Status == TopupStatusPending
}

// IsPendingQR reports whether this entry is waiting for QR reconciliation
func (t *WalletTopup) IsPendingQR() bool {
	return t.Status == TopupStatusPending && t.PaymentMethod == PaymentMethodQRPay
}
