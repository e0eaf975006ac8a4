package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/shopspring/decimal"
)

// =====================================================
// CREATE TOPUP REQUEST
// =====================================================
type CreateTopupRequest struct {
	Amount int64   `json:"amount" binding:"required"`
	Notes  *string `json:"notes,omitempty"`
}

// Validate validates CreateTopupRequest.
// Min/max bounds là config-driven nên check ở service; đây chỉ chặn
// garbage input trước khi mở transaction.
func (req CreateTopupRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Amount, validation.Required, validation.Min(int64(1))),
		validation.Field(&req.Notes, validation.Length(0, 500)),
	)
}

// CreateTopupResponse trả về cho client sau khi tạo pending entry
type CreateTopupResponse struct {
	PaymentURL string `json:"payment_url"`
	TopupCode  string `json:"topup_code"`
	Amount     int64  `json:"amount"`
	ExpiresIn  int    `json:"expires_in_minutes"`
}

// =====================================================
// QR TOPUP
// =====================================================
type CreateQRTopupRequest struct {
	Amount int64   `json:"amount" binding:"required"`
	Notes  *string `json:"notes,omitempty"`
}

func (req CreateQRTopupRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Amount, validation.Required, validation.Min(int64(1))),
		validation.Field(&req.Notes, validation.Length(0, 500)),
	)
}

type CreateQRTopupResponse struct {
	QRImageURL string `json:"qr_image_url"`
	TopupCode  string `json:"topup_code"`
	Amount     int64  `json:"amount"`
	// Memo người dùng phải giữ nguyên khi chuyển khoản - reconciliation
	// match bằng token này
	TransferMemo string `json:"transfer_memo"`
}

// =====================================================
// ADMIN CREDIT REQUEST
// =====================================================
type AdminCreditRequest struct {
	UserID string  `json:"user_id" binding:"required"`
	Amount int64   `json:"amount" binding:"required"`
	Notes  *string `json:"notes,omitempty"`
}

func (req AdminCreditRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.UserID, validation.Required, is.UUIDv4),
		validation.Field(&req.Amount, validation.Required, validation.Min(int64(1))),
		validation.Field(&req.Notes, validation.Length(0, 500)),
	)
}

// =====================================================
// TOPUP HISTORY
// =====================================================
type TopupHistoryQuery struct {
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
	Status string `form:"status"`
}

func (q TopupHistoryQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Page, validation.Min(0)),
		validation.Field(&q.Limit, validation.Min(0), validation.Max(100)),
		validation.Field(&q.Status, validation.In(
			TopupStatusPending,
			TopupStatusProcessing,
			TopupStatusCompleted,
			TopupStatusFailed,
			TopupStatusRefunded,
			TopupStatusCancelled,
		)),
	)
}

// Normalize applies pagination defaults
func (q *TopupHistoryQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 20
	}
}

// =====================================================
// BALANCE RESPONSE
// =====================================================
type BalanceResponse struct {
	Balance           int64      `json:"balance"`
	Currency          string     `json:"currency"`
	IsActive          bool       `json:"is_active"`
	LastTransactionAt *time.Time `json:"last_transaction_at,omitempty"`
}

// =====================================================
// NOTIFICATION ACK
// =====================================================

// NotificationAck là acknowledgement trả cho gateway IPN.
// JSON shape cố định theo VNPay: {"RspCode": "...", "Message": "..."}
type NotificationAck struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

func AckSuccess() NotificationAck {
	return NotificationAck{RspCode: IPNCodeSuccess, Message: "Confirm Success"}
}

func AckOrderNotFound() NotificationAck {
	return NotificationAck{RspCode: IPNCodeOrderNotFound, Message: "Order not found"}
}

func AckAlreadyConfirmed() NotificationAck {
	return NotificationAck{RspCode: IPNCodeAlreadyConfirmed, Message: "Order already confirmed"}
}

func AckInvalidAmount() NotificationAck {
	return NotificationAck{RspCode: IPNCodeInvalidAmount, Message: "Invalid amount"}
}

func AckInvalidSignature() NotificationAck {
	return NotificationAck{RspCode: IPNCodeInvalidSignature, Message: "Invalid signature"}
}

func AckUnknownError() NotificationAck {
	return NotificationAck{RspCode: IPNCodeUnknownError, Message: "Unknown error"}
}

// =====================================================
// RETURN REDIRECT RESULT
// =====================================================

// ReturnRedirectResult là kết quả verify browser-return URL.
// Read-only: settlement thật sự đi qua IPN.
type ReturnRedirectResult struct {
	IsValid      bool   `json:"is_valid"`
	TopupCode    string `json:"topup_code"`
	Status       string `json:"status"`
	ResponseCode string `json:"response_code"`
	Message      string `json:"message"`
}

// =====================================================
// TOPUP STATISTICS (admin)
// =====================================================
type TopupStatistics struct {
	TotalCompletedAmount decimal.Decimal `json:"total_completed_amount"`
	CompletedCount       int64           `json:"completed_count"`
	PendingCount         int64           `json:"pending_count"`
	FailedCount          int64           `json:"failed_count"`
	CancelledCount       int64           `json:"cancelled_count"`
	ByMethod             map[string]int64 `json:"by_method"`
}
