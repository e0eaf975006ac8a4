package model

// =====================================================
// TOPUP STATUS
// =====================================================
// State machine:
//   pending -> processing (gateway-specific, hiện không dùng)
//   pending -> completed | failed | cancelled
//   completed -> refunded
// Terminal: completed, failed, refunded, cancelled
const (
	TopupStatusPending    = "pending"
	TopupStatusProcessing = "processing"
	TopupStatusCompleted  = "completed"
	TopupStatusFailed     = "failed"
	TopupStatusRefunded   = "refunded"
	TopupStatusCancelled  = "cancelled"
)

var ValidTopupStatuses = []string{
	TopupStatusPending,
	TopupStatusProcessing,
	TopupStatusCompleted,
	TopupStatusFailed,
	TopupStatusRefunded,
	TopupStatusCancelled,
}

// IsTerminalTopupStatus - terminal nghĩa là idempotency gate đóng lại
func IsTerminalTopupStatus(status string) bool {
	switch status {
	case TopupStatusCompleted, TopupStatusFailed, TopupStatusRefunded, TopupStatusCancelled:
		return true
	}
	return false
}

// =====================================================
// PAYMENT METHODS
// =====================================================
const (
	PaymentMethodGateway = "gateway" // signed redirect gateway (VNPay)
	PaymentMethodQRPay   = "qr_pay"  // QR bank transfer, reconciled by polling
	PaymentMethodAdmin   = "admin"   // manual admin credit
)

var ValidPaymentMethods = []string{
	PaymentMethodGateway,
	PaymentMethodQRPay,
	PaymentMethodAdmin,
}

// =====================================================
// BUSINESS CODE PREFIX
// =====================================================
const (
	TopupCodePrefix = "TOPUP"
)

// =====================================================
// IPN ACK CODES (VNPay RspCode)
// =====================================================
// Gateway retry behavior phụ thuộc đúng code trả về nên ack luôn phải được
// tính từ kết quả transaction, không bao giờ để generic handler trả lời.
const (
	IPNCodeSuccess          = "00" // settled (hoặc verified-failed đã ghi nhận)
	IPNCodeOrderNotFound    = "01"
	IPNCodeAlreadyConfirmed = "02" // idempotent replay
	IPNCodeInvalidAmount    = "04"
	IPNCodeInvalidSignature = "97"
	IPNCodeUnknownError     = "99"
)

// =====================================================
// INTERNAL ERROR CODES
// =====================================================
const (
	ErrCodeWalletNotFound      = "WAL001"
	ErrCodeWalletInactive      = "WAL002"
	ErrCodeInsufficientBalance = "WAL003"
	ErrCodeInvalidTopupAmount  = "WAL004"
	ErrCodeTopupNotFound       = "WAL005"
	ErrCodeTopupAlreadyFinal   = "WAL006"
	ErrCodeAmountMismatch      = "WAL007"
	ErrCodeInvalidSignature    = "WAL008"
	ErrCodeTopupNotCancellable = "WAL009"
	ErrCodeUnauthorized        = "WAL010"
	ErrCodeGatewayUnavailable  = "WAL011"
	ErrCodeDuplicateTopupCode  = "WAL012"
	ErrCodeInternalError       = "WAL013"
)

// =====================================================
// WALLET CONFIGURATION
// =====================================================
const (
	DefaultCurrency = "VND"

	// Default topup bounds (override qua env)
	DefaultMinTopupAmount = int64(10000)
	DefaultMaxTopupAmount = int64(100000000)

	// QR reconciliation: chỉ match entries tạo trong window này
	QRMatchWindowHours = 24
)
