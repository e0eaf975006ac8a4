package model

// =====================================================
// DURATION TAGS
// =====================================================

// Duration tags khớp với upstream inventory. Giá theo tag nằm ở config.
var ValidDurations = []string{"30d", "90d", "180d", "365d"}

func IsValidDuration(duration string) bool {
	for _, d := range ValidDurations {
		if d == duration {
			return true
		}
	}
	return false
}

// =====================================================
// ORDER CONSTANTS
// =====================================================
const (
	OrderCodePrefix = "ORDER"

	OrderTypeLicenseKey = "license_key"

	OrderStatusCompleted = "completed"

	PaymentMethodWallet = "wallet"
)

// =====================================================
// ERROR CODES
// =====================================================
const (
	ErrCodeUnknownDuration     = "LIC001"
	ErrCodeNoAvailableKey      = "LIC002"
	ErrCodeInsufficientBalance = "LIC003"
	ErrCodeKeyNotFound         = "LIC004"
	ErrCodeUpstreamUnavailable = "LIC005"
	ErrCodeDuplicateOrderCode  = "LIC006"
	ErrCodeInternalError       = "LIC007"
)
