package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// =====================================================
// GATEWAY INTERFACES
// =====================================================

// GatewayType identifies a payment gateway implementation.
// Selection is an explicit enum resolved at wiring time, not a runtime registry.
type GatewayType string

const (
	GatewayTypeVNPay GatewayType = "vnpay"
)

// PaymentGateway is the capability set every redirect-style gateway must provide.
// Implementations are constructed once and injected into the wallet service.
type PaymentGateway interface {
	// Type returns the gateway identifier for logging and method tagging
	Type() GatewayType

	// CreatePaymentURL generates the signed redirect URL for a topup
	CreatePaymentURL(ctx context.Context, req PaymentURLRequest) (string, error)

	// VerifyCallback checks the signature of a gateway notification and
	// extracts the settlement-relevant fields. Must not touch any storage.
	VerifyCallback(rawParams map[string]string) CallbackResult

	// InitiateRefund calls the gateway refund API. Gateway/HTTP failures are
	// reported via IsSuccess=false, never as an error escaping this boundary;
	// the returned error is reserved for invalid input.
	InitiateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error)

	// GetReturnURL gets frontend return URL
	GetReturnURL() string
}

// =====================================================
// COMMON REQUEST/RESPONSE TYPES
// =====================================================

// PaymentURLRequest request to create a gateway payment URL
type PaymentURLRequest struct {
	TopupCode string          // wallet_topups.topup_code, used as the gateway order ref
	Amount    decimal.Decimal // amount in VND, scaling to the gateway's minor unit happens inside the client
	OrderInfo string          // Description shown on the gateway page
	ClientIP  string          // Requester IP, loopback gets normalized by the client
}

// CallbackStatus is the gateway-reported outcome of a payment
type CallbackStatus string

const (
	CallbackStatusCompleted CallbackStatus = "completed"
	CallbackStatusFailed    CallbackStatus = "failed"
)

// CallbackResult is the verified view of a gateway notification.
// TopupCode is preserved from the raw payload even when IsValid=false so the
// caller can correlate the rejected notification in logs.
type CallbackResult struct {
	IsValid      bool
	Status       CallbackStatus
	TopupCode    string
	GatewayTxnNo string
	ResponseCode string
	AmountRaw    string                 // amount exactly as the gateway sent it (still scaled)
	RawPayload   map[string]interface{} // full parameter set for audit
}

// RefundRequest request to initiate a gateway refund
type RefundRequest struct {
	TransactionNo   string          // Original transaction number from the gateway
	TransactionDate string          // Original transaction date (yyyyMMddHHmmss)
	Amount          decimal.Decimal // Amount to refund in VND
	Reason          string          // Refund reason
	IPAddress       string          // Operator IP
}

// RefundResult response from the gateway refund API
type RefundResult struct {
	IsSuccess    bool
	RefundTxnID  string                 // Gateway refund transaction ref
	ResponseCode string                 // Gateway response code
	Message      string                 // Response message
	RawResponse  map[string]interface{} // Full response for audit
}
