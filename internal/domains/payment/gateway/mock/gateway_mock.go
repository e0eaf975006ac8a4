package mock

import (
	"context"
	"fmt"
	"sync"

	"licensestore-backend/internal/domains/payment/gateway"
)

// =====================================================
// MOCK PAYMENT GATEWAY (for tests and local development)
// =====================================================

// Gateway is a configurable in-memory PaymentGateway.
// Toggle the Should* flags to drive failure paths in service tests.
type Gateway struct {
	mu sync.Mutex

	ShouldFailCreateURL bool
	ShouldFailRefund    bool
	SignatureValid      bool
	CallbackStatus      gateway.CallbackStatus

	CreateURLCalls []gateway.PaymentURLRequest
	RefundCalls    []gateway.RefundRequest
}

func NewGateway() *Gateway {
	return &Gateway{
		SignatureValid: true,
		CallbackStatus: gateway.CallbackStatusCompleted,
	}
}

func (g *Gateway) Type() gateway.GatewayType {
	return gateway.GatewayTypeVNPay
}

func (g *Gateway) CreatePaymentURL(ctx context.Context, req gateway.PaymentURLRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.CreateURLCalls = append(g.CreateURLCalls, req)

	if g.ShouldFailCreateURL {
		return "", fmt.Errorf("mock gateway: create payment url failed")
	}
	return fmt.Sprintf("https://mock-gateway.local/pay?ref=%s", req.TopupCode), nil
}

func (g *Gateway) VerifyCallback(rawParams map[string]string) gateway.CallbackResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	rawPayload := make(map[string]interface{}, len(rawParams))
	for k, v := range rawParams {
		rawPayload[k] = v
	}

	return gateway.CallbackResult{
		IsValid:      g.SignatureValid,
		Status:       g.CallbackStatus,
		TopupCode:    rawParams["vnp_TxnRef"],
		GatewayTxnNo: rawParams["vnp_TransactionNo"],
		ResponseCode: rawParams["vnp_ResponseCode"],
		AmountRaw:    rawParams["vnp_Amount"],
		RawPayload:   rawPayload,
	}
}

func (g *Gateway) InitiateRefund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.RefundCalls = append(g.RefundCalls, req)

	if g.ShouldFailRefund {
		return &gateway.RefundResult{IsSuccess: false, Message: "mock refund failure"}, nil
	}
	return &gateway.RefundResult{
		IsSuccess:    true,
		RefundTxnID:  "MOCKRF001",
		ResponseCode: "00",
		Message:      "mock refund ok",
	}, nil
}

func (g *Gateway) GetReturnURL() string {
	return "https://mock-frontend.local/wallet/return"
}
