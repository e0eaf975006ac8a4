package vnpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"licensestore-backend/internal/domains/payment/gateway"
	"licensestore-backend/pkg/logger"
)

// =====================================================
// VNPAY CLIENT
// =====================================================

type Client struct {
	config     *Config
	httpClient *http.Client
}

func NewClient(config *Config) (gateway.PaymentGateway, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid VNPay config: %w", err)
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

func (c *Client) Type() gateway.GatewayType {
	return gateway.GatewayTypeVNPay
}

// =====================================================
// CREATE PAYMENT URL
// =====================================================

func (c *Client) CreatePaymentURL(
	ctx context.Context,
	req gateway.PaymentURLRequest,
) (string, error) {
	// Validate request
	if req.TopupCode == "" {
		return "", fmt.Errorf("topup_code is required")
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return "", fmt.Errorf("amount must be positive")
	}

	// ⚠️ VNPay requires IPv4 format - normalize IPv6 loopback
	clientIP := req.ClientIP
	if clientIP == "" || clientIP == "::1" {
		clientIP = "127.0.0.1"
	}

	orderInfo := req.OrderInfo
	if orderInfo == "" {
		orderInfo = fmt.Sprintf("Nap tien %s", req.TopupCode)
	}

	// Build parameters
	now := time.Now()
	params := map[string]string{
		"vnp_Version":    c.config.Version,
		"vnp_Command":    c.config.Command,
		"vnp_TmnCode":    c.config.TmnCode,
		"vnp_Amount":     c.formatAmount(req.Amount),
		"vnp_CurrCode":   c.config.CurrCode,
		"vnp_TxnRef":     req.TopupCode,
		"vnp_OrderInfo":  orderInfo,
		"vnp_OrderType":  "topup",
		"vnp_Locale":     c.config.Locale,
		"vnp_ReturnUrl":  c.config.ReturnURL,
		"vnp_IpAddr":     clientIP,
		"vnp_CreateDate": now.Format("20060102150405"),
		"vnp_ExpireDate": now.Add(paymentURLTTLMinutes * time.Minute).Format("20060102150405"),
	}

	// Build payment URL with signature
	paymentURL := BuildPaymentURL(c.config.GetPaymentURL(), params, c.config.HashSecret)

	logger.Info("vnpay payment url created", map[string]interface{}{
		"topup_code": req.TopupCode,
		"amount":     req.Amount.String(),
		"expires_at": params["vnp_ExpireDate"],
	})

	return paymentURL, nil
}

// formatAmount formats amount for VNPay
// VNPay requires amount in VND (no decimal) * 100
// Example: 100,000 VND -> "10000000"
func (c *Client) formatAmount(amount decimal.Decimal) string {
	amountInt := amount.Round(0)
	return amountInt.Mul(decimal.NewFromInt(100)).StringFixed(0)
}

// =====================================================
// VERIFY CALLBACK
// =====================================================

func (c *Client) VerifyCallback(rawParams map[string]string) gateway.CallbackResult {
	result := gateway.CallbackResult{
		// TxnRef is preserved even on signature failure so the caller can
		// correlate the rejected notification
		TopupCode:    rawParams["vnp_TxnRef"],
		GatewayTxnNo: rawParams["vnp_TransactionNo"],
		ResponseCode: rawParams["vnp_ResponseCode"],
		AmountRaw:    rawParams["vnp_Amount"],
		Status:       gateway.CallbackStatusFailed,
	}

	rawPayload := make(map[string]interface{}, len(rawParams))
	for k, v := range rawParams {
		rawPayload[k] = v
	}
	result.RawPayload = rawPayload

	if !VerifySignature(rawParams, rawParams["vnp_SecureHash"], c.config.HashSecret) {
		result.IsValid = false
		return result
	}

	result.IsValid = true
	if result.ResponseCode == ResponseCodeSuccess {
		result.Status = gateway.CallbackStatusCompleted
	}

	return result
}

// =====================================================
// INITIATE REFUND
// =====================================================

func (c *Client) InitiateRefund(
	ctx context.Context,
	req gateway.RefundRequest,
) (*gateway.RefundResult, error) {
	// Validate request
	if req.TransactionNo == "" {
		return nil, fmt.Errorf("transaction_no is required")
	}
	if req.TransactionDate == "" {
		return nil, fmt.Errorf("transaction_date is required")
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("refund amount must be positive")
	}

	now := time.Now()
	refundTxnRef := fmt.Sprintf("RF%s", now.Format("20060102150405"))
	requestID := fmt.Sprintf("REQ%s", now.Format("20060102150405"))

	ipAddr := req.IPAddress
	if ipAddr == "" || ipAddr == "::1" {
		ipAddr = "127.0.0.1"
	}

	params := map[string]string{
		"vnp_RequestId":       requestID,
		"vnp_Version":         c.config.Version,
		"vnp_Command":         "refund",
		"vnp_TmnCode":         c.config.TmnCode,
		"vnp_TransactionType": "02", // 02: full refund, 03: partial refund
		"vnp_TxnRef":          refundTxnRef,
		"vnp_Amount":          c.formatAmount(req.Amount),
		"vnp_OrderInfo":       fmt.Sprintf("Hoan tien GD %s", req.TransactionNo),
		"vnp_TransactionNo":   req.TransactionNo,
		"vnp_TransactionDate": req.TransactionDate,
		"vnp_CreateDate":      now.Format("20060102150405"),
		"vnp_CreateBy":        "system",
		"vnp_IpAddr":          ipAddr,
	}
	params["vnp_SecureHash"] = GenerateSignature(params, c.config.HashSecret)

	requestBody := make(map[string]interface{}, len(params))
	for k, v := range params {
		requestBody[k] = v
	}

	// Refund calls are expected to fail transiently; every failure from here
	// on is reported through IsSuccess=false so callers check the flag
	// instead of catching errors.
	respData, err := c.postRefund(ctx, requestBody)
	if err != nil {
		logger.Error("vnpay refund call failed", err)
		return &gateway.RefundResult{
			IsSuccess:   false,
			RefundTxnID: refundTxnRef,
			Message:     "gateway unreachable",
		}, nil
	}

	responseCode, _ := respData["vnp_ResponseCode"].(string)
	message, _ := respData["vnp_Message"].(string)

	return &gateway.RefundResult{
		IsSuccess:    responseCode == ResponseCodeSuccess,
		RefundTxnID:  refundTxnRef,
		ResponseCode: responseCode,
		Message:      message,
		RawResponse:  respData,
	}, nil
}

func (c *Client) postRefund(ctx context.Context, body map[string]interface{}) (map[string]interface{}, error) {
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.GetRefundURL(), bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call VNPay API: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var respData map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &respData); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return respData, nil
}

func (c *Client) GetReturnURL() string {
	return c.config.ReturnURL
}
