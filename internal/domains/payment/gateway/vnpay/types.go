package vnpay

// =====================================================
// VNPAY CALLBACK TYPES
// =====================================================

// CallbackRequest represents the full parameter set VNPay sends on both the
// browser return redirect and the server-to-server IPN call.
type CallbackRequest struct {
	VnpAmount            string `form:"vnp_Amount" json:"vnp_Amount"`
	VnpBankCode          string `form:"vnp_BankCode" json:"vnp_BankCode"`
	VnpBankTranNo        string `form:"vnp_BankTranNo" json:"vnp_BankTranNo"`
	VnpCardType          string `form:"vnp_CardType" json:"vnp_CardType"`
	VnpOrderInfo         string `form:"vnp_OrderInfo" json:"vnp_OrderInfo"`
	VnpPayDate           string `form:"vnp_PayDate" json:"vnp_PayDate"`
	VnpResponseCode      string `form:"vnp_ResponseCode" json:"vnp_ResponseCode"`
	VnpTmnCode           string `form:"vnp_TmnCode" json:"vnp_TmnCode"`
	VnpTransactionNo     string `form:"vnp_TransactionNo" json:"vnp_TransactionNo"`
	VnpTransactionStatus string `form:"vnp_TransactionStatus" json:"vnp_TransactionStatus"`
	VnpTxnRef            string `form:"vnp_TxnRef" json:"vnp_TxnRef"`
	VnpSecureHash        string `form:"vnp_SecureHash" json:"vnp_SecureHash"`
	VnpSecureHashType    string `form:"vnp_SecureHashType" json:"vnp_SecureHashType"`
}

// ToParams converts the struct back to the flat map the signature codec works on.
func (r CallbackRequest) ToParams() map[string]string {
	params := map[string]string{
		"vnp_Amount":            r.VnpAmount,
		"vnp_BankCode":          r.VnpBankCode,
		"vnp_BankTranNo":        r.VnpBankTranNo,
		"vnp_CardType":          r.VnpCardType,
		"vnp_OrderInfo":         r.VnpOrderInfo,
		"vnp_PayDate":           r.VnpPayDate,
		"vnp_ResponseCode":      r.VnpResponseCode,
		"vnp_TmnCode":           r.VnpTmnCode,
		"vnp_TransactionNo":     r.VnpTransactionNo,
		"vnp_TransactionStatus": r.VnpTransactionStatus,
		"vnp_TxnRef":            r.VnpTxnRef,
		"vnp_SecureHash":        r.VnpSecureHash,
		"vnp_SecureHashType":    r.VnpSecureHashType,
	}

	// Empty fields are dropped here so the canonical string only sees what
	// VNPay actually sent
	clean := make(map[string]string)
	for k, v := range params {
		if v != "" {
			clean[k] = v
		}
	}
	return clean
}
