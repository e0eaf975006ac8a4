package bankfeed

// =====================================================
// BANK FEED TYPES
// =====================================================

// Transaction direction trên sao kê
const (
	DirectionIn  = "IN"
	DirectionOut = "OUT"
)

// Feed provider status codes
const (
	feedStatusInvalidToken = 99
)

// Transaction là một dòng sao kê từ bank proxy.
// Description là free text do người chuyển khoản nhập - untrusted.
type Transaction struct {
	TransactionID   string `json:"transactionID"`
	Amount          int64  `json:"amount"`
	Description     string `json:"description"`
	TransactionDate string `json:"transactionDate"` // "2006-01-02 15:04:05"
	Type            string `json:"type"`            // IN | OUT
}

// feedResponse là response envelope của transaction feed API
type feedResponse struct {
	Status       int           `json:"status"`
	Message      string        `json:"message"`
	Transactions []Transaction `json:"transactions"`
}
