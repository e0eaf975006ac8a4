package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// =====================================================
// PURCHASE
// =====================================================
type PurchaseKeyRequest struct {
	Duration string `json:"duration" binding:"required"`
}

func (req PurchaseKeyRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Duration, validation.Required, validation.In(
			"30d", "90d", "180d", "365d",
		)),
	)
}

// PurchaseKeyResponse: key string chỉ trả về đúng một lần ở đây,
// các listing về sau đọc từ mirror
type PurchaseKeyResponse struct {
	Key         string    `json:"key"`
	Duration    string    `json:"duration"`
	OrderCode   string    `json:"order_code"`
	Amount      int64     `json:"amount"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// =====================================================
// GENERATE / SYNC (admin)
// =====================================================
type GenerateKeysRequest struct {
	Duration string `json:"duration" binding:"required"`
	Quantity int    `json:"quantity" binding:"required"`
}

func (req GenerateKeysRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Duration, validation.Required, validation.In(
			"30d", "90d", "180d", "365d",
		)),
		validation.Field(&req.Quantity, validation.Required, validation.Min(1), validation.Max(100)),
	)
}

type GenerateKeysResponse struct {
	Generated int      `json:"generated"`
	Keys      []string `json:"keys"`
}

// SyncResult đếm kết quả một lần mirror từ upstream
type SyncResult struct {
	Synced  int `json:"synced"`  // keys mới
	Updated int `json:"updated"` // external id / trạng thái được cập nhật
	Skipped int `json:"skipped"` // đã có, không đổi
}

// =====================================================
// STATS (admin)
// =====================================================
type DurationStats struct {
	Duration  string `json:"duration"`
	Total     int64  `json:"total"`
	Used      int64  `json:"used"`
	Available int64  `json:"available"`
}

type KeyStats struct {
	Total      int64           `json:"total"`
	Used       int64           `json:"used"`
	Available  int64           `json:"available"`
	ByDuration []DurationStats `json:"by_duration"`
}

// =====================================================
// LISTING
// =====================================================
type KeyListQuery struct {
	Page     int    `form:"page"`
	Limit    int    `form:"limit"`
	Duration string `form:"duration"`
	IsUsed   *bool  `form:"is_used"`
	IsActive *bool  `form:"is_active"`
}

func (q *KeyListQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 20
	}
}

// PriceInfo cho bảng giá public
type PriceInfo struct {
	Duration string `json:"duration"`
	Price    int64  `json:"price"`
	Currency string `json:"currency"`
}
