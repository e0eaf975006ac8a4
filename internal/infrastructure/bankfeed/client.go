package bankfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"licensestore-backend/internal/config"
	"licensestore-backend/pkg/logger"
)

// =====================================================
// BANK FEED CLIENT (QR-pay transaction history proxy)
// =====================================================

// Client đọc sao kê gần đây từ bank proxy và build QR image URL.
// Reconciliation service dùng client này để match pending QR topups.
type Client interface {
	// GetRecentTransactions fetches the recent statement for the configured account
	GetRecentTransactions(ctx context.Context) ([]Transaction, error)

	// BuildQRImageURL returns the QR image URL for a transfer with the given
	// amount and memo pre-filled
	BuildQRImageURL(amount int64, memo string) string
}

type client struct {
	cfg        config.BankFeedConfig
	httpClient *http.Client
}

func NewClient(cfg config.BankFeedConfig) (Client, error) {
	if cfg.TransactionAPIURL == "" {
		return nil, fmt.Errorf("bankfeed transaction URL is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("bankfeed token is required")
	}
	if cfg.BankNumber == "" {
		return nil, fmt.Errorf("bankfeed bank number is required")
	}

	return &client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

func (c *client) GetRecentTransactions(ctx context.Context) ([]Transaction, error) {
	// Path format của provider: /{password}/{bankNumber}/{token}
	endpoint := fmt.Sprintf("%s/%s/%s/%s",
		c.cfg.TransactionAPIURL,
		url.PathEscape(c.cfg.Password),
		url.PathEscape(c.cfg.BankNumber),
		url.PathEscape(c.cfg.Token),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create bankfeed request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call bankfeed API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read bankfeed response: %w", err)
	}

	var feed feedResponse
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse bankfeed response: %w", err)
	}

	if feed.Status == feedStatusInvalidToken {
		return nil, fmt.Errorf("bankfeed token rejected: %s", feed.Message)
	}

	logger.Info("bankfeed statement fetched", map[string]interface{}{
		"count": len(feed.Transactions),
	})

	return feed.Transactions, nil
}

func (c *client) BuildQRImageURL(amount int64, memo string) string {
	// /{bankName}/{bankNumber}/{accountHolder}?amount=&memo=
	return fmt.Sprintf("%s/%s/%s/%s?is_mask=0&bg=0&amount=%d&memo=%s",
		c.cfg.QRAPIURL,
		url.PathEscape(c.cfg.BankName),
		url.PathEscape(c.cfg.BankNumber),
		url.PathEscape(c.cfg.AccountHolder),
		amount,
		url.QueryEscape(memo),
	)
}
