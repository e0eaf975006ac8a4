package licenseapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"licensestore-backend/internal/config"
	"licensestore-backend/pkg/logger"
)

// Client là upstream key inventory API (black-box collaborator).
// Core chỉ đọc/ghi local mirror; generation và listing đi qua đây.
type Client interface {
	// FetchKeys lists every key known to the upstream inventory
	FetchKeys(ctx context.Context) ([]ExternalKey, error)

	// GenerateKeys asks the upstream to mint new keys for a duration.
	// Response là mảng key string.
	GenerateKeys(ctx context.Context, duration string, quantity int) ([]string, error)
}

type client struct {
	httpClient *http.Client
	cfg        config.LicenseConfig

	mu    sync.Mutex
	token string
}

func NewClient(cfg config.LicenseConfig) (Client, error) {
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("license api: base URL is required")
	}
	if cfg.APIEmail == "" || cfg.APIPassword == "" {
		return nil, fmt.Errorf("license api: credentials are required")
	}
	return &client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cfg:        cfg,
	}, nil
}

// ensureToken logs in lazily and caches the bearer token. Upstream không trả
// expiry nên 401 là tín hiệu duy nhất để re-login.
func (c *client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}

	body, err := json.Marshal(map[string]string{
		"email":    c.cfg.APIEmail,
		"password": c.cfg.APIPassword,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBaseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("license api: login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("license api: login rejected with status %d", resp.StatusCode)
	}

	var loginResp loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", fmt.Errorf("license api: failed to decode login response: %w", err)
	}
	if loginResp.Token == "" {
		return "", fmt.Errorf("license api: login response missing token")
	}

	c.token = loginResp.Token
	return c.token, nil
}

func (c *client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// doAuthed runs one authenticated request, re-logging in once on 401
func (c *client) doAuthed(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.ensureToken(ctx)
		if err != nil {
			return nil, err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIBaseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("license api: request failed: %w", err)
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("license api: failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			logger.Debug("license api token expired, re-authenticating")
			c.invalidateToken()
			continue
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return nil, fmt.Errorf("license api: %s %s returned status %d", method, path, resp.StatusCode)
		}
		return respBody, nil
	}
	return nil, fmt.Errorf("license api: authentication retry exhausted")
}

func (c *client) FetchKeys(ctx context.Context) ([]ExternalKey, error) {
	raw, err := c.doAuthed(ctx, http.MethodGet, "/license-keys", nil)
	if err != nil {
		return nil, err
	}

	var resp keyListResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("license api: failed to decode key list: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("license api: key list request unsuccessful")
	}
	return resp.Data, nil
}

func (c *client) GenerateKeys(ctx context.Context, duration string, quantity int) ([]string, error) {
	body, err := json.Marshal(generateRequest{Duration: duration, Quantity: quantity})
	if err != nil {
		return nil, err
	}

	raw, err := c.doAuthed(ctx, http.MethodPost, "/license-keys/generate", body)
	if err != nil {
		return nil, err
	}

	// response là mảng key string trực tiếp, không có envelope
	var keys []string
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, fmt.Errorf("license api: failed to decode generated keys: %w", err)
	}
	return keys, nil
}
