package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config chứa toàn bộ application configuration
// Struct này được populate từ environment variables
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	VNPay    VNPayConfig
	BankFeed BankFeedConfig
	Wallet   WalletConfig
	License  LicenseConfig
	Job      JobConfig
}

type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Port        string
	Version     string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Host     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type VNPayConfig struct {
	TmnCode    string // Merchant Code (e.g., "DEMOV01")
	HashSecret string // Secret key for HMAC-SHA512
	APIURL     string // VNPay API base URL
	ReturnURL  string // Frontend callback URL
	IPNURL     string // Backend IPN URL
}

// BankFeedConfig cấu hình bank-proxy cho luồng QR pay
type BankFeedConfig struct {
	TransactionAPIURL string // transaction history endpoint base
	QRAPIURL          string // QR image endpoint base
	Password          string
	Token             string
	BankName          string
	BankNumber        string
	AccountHolder     string
}

// WalletConfig giới hạn nạp tiền và housekeeping cho topup pending
type WalletConfig struct {
	MinTopupAmount      int64 // VND
	MaxTopupAmount      int64 // VND
	PendingTopupTTLHour int   // gateway topups pending lâu hơn TTL sẽ bị cancel
}

// LicenseConfig: upstream key inventory API + duration price table.
// Giá theo VND, key inventory là external collaborator (mirror local).
type LicenseConfig struct {
	APIBaseURL  string
	APIEmail    string
	APIPassword string

	Prices map[string]int64 // duration tag -> price (VND)
}

// JobConfig chứa cron specs cho scheduled jobs (worker process)
type JobConfig struct {
	ExpirePendingTopupsCron string
	SyncLicenseKeysCron     string
}

// Load đọc config từ environment variables
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "LicenseStore API"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8080"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "licensestore"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 25),
			MinConns: getEnvInt("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		},
		VNPay: VNPayConfig{
			TmnCode:    getEnv("VNPAY_TMN_CODE", ""),
			HashSecret: getEnv("VNPAY_HASH_SECRET", ""),
			APIURL:     getEnv("VNPAY_API_URL", "https://sandbox.vnpayment.vn"),
			ReturnURL:  getEnv("VNPAY_RETURN_URL", "http://localhost:3000/wallet/return"),
			IPNURL:     getEnv("VNPAY_IPN_URL", "http://localhost:8080/v1/payments/vnpay/ipn"),
		},
		BankFeed: BankFeedConfig{
			TransactionAPIURL: getEnv("BANKFEED_TRANSACTION_URL", ""),
			QRAPIURL:          getEnv("BANKFEED_QR_URL", ""),
			Password:          getEnv("BANKFEED_PASSWORD", ""),
			Token:             getEnv("BANKFEED_TOKEN", ""),
			BankName:          getEnv("BANKFEED_BANK_NAME", ""),
			BankNumber:        getEnv("BANKFEED_BANK_NUMBER", ""),
			AccountHolder:     getEnv("BANKFEED_ACCOUNT_HOLDER", ""),
		},
		Wallet: WalletConfig{
			MinTopupAmount:      int64(getEnvInt("WALLET_MIN_TOPUP", 10000)),
			MaxTopupAmount:      int64(getEnvInt("WALLET_MAX_TOPUP", 100000000)),
			PendingTopupTTLHour: getEnvInt("WALLET_PENDING_TOPUP_TTL_HOURS", 24),
		},
		License: LicenseConfig{
			APIBaseURL:  getEnv("LICENSE_API_URL", ""),
			APIEmail:    getEnv("LICENSE_API_EMAIL", ""),
			APIPassword: getEnv("LICENSE_API_PASSWORD", ""),
			Prices: map[string]int64{
				"30d":  int64(getEnvInt("LICENSE_PRICE_30D", 300000)),
				"90d":  int64(getEnvInt("LICENSE_PRICE_90D", 800000)),
				"180d": int64(getEnvInt("LICENSE_PRICE_180D", 1500000)),
				"365d": int64(getEnvInt("LICENSE_PRICE_365D", 2800000)),
			},
		},
		Job: JobConfig{
			ExpirePendingTopupsCron: getEnv("JOB_EXPIRE_PENDING_TOPUPS_CRON", "0 * * * *"), // hourly
			SyncLicenseKeysCron:     getEnv("JOB_SYNC_LICENSE_KEYS_CRON", "30 2 * * *"),    // daily at 02:30
		},
	}

	// Validate critical config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate kiểm tra config có hợp lệ không
func (c *Config) Validate() error {
	// Production environment phải có JWT secret
	if c.App.Environment == "production" {
		if c.JWT.Secret == "your-secret-key-change-in-production" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD must be set in production")
		}

		// Payment gateway validation (optional - only warn if not set)
		if c.VNPay.TmnCode == "" {
			fmt.Println("WARNING: VNPay TmnCode not set - gateway topups will not work")
		}
		if c.BankFeed.Token == "" {
			fmt.Println("WARNING: BankFeed token not set - QR topups will not reconcile")
		}
	}

	if c.Wallet.MinTopupAmount <= 0 || c.Wallet.MaxTopupAmount < c.Wallet.MinTopupAmount {
		return fmt.Errorf("invalid wallet topup limits: min=%d max=%d",
			c.Wallet.MinTopupAmount, c.Wallet.MaxTopupAmount)
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
