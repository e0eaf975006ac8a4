package config

import (
	"os"
	"time"

	"licensestore-backend/internal/infrastructure/database"
)

// LoadDatabaseConfig build pool config từ environment.
// Giá trị invalid rơi về default giống các helper khác trong package,
// riêng credentials không có default nào hợp lý ngoài dev values.
func LoadDatabaseConfig() (*database.DBConfig, error) {
	return &database.DBConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		Username: getEnv("DB_USER", "licensestore"),
		Password: getEnv("DB_PASSWORD", "secret"),
		DBName:   getEnv("DB_NAME", "licensestore_dev"),

		MaxConns:          int32(getEnvInt("DB_MAX_CONNECTIONS", 25)),
		MinConns:          int32(getEnvInt("DB_MIN_CONNECTIONS", 5)),
		MaxConnLifetime:   getEnvDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
		MaxConnIdleTime:   getEnvDuration("DB_MAX_CONN_IDLE_TIME", time.Minute),
		HealthCheckPeriod: getEnvDuration("DB_HEALTH_CHECK_PERIOD", time.Minute),

		MaxRetries:     getEnvInt("DB_MAX_RETRIES", 5),
		RetryDelay:     getEnvDuration("DB_RETRY_DELAY", time.Second),
		ConnectTimeout: getEnvDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
	}, nil
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
