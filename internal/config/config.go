package config

import (
	"os"
	"strconv"
	"time"
)

// GatewayConfig holds the payment-gateway integration knobs. The webhook
// secret must be set in production; InsecureSkipVerify exists for local
// development only and main logs a loud warning when it is on.
type GatewayConfig struct {
	BaseURL            string
	APIKey             string
	WebhookSecret      string
	CallbackURL        string
	Currency           string
	InsecureSkipVerify bool
}

func LoadGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		BaseURL:            getEnv("GATEWAY_BASE_URL", "https://api.gateway.example.com"),
		APIKey:             getEnv("GATEWAY_API_KEY", ""),
		WebhookSecret:      getEnv("GATEWAY_WEBHOOK_SECRET", ""),
		CallbackURL:        getEnv("GATEWAY_CALLBACK_URL", "http://localhost:8080/api/v1/webhooks/gateway"),
		Currency:           getEnv("GATEWAY_CURRENCY", "EUR"),
		InsecureSkipVerify: getEnvAsBool("GATEWAY_INSECURE_SKIP_VERIFY", false),
	}
}

// SweeperConfig drives the order-expiry background task.
type SweeperConfig struct {
	Interval time.Duration
	MaxAge   time.Duration
}

func LoadSweeperConfig() *SweeperConfig {
	return &SweeperConfig{
		Interval: getEnvAsDuration("SWEEPER_INTERVAL", time.Hour),
		MaxAge:   getEnvAsDuration("SWEEPER_ORDER_MAX_AGE", 7*24*time.Hour),
	}
}

// RateLimitConfig bounds per-identity request rates.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

func LoadRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Limit:  getEnvAsInt("RATE_LIMIT_REQUESTS", 120),
		Window: getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}
