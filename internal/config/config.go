package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the negotiation engine.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	JWTSecret     string
	GeminiAPIKey  string
	WalletBaseURL string

	// Platform treasury account credited with commissions.
	PlatformAccountID uuid.UUID

	// Negotiation window and sweeping
	NegotiationWindow   time.Duration
	AgentTimeout        time.Duration
	ExpirySweepInterval time.Duration

	// Policy bounds for agent-proposed terms
	MinEquityPct          decimal.Decimal
	MaxEquityPct          decimal.Decimal
	MinInvestmentFraction decimal.Decimal

	// Settlement rates by tier
	CommissionRates map[string]decimal.Decimal
	ReferralRates   map[string]decimal.Decimal

	// Rate limiting
	RateLimitWhitelist []string

	// CORS
	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SQLitePath:    os.Getenv("SQLITE_PATH"),
		RedisURL:      os.Getenv("REDIS_URL"),
		JWTSecret:     getEnv("JWT_SECRET", "dev-secret"),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		WalletBaseURL: os.Getenv("WALLET_BASE_URL"),

		NegotiationWindow:   getHours("NEGOTIATION_WINDOW_HOURS", 72),
		AgentTimeout:        getSeconds("AGENT_TIMEOUT_SECONDS", 30),
		ExpirySweepInterval: getMinutes("EXPIRY_SWEEP_MINUTES", 10),

		MinEquityPct:          getDecimal("MIN_EQUITY_PCT", "5"),
		MaxEquityPct:          getDecimal("MAX_EQUITY_PCT", "30"),
		MinInvestmentFraction: getDecimal("MIN_INVESTMENT_FRACTION", "0.01"),

		CommissionRates: map[string]decimal.Decimal{
			"standard":   getDecimal("COMMISSION_RATE_STANDARD", "0.05"),
			"premium":    getDecimal("COMMISSION_RATE_PREMIUM", "0.04"),
			"enterprise": getDecimal("COMMISSION_RATE_ENTERPRISE", "0.03"),
		},
		ReferralRates: map[string]decimal.Decimal{
			"base":   getDecimal("REFERRAL_RATE_BASE", "0.01"),
			"silver": getDecimal("REFERRAL_RATE_SILVER", "0.015"),
			"gold":   getDecimal("REFERRAL_RATE_GOLD", "0.02"),
		},
	}

	if raw := os.Getenv("PLATFORM_ACCOUNT_ID"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			panic("PLATFORM_ACCOUNT_ID must be a UUID")
		}
		cfg.PlatformAccountID = id
	}

	cfg.CORSAllowedOrigins = strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "*"), ",")
	for i, origin := range cfg.CORSAllowedOrigins {
		cfg.CORSAllowedOrigins[i] = strings.TrimSpace(origin)
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	// In production, require the external collaborators
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.JWTSecret == "dev-secret" {
			panic("JWT_SECRET is required in production")
		}
		if cfg.WalletBaseURL == "" {
			panic("WALLET_BASE_URL is required in production")
		}
		if cfg.PlatformAccountID == uuid.Nil {
			panic("PLATFORM_ACCOUNT_ID is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		panic(key + " must be an integer")
	}
	return v
}

func getHours(key string, defaultValue int) time.Duration {
	return time.Duration(getInt(key, defaultValue)) * time.Hour
}

func getMinutes(key string, defaultValue int) time.Duration {
	return time.Duration(getInt(key, defaultValue)) * time.Minute
}

func getSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getInt(key, defaultValue)) * time.Second
}

func getDecimal(key, defaultValue string) decimal.Decimal {
	raw := getEnv(key, defaultValue)
	v, err := decimal.NewFromString(raw)
	if err != nil {
		panic(key + " must be a decimal number")
	}
	return v
}
