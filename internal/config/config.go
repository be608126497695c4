package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
	AdminToken     string   `mapstructure:"ADMIN_TOKEN"`
	WebhookSecret  string   `mapstructure:"WEBHOOK_SECRET"`
	FulfillmentURL string   `mapstructure:"FULFILLMENT_URL"`
	TraceShipURL   string   `mapstructure:"TRACE_SHIP_URL"`
	LLMAPIKey      string   `mapstructure:"LLM_API_KEY"`
	LLMModel       string   `mapstructure:"LLM_MODEL"`
	LLMTimeoutMS   int      `mapstructure:"LLM_TIMEOUT_MS"`
	SeedDemo       bool     `mapstructure:"SEED_DEMO"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("LLM_MODEL", "gemini-1.5-flash")
	v.SetDefault("LLM_TIMEOUT_MS", 5000)
	v.SetDefault("SEED_DEMO", false)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("ADMIN_TOKEN")
	v.BindEnv("WEBHOOK_SECRET")
	v.BindEnv("FULFILLMENT_URL")
	v.BindEnv("TRACE_SHIP_URL")
	v.BindEnv("LLM_API_KEY")
	v.BindEnv("LLM_MODEL")
	v.BindEnv("LLM_TIMEOUT_MS")
	v.BindEnv("SEED_DEMO")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// LLMEnabled reports whether disambiguation should use the hosted model.
func (c *Config) LLMEnabled() bool {
	return c.LLMAPIKey != ""
}

// LLMTimeout returns the disambiguation call budget as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutMS) * time.Millisecond
}

// Validate checks that the configuration is safe to run. Production refuses
// to start without the secrets that guard the admin surface and the
// fulfillment callback.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.AdminToken == "" {
			return fmt.Errorf("ADMIN_TOKEN is required in production")
		}
		if c.WebhookSecret == "" {
			return fmt.Errorf("WEBHOOK_SECRET is required in production")
		}
	}
	if c.LLMTimeoutMS <= 0 {
		return fmt.Errorf("LLM_TIMEOUT_MS must be positive, got %d", c.LLMTimeoutMS)
	}
	return nil
}
