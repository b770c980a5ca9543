package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	QueueWorkers int `mapstructure:"QUEUE_WORKERS"`

	RateLimitEnabled  bool    `mapstructure:"RATE_LIMIT_ENABLED"`
	RateLimitCapacity float64 `mapstructure:"RATE_LIMIT_CAPACITY"`
	RateLimitRefill   float64 `mapstructure:"RATE_LIMIT_REFILL"`

	// CBCooldownSeconds is how long an open circuit breaker waits before
	// letting a probe through.
	CBCooldownSeconds float64 `mapstructure:"CB_COOLDOWN"`

	// FailureRate is the simulated failure probability of the mock sms and
	// push providers.
	FailureRate float64 `mapstructure:"FAILURE_RATE"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`
	SMTPUseTLS   bool   `mapstructure:"SMTP_USE_TLS"`
	SMTPStartTLS bool   `mapstructure:"SMTP_STARTTLS"`

	AddSPFHeader  bool `mapstructure:"ADD_SPF_HEADER"`
	AddDKIMHeader bool `mapstructure:"ADD_DKIM_HEADER"`

	// DBDir holds the sqlite database file when DATABASE_URL is unset.
	DBDir       string `mapstructure:"DB_DIR"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("QUEUE_WORKERS", 4)
	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_CAPACITY", 10.0)
	v.SetDefault("RATE_LIMIT_REFILL", 1.0)
	v.SetDefault("CB_COOLDOWN", 60.0)
	v.SetDefault("FAILURE_RATE", 0.05)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USE_TLS", true)
	v.SetDefault("SMTP_STARTTLS", true)
	v.SetDefault("ADD_SPF_HEADER", true)
	v.SetDefault("ADD_DKIM_HEADER", true)
	v.SetDefault("DB_DIR", "./data")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("QUEUE_WORKERS")
	v.BindEnv("RATE_LIMIT_ENABLED")
	v.BindEnv("RATE_LIMIT_CAPACITY")
	v.BindEnv("RATE_LIMIT_REFILL")
	v.BindEnv("CB_COOLDOWN")
	v.BindEnv("FAILURE_RATE")
	v.BindEnv("SMTP_HOST")
	v.BindEnv("SMTP_PORT")
	v.BindEnv("SMTP_USERNAME")
	v.BindEnv("SMTP_PASSWORD")
	v.BindEnv("SMTP_FROM")
	v.BindEnv("SMTP_USE_TLS")
	v.BindEnv("SMTP_STARTTLS")
	v.BindEnv("ADD_SPF_HEADER")
	v.BindEnv("ADD_DKIM_HEADER")
	v.BindEnv("DB_DIR")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.SMTPFrom == "" {
		if cfg.SMTPUsername != "" {
			cfg.SMTPFrom = cfg.SMTPUsername
		} else {
			cfg.SMTPFrom = "no-reply@example.com"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// UsePostgres reports whether notifications should be persisted in postgres
// rather than the default sqlite file.
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// SQLitePath returns the location of the sqlite database file.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DBDir, "notifications.db")
}

// CBCooldown returns the circuit breaker cooldown as a duration.
func (c *Config) CBCooldown() time.Duration {
	return time.Duration(c.CBCooldownSeconds * float64(time.Second))
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.QueueWorkers < 1 {
		return fmt.Errorf("QUEUE_WORKERS must be at least 1, got %d", c.QueueWorkers)
	}
	if c.RateLimitEnabled {
		if c.RateLimitCapacity <= 0 {
			return fmt.Errorf("RATE_LIMIT_CAPACITY must be positive when rate limiting is enabled, got %v", c.RateLimitCapacity)
		}
		if c.RateLimitRefill <= 0 {
			return fmt.Errorf("RATE_LIMIT_REFILL must be positive when rate limiting is enabled, got %v", c.RateLimitRefill)
		}
	}
	if c.CBCooldownSeconds <= 0 {
		return fmt.Errorf("CB_COOLDOWN must be positive, got %v", c.CBCooldownSeconds)
	}
	if c.FailureRate < 0 || c.FailureRate > 1 {
		return fmt.Errorf("FAILURE_RATE must be between 0 and 1, got %v", c.FailureRate)
	}
	return nil
}
