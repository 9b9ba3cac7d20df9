// Package config loads the mailroom core's configuration from environment
// variables (and, optionally, a YAML file) via viper. No other package
// reads os.Getenv directly; this is the one place configuration keys are
// named and defaulted.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Env is the deployment environment, gating Secure-cookie/HSTS/strictness.
type Env string

const (
	Development Env = "development"
	Production  Env = "production"
	Testing     Env = "testing"
)

// Config holds every recognized configuration key from spec.md section 6.
type Config struct {
	AppEnv  Env
	Host    string
	Port    string
	Secret  string

	DatabasePath           string
	CheckpointInterval     time.Duration
	UploadDir              string
	MaxUploadSize          int64
	AllowedImageTypes      []string

	SessionTimeout         time.Duration
	MaxConcurrentSessions  int
	MaxFailedLogins        int
	AccountLockoutDuration time.Duration

	PasswordMinLength  int
	PasswordHistoryCount int

	Argon2TimeCost     uint32
	Argon2MemoryCostKiB uint32
	Argon2Parallelism  uint8

	RateLimitLogin int
	RateLimitAPI   int

	LogLevel         string
	LogFile          string
	LogRotationDays  int
	LogRetentionDays int
}

// Load reads configuration from the environment (prefixed MAILROOM_ is not
// required — spec.md's key names are used verbatim so operators'
// existing deployment scripts keep working) with sane defaults, validates
// production constraints, and returns the typed Config.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_HOST", "0.0.0.0")
	v.SetDefault("APP_PORT", "8080")

	v.SetDefault("DATABASE_PATH", "./data/mailroom.db")
	v.SetDefault("DATABASE_CHECKPOINT_INTERVAL", 300)
	v.SetDefault("UPLOAD_DIR", "./data/uploads")
	v.SetDefault("MAX_UPLOAD_SIZE", 5*1024*1024)
	v.SetDefault("ALLOWED_IMAGE_TYPES", "image/jpeg,image/png,image/webp")

	v.SetDefault("SESSION_TIMEOUT", 1800)
	v.SetDefault("MAX_CONCURRENT_SESSIONS", 3)
	v.SetDefault("MAX_FAILED_LOGINS", 5)
	v.SetDefault("ACCOUNT_LOCKOUT_DURATION", 1800)

	v.SetDefault("PASSWORD_MIN_LENGTH", 12)
	v.SetDefault("PASSWORD_HISTORY_COUNT", 3)

	v.SetDefault("ARGON2_TIME_COST", 3)
	v.SetDefault("ARGON2_MEMORY_COST", 19456)
	v.SetDefault("ARGON2_PARALLELISM", 1)

	v.SetDefault("RATE_LIMIT_LOGIN", 10)
	v.SetDefault("RATE_LIMIT_API", 100)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("LOG_ROTATION", 1)
	v.SetDefault("LOG_RETENTION_DAYS", 30)

	// Optional config file, e.g. ./config.yaml, for local development.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // absence is fine; env vars and defaults apply

	cfg := &Config{
		AppEnv: Env(v.GetString("APP_ENV")),
		Host:   v.GetString("APP_HOST"),
		Port:   v.GetString("APP_PORT"),
		Secret: v.GetString("SECRET_KEY"),

		DatabasePath:       v.GetString("DATABASE_PATH"),
		CheckpointInterval: time.Duration(v.GetInt("DATABASE_CHECKPOINT_INTERVAL")) * time.Second,
		UploadDir:          v.GetString("UPLOAD_DIR"),
		MaxUploadSize:      v.GetInt64("MAX_UPLOAD_SIZE"),
		AllowedImageTypes:  splitCSV(v.GetString("ALLOWED_IMAGE_TYPES")),

		SessionTimeout:         time.Duration(v.GetInt("SESSION_TIMEOUT")) * time.Second,
		MaxConcurrentSessions:  v.GetInt("MAX_CONCURRENT_SESSIONS"),
		MaxFailedLogins:        v.GetInt("MAX_FAILED_LOGINS"),
		AccountLockoutDuration: time.Duration(v.GetInt("ACCOUNT_LOCKOUT_DURATION")) * time.Second,

		PasswordMinLength:    v.GetInt("PASSWORD_MIN_LENGTH"),
		PasswordHistoryCount: v.GetInt("PASSWORD_HISTORY_COUNT"),

		Argon2TimeCost:      uint32(v.GetInt("ARGON2_TIME_COST")),
		Argon2MemoryCostKiB: uint32(v.GetInt("ARGON2_MEMORY_COST")),
		Argon2Parallelism:   uint8(v.GetInt("ARGON2_PARALLELISM")),

		RateLimitLogin: v.GetInt("RATE_LIMIT_LOGIN"),
		RateLimitAPI:   v.GetInt("RATE_LIMIT_API"),

		LogLevel:         v.GetString("LOG_LEVEL"),
		LogFile:          v.GetString("LOG_FILE"),
		LogRotationDays:  v.GetInt("LOG_ROTATION"),
		LogRetentionDays: v.GetInt("LOG_RETENTION_DAYS"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Secret == "" {
		return fmt.Errorf("SECRET_KEY is required")
	}
	if c.AppEnv == Production && len(c.Secret) < 32 {
		return fmt.Errorf("SECRET_KEY must be at least 32 characters in production")
	}
	switch c.AppEnv {
	case Development, Production, Testing:
	default:
		return fmt.Errorf("APP_ENV must be one of development, production, testing, got %q", c.AppEnv)
	}
	return nil
}

// IsProduction reports whether Secure-cookie/HSTS/strict checks apply.
func (c *Config) IsProduction() bool {
	return c.AppEnv == Production
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
