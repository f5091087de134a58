package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// minSecretLen is the shortest JWT_SECRET accepted outside development. It
// matches the HS256 key size.
const minSecretLen = 32

// SessionTTL is the lifetime of every issued session token.
const SessionTTL = time.Hour

type Config struct {
	Port                  string        `mapstructure:"PORT"`
	Env                   string        `mapstructure:"ENV"`
	DatabaseURL           string        `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns            int32         `mapstructure:"DB_MIN_CONNS"`
	DBMaxConnIdleTime     time.Duration `mapstructure:"DB_MAX_CONN_IDLE_TIME"`
	DBMaxConnLifetime     time.Duration `mapstructure:"DB_MAX_CONN_LIFETIME"`
	JWTSecret             string        `mapstructure:"JWT_SECRET"`
	TokenTTL              time.Duration `mapstructure:"TOKEN_TTL"`
	BcryptCost            int           `mapstructure:"BCRYPT_COST"`
	CORSOrigins           []string      `mapstructure:"CORS_ORIGINS"`
	RedisURL              string        `mapstructure:"REDIS_URL"`
	RecordCacheTTL        time.Duration `mapstructure:"RECORD_CACHE_TTL"`
	PHIEncryptionKey      string        `mapstructure:"PHI_ENCRYPTION_KEY"`
	RecommendationURL     string        `mapstructure:"RECOMMENDATION_URL"`
	RecommendationTimeout time.Duration `mapstructure:"RECOMMENDATION_TIMEOUT"`
	RequireAuthForRecords bool          `mapstructure:"REQUIRE_AUTH_FOR_RECORDS"`
	BodyLimit             string        `mapstructure:"BODY_LIMIT"`
	MigrationsDir         string        `mapstructure:"MIGRATIONS_DIR"`
	AutoMigrate           bool          `mapstructure:"AUTO_MIGRATE"`
}

var envKeys = []string{
	"PORT",
	"ENV",
	"DATABASE_URL",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"DB_MAX_CONN_IDLE_TIME",
	"DB_MAX_CONN_LIFETIME",
	"JWT_SECRET",
	"TOKEN_TTL",
	"BCRYPT_COST",
	"CORS_ORIGINS",
	"REDIS_URL",
	"RECORD_CACHE_TTL",
	"PHI_ENCRYPTION_KEY",
	"RECOMMENDATION_URL",
	"RECOMMENDATION_TIMEOUT",
	"REQUIRE_AUTH_FOR_RECORDS",
	"BODY_LIMIT",
	"MIGRATIONS_DIR",
	"AUTO_MIGRATE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "5000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_MAX_CONN_IDLE_TIME", 5*time.Minute)
	v.SetDefault("DB_MAX_CONN_LIFETIME", time.Hour)
	v.SetDefault("TOKEN_TTL", SessionTTL)
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RECORD_CACHE_TTL", 30*time.Second)
	v.SetDefault("RECOMMENDATION_URL", "http://localhost:5001/")
	v.SetDefault("RECOMMENDATION_TIMEOUT", 60*time.Second)
	v.SetDefault("REQUIRE_AUTH_FOR_RECORDS", false)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("MIGRATIONS_DIR", "")
	v.SetDefault("AUTO_MIGRATE", true)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: short JWT secrets are accepted. Set ENV=production for deployments.")
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

// Validate checks that the configuration is safe to run. A signing secret is
// always required; there is no built-in fallback. Outside development the
// secret must be at least 32 bytes and the token lifetime is pinned to one
// hour. In production PHI_ENCRYPTION_KEY is required.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required; refusing to start without a token signing secret")
	}
	if !c.IsDev() && len(c.JWTSecret) < minSecretLen {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes outside development, got %d", minSecretLen, len(c.JWTSecret))
	}

	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if !c.IsDev() && c.TokenTTL != SessionTTL {
		return fmt.Errorf("TOKEN_TTL must be %s outside development, got %s", SessionTTL, c.TokenTTL)
	}

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}

	if c.IsProduction() && c.PHIEncryptionKey == "" {
		return fmt.Errorf("PHI_ENCRYPTION_KEY is required in production")
	}
	if c.PHIEncryptionKey != "" {
		if _, err := c.PHIKey(); err != nil {
			return err
		}
	}

	if c.RecommendationTimeout <= 0 {
		return fmt.Errorf("RECOMMENDATION_TIMEOUT must be positive, got %s", c.RecommendationTimeout)
	}

	return nil
}

// PHIKey decodes PHI_ENCRYPTION_KEY. It returns nil when no key is configured.
func (c *Config) PHIKey() ([]byte, error) {
	if c.PHIEncryptionKey == "" {
		return nil, nil
	}
	keyBytes, err := hex.DecodeString(c.PHIEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("PHI_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("PHI_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
	}
	return keyBytes, nil
}
