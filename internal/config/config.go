package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port         string `mapstructure:"PORT"`
	Env          string `mapstructure:"ENV"`
	AuthMode     string `mapstructure:"AUTH_MODE"`
	AuthIssuer   string `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL  string `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience string `mapstructure:"AUTH_AUDIENCE"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	WarehouseDSN          string        `mapstructure:"WAREHOUSE_DSN"`
	WarehouseMaxOpenConns int           `mapstructure:"WAREHOUSE_MAX_OPEN_CONNS"`
	WarehouseMaxIdleConns int           `mapstructure:"WAREHOUSE_MAX_IDLE_CONNS"`
	QueryTimeout          time.Duration `mapstructure:"QUERY_TIMEOUT"`

	CacheDir string        `mapstructure:"CACHE_DIR"`
	CacheTTL time.Duration `mapstructure:"CACHE_TTL"`

	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string   `mapstructure:"KAFKA_TOPIC"`

	ExportBucket string `mapstructure:"EXPORT_BUCKET"`
	ExportPrefix string `mapstructure:"EXPORT_PREFIX"`
	ExportQueue  string `mapstructure:"EXPORT_QUEUE"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"WAREHOUSE_DSN", "WAREHOUSE_MAX_OPEN_CONNS", "WAREHOUSE_MAX_IDLE_CONNS", "QUERY_TIMEOUT",
	"CACHE_DIR", "CACHE_TTL",
	"KAFKA_BROKERS", "KAFKA_TOPIC",
	"EXPORT_BUCKET", "EXPORT_PREFIX", "EXPORT_QUEUE",
	"CORS_ORIGINS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // "" -> inferred from ENV
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("WAREHOUSE_MAX_OPEN_CONNS", 10)
	v.SetDefault("WAREHOUSE_MAX_IDLE_CONNS", 5)
	v.SetDefault("QUERY_TIMEOUT", "5m")
	v.SetDefault("CACHE_TTL", "24h")
	v.SetDefault("KAFKA_TOPIC", "report.run.completed")
	v.SetDefault("EXPORT_PREFIX", "reports/")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	for _, k := range keys {
		v.BindEnv(k)
	}

	// The .env file is optional.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.WarehouseDSN == "" {
		return nil, fmt.Errorf("WAREHOUSE_DSN is required")
	}

	return cfg, nil
}

// splitList handles comma separated env values, which viper leaves as a single element.
func splitList(parsed []string, raw string) []string {
	if len(parsed) > 1 {
		return parsed
	}
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set. Otherwise development
// environments run without authentication and everything else validates JWTs.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "external"
}

// EventsEnabled reports whether run events are published to Kafka.
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// ArchiveEnabled reports whether exports are archived to S3.
func (c *Config) ArchiveEnabled() bool {
	return c.ExportBucket != ""
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "external" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"external\", got %q", mode)
	}
	if mode == "external" && c.AuthIssuer == "" {
		return fmt.Errorf(
			"AUTH_ISSUER must be set when AUTH_MODE is \"external\" (current ENV=%q). "+
				"Refusing to start without authentication configuration", c.Env)
	}
	if c.IsProduction() && mode == "development" {
		return fmt.Errorf("AUTH_MODE=development is not allowed in production")
	}
	if c.QueryTimeout < 0 {
		return fmt.Errorf("QUERY_TIMEOUT must not be negative, got %s", c.QueryTimeout)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("CACHE_TTL must not be negative, got %s", c.CacheTTL)
	}
	if c.ExportQueue != "" && c.ExportBucket == "" {
		return fmt.Errorf("EXPORT_QUEUE requires EXPORT_BUCKET")
	}
	if c.EventsEnabled() && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}
