package config

import (
	"fmt"
	"strings"
	"time"

	"delivery-settlement/internal/core/domain"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	AES         AESConfig         `mapstructure:"aes"`
	Log         LogConfig         `mapstructure:"log"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Platform    PlatformConfig    `mapstructure:"platform"`
	Commission  CommissionConfig  `mapstructure:"commission"`
	Assignment  AssignmentConfig  `mapstructure:"assignment"`
	Settlement  SettlementConfig  `mapstructure:"settlement"`
	Outbox      OutboxConfig      `mapstructure:"outbox"`
	Processor   ProcessorConfig   `mapstructure:"processor"`
	Firebase    FirebaseConfig    `mapstructure:"firebase"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Reconcile   ReconcileConfig   `mapstructure:"reconcile"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// StorageConfig selects the persistence backend: postgres or memory.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// PlatformConfig identifies the platform's own wallet owner.
type PlatformConfig struct {
	OwnerID string `mapstructure:"owner_id"`
}

// CommissionConfig holds the revenue split. Rates are decimal strings.
type CommissionConfig struct {
	BusinessRate  string `mapstructure:"business_rate"`
	DriverRate    string `mapstructure:"driver_rate"` // empty or "0" = use flat fee
	DriverFlatFee int64  `mapstructure:"driver_flat_fee"`
}

// Policy parses the configured rates.
func (c CommissionConfig) Policy() (domain.CommissionPolicy, error) {
	business, err := decimal.NewFromString(c.BusinessRate)
	if err != nil {
		return domain.CommissionPolicy{}, fmt.Errorf("commission.business_rate: %w", err)
	}
	driver := decimal.Zero
	if strings.TrimSpace(c.DriverRate) != "" {
		if driver, err = decimal.NewFromString(c.DriverRate); err != nil {
			return domain.CommissionPolicy{}, fmt.Errorf("commission.driver_rate: %w", err)
		}
	}
	p := domain.CommissionPolicy{BusinessRate: business, DriverRate: driver, DriverFlatFee: c.DriverFlatFee}
	if err := p.Validate(); err != nil {
		return domain.CommissionPolicy{}, fmt.Errorf("commission: %w", err)
	}
	return p, nil
}

type AssignmentConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

type SettlementConfig struct {
	Deadline      time.Duration `mapstructure:"deadline"`
	CloseInterval time.Duration `mapstructure:"close_interval"`
	BlockInterval time.Duration `mapstructure:"block_interval"`
}

type OutboxConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// ProcessorConfig points at the external card processor.
type ProcessorConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// FirebaseConfig enables push delivery when a credentials file is set.
type FirebaseConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
}

type IdempotencyConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type ReconcileConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: DSE_.
// Nested keys use underscore: DSE_DATABASE_HOST, DSE_COMMISSION_BUSINESS_RATE, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "delivery")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.dial_timeout", "3s")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "delivery-settlement")
	v.SetDefault("aes.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("platform.owner_id", "00000000-0000-0000-0000-000000000001")
	v.SetDefault("commission.business_rate", "0.70")
	v.SetDefault("commission.driver_rate", "")
	v.SetDefault("commission.driver_flat_fee", 2500)
	v.SetDefault("assignment.max_attempts", 3)
	v.SetDefault("settlement.deadline", "48h")
	v.SetDefault("settlement.close_interval", "1h")
	v.SetDefault("settlement.block_interval", "15m")
	v.SetDefault("outbox.poll_interval", "5s")
	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.max_attempts", 6)
	v.SetDefault("processor.base_url", "")
	v.SetDefault("processor.api_key", "")
	v.SetDefault("processor.webhook_secret", "")
	v.SetDefault("processor.timeout", "10s")
	v.SetDefault("firebase.credentials_file", "")
	v.SetDefault("idempotency.cache_ttl", "72h")
	v.SetDefault("reconcile.interval", "24h")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("DSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The file is optional; env vars can suffice.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
