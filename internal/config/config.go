// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot      BotConfig      `mapstructure:"bot"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Security SecurityConfig `mapstructure:"security"`
	Lobby    LobbyConfig    `mapstructure:"lobby"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Chats    ChatsConfig    `mapstructure:"chats"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds the Redis connection used for payment idempotency.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SecurityConfig holds the signed-request and rate-limit settings.
type SecurityConfig struct {
	// SharedSecret signs and verifies inbound request payloads.
	SharedSecret string `mapstructure:"shared_secret"`
	// SignatureMaxAge is the freshness window for signed payloads.
	SignatureMaxAge time.Duration `mapstructure:"signature_max_age"`
	// MinRequestInterval is the per-user gap enforced by the rate limiter.
	MinRequestInterval time.Duration `mapstructure:"min_request_interval"`
	// RateEntryTTL is the age after which idle rate-limit entries are evicted.
	RateEntryTTL time.Duration `mapstructure:"rate_entry_ttl"`
}

// LobbyConfig holds lobby pool settings.
type LobbyConfig struct {
	// PoolSize is the number of reusable lobbies seeded at startup.
	PoolSize int `mapstructure:"pool_size"`
	// MaxBet caps a single stake.
	MaxBet int64 `mapstructure:"max_bet"`
	// OpenTimeout is how long an open lobby may wait for an opponent
	// before the sweeper resets it and refunds the stake.
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
	// ActiveTimeout is how long a matched lobby may sit without both
	// rolls before the sweeper refunds both stakes. Zero disables it.
	ActiveTimeout time.Duration `mapstructure:"active_timeout"`
	// SweepInterval is how often the sweeper runs.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// PaymentConfig holds payment gateway settings.
type PaymentConfig struct {
	// Provider selects the gateway: "stars", "ton" or "noop".
	Provider string `mapstructure:"provider"`
	// StarsToken is the Telegram bot token used for Stars invoices.
	StarsToken string `mapstructure:"stars_token"`
	// TonEndpoint is the TON HTTP gateway base URL.
	TonEndpoint string `mapstructure:"ton_endpoint"`
	// TonWallet is the payout wallet address.
	TonWallet string `mapstructure:"ton_wallet"`
	// TonAPIKey authenticates against the TON gateway.
	TonAPIKey string `mapstructure:"ton_api_key"`
	// CoinsPerTon converts internal coins to TON for payouts.
	CoinsPerTon int64 `mapstructure:"coins_per_ton"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// ChatsConfig holds the chat whitelist.
type ChatsConfig struct {
	Whitelist []int64 `mapstructure:"whitelist"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. BOT_TOKEN, DATABASE_HOST, SECURITY_SHARED_SECRET
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - env vars can provide all config
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Security.SharedSecret == "" {
		return nil, fmt.Errorf("security.shared_secret is required")
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "ludice")
	v.SetDefault("database.name", "ludice")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("security.signature_max_age", "300s")
	v.SetDefault("security.min_request_interval", "1s")
	v.SetDefault("security.rate_entry_ttl", "1h")

	v.SetDefault("lobby.pool_size", 64)
	v.SetDefault("lobby.max_bet", 10000)
	v.SetDefault("lobby.open_timeout", "10m")
	v.SetDefault("lobby.active_timeout", "30m")
	v.SetDefault("lobby.sweep_interval", "1m")

	v.SetDefault("payment.provider", "noop")
	v.SetDefault("payment.coins_per_ton", 1000)
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Chats.Whitelist) == 0 {
		return true
	}
	for _, id := range c.Chats.Whitelist {
		if id == chatID {
			return true
		}
	}
	return false
}
