// Package config loads and validates app config from env and an optional
// .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// ListenAddr is the address the HTTP server listens on (e.g. :9000).
	ListenAddr string `mapstructure:"LISTEN_ADDR"`
	// DatabaseURL is the Postgres DSN backing nonces, identities and the attempt trail.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL backs token revocation and the event stream (e.g. redis://localhost:6379/0).
	RedisURL string `mapstructure:"REDIS_URL"`
	// EthRPCURL is the JSON-RPC endpoint of the read-only chain node.
	EthRPCURL string `mapstructure:"ETH_RPC_URL"`
	// ChainID is the only chain this deployment accepts logins for.
	ChainID int64 `mapstructure:"CHAIN_ID"`
	// AuthDomain is the host signed messages must be bound to (e.g. app.example).
	AuthDomain string `mapstructure:"AUTH_DOMAIN"`
	// NonceTTL is how long an issued nonce stays acceptable (e.g. "10m").
	NonceTTL time.Duration `mapstructure:"NONCE_TTL"`
	// FreshnessWindow bounds |now - issuedAt| of the signed message (e.g. "10m").
	FreshnessWindow time.Duration `mapstructure:"FRESHNESS_WINDOW"`
	// OracleTimeout bounds each individual chain node call (e.g. "5s").
	OracleTimeout time.Duration `mapstructure:"ORACLE_TIMEOUT"`
	// JWTPrivateKey is a PEM-encoded EC private key for ES256 session tokens.
	// When empty an ephemeral key is generated, which invalidates sessions on restart.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment via Viper. Missing .env is ignored; env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("LISTEN_ADDR", ":9000")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("ETH_RPC_URL", "")
	v.SetDefault("CHAIN_ID", 1)
	v.SetDefault("AUTH_DOMAIN", "")
	v.SetDefault("NONCE_TTL", "10m")
	v.SetDefault("FRESHNESS_WINDOW", "10m")
	v.SetDefault("ORACLE_TIMEOUT", "5s")
	v.SetDefault("JWT_PRIVATE_KEY", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("config: DATABASE_URL must be set")
	}
	if cfg.EthRPCURL == "" {
		return nil, errors.New("config: ETH_RPC_URL must be set")
	}
	if cfg.AuthDomain == "" {
		return nil, errors.New("config: AUTH_DOMAIN must be set")
	}
	if cfg.ChainID <= 0 {
		return nil, errors.New("config: CHAIN_ID must be positive")
	}
	if cfg.NonceTTL <= 0 || cfg.FreshnessWindow <= 0 || cfg.OracleTimeout <= 0 {
		return nil, errors.New("config: NONCE_TTL, FRESHNESS_WINDOW and ORACLE_TIMEOUT must be positive")
	}

	return &cfg, nil
}
