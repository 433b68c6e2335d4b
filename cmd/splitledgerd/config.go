package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/viper"
)

// Config is the daemon configuration, read from the environment.
type Config struct {
	Server   ServerConfig `mapstructure:"SERVER"`
	Redis    RedisConfig  `mapstructure:"REDIS"`
	Ledger   LedgerConfig `mapstructure:"LEDGER"`
	LogLevel string       `mapstructure:"LOG_LEVEL"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"PORT"`
	BasePath        string        `mapstructure:"BASE_PATH"`
	MetricsPath     string        `mapstructure:"METRICS_PATH"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

// RedisConfig enables the shared Redis lock when Address is set.
type RedisConfig struct {
	Address  string        `mapstructure:"ADDRESS"`
	Password string        `mapstructure:"PASSWORD"`
	DB       int           `mapstructure:"DB"`
	LockTTL  time.Duration `mapstructure:"LOCK_TTL"`
}

type LedgerConfig struct {
	StoreTimeout      time.Duration `mapstructure:"STORE_TIMEOUT"`
	RefreshRetries    int           `mapstructure:"REFRESH_RETRIES"`
	ReconcileInterval time.Duration `mapstructure:"RECONCILE_INTERVAL"`
	AsyncRefresh      bool          `mapstructure:"ASYNC_REFRESH"`
	RefreshQueueSize  int           `mapstructure:"REFRESH_QUEUE_SIZE"`
}

// bindEnvVars binds config keys to environment variables.
// Format: []{configKey, envVar}
func bindEnvVars(v *viper.Viper, bindings [][2]string) error {
	for _, b := range bindings {
		if err := v.BindEnv(b[0], b[1]); err != nil {
			return fmt.Errorf("failed to bind %s: %w", b[0], err)
		}
	}
	return nil
}

// LoadConfig reads defaults and environment overrides and validates the result.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVER.PORT", "8080")
	v.SetDefault("SERVER.BASE_PATH", "/splitledger")
	v.SetDefault("SERVER.METRICS_PATH", "/metrics")
	v.SetDefault("SERVER.SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("REDIS.ADDRESS", "")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.LOCK_TTL", "10s")
	v.SetDefault("LEDGER.STORE_TIMEOUT", "5s")
	v.SetDefault("LEDGER.REFRESH_RETRIES", 3)
	v.SetDefault("LEDGER.RECONCILE_INTERVAL", "30s")
	v.SetDefault("LEDGER.ASYNC_REFRESH", false)
	v.SetDefault("LEDGER.REFRESH_QUEUE_SIZE", 1024)
	v.SetDefault("LOG_LEVEL", "info")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envBindings := [][2]string{
		{"SERVER.PORT", "PORT"},
		{"SERVER.BASE_PATH", "SERVER_BASE_PATH"},
		{"SERVER.METRICS_PATH", "SERVER_METRICS_PATH"},
		{"SERVER.SHUTDOWN_TIMEOUT", "SERVER_SHUTDOWN_TIMEOUT"},
		{"REDIS.ADDRESS", "REDIS_ADDRESS"},
		{"REDIS.PASSWORD", "REDIS_PASSWORD"},
		{"REDIS.DB", "REDIS_DB"},
		{"REDIS.LOCK_TTL", "REDIS_LOCK_TTL"},
		{"LEDGER.STORE_TIMEOUT", "LEDGER_STORE_TIMEOUT"},
		{"LEDGER.REFRESH_RETRIES", "LEDGER_REFRESH_RETRIES"},
		{"LEDGER.RECONCILE_INTERVAL", "LEDGER_RECONCILE_INTERVAL"},
		{"LEDGER.ASYNC_REFRESH", "LEDGER_ASYNC_REFRESH"},
		{"LEDGER.REFRESH_QUEUE_SIZE", "LEDGER_REFRESH_QUEUE_SIZE"},
		{"LOG_LEVEL", "LOG_LEVEL"},
	}
	if err := bindEnvVars(v, envBindings); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal failed: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if cfg.Server.MetricsPath == "" || !strings.HasPrefix(cfg.Server.MetricsPath, "/") {
		return fmt.Errorf("metrics path must start with /")
	}
	if cfg.Ledger.StoreTimeout <= 0 {
		return fmt.Errorf("ledger store timeout must be positive")
	}
	if cfg.Ledger.RefreshRetries < 0 {
		return fmt.Errorf("ledger refresh retries must not be negative")
	}
	if cfg.Ledger.ReconcileInterval < 0 {
		return fmt.Errorf("ledger reconcile interval must not be negative")
	}
	if cfg.Ledger.AsyncRefresh && cfg.Ledger.RefreshQueueSize <= 0 {
		return fmt.Errorf("ledger refresh queue size must be positive with async refresh")
	}
	if cfg.Redis.Address != "" && cfg.Redis.LockTTL <= 0 {
		return fmt.Errorf("redis lock ttl must be positive")
	}
	return nil
}

// newLogger returns a colored slog logger at the configured level.
func newLogger(level string) *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      parseLevel(level),
		TimeFormat: time.Kitchen,
	}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
