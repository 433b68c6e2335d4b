package extension

import "time"

// Config holds the SplitLedger extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.splitledger" or "splitledger" keys).
type Config struct {
	// DisableRoutes skips building and registering the HTTP handler.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for ledger routes (default: "/splitledger").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// StoreTimeout bounds each store call (default: 5s).
	StoreTimeout time.Duration `json:"store_timeout" mapstructure:"store_timeout" yaml:"store_timeout"`

	// RefreshRetries is how many times a snapshot refresh is retried after
	// losing a compare-and-set (default: 3).
	RefreshRetries int `json:"refresh_retries" mapstructure:"refresh_retries" yaml:"refresh_retries"`

	// ReconcileInterval is how often stale snapshots are rebuilt in the
	// background (default: 30s).
	ReconcileInterval time.Duration `json:"reconcile_interval" mapstructure:"reconcile_interval" yaml:"reconcile_interval"`

	// AsyncRefresh refreshes only the acting user inline.
	AsyncRefresh bool `json:"async_refresh" mapstructure:"async_refresh" yaml:"async_refresh"`

	// RefreshQueueSize caps the async refresh queue (default: 1024).
	RefreshQueueSize int `json:"refresh_queue_size" mapstructure:"refresh_queue_size" yaml:"refresh_queue_size"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:          "/splitledger",
		StoreTimeout:      5 * time.Second,
		RefreshRetries:    3,
		ReconcileInterval: 30 * time.Second,
		RefreshQueueSize:  1024,
	}
}
