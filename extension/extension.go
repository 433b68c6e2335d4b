// Package extension provides the Forge extension adapter for SplitLedger.
//
// It implements the forge.Extension interface to integrate SplitLedger
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.splitledger" or
// "splitledger" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/splitledger"
	"github.com/xraph/splitledger/api"
	"github.com/xraph/splitledger/store"
	"github.com/xraph/splitledger/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "splitledger"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Shared-expense balance ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts SplitLedger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *splitledger.Ledger
	handler    *api.Handler
	store      store.Store
	ledgerOpts []splitledger.Option
}

// New creates a new SplitLedger Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Ledger instance.
// This is nil until Register is called.
func (e *Extension) Engine() *splitledger.Ledger { return e.engine }

// Handler returns the HTTP handler, or nil when routes are disabled or
// Register has not run.
func (e *Extension) Handler() *api.Handler { return e.handler }

// Register implements [forge.Extension]. It loads configuration,
// initializes the ledger engine, and registers it and its HTTP handler in
// the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	e.engine = splitledger.New(e.store, e.buildLedgerOpts()...)

	if err := vessel.Provide(fapp.Container(), func() (*splitledger.Ledger, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}

	if e.config.DisableRoutes {
		return nil
	}
	e.handler = api.NewHandler(e.engine, api.WithBasePath(e.config.BasePath))
	return vessel.Provide(fapp.Container(), func() (*api.Handler, error) {
		return e.handler, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("splitledger: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension]. Users with stale snapshots do not
// fail the check; the reconciler retries them.
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil || e.engine == nil {
		return errors.New("splitledger: extension not initialized")
	}
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	if dirty := e.engine.Dirty(); len(dirty) > 0 {
		e.Logger().Debug("splitledger: stale snapshots pending reconciliation",
			forge.F("count", len(dirty)),
		)
	}
	return nil
}

// buildLedgerOpts constructs splitledger.Option values from the resolved
// config. Pass-through options come last and win.
func (e *Extension) buildLedgerOpts() []splitledger.Option {
	opts := make([]splitledger.Option, 0, len(e.ledgerOpts)+6)

	reconcile := e.config.ReconcileInterval
	if reconcile < 0 {
		reconcile = 0
	}
	opts = append(opts,
		splitledger.WithAutoMigrate(!e.config.DisableMigrate),
		splitledger.WithStoreTimeout(e.config.StoreTimeout),
		splitledger.WithRefreshRetries(e.config.RefreshRetries),
		splitledger.WithReconcileInterval(reconcile),
		splitledger.WithRefreshQueueSize(e.config.RefreshQueueSize),
		splitledger.WithAsyncRefresh(e.config.AsyncRefresh),
	)

	return append(opts, e.ledgerOpts...)
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("splitledger: configuration is required but not found in config files; " +
				"ensure 'extensions.splitledger' or 'splitledger' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("splitledger: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("store_timeout", e.config.StoreTimeout),
		forge.F("refresh_retries", e.config.RefreshRetries),
		forge.F("reconcile_interval", e.config.ReconcileInterval),
		forge.F("async_refresh", e.config.AsyncRefresh),
		forge.F("refresh_queue_size", e.config.RefreshQueueSize),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.splitledger", "splitledger"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("splitledger: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("splitledger: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = defaults.StoreTimeout
	}
	if cfg.RefreshRetries == 0 {
		cfg.RefreshRetries = defaults.RefreshRetries
	}
	if cfg.ReconcileInterval == 0 {
		cfg.ReconcileInterval = defaults.ReconcileInterval
	}
	if cfg.RefreshQueueSize == 0 {
		cfg.RefreshQueueSize = defaults.RefreshQueueSize
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.AsyncRefresh {
		yamlConfig.AsyncRefresh = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.BasePath == "" && programmaticConfig.BasePath != "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.StoreTimeout == 0 && programmaticConfig.StoreTimeout != 0 {
		yamlConfig.StoreTimeout = programmaticConfig.StoreTimeout
	}
	if yamlConfig.RefreshRetries == 0 && programmaticConfig.RefreshRetries != 0 {
		yamlConfig.RefreshRetries = programmaticConfig.RefreshRetries
	}
	if yamlConfig.ReconcileInterval == 0 && programmaticConfig.ReconcileInterval != 0 {
		yamlConfig.ReconcileInterval = programmaticConfig.ReconcileInterval
	}
	if yamlConfig.RefreshQueueSize == 0 && programmaticConfig.RefreshQueueSize != 0 {
		yamlConfig.RefreshQueueSize = programmaticConfig.RefreshQueueSize
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
