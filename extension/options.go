package extension

import (
	"time"

	"github.com/xraph/splitledger"
	"github.com/xraph/splitledger/lock"
	"github.com/xraph/splitledger/plugin"
	"github.com/xraph/splitledger/store"
)

// Option configures the SplitLedger Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ledger engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLedgerOption passes a splitledger.Option through to the underlying engine.
func WithLedgerOption(opt splitledger.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, splitledger.WithPlugin(p))
	}
}

// WithLocker sets the per-user lock, e.g. a redislock.Locker shared by
// several instances.
func WithLocker(l lock.Locker) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, splitledger.WithLocker(l))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes skips the HTTP handler.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for ledger routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithStoreTimeout bounds each store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.StoreTimeout = d }
}

// WithReconcileInterval sets how often stale snapshots are rebuilt.
func WithReconcileInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.ReconcileInterval = d }
}

// WithAsyncRefresh queues counterparty refreshes instead of running them inline.
func WithAsyncRefresh() Option {
	return func(e *Extension) { e.config.AsyncRefresh = true }
}
