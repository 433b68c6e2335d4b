package splitledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/splitledger/lock"
	"github.com/xraph/splitledger/plugin"
	"github.com/xraph/splitledger/store"
)

// Defaults for the engine options.
const (
	DefaultStoreTimeout      = 5 * time.Second
	DefaultRefreshRetries    = 3
	DefaultReconcileInterval = 30 * time.Second
	DefaultRefreshQueueSize  = 1024
)

// Ledger is the balance engine. Every mutation writes the record store
// first and then refreshes the balance snapshots of the users it touched.
type Ledger struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	locker  lock.Locker
	now     func() time.Time

	// Background workers
	refreshQueue chan string
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup

	// Users whose snapshot failed to refresh and awaits reconciliation.
	dirtyMu sync.Mutex
	dirty   map[string]struct{}

	// Configuration
	storeTimeout      time.Duration
	refreshRetries    int
	reconcileInterval time.Duration
	asyncRefresh      bool
	refreshQueueSize  int
	autoMigrate       bool
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:             s,
		plugins:           plugin.NewRegistry(),
		logger:            slog.Default(),
		locker:            lock.NewLocal(),
		now:               func() time.Time { return time.Now().UTC() },
		stopChan:          make(chan struct{}),
		dirty:             make(map[string]struct{}),
		storeTimeout:      DefaultStoreTimeout,
		refreshRetries:    DefaultRefreshRetries,
		reconcileInterval: DefaultReconcileInterval,
		refreshQueueSize:  DefaultRefreshQueueSize,
		autoMigrate:       true,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.asyncRefresh {
		l.refreshQueue = make(chan string, l.refreshQueueSize)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithLocker replaces the in-process per-user lock, e.g. with a Redis
// backed one when several instances share a store.
func WithLocker(locker lock.Locker) Option {
	return func(l *Ledger) {
		l.locker = locker
	}
}

// WithStoreTimeout bounds every individual store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		l.storeTimeout = d
	}
}

// WithRefreshRetries sets how many times a refresh re-reads after losing
// a snapshot compare-and-set.
func WithRefreshRetries(n int) Option {
	return func(l *Ledger) {
		l.refreshRetries = n
	}
}

// WithReconcileInterval sets how often stale snapshots are retried. Zero
// disables the background reconciler.
func WithReconcileInterval(d time.Duration) Option {
	return func(l *Ledger) {
		l.reconcileInterval = d
	}
}

// WithAsyncRefresh refreshes only the acting user inline and queues
// everyone else for the background refresh worker.
func WithAsyncRefresh(enabled bool) Option {
	return func(l *Ledger) {
		l.asyncRefresh = enabled
	}
}

// WithRefreshQueueSize sets the capacity of the asynchronous refresh
// queue. Users that do not fit are marked dirty for the reconciler.
func WithRefreshQueueSize(n int) Option {
	return func(l *Ledger) {
		l.refreshQueueSize = n
	}
}

// WithAutoMigrate controls whether Start migrates the store.
func WithAutoMigrate(enabled bool) Option {
	return func(l *Ledger) {
		l.autoMigrate = enabled
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// Store returns the underlying store.
func (l *Ledger) Store() store.Store { return l.store }

// Start migrates the store and begins background workers.
func (l *Ledger) Start(ctx context.Context) error {
	if l.autoMigrate {
		if err := l.store.Migrate(ctx); err != nil {
			return err
		}
	}

	l.plugins.EmitInit(ctx, l)

	if l.reconcileInterval > 0 {
		l.wg.Add(1)
		go l.reconcileWorker(ctx)
	}
	if l.asyncRefresh {
		l.wg.Add(1)
		go l.refreshWorker(ctx)
	}

	l.logger.Info("splitledger started",
		"async_refresh", l.asyncRefresh,
		"reconcile_interval", l.reconcileInterval,
		"store_timeout", l.storeTimeout,
	)

	return nil
}

// Stop drains the workers, runs shutdown hooks, and closes the store.
func (l *Ledger) Stop() error {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()

	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	return l.store.Close()
}

// reconcileWorker retries stale snapshots on a ticker.
func (l *Ledger) reconcileWorker(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			if err := l.Reconcile(ctx); err != nil {
				l.logger.Error("reconcile pass left stale snapshots",
					"error", err,
					"remaining", len(l.Dirty()),
				)
			}
		}
	}
}

// refreshWorker drains the async refresh queue. Whatever is still queued
// at shutdown is marked dirty so a later reconcile picks it up.
func (l *Ledger) refreshWorker(ctx context.Context) {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			for {
				select {
				case userID := <-l.refreshQueue:
					l.markDirty(ctx, userID, ErrLedgerStopped)
				default:
					return
				}
			}
		case userID := <-l.refreshQueue:
			if err := l.refresh(ctx, userID); err != nil {
				l.markDirty(ctx, userID, err)
			}
		}
	}
}

// call runs one store operation under the store timeout and classifies
// its error.
func (l *Ledger) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	return storeErr(op, fn(ctx))
}

// fetch is call for operations that return a value.
func fetch[T any](l *Ledger, ctx context.Context, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	v, err := fn(ctx)
	return v, storeErr(op, err)
}

// Receipt reports what happened to the balance snapshots after a
// committed mutation. The mutation itself succeeded whenever a Receipt is
// returned.
type Receipt struct {
	Refreshed []string `json:"refreshed,omitempty"`
	Stale     []string `json:"stale,omitempty"`
	Queued    []string `json:"queued,omitempty"`
}

// Degraded reports whether some snapshot was left stale.
func (r *Receipt) Degraded() bool { return r != nil && len(r.Stale) > 0 }
